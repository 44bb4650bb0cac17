package providers

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/adapters/fal"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
)

// ErrNotConfigured lets a builder opt out when its credentials are absent.
var ErrNotConfigured = errors.New("providers: not configured")

// Deps carries shared collaborators into builders.
type Deps struct {
	Keys   fal.KeyResolver
	Logger *zap.Logger
}

// Builder constructs a provider Route from configuration.
type Builder func(ctx context.Context, cfg *config.Config, deps Deps) (Route, error)

// Factory builds provider routes from configuration using a registry of builders.
type Factory struct {
	cfg      *config.Config
	deps     Deps
	builders map[string]Builder
}

// NewFactory creates a factory with the default provider registry.
func NewFactory(cfg *config.Config, deps Deps) *Factory {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, deps: deps, builders: cloneDefaultBuilders()}
}

// Register allows tests or callers to override provider builders.
func (f *Factory) Register(name string, builder Builder) {
	if f.builders == nil {
		f.builders = make(map[string]Builder)
	}
	f.builders[name] = builder
}

// Build instantiates every configured provider. fal is required.
func (f *Factory) Build(ctx context.Context) (*Registry, error) {
	cfg := EnsureConfig(f.cfg)
	routes := make([]Route, 0, len(f.builders))
	for name, builder := range f.builders {
		route, err := builder(ctx, cfg, f.deps)
		if errors.Is(err, ErrNotConfigured) {
			f.deps.Logger.Info("image provider disabled", zap.String("provider", name), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		if route.Provider == "" {
			route.Provider = name
		}
		routes = append(routes, route)
	}
	reg := NewRegistry(cfg.Providers.Fal.DefaultModel, cfg.Providers.Fal.EditModel, routes...)
	if _, ok := reg.Route(ProviderFal); !ok {
		return nil, fmt.Errorf("provider %q: %w", ProviderFal, ErrProviderUnavailable)
	}
	return reg, nil
}
