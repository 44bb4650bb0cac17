package providers

import (
	"context"
	"errors"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/adapters/fal"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
)

func init() {
	RegisterDefinition(Definition{
		Name:        ProviderFal,
		Description: "fal.ai synchronous endpoints (qwen-image generation and edit)",
		Builder:     buildFalRoute,
	})
}

func buildFalRoute(ctx context.Context, cfg *config.Config, deps Deps) (Route, error) {
	cfg = EnsureConfig(cfg)
	if deps.Keys == nil {
		return Route{}, errors.New("fal provider requires a key resolver")
	}
	fc := cfg.Providers.Fal
	client, err := fal.New(fal.Options{
		BaseURL:         fc.BaseURL,
		Timeout:         fc.Timeout,
		MaxRetries:      fc.MaxRetries,
		BreakerFailures: fc.BreakerFailures,
		BreakerTimeout:  fc.BreakerTimeout,
		Keys:            deps.Keys,
		Logger:          deps.Logger.Named("fal"),
	})
	if err != nil {
		return Route{}, err
	}
	md := map[string]string{"base_url": fc.BaseURL}
	return Route{
		Provider:  ProviderFal,
		Model:     fc.DefaultModel,
		Metadata:  md,
		Generator: client,
		Health: func(context.Context) error {
			if client.State() == "open" {
				return fal.ErrCircuitOpen
			}
			return nil
		},
	}, nil
}
