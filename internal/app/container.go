package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/apikeys"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/branding"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/cache"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/enhancement"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/generation"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/limits"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/logging"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/moderation"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/observability"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/providers"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/storage/blob"
)

// Container aggregates runtime dependencies for handlers and commands.
type Container struct {
	Config        *config.Config
	Logger        *zap.Logger
	DBPool        *pgxpool.Pool
	Redis         *redis.Client
	Observability *observability.Provider

	Moderator     *moderation.Moderator
	Enhancements  enhancement.Source
	Branding      branding.Strategy
	BrandingStore *branding.CachedStore
	Keys          *apikeys.Resolver
	Providers     *providers.Registry
	Blob          blob.Store
	Generation    *generation.Service

	Idempotency *cache.IdempotencyCache
	RateLimiter *limits.RateLimiter
	RateLimits  limits.Policy

	closers []func() error
}

// Options carries the primitives a container is built from. Pool and Redis
// are optional; the features that need them degrade when absent.
type Options struct {
	Config        *config.Config
	Logger        *zap.Logger
	Pool          *pgxpool.Pool
	Redis         *redis.Client
	Observability *observability.Provider
	Keys          *apikeys.Resolver
}

// NewContainer builds a dependency container from the provided primitives.
func NewContainer(ctx context.Context, opts Options) (*Container, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := logging.OrNop(opts.Logger)
	keys := opts.Keys
	if keys == nil {
		keys = apikeys.New()
	}

	c := &Container{
		Config:        cfg,
		Logger:        logger,
		DBPool:        opts.Pool,
		Redis:         opts.Redis,
		Observability: opts.Observability,
		Keys:          keys,
		RateLimiter:   limits.NewRateLimiter(opts.Redis),
		RateLimits:    RateLimitPolicy(cfg.RateLimits),
	}

	moderator, err := buildModerator(cfg, logger, opts.Observability)
	if err != nil {
		return nil, err
	}
	c.Moderator = moderator

	source, err := c.buildEnhancementSource(cfg.Enhancement, logger)
	if err != nil {
		return nil, err
	}
	c.Enhancements = source

	if err := c.buildBranding(cfg.Branding, logger); err != nil {
		return nil, err
	}

	registry, err := providers.NewFactory(cfg, providers.Deps{Keys: keys, Logger: logger}).Build(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init providers: %w", err)
	}
	c.Providers = registry

	store, err := blob.New(ctx, cfg.Storage)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init blob store: %w", err)
	}
	c.Blob = store

	var history generation.History
	if opts.Pool != nil {
		history = generation.NewPostgresHistory(opts.Pool)
	}

	var recorder generation.Recorder
	if opts.Observability != nil {
		recorder = opts.Observability
	}

	svc, err := generation.NewService(generation.Options{
		Moderator:    moderator,
		Branding:     c.Branding,
		Enhancements: source,
		Providers:    registry,
		Store:        store,
		History:      history,
		Recorder:     recorder,
		Logger:       logger.Named("generation"),
		UseEditText:  cfg.Enhancement.EditTextMode == config.EditTextModeEdit,
		Disclaimer:   generation.NewDisclaimer(cfg.Storage.Disclaimer),
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Generation = svc

	if opts.Redis != nil {
		c.Idempotency = cache.NewIdempotencyCache(opts.Redis, cfg.Server.IdempotencyTTL, logger.Named("idempotency"))
	}
	return c, nil
}

// Close releases watchers started by the container. Connections passed in
// through Options stay owned by the caller.
func (c *Container) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("container close", zap.Error(err))
		}
	}
	c.closers = nil
}

// Enhancer returns an enhancer bound to the current configuration snapshot.
func (c *Container) Enhancer() *enhancement.Enhancer {
	return enhancement.New(c.Enhancements.Current())
}

func buildModerator(cfg *config.Config, logger *zap.Logger, obs *observability.Provider) (*moderation.Moderator, error) {
	profiles := moderation.BuiltinProfiles()
	if path := strings.TrimSpace(cfg.Moderation.ProfilesFile); path != "" {
		loaded, err := moderation.LoadProfiles(path)
		if err != nil {
			return nil, fmt.Errorf("load moderation profiles: %w", err)
		}
		profiles = loaded
	}

	opts := []moderation.Option{
		moderation.WithEnabled(cfg.Moderation.Enabled),
		moderation.WithLogger(logger.Named("moderation")),
	}
	if obs != nil {
		opts = append(opts, moderation.WithRecorder(obs))
	}

	oc := cfg.Providers.OpenAI
	if cfg.Moderation.OpenAI.Enabled && oc.Configured() {
		text, err := moderation.NewOpenAIClassifier(moderation.ClientOptions{
			APIKey:       oc.APIKey,
			BaseURL:      oc.BaseURL,
			Organization: oc.Organization,
			Model:        cfg.Moderation.OpenAI.Model,
			Timeout:      cfg.Moderation.OpenAI.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init text classifier: %w", err)
		}
		opts = append(opts, moderation.WithTextClassifier(text))
	}

	ic := cfg.Moderation.Image
	switch ic.Provider {
	case "openai":
		image, err := moderation.NewOpenAIImageClassifier(moderation.ClientOptions{
			APIKey:       oc.APIKey,
			BaseURL:      oc.BaseURL,
			Organization: oc.Organization,
			Model:        ic.Model,
			Timeout:      ic.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init image classifier: %w", err)
		}
		opts = append(opts, moderation.WithImageClassifier(image))
	case "webhook":
		if hook := moderation.NewWebhookClassifier(moderation.WebhookOptions{
			URL:        ic.WebhookURL,
			AuthHeader: ic.WebhookAuthHeader,
			AuthValue:  ic.WebhookAuthValue,
			Timeout:    ic.Timeout,
		}); hook != nil {
			opts = append(opts, moderation.WithImageClassifier(hook))
		}
	}

	return moderation.New(moderation.NewRegistry(profiles), opts...), nil
}

func (c *Container) buildEnhancementSource(cfg config.EnhancementConfig, logger *zap.Logger) (enhancement.Source, error) {
	logger = logger.Named("enhancement")
	if !cfg.Watch {
		return enhancement.LoadSource(cfg.ConfigFile, logger), nil
	}
	watcher, err := enhancement.NewWatcher(cfg.ConfigFile, cfg.Debounce, logger, enhancement.WithReloadHook(func(s *enhancement.Snapshot) {
		logger.Info("enhancement config reloaded", zap.String("version", s.Version()), zap.String("fingerprint", s.Fingerprint()))
	}))
	if err != nil {
		return nil, fmt.Errorf("watch enhancement config: %w", err)
	}
	c.closers = append(c.closers, watcher.Close)
	return watcher, nil
}

func (c *Container) buildBranding(cfg config.BrandingConfig, logger *zap.Logger) error {
	if c.DBPool != nil {
		var brandCache branding.Cache
		if c.Redis != nil {
			brandCache = branding.NewRedisCache(c.Redis, cfg.CacheTTL, logger.Named("branding"))
		} else {
			brandCache = branding.NewMemoryCache(cfg.CacheTTL, time.Now)
		}
		c.BrandingStore = branding.NewCachedStore(branding.NewPostgresStore(c.DBPool), brandCache)
	}

	var store branding.Store
	if c.BrandingStore != nil {
		store = c.BrandingStore
	}
	mode := branding.ResolveMode(cfg.Mode, store != nil)
	strategy, err := branding.NewStrategy(mode, store)
	if err != nil {
		return err
	}
	logger.Info("branding strategy selected", zap.String("mode", string(mode)))
	c.Branding = strategy
	return nil
}
