package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/app"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/database"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/httpserver"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/logging"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/observability"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/redisclient"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Options{})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	var dbPool *pgxpool.Pool
	if cfg.Database.Enabled() {
		if err := database.RunMigrations(ctx, cfg.Database); err != nil {
			logger.Fatal("run migrations", zap.Error(err))
		}
		dbPool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connect database", zap.Error(err))
		}
		defer dbPool.Close()
	} else {
		logger.Info("database not configured; branding profiles and history disabled")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redisclient.New(cfg.Redis)
		if err := redisclient.Ping(ctx, redisClient); err != nil {
			logger.Fatal("connect redis", zap.Error(err))
		}
		defer redisClient.Close()
	} else {
		logger.Info("redis not configured; rate limits and idempotency disabled")
	}

	obs, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		logger.Fatal("setup observability", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	container, err := app.NewContainer(ctx, app.Options{
		Config:        cfg,
		Logger:        logger,
		Pool:          dbPool,
		Redis:         redisClient,
		Observability: obs,
	})
	if err != nil {
		logger.Fatal("build container", zap.Error(err))
	}
	defer container.Close()

	server, err := httpserver.New(container)
	if err != nil {
		logger.Fatal("construct server", zap.Error(err))
	}

	logger.Info("image studio listening",
		zap.String("addr", cfg.Server.ListenAddr),
		zap.Strings("providers", container.Providers.Providers()),
		zap.String("branding", string(container.Branding.Mode())),
		zap.String("enhancement_version", container.Enhancements.Current().Version()))

	if err := server.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("image studio stopped")
}
