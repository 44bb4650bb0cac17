package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
)

// New builds the process logger for the configured environment.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Environment)) {
	case "production", "prod":
		zcfg := zap.NewProductionConfig()
		if err := applyLevel(&zcfg, cfg.Level); err != nil {
			return nil, err
		}
		l, err = zcfg.Build()
	case "test":
		l = zap.NewExample()
	default:
		zcfg := zap.NewDevelopmentConfig()
		if err := applyLevel(&zcfg, cfg.Level); err != nil {
			return nil, err
		}
		l, err = zcfg.Build()
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Must is New for process entrypoints.
func Must(cfg config.LoggingConfig) *zap.Logger {
	return zap.Must(New(cfg))
}

func applyLevel(zcfg *zap.Config, level string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		return nil
	}
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse logging.level: %w", err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(parsed)
	return nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
