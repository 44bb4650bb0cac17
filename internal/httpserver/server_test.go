package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/app"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/observability"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/providers"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/requestctx"
)

func TestNewRequiresContainer(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = New(&app.Container{})
	require.Error(t, err)
}

func TestHealthzReportsProviderState(t *testing.T) {
	container := &app.Container{
		Config: &config.Config{Server: config.ServerConfig{BodyLimitMB: 1}},
		Providers: providers.NewRegistry("fal-ai/qwen-image", "",
			providers.Route{Provider: providers.ProviderFal, Health: func(context.Context) error { return errors.New("circuit open") }},
		),
	}
	srv, err := New(container)
	require.NoError(t, err)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image-studio", resp.Header.Get("Server"))

	var body struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "degraded", body.Status)
	require.Equal(t, "error", body.Checks["provider:fal"]["status"])
	require.NotContains(t, body.Checks, "redis")
}

func TestMetricsEndpoint(t *testing.T) {
	obs, err := observability.Setup(context.Background(), config.ObservabilityConfig{EnableMetrics: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = obs.Shutdown(context.Background()) })

	container := &app.Container{
		Config:        &config.Config{Server: config.ServerConfig{BodyLimitMB: 1}},
		Observability: obs,
	}
	srv, err := New(container)
	require.NoError(t, err)

	_, err = srv.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	require.NoError(t, err)
	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAccessLogFields(t *testing.T) {
	tests := []struct {
		name    string
		handler fiber.Handler
		status  int
		level   zapcore.Level
		org     string
	}{
		{
			name: "ok with org",
			handler: func(c *fiber.Ctx) error {
				c.Locals(requestctx.FiberLocalsKey(), requestctx.New("ngo", ""))
				return c.SendStatus(http.StatusOK)
			},
			status: http.StatusOK, level: zapcore.InfoLevel, org: "ngo",
		},
		{
			name: "client error",
			handler: func(c *fiber.Ctx) error {
				c.Locals(requestctx.FiberLocalsKey(), requestctx.New("political_party", ""))
				return c.SendStatus(http.StatusTooManyRequests)
			},
			status: http.StatusTooManyRequests, level: zapcore.WarnLevel, org: "political_party",
		},
		{
			name:    "returned error",
			handler: func(c *fiber.Ctx) error { return fiber.NewError(http.StatusBadGateway, "upstream") },
			status:  http.StatusBadGateway, level: zapcore.ErrorLevel,
		},
		{
			name:    "panic",
			handler: func(c *fiber.Ctx) error { panic("boom") },
			status:  http.StatusInternalServerError, level: zapcore.ErrorLevel,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			logger := zap.New(core)
			a := fiber.New(fiber.Config{DisableStartupMessage: true})
			a.Use(requestid.New(), accessLog(logger), recoverPanics(logger))
			a.Get("/images/:id", tt.handler)

			resp, err := a.Test(httptest.NewRequest(http.MethodGet, "/images/7", nil), -1)
			require.NoError(t, err)
			require.Equal(t, tt.status, resp.StatusCode)

			entries := logs.FilterMessage("http request").All()
			require.Len(t, entries, 1)
			fields := entries[0].ContextMap()
			require.Equal(t, tt.level, entries[0].Level)
			require.Equal(t, "/images/:id", fields["route"])
			require.EqualValues(t, tt.status, fields["status"])
			require.Equal(t, tt.org, fields["org_type"])
			require.Equal(t, resp.Header.Get(fiber.HeaderXRequestID), fields["request_id"])
			require.NotEmpty(t, fields["request_id"])
		})
	}
}

func TestPanicLogsRequestFields(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	logger := zap.New(core)
	a := fiber.New(fiber.Config{DisableStartupMessage: true})
	a.Use(requestid.New(), recoverPanics(logger))
	a.Get("/boom", func(c *fiber.Ctx) error {
		c.Locals(requestctx.FiberLocalsKey(), requestctx.New("general", ""))
		panic("boom")
	})

	resp, err := a.Test(httptest.NewRequest(http.MethodGet, "/boom", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	entries := logs.FilterMessage("handler panic").All()
	require.Len(t, entries, 1)
	require.Equal(t, "general", entries[0].ContextMap()["org_type"])
	require.Equal(t, "/boom", entries[0].ContextMap()["route"])
}
