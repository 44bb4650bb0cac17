package httputil

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorFields(t *testing.T) {
	app := fiber.New()
	app.Get("/blocked", func(c *fiber.Ctx) error {
		return WriteErrorFields(c, fiber.StatusBadRequest, "blocked", fiber.Map{"category": "sexual", "error": "ignored"})
	})
	app.Get("/empty", func(c *fiber.Ctx) error {
		return WriteError(c, fiber.StatusServiceUnavailable, "")
	})

	cases := map[string]struct {
		status int
		want   map[string]any
	}{
		"/blocked": {fiber.StatusBadRequest, map[string]any{"error": "blocked", "category": "sexual"}},
		"/empty":   {fiber.StatusServiceUnavailable, map[string]any{"error": "Service Unavailable"}},
	}
	for path, tc := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
		require.NoError(t, err)
		require.Equal(t, tc.status, resp.StatusCode)
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		require.Equal(t, tc.want, body)
	}
}
