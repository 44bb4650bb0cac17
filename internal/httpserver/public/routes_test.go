package public

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/adapters/fal"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/app"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/cache"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/enhancement"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/generation"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/limits"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/models"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/moderation"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/providers"
)

const enhancementJSON = `{
  "version": "2.1",
  "enums": {"quality": ["high quality", "professional"]},
  "rules": {"quality": {"high quality": ["sharp", "crisp"], "professional": ["studio lighting"]}},
  "negatives": {"quality": {"professional": ["snapshot look"]}},
  "defaults": {"selection": {"quality": "high quality"}, "weights": {"quality": 1.2}},
  "assembly": {"order": ["quality"], "join": ", "},
  "enforced_negatives": ["blurry"],
  "enforced_negatives_nsfw": ["nudity"],
  "enhancement_text": "Vivid colors.",
  "edit_enhancement_text": "Keep everything else unchanged."
}`

type stubGenerator struct {
	mu    sync.Mutex
	gen   []models.ImageRequest
	edits []models.ImageEditRequest
	err   error
}

func (s *stubGenerator) Generate(_ context.Context, req models.ImageRequest) (models.ImageResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen = append(s.gen, req)
	return s.reply(), s.err
}

func (s *stubGenerator) Edit(_ context.Context, req models.ImageEditRequest) (models.ImageResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits = append(s.edits, req)
	return s.reply(), s.err
}

func (s *stubGenerator) reply() models.ImageResponse {
	if s.err != nil {
		return models.ImageResponse{}
	}
	return models.ImageResponse{
		Provider: "fal",
		Data:     []models.ImageData{{URL: "https://cdn.fal.example/1.png", ContentType: "image/png"}},
	}
}

func (s *stubGenerator) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gen) + len(s.edits)
}

func newTestApp(t *testing.T, gen *stubGenerator, rl limits.LimitConfig) *fiber.App {
	t.Helper()
	logger := zaptest.NewLogger(t)

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg, err := enhancement.Parse([]byte(enhancementJSON))
	require.NoError(t, err)
	source := enhancement.NewStaticSource(enhancement.NewSnapshot(cfg, "test"))

	moderator := moderation.New(moderation.NewRegistry(moderation.BuiltinProfiles()),
		moderation.WithEnabled(true), moderation.WithLogger(logger))
	registry := providers.NewRegistry("fal-ai/qwen-image", "fal-ai/qwen-image-edit",
		providers.Route{Provider: providers.ProviderFal, Model: "fal-ai/qwen-image", Generator: gen})

	svc, err := generation.NewService(generation.Options{
		Moderator:    moderator,
		Enhancements: source,
		Providers:    registry,
		Logger:       logger,
		UseEditText:  true,
	})
	require.NoError(t, err)

	container := &app.Container{
		Config:       &config.Config{Enhancement: config.EnhancementConfig{EditTextMode: config.EditTextModeEdit}},
		Logger:       logger,
		Redis:        client,
		Moderator:    moderator,
		Enhancements: source,
		Providers:    registry,
		Generation:   svc,
		Idempotency:  cache.NewIdempotencyCache(client, time.Minute, logger),
		RateLimiter:  limits.NewRateLimiter(client),
		RateLimits:   limits.Policy{Default: rl},
	}

	fiberApp := fiber.New()
	Register(fiberApp, container)
	return fiberApp
}

func doJSON(t *testing.T, a *fiber.App, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := a.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp, out
}

func TestModerationRequiresContent(t *testing.T) {
	a := newTestApp(t, &stubGenerator{}, limits.LimitConfig{})
	resp, body := doJSON(t, a, http.MethodPost, "/api/v1/moderation", map[string]string{"prompt": "  "}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotEmpty(t, body["error"])
}

func TestModerationVerdict(t *testing.T) {
	a := newTestApp(t, &stubGenerator{}, limits.LimitConfig{})

	resp, body := doJSON(t, a, http.MethodPost, "/api/v1/moderation",
		map[string]string{"prompt": "nude portrait", "orgType": "politicalParty"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["allowed"])
	require.Equal(t, "sexual", body["category"])
	require.Equal(t, "political_party", body["org_type"])
	require.Equal(t, "political_party", resp.Header.Get("X-Org-Type"))
	require.NotContains(t, body, "FlaggedTerms")
	require.NotContains(t, strings.ToLower(body["reason"].(string)), "nude")

	resp, body = doJSON(t, a, http.MethodPost, "/api/v1/moderation",
		map[string]string{"prompt": "volunteers cleaning a beach"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["allowed"])
	require.Equal(t, "general", body["org_type"])
}

func TestModerationConfigUsesOrgHeader(t *testing.T) {
	a := newTestApp(t, &stubGenerator{}, limits.LimitConfig{})
	resp, body := doJSON(t, a, http.MethodGet, "/api/v1/moderation/config", nil,
		map[string]string{"X-Org-Type": "Political Party"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := body["profile"].(map[string]any)
	require.Equal(t, "political_party", profile["name"])
	require.NotContains(t, profile, "additional_blocked_terms")
	require.Equal(t, true, body["enabled"])
}

func TestEnhancementOptions(t *testing.T) {
	a := newTestApp(t, &stubGenerator{}, limits.LimitConfig{})
	resp, body := doJSON(t, a, http.MethodGet, "/api/v1/enhancement/options", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "2.1", body["version"])
	require.Equal(t, []any{"high quality", "professional"}, body["options"].(map[string]any)["quality"])
	require.Equal(t, "high quality", body["defaults"].(map[string]any)["quality"])
	require.Equal(t, 1.2, body["weights"].(map[string]any)["quality"])

	resp, body = doJSON(t, a, http.MethodGet, "/api/v1/enhancement/config", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["fingerprint"])
	require.Equal(t, "test", body["origin"])
}

func TestEnhancementPreview(t *testing.T) {
	a := newTestApp(t, &stubGenerator{}, limits.LimitConfig{})
	resp, body := doJSON(t, a, http.MethodPost, "/api/v1/enhancement/preview", map[string]any{
		"prompt":     "volunteers planting trees",
		"selections": map[string]string{"quality": "High Quality"},
		"mode":       "edit",
		"with_text":  true,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "volunteers planting trees, sharp, crisp", body["enhanced_prompt"])
	require.Equal(t, "volunteers planting trees, sharp, crisp, Keep everything else unchanged.", body["final_prompt"])
	require.Equal(t, []any{"nudity"}, body["safety_negatives"])

	resp, _ = doJSON(t, a, http.MethodPost, "/api/v1/enhancement/preview", map[string]any{"prompt": "x", "intensity": 2}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImageGenerationIsIdempotent(t *testing.T) {
	gen := &stubGenerator{}
	a := newTestApp(t, gen, limits.LimitConfig{})
	headers := map[string]string{"Idempotency-Key": "abc", "X-Org-Type": "ngo"}
	payload := map[string]any{"prompt": "volunteers planting trees", "use_enhancement": true}

	resp, first := doJSON(t, a, http.MethodPost, "/api/v1/images/generations", payload, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://cdn.fal.example/1.png", first["images"].([]any)[0].(map[string]any)["url"])
	require.Equal(t, "volunteers planting trees, sharp, crisp, Vivid colors.", first["prompt"].(map[string]any)["final"])

	resp, second := doJSON(t, a, http.MethodPost, "/api/v1/images/generations", payload, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "true", resp.Header.Get("Idempotent-Replayed"))
	require.Equal(t, first["id"], second["id"])
	require.Equal(t, 1, gen.calls())

	// the same key from another org is a new request
	headers["X-Org-Type"] = "advocacy"
	resp, third := doJSON(t, a, http.MethodPost, "/api/v1/images/generations", payload, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEqual(t, first["id"], third["id"])
	require.Equal(t, 2, gen.calls())
}

func TestImageGenerationBlocked(t *testing.T) {
	gen := &stubGenerator{}
	a := newTestApp(t, gen, limits.LimitConfig{})
	resp, body := doJSON(t, a, http.MethodPost, "/api/v1/images/generations", map[string]any{"prompt": "nude portrait"}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "sexual", body["category"])
	require.Equal(t, moderation.Reason(moderation.CategorySexual), body["reason"])
	require.NotEmpty(t, body["error"])
	require.Zero(t, gen.calls())
}

func TestImageGenerationValidation(t *testing.T) {
	a := newTestApp(t, &stubGenerator{}, limits.LimitConfig{})
	for name, payload := range map[string]map[string]any{
		"missing prompt": {"prompt": " "},
		"too many":       {"prompt": "x", "n": 11},
		"negative n":     {"prompt": "x", "n": -1},
	} {
		t.Run(name, func(t *testing.T) {
			resp, _ := doJSON(t, a, http.MethodPost, "/api/v1/images/generations", payload, nil)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestImageGenerationProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "circuit open", err: fal.ErrCircuitOpen, status: http.StatusServiceUnavailable},
		{name: "upstream", err: &fal.StatusError{StatusCode: http.StatusInternalServerError, Body: `{"detail":"key abc123 over quota"}`}, status: http.StatusBadGateway},
		{name: "other", err: errors.New("dial tcp 10.0.0.7:443: connection refused"), status: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(t, &stubGenerator{err: tt.err}, limits.LimitConfig{})
			resp, body := doJSON(t, a, http.MethodPost, "/api/v1/images/generations", map[string]any{"prompt": "a river"}, nil)
			require.Equal(t, tt.status, resp.StatusCode)
			require.NotEmpty(t, body["error"])
			if tt.status == http.StatusBadGateway {
				require.Equal(t, "image provider request failed", body["error"])
				require.NotContains(t, fmt.Sprint(body), "abc123")
				require.NotContains(t, fmt.Sprint(body), "10.0.0.7")
			}
		})
	}
}

func TestImageEditsMultipart(t *testing.T) {
	gen := &stubGenerator{}
	a := newTestApp(t, gen, limits.LimitConfig{})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("prompt", "replace the sky with a sunset"))
	require.NoError(t, w.WriteField("n", "2"))
	require.NoError(t, w.WriteField("selections", `{"quality":"professional"}`))
	require.NoError(t, w.WriteField("use_enhancement", "true"))
	part, err := w.CreateFormFile("image", "source.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\n0000"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/edits", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-Org-Type", "ngo")
	resp, err := a.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, gen.edits, 1)
	sent := gen.edits[0]
	require.Equal(t, "fal-ai/qwen-image-edit", sent.Model)
	require.Equal(t, 2, sent.N)
	require.Len(t, sent.Images, 1)
	require.Equal(t, "source.png", sent.Images[0].Filename)
	require.Equal(t, "replace the sky with a sunset, studio lighting, Keep everything else unchanged.", sent.Prompt)
	require.Contains(t, sent.NegativePrompt, "nudity")
}

func TestImageEditsRequireSource(t *testing.T) {
	gen := &stubGenerator{}
	a := newTestApp(t, gen, limits.LimitConfig{})
	resp, _ := doJSON(t, a, http.MethodPost, "/api/v1/images/edits", map[string]any{"prompt": "add trees"}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, a, http.MethodPost, "/api/v1/images/edits",
		map[string]any{"prompt": "add trees", "image_url": "https://img.example/a.png"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"https://img.example/a.png"}, gen.edits[0].ImageURLs)
}

func TestRateLimitPerOrg(t *testing.T) {
	a := newTestApp(t, &stubGenerator{}, limits.LimitConfig{RequestsPerMinute: 1})
	headers := map[string]string{"X-Org-Type": "ngo"}

	resp, _ := doJSON(t, a, http.MethodGet, "/api/v1/enhancement/options", nil, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := doJSON(t, a, http.MethodGet, "/api/v1/enhancement/options", nil, headers)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "rate limit exceeded", body["error"])

	resp, _ = doJSON(t, a, http.MethodGet, "/api/v1/enhancement/options", nil, map[string]string{"X-Org-Type": "advocacy"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGenerationDownloadDisabledWithoutStorage(t *testing.T) {
	a := newTestApp(t, &stubGenerator{}, limits.LimitConfig{})
	resp, _ := doJSON(t, a, http.MethodGet, "/api/v1/generations/general/x/0.png", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
