package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	cb "github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/apikeys"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/models"
)

// ErrCircuitOpen is returned while the breaker rejects calls to fal.ai.
var ErrCircuitOpen = errors.New("fal: circuit open")

// Request defaults for the qwen-image family.
const (
	DefaultImageSize     = "landscape_4_3"
	DefaultSteps         = 30
	DefaultGuidanceScale = 2.5
	DefaultOutputFormat  = "png"
)

// KeyResolver returns the fal.ai key for an organization.
type KeyResolver interface {
	FalKey(orgType string) (string, apikeys.Source, error)
}

// Options configure the fal.ai client.
type Options struct {
	BaseURL         string
	Timeout         time.Duration
	MaxRetries      int
	BreakerFailures int
	BreakerTimeout  time.Duration
	Keys            KeyResolver
	Logger          *zap.Logger
	HTTPClient      *http.Client
}

// Client calls fal.ai synchronous model endpoints.
type Client struct {
	baseURL    string
	maxRetries int
	keys       KeyResolver
	http       *http.Client
	logger     *zap.Logger
	newBackOff func() backoff.BackOff

	failures       uint32
	breakerTimeout time.Duration
	breakers       sync.Map // breaker name -> *cb.CircuitBreaker
}

func New(opts Options) (*Client, error) {
	if opts.Keys == nil {
		return nil, errors.New("fal: key resolver required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://fal.run"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	failures := opts.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	breakerTimeout := opts.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	c := &Client{
		baseURL:        baseURL,
		maxRetries:     maxRetries,
		keys:           opts.Keys,
		http:           httpClient,
		logger:         logger,
		failures:       uint32(failures),
		breakerTimeout: breakerTimeout,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
	return c, nil
}

// breakerFor returns the breaker guarding one key. Organizations on their
// own key trip independently; organizations on the shared key share one.
func (c *Client) breakerFor(orgType string, source apikeys.Source) *cb.CircuitBreaker {
	name := "fal:shared"
	if source == apikeys.SourceOrg {
		name = "fal:" + strings.ToLower(apikeys.EnvSuffix(orgType))
	}
	if b, ok := c.breakers.Load(name); ok {
		return b.(*cb.CircuitBreaker)
	}
	b, _ := c.breakers.LoadOrStore(name, cb.NewCircuitBreaker(cb.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     c.breakerTimeout,
		ReadyToTrip: func(counts cb.Counts) bool {
			return counts.ConsecutiveFailures >= c.failures
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var se *StatusError
			return errors.As(err, &se) && !se.Retryable()
		},
		OnStateChange: func(name string, from, to cb.State) {
			c.logger.Warn("circuit breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}))
	return b.(*cb.CircuitBreaker)
}

// StatusError is a non-2xx reply from fal.ai.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fal: status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the call may succeed if repeated.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type imageRequest struct {
	Prompt              string   `json:"prompt"`
	NegativePrompt      string   `json:"negative_prompt,omitempty"`
	ImageSize           string   `json:"image_size,omitempty"`
	NumInferenceSteps   int      `json:"num_inference_steps"`
	GuidanceScale       float64  `json:"guidance_scale"`
	NumImages           int      `json:"num_images"`
	OutputFormat        string   `json:"output_format"`
	EnableSafetyChecker bool     `json:"enable_safety_checker"`
	Seed                *int64   `json:"seed,omitempty"`
	ImageURL            string   `json:"image_url,omitempty"`
	ImageURLs           []string `json:"image_urls,omitempty"`
}

type imageResponse struct {
	Images []struct {
		URL         string `json:"url"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		ContentType string `json:"content_type"`
	} `json:"images"`
	Seed            *int64 `json:"seed"`
	HasNSFWConcepts []bool `json:"has_nsfw_concepts"`
}

// Generate runs a text-to-image model.
func (c *Client) Generate(ctx context.Context, req models.ImageRequest) (models.ImageResponse, error) {
	body := imageRequest{
		Prompt:              req.Prompt,
		NegativePrompt:      req.NegativePrompt,
		ImageSize:           firstNonEmpty(req.Size, DefaultImageSize),
		NumInferenceSteps:   positiveOr(req.Steps, DefaultSteps),
		GuidanceScale:       positiveFloatOr(req.GuidanceScale, DefaultGuidanceScale),
		NumImages:           positiveOr(req.N, 1),
		OutputFormat:        firstNonEmpty(req.OutputFormat, DefaultOutputFormat),
		EnableSafetyChecker: !req.DisableSafetyChecker,
		Seed:                req.Seed,
	}
	return c.call(ctx, req.OrgType, req.Model, body)
}

// Edit runs an image-to-image model. A single source goes in image_url,
// several in image_urls.
func (c *Client) Edit(ctx context.Context, req models.ImageEditRequest) (models.ImageResponse, error) {
	sources := req.SourceURLs()
	if len(sources) == 0 {
		return models.ImageResponse{}, errors.New("fal: at least one source image is required for edits")
	}
	body := imageRequest{
		Prompt:              req.Prompt,
		NegativePrompt:      req.NegativePrompt,
		ImageSize:           req.Size,
		NumInferenceSteps:   positiveOr(req.Steps, DefaultSteps),
		GuidanceScale:       positiveFloatOr(req.GuidanceScale, DefaultGuidanceScale),
		NumImages:           positiveOr(req.N, 1),
		OutputFormat:        firstNonEmpty(req.OutputFormat, DefaultOutputFormat),
		EnableSafetyChecker: !req.DisableSafetyChecker,
		Seed:                req.Seed,
	}
	if len(sources) == 1 {
		body.ImageURL = sources[0]
	} else {
		body.ImageURLs = sources
	}
	return c.call(ctx, req.OrgType, req.Model, body)
}

func (c *Client) call(ctx context.Context, orgType, model string, body imageRequest) (models.ImageResponse, error) {
	model = strings.Trim(strings.TrimSpace(model), "/")
	if model == "" {
		return models.ImageResponse{}, errors.New("fal: model is required")
	}
	key, source, err := c.keys.FalKey(orgType)
	if err != nil {
		return models.ImageResponse{}, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return models.ImageResponse{}, fmt.Errorf("fal: encode request: %w", err)
	}

	result, err := c.breakerFor(orgType, source).Execute(func() (interface{}, error) {
		var out imageResponse
		attempt := 0
		op := func() error {
			attempt++
			resp, err := c.post(ctx, model, key, payload)
			if err != nil {
				var se *StatusError
				if errors.As(err, &se) && !se.Retryable() {
					return backoff.Permanent(err)
				}
				if ctx.Err() != nil {
					return backoff.Permanent(err)
				}
				c.logger.Warn("fal request failed", zap.String("model", model), zap.Int("attempt", attempt), zap.Error(err))
				return err
			}
			out = resp
			return nil
		}
		bo := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxRetries)), ctx)
		if err := backoff.Retry(op, bo); err != nil {
			return nil, err
		}
		return out, nil
	})
	if errors.Is(err, cb.ErrOpenState) || errors.Is(err, cb.ErrTooManyRequests) {
		return models.ImageResponse{}, ErrCircuitOpen
	}
	if err != nil {
		return models.ImageResponse{}, err
	}
	return convertResponse(model, result.(imageResponse)), nil
}

func (c *Client) post(ctx context.Context, model, key string, payload []byte) (imageResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+model, bytes.NewReader(payload))
	if err != nil {
		return imageResponse{}, err
	}
	req.Header.Set("Authorization", "Key "+key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return imageResponse{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return imageResponse{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return imageResponse{}, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}
	var out imageResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return imageResponse{}, fmt.Errorf("fal: decode response: %w", err)
	}
	return out, nil
}

// State reports the worst breaker state across keys for health reporting.
func (c *Client) State() string {
	worst := cb.StateClosed
	c.breakers.Range(func(_, v any) bool {
		switch st := v.(*cb.CircuitBreaker).State(); {
		case st == cb.StateOpen:
			worst = st
			return false
		case st == cb.StateHalfOpen:
			worst = st
		}
		return true
	})
	return worst.String()
}

// StateFor reports the breaker state guarding orgType's key.
func (c *Client) StateFor(orgType string) string {
	_, source, err := c.keys.FalKey(orgType)
	if err != nil {
		return cb.StateClosed.String()
	}
	return c.breakerFor(orgType, source).State().String()
}

func convertResponse(model string, resp imageResponse) models.ImageResponse {
	out := models.ImageResponse{
		Created:   time.Now().UTC(),
		Provider:  "fal",
		Model:     model,
		Seed:      resp.Seed,
		NSFWFlags: resp.HasNSFWConcepts,
		Data:      make([]models.ImageData, 0, len(resp.Images)),
	}
	for _, img := range resp.Images {
		out.Data = append(out.Data, models.ImageData{
			URL:         img.URL,
			ContentType: img.ContentType,
			Width:       img.Width,
			Height:      img.Height,
		})
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func positiveFloatOr(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
