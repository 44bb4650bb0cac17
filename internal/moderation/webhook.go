package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebhookOptions configure a WebhookClassifier.
type WebhookOptions struct {
	URL        string
	AuthHeader string
	AuthValue  string
	Timeout    time.Duration
}

// WebhookClassifier delegates image review to an operator-run endpoint.
type WebhookClassifier struct {
	url        string
	authHeader string
	authValue  string
	client     *http.Client
}

// NewWebhookClassifier returns nil when no URL is configured.
func NewWebhookClassifier(opts WebhookOptions) *WebhookClassifier {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookClassifier{
		url:        url,
		authHeader: strings.TrimSpace(opts.AuthHeader),
		authValue:  strings.TrimSpace(opts.AuthValue),
		client:     &http.Client{Timeout: timeout},
	}
}

func (w *WebhookClassifier) ClassifyImage(ctx context.Context, imageURL, prompt string) (Classification, error) {
	if w == nil || strings.TrimSpace(imageURL) == "" {
		return Classification{}, nil
	}
	body, err := json.Marshal(webhookRequest{ImageURL: imageURL, Prompt: prompt})
	if err != nil {
		return Classification{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return Classification{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.authHeader != "" && w.authValue != "" {
		req.Header.Set(w.authHeader, w.authValue)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return Classification{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Classification{}, errors.New(resp.Status)
	}
	var out webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Classification{}, fmt.Errorf("decode webhook reply: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(out.Action), "block") {
		return Classification{}, nil
	}
	category := ParseCategory(out.Category)
	if category == CategoryNone {
		category = CategoryOther
	}
	return Classification{Flagged: true, Category: category, Labels: out.Violations}, nil
}

type webhookRequest struct {
	ImageURL string `json:"image_url"`
	Prompt   string `json:"prompt,omitempty"`
}

type webhookResponse struct {
	Action     string   `json:"action"`
	Category   string   `json:"category"`
	Violations []string `json:"violations"`
}
