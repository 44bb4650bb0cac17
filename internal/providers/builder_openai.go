package providers

import (
	"context"
	"fmt"
	"strings"

	native "github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/adapters/openai"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
)

func init() {
	RegisterDefinition(Definition{
		Name:        ProviderOpenAI,
		Description: "OpenAI Images API (gpt-image-1)",
		Builder:     buildOpenAIRoute,
	})
}

func buildOpenAIRoute(ctx context.Context, cfg *config.Config, deps Deps) (Route, error) {
	cfg = EnsureConfig(cfg)
	oc := cfg.Providers.OpenAI
	if !oc.Configured() {
		return Route{}, fmt.Errorf("%w: providers.openai.api_key is empty", ErrNotConfigured)
	}
	opts := native.Options{
		APIKey:       strings.TrimSpace(oc.APIKey),
		BaseURL:      strings.TrimSpace(oc.BaseURL),
		Organization: strings.TrimSpace(oc.Organization),
	}
	adapter, err := native.New(opts)
	if err != nil {
		return Route{}, err
	}

	model := strings.TrimSpace(oc.Model)
	if model == "" {
		model = native.DefaultModel
	}
	md := make(map[string]string)
	if opts.BaseURL != "" {
		md["base_url"] = opts.BaseURL
	}
	if opts.Organization != "" {
		md["openai_organization"] = opts.Organization
	}
	return Route{
		Provider:  ProviderOpenAI,
		Model:     model,
		Metadata:  md,
		Generator: adapter,
		Health:    adapter.HealthCheck,
	}, nil
}
