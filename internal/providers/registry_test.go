package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/apikeys"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/models"
)

type stubGenerator struct{ name string }

func (s stubGenerator) Generate(context.Context, models.ImageRequest) (models.ImageResponse, error) {
	return models.ImageResponse{Provider: s.name}, nil
}

func (s stubGenerator) Edit(context.Context, models.ImageEditRequest) (models.ImageResponse, error) {
	return models.ImageResponse{Provider: s.name}, nil
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry("fal-ai/qwen-image", "fal-ai/qwen-image-edit",
		Route{Provider: ProviderFal, Model: "fal-ai/qwen-image", Generator: stubGenerator{"fal"}},
		Route{Provider: ProviderOpenAI, Model: "gpt-image-1", Generator: stubGenerator{"openai"}},
	)

	tests := []struct {
		model    string
		edit     bool
		provider string
		want     string
	}{
		{"", false, ProviderFal, "fal-ai/qwen-image"},
		{"", true, ProviderFal, "fal-ai/qwen-image-edit"},
		{"fal-ai/flux/dev", false, ProviderFal, "fal-ai/flux/dev"},
		{"qwen-image", false, ProviderFal, "fal-ai/qwen-image"},
		{"openai/gpt-image-1", true, ProviderOpenAI, "gpt-image-1"},
		{"OpenAI/", false, ProviderOpenAI, "gpt-image-1"},
	}
	for _, tc := range tests {
		t.Run(tc.model, func(t *testing.T) {
			route, err := reg.Resolve(tc.model, tc.edit)
			require.NoError(t, err)
			require.Equal(t, tc.provider, route.Provider)
			require.Equal(t, tc.want, route.Model)
		})
	}
	require.Equal(t, []string{ProviderFal, ProviderOpenAI}, reg.Providers())
}

func TestRegistryResolveMissingProvider(t *testing.T) {
	reg := NewRegistry("fal-ai/qwen-image", "", Route{Provider: ProviderFal, Generator: stubGenerator{"fal"}})
	_, err := reg.Resolve("openai/gpt-image-1", false)
	require.ErrorIs(t, err, ErrProviderUnavailable)

	route, err := reg.Resolve("", true)
	require.NoError(t, err)
	require.Equal(t, "fal-ai/qwen-image", route.Model)

	_, err = NewRegistry("", "").Resolve("", false)
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestResolveDoesNotShareMetadata(t *testing.T) {
	reg := NewRegistry("m", "", Route{Provider: ProviderFal, Metadata: map[string]string{"base_url": "x"}})
	a, err := reg.Resolve("", false)
	require.NoError(t, err)
	a.Metadata["base_url"] = "changed"
	b, err := reg.Resolve("", false)
	require.NoError(t, err)
	require.Equal(t, "x", b.Metadata["base_url"])
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Providers.Fal.DefaultModel = "fal-ai/qwen-image"
	cfg.Providers.Fal.EditModel = "fal-ai/qwen-image-edit"
	return cfg
}

func TestFactoryBuildSkipsUnconfiguredOpenAI(t *testing.T) {
	keys := apikeys.NewWithLookup(func(string) (string, bool) { return "k", true })
	f := NewFactory(testConfig(), Deps{Keys: keys, Logger: zaptest.NewLogger(t)})
	reg, err := f.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{ProviderFal}, reg.Providers())

	cfg := testConfig()
	cfg.Providers.OpenAI.APIKey = "sk-test"
	reg, err = NewFactory(cfg, Deps{Keys: keys}).Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{ProviderFal, ProviderOpenAI}, reg.Providers())
}

func TestFactoryBuildErrors(t *testing.T) {
	_, err := NewFactory(testConfig(), Deps{}).Build(context.Background())
	require.Error(t, err)

	f := NewFactory(testConfig(), Deps{})
	f.builders = map[string]Builder{}
	f.Register(ProviderOpenAI, func(context.Context, *config.Config, Deps) (Route, error) {
		return Route{Generator: stubGenerator{"openai"}}, nil
	})
	_, err = f.Build(context.Background())
	require.ErrorIs(t, err, ErrProviderUnavailable)

	f.Register(ProviderFal, func(context.Context, *config.Config, Deps) (Route, error) {
		return Route{}, errors.New("boom")
	})
	_, err = f.Build(context.Background())
	require.ErrorContains(t, err, "boom")
}

func TestDefaultDefinitions(t *testing.T) {
	defs := DefaultDefinitions()
	require.Len(t, defs, 2)
	require.Equal(t, ProviderFal, defs[0].Name)
	require.Equal(t, ProviderOpenAI, defs[1].Name)
}

func TestRegistryHealth(t *testing.T) {
	down := errors.New("down")
	reg := NewRegistry("m", "",
		Route{Provider: ProviderFal, Health: func(context.Context) error { return down }},
		Route{Provider: ProviderOpenAI},
	)
	health := reg.Health(context.Background())
	require.Len(t, health, 2)
	require.ErrorIs(t, health[ProviderFal], down)
	require.NoError(t, health[ProviderOpenAI])
}
