package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/config"
)

// Provider names.
const (
	ProviderFal    = "fal"
	ProviderOpenAI = "openai"
)

// ErrProviderUnavailable is returned when a model routes to a provider that
// was not configured.
var ErrProviderUnavailable = errors.New("providers: provider unavailable")

// Definition captures the metadata required to register a provider builder.
type Definition struct {
	Name        string
	Description string
	Builder     Builder
}

var defaultDefinitions = map[string]Definition{}

// RegisterDefinition stores a provider definition so factories can resolve builders by name.
func RegisterDefinition(def Definition) {
	if def.Builder == nil {
		panic("providers: definition builder required")
	}
	if def.Name == "" {
		panic("providers: definition name required")
	}
	if def.Description == "" {
		def.Description = def.Name
	}
	defaultDefinitions[def.Name] = def
}

// DefaultDefinitions returns the registered provider definitions sorted by name.
func DefaultDefinitions() []Definition {
	defs := make([]Definition, 0, len(defaultDefinitions))
	for _, def := range defaultDefinitions {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Name < defs[j].Name
	})
	return defs
}

func cloneDefaultBuilders() map[string]Builder {
	builders := make(map[string]Builder, len(defaultDefinitions))
	for name, def := range defaultDefinitions {
		builders[name] = def.Builder
	}
	return builders
}

// EnsureConfig ensures the config pointer is not nil when builders run.
func EnsureConfig(cfg *config.Config) *config.Config {
	if cfg == nil {
		panic("providers: config is required")
	}
	return cfg
}

// Registry maps requested model names onto built provider routes.
type Registry struct {
	routes       map[string]Route
	defaultModel string
	editModel    string
}

// NewRegistry returns a registry over routes. defaultModel and editModel are
// used when a request names no model.
func NewRegistry(defaultModel, editModel string, routes ...Route) *Registry {
	r := &Registry{
		routes:       make(map[string]Route, len(routes)),
		defaultModel: defaultModel,
		editModel:    editModel,
	}
	if r.editModel == "" {
		r.editModel = defaultModel
	}
	for _, route := range routes {
		r.routes[route.Provider] = route
	}
	return r
}

// Resolve picks the route for model. An "openai/" prefix selects OpenAI;
// everything else, fal-ai/... included, goes to fal.
func (r *Registry) Resolve(model string, edit bool) (Route, error) {
	prefix, rest := splitModel(model)
	if prefix == ProviderOpenAI {
		route, ok := r.routes[ProviderOpenAI]
		if !ok {
			return Route{}, fmt.Errorf("%w: %s", ErrProviderUnavailable, ProviderOpenAI)
		}
		if rest == "" {
			rest = route.Model
		}
		return route.withModel(rest), nil
	}

	route, ok := r.routes[ProviderFal]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrProviderUnavailable, ProviderFal)
	}
	switch {
	case model != "" && prefix != "":
		return route.withModel(model), nil
	case rest != "":
		// bare names are taken as fal-ai models
		return route.withModel("fal-ai/" + rest), nil
	case edit:
		return route.withModel(r.editModel), nil
	default:
		return route.withModel(r.defaultModel), nil
	}
}

// Route returns the built route for a provider name.
func (r *Registry) Route(provider string) (Route, bool) {
	route, ok := r.routes[provider]
	return route, ok
}

// Providers lists the configured provider names.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health runs every route's health probe. Routes without a probe report nil.
func (r *Registry) Health(ctx context.Context) map[string]error {
	out := make(map[string]error, len(r.routes))
	for name, route := range r.routes {
		if route.Health == nil {
			out[name] = nil
			continue
		}
		out[name] = route.Health(ctx)
	}
	return out
}
