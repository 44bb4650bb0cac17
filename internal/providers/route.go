package providers

import "context"

// Route binds a provider to the model that should serve a request.
type Route struct {
	Provider  string
	Model     string
	Metadata  map[string]string
	Generator ImageGenerator
	Health    func(ctx context.Context) error
}

// withModel returns a copy of the route targeting model.
func (r Route) withModel(model string) Route {
	r.Model = model
	r.Metadata = cloneMetadata(r.Metadata)
	return r
}
