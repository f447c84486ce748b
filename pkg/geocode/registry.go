package geocode

import "github.com/rotisserie/eris"

// Registry holds the configured providers in registration order. It is built
// once at startup and handed to the orchestrator; registration after that
// point is a programming error, so there is no locking.
type Registry struct {
	byName map[string]Provider
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Provider)}
}

// Register adds a provider under its Name. Registering the same name twice
// returns ErrDuplicateProvider.
func (r *Registry) Register(p Provider) error {
	name := p.Name()
	if _, ok := r.byName[name]; ok {
		return eris.Wrapf(ErrDuplicateProvider, "%s", name)
	}
	r.byName[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get returns the provider registered under name, or ErrUnknownProvider.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownProvider, "%s", name)
	}
	return p, nil
}

// Names lists registered providers in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
