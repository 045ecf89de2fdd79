package crm

import "fmt"

// Resolver hands out Store handles for named alternate connections. It is
// built once at startup from config; services with no alternate orgs
// configured carry a nil *Resolver and skip the lookup entirely.
type Resolver struct {
	stores map[string]Store
}

// NewResolver builds clients for every named connection. An empty map yields
// a nil resolver.
func NewResolver(connections map[string]Config) (*Resolver, error) {
	if len(connections) == 0 {
		return nil, nil
	}
	stores := make(map[string]Store, len(connections))
	for name, cfg := range connections {
		client, err := NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("build connection %q: %w", name, err)
		}
		stores[name] = client
	}
	return &Resolver{stores: stores}, nil
}

// Resolve returns the Store registered under name.
func (r *Resolver) Resolve(name string) (Store, error) {
	if r == nil {
		return nil, fmt.Errorf("no named connections are configured")
	}
	store, ok := r.stores[name]
	if !ok {
		return nil, fmt.Errorf("unknown connection %q", name)
	}
	return store, nil
}
