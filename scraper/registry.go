package scraper

import "sort"

// Registry holds the source configured for each provider.
type Registry struct {
	sources map[Provider]Source
}

// NewRegistry creates a registry from the given sources, keyed by their provider.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{
		sources: make(map[Provider]Source),
	}
	for _, s := range sources {
		r.Register(s)
	}
	return r
}

// Register adds a source, replacing any earlier one for the same provider.
func (r *Registry) Register(s Source) {
	r.sources[s.Provider()] = s
}

// Get returns the source for p, or nil when none is registered.
func (r *Registry) Get(p Provider) Source {
	return r.sources[p]
}

// Providers returns all registered providers.
func (r *Registry) Providers() []Provider {
	names := make([]Provider, 0, len(r.sources))
	for p := range r.sources {
		names = append(names, p)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
