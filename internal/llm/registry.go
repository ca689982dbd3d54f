package llm

import (
	"fmt"
	"sort"
)

// ProviderInfo describes a configured provider for the catalog endpoint.
type ProviderInfo struct {
	Name   string   `json:"name"`
	Models []string `json:"models"`
}

// Registry maps provider names to configured callers.
type Registry struct {
	callers map[string]Caller
	models  map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{
		callers: make(map[string]Caller),
		models:  make(map[string][]string),
	}
}

// Register makes a caller available under the given provider name.
func (r *Registry) Register(name string, c Caller, models ...string) {
	r.callers[name] = c
	r.models[name] = models
}

// Caller returns the caller for a provider name.
func (r *Registry) Caller(name string) (Caller, error) {
	c, ok := r.callers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured", name)
	}
	return c, nil
}

// List returns the configured providers sorted by name.
func (r *Registry) List() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(r.callers))
	for name := range r.callers {
		out = append(out, ProviderInfo{Name: name, Models: r.models[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
