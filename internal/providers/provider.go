package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Provider is the contract every subtitle source implements.
type Provider interface {
	// Name is the stable identifier used in settings, cache keys and stats.
	Name() string
	// Languages returns the language codes the provider can serve, or nil
	// when it serves any language.
	Languages() []string
	// Search returns candidate subtitles for the query. Implementations
	// return ProviderError so the manager can classify failures.
	Search(ctx context.Context, query VideoQuery) ([]SubtitleResult, error)
	// Download fetches one result into destDir and returns the artifact
	// path. Archives are returned as-is; the manager extracts them.
	Download(ctx context.Context, result SubtitleResult, destDir string) (string, error)
	// HealthCheck probes provider reachability.
	HealthCheck(ctx context.Context) (bool, string)
	// ConfigFields describes the provider's settings schema.
	ConfigFields() []ConfigField
}

// Registry holds the known providers and their enabled state.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	disabled  map[string]bool
	priority  map[string]int
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		disabled:  make(map[string]bool),
		priority:  make(map[string]int),
	}
}

// Register adds a provider with a priority used for ranking tie-breaks.
// Lower priority wins ties.
func (r *Registry) Register(p Provider, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	r.priority[p.Name()] = priority
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

// Enabled returns the enabled providers ordered by priority.
func (r *Registry) Enabled() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.providers))
	for name, p := range r.providers {
		if !r.disabled[name] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := r.priority[out[i].Name()], r.priority[out[j].Name()]
		if pi != pj {
			return pi < pj
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// All returns every registered provider ordered by priority.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := r.priority[out[i].Name()], r.priority[out[j].Name()]
		if pi != pj {
			return pi < pj
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// SetEnabled flips a provider's enabled state.
func (r *Registry) SetEnabled(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled[name] = !enabled
}

// IsEnabled reports whether a provider is enabled.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.disabled[name]
}

// Priority returns the registered priority for a provider name.
func (r *Registry) Priority(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.priority[name]
}
