package translator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/providers"
)

// Registry holds the configured translation backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	order    []string
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend. Registration order is the default chain order.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[b.Name()]; !exists {
		r.order = append(r.order, b.Name())
	}
	r.backends[b.Name()] = b
}

// Get returns a backend by name.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	return b, nil
}

// Names returns the registered backend names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns every backend sorted by name.
func (r *Registry) All() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Backend, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Chain runs a batch through backends in order until one succeeds. Backends
// whose breaker is open are skipped; every attempt is recorded.
type Chain struct {
	registry *Registry
	breakers *providers.BreakerSet
	logger   zerolog.Logger
}

// NewChain creates a fallback chain over the registry.
func NewChain(registry *Registry, breakers *providers.BreakerSet, logger zerolog.Logger) *Chain {
	return &Chain{
		registry: registry,
		breakers: breakers,
		logger:   logger.With().Str("component", "translator").Logger(),
	}
}

// Registry exposes the backend registry.
func (c *Chain) Registry() *Registry { return c.registry }

// BreakerStates returns breaker state per backend.
func (c *Chain) BreakerStates() map[string]providers.BreakerState { return c.breakers.States() }

// Resolve maps a chain specification to backends. An empty spec resolves to
// every registered backend in registration order; unknown names are skipped.
func (c *Chain) Resolve(names []string) []Backend {
	if len(names) == 0 {
		names = c.registry.Names()
	}
	out := make([]Backend, 0, len(names))
	for _, name := range names {
		if b, err := c.registry.Get(name); err == nil {
			out = append(out, b)
		}
	}
	return out
}

// Translate tries each backend in order and returns the first success, the
// name of the backend that produced it, and the attempt log. When every
// backend fails the error joins all attempt errors.
func (c *Chain) Translate(ctx context.Context, chain []Backend, req BatchRequest) (*BatchResult, string, []BackendAttempt, error) {
	if len(chain) == 0 {
		return nil, "", nil, errors.New("no translation backends configured")
	}

	var attempts []BackendAttempt
	var errs []error

	for _, backend := range chain {
		name := backend.Name()
		breaker := c.breakers.Get("backend:" + name)
		if !breaker.Allow() {
			attempts = append(attempts, BackendAttempt{Backend: name, Error: "circuit breaker open"})
			continue
		}

		breq := req
		if !backend.SupportsSRTReference() {
			breq.ReferenceLines = nil
		}
		if !backend.SupportsGlossary() {
			breq.Glossary = nil
		}

		start := time.Now()
		result, err := backend.TranslateBatch(ctx, breq)
		latency := time.Since(start).Milliseconds()

		if err != nil {
			c.recordFailure(breaker, err)
			attempts = append(attempts, BackendAttempt{Backend: name, Error: err.Error(), LatencyMS: latency})
			errs = append(errs, err)
			c.logger.Warn().Err(err).Str("backend", name).Msg("Backend translation failed")
			continue
		}

		if len(result.Lines) != len(req.Lines) {
			// Count mismatch is the backend lying about the contract, not an
			// outage: the breaker is not charged, the caller shrinks batches.
			err := &BackendError{Backend: name, Kind: ErrLineCount,
				Err: fmt.Errorf("sent %d lines, got %d", len(req.Lines), len(result.Lines))}
			attempts = append(attempts, BackendAttempt{Backend: name, Error: err.Error(), LatencyMS: latency})
			errs = append(errs, err)
			continue
		}

		breaker.RecordSuccess()
		attempts = append(attempts, BackendAttempt{Backend: name, LatencyMS: latency})
		return result, name, attempts, nil
	}

	return nil, "", attempts, errors.Join(errs...)
}

func (c *Chain) recordFailure(breaker *providers.Breaker, err error) {
	var be *BackendError
	if errors.As(err, &be) && be.Kind == ErrRateLimit {
		hold := 30 * time.Second
		if be.RetryAfter > 0 {
			hold = time.Duration(be.RetryAfter) * time.Second
		}
		breaker.HoldFor(hold)
		return
	}
	breaker.RecordFailure()
}
