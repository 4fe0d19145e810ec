package providers

import (
	"sync"
	"time"
)

// BreakerState is the circuit state for one identity.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig tunes when a breaker opens and how long it stays open.
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// DefaultBreakerConfig returns the stock breaker tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		Cooldown:         5 * time.Minute,
	}
}

// Breaker is a per-identity circuit breaker. After FailureThreshold
// consecutive failures it opens for Cooldown; the first call after the
// cool-down runs as a half-open probe whose outcome closes or re-opens it.
type Breaker struct {
	config BreakerConfig
	now    func() time.Time

	mu           sync.Mutex
	failures     int
	state        BreakerState
	openedAt     time.Time
	retryAfter   time.Time // rate-limit hold independent of failure count
	halfOpenBusy bool
}

// NewBreaker creates a breaker in the closed state.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &Breaker{config: config, state: BreakerClosed, now: time.Now}
}

// Allow reports whether a call may proceed. In half-open state only one
// probe call is admitted at a time.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if now.Before(b.retryAfter) {
		return false
	}

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if now.Sub(b.openedAt) >= b.config.Cooldown {
			b.state = BreakerHalfOpen
			b.halfOpenBusy = true
			return true
		}
		return false
	case BreakerHalfOpen:
		if b.halfOpenBusy {
			return false
		}
		b.halfOpenBusy = true
		return true
	}
	return true
}

// RecordSuccess resets the breaker to closed.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = BreakerClosed
	b.halfOpenBusy = false
}

// RecordFailure counts a failure; a half-open probe failure or reaching the
// threshold opens the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.config.FailureThreshold {
		b.state = BreakerOpen
		b.openedAt = b.now()
		b.halfOpenBusy = false
	}
}

// HoldFor blocks calls for the given duration without changing the failure
// count. Used for 429 Retry-After responses.
func (b *Breaker) HoldFor(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	until := b.now().Add(d)
	if until.After(b.retryAfter) {
		b.retryAfter = until
	}
}

// State returns the current state, accounting for elapsed cool-down.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.config.Cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// BreakerSet is a process-wide set of breakers keyed by identity.
type BreakerSet struct {
	config BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakerSet creates a breaker set with shared tuning.
func NewBreakerSet(config BreakerConfig) *BreakerSet {
	return &BreakerSet{config: config, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for an identity, creating it on first use.
func (s *BreakerSet) Get(identity string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[identity]
	if !ok {
		b = NewBreaker(s.config)
		s.breakers[identity] = b
	}
	return b
}

// States returns a snapshot of every breaker's state.
func (s *BreakerSet) States() map[string]BreakerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]BreakerState, len(s.breakers))
	for name, b := range s.breakers {
		out[name] = b.State()
	}
	return out
}
