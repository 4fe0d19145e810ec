package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sublarr/sublarr/internal/subtitles"
)

// ManagerSettings supplies the runtime tunables the manager reads per call.
type ManagerSettings interface {
	ScoringSettings
	CacheTTL(ctx context.Context) time.Duration
	SearchTimeout(ctx context.Context) time.Duration
}

// Manager orchestrates parallel multi-provider search with caching,
// per-provider circuit breakers, client-side filtering and ranking.
type Manager struct {
	registry  *Registry
	cache     *Cache
	blacklist *Blacklist
	scoring   *ScoringStore
	breakers  *BreakerSet
	settings  ManagerSettings
	stats     *Stats
	logger    zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewManager wires the provider manager.
func NewManager(registry *Registry, cache *Cache, blacklist *Blacklist, scoring *ScoringStore,
	breakers *BreakerSet, settings ManagerSettings, logger zerolog.Logger) *Manager {
	return &Manager{
		registry:  registry,
		cache:     cache,
		blacklist: blacklist,
		scoring:   scoring,
		breakers:  breakers,
		settings:  settings,
		stats:     NewStats(),
		logger:    logger.With().Str("component", "providers").Logger(),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Registry exposes the underlying provider registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Cache exposes the provider result cache.
func (m *Manager) Cache() *Cache { return m.cache }

// Blacklist exposes the blacklist store.
func (m *Manager) Blacklist() *Blacklist { return m.blacklist }

// Scoring exposes the scoring store.
func (m *Manager) Scoring() *ScoringStore { return m.scoring }

// Stats exposes per-provider counters.
func (m *Manager) Stats() *Stats { return m.stats }

// BreakerStates returns the current breaker state per provider.
func (m *Manager) BreakerStates() map[string]BreakerState { return m.breakers.States() }

func (m *Manager) limiter(provider string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[provider]
	if !ok {
		// One request per second sustained with a small burst covers every
		// provider's published limits.
		l = rate.NewLimiter(rate.Limit(1), 3)
		m.limiters[provider] = l
	}
	return l
}

type searchOutcome struct {
	provider string
	results  []SubtitleResult
	err      error
}

// Search fans the query out to every enabled provider, merges and ranks the
// results. Provider failures feed breakers and are reported only in the
// log; the call fails only when scoring configuration cannot be loaded.
func (m *Manager) Search(ctx context.Context, query VideoQuery) ([]SubtitleResult, error) {
	providers := m.registry.Enabled()
	timeout := m.settings.SearchTimeout(ctx)
	ttl := m.settings.CacheTTL(ctx)

	outcomes := make(chan searchOutcome, len(providers))
	var wg sync.WaitGroup

	for _, p := range providers {
		if langs := p.Languages(); langs != nil && !languageServed(langs, query.Language()) {
			continue
		}

		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			results, err := m.searchOne(ctx, p, query, timeout, ttl)
			outcomes <- searchOutcome{provider: p.Name(), results: results, err: err}
		}(p)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var merged []SubtitleResult
	for outcome := range outcomes {
		if outcome.err != nil {
			m.logger.Warn().Err(outcome.err).Str("provider", outcome.provider).Msg("Provider search failed")
			continue
		}
		merged = append(merged, outcome.results...)
	}

	filtered, err := m.filter(ctx, merged, query)
	if err != nil {
		return nil, err
	}

	snap, err := m.scoring.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	RankResults(snap, filtered, query, m.registry.Priority)

	return filtered, nil
}

func (m *Manager) searchOne(ctx context.Context, p Provider, query VideoQuery, timeout, ttl time.Duration) ([]SubtitleResult, error) {
	name := p.Name()
	key := CacheKey(name, query)

	if cached, hit, err := m.cache.Get(ctx, key); err != nil {
		return nil, err
	} else if hit {
		m.stats.RecordCacheHit(name)
		return cached, nil
	}

	breaker := m.breakers.Get(name)
	if !breaker.Allow() {
		m.stats.RecordSkipped(name)
		return nil, &ProviderError{Provider: name, Kind: ErrNetwork, Err: errors.New("circuit breaker open")}
	}

	if err := m.limiter(name).Wait(ctx); err != nil {
		return nil, err
	}

	searchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	results, err := p.Search(searchCtx, query)
	latency := time.Since(start)

	if err != nil {
		m.recordFailure(name, breaker, err)
		m.stats.RecordFailure(name, latency)
		return nil, err
	}

	breaker.RecordSuccess()
	m.stats.RecordSearch(name, len(results), latency)

	for i := range results {
		results[i].Provider = name
	}

	if err := m.cache.Put(ctx, key, results, ttl); err != nil {
		m.logger.Warn().Err(err).Str("provider", name).Msg("Failed to cache search results")
	}

	return results, nil
}

func (m *Manager) recordFailure(name string, breaker *Breaker, err error) {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Kind == ErrRateLimit {
		hold := 30 * time.Second
		if pe.RetryAfter > 0 {
			hold = time.Duration(pe.RetryAfter) * time.Second
		}
		breaker.HoldFor(hold)
		return
	}
	breaker.RecordFailure()
}

// filter applies the blacklist and the forced post-filter.
func (m *Manager) filter(ctx context.Context, results []SubtitleResult, query VideoQuery) ([]SubtitleResult, error) {
	blacklisted, err := m.blacklist.Hashes(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SubtitleResult, 0, len(results))
	for _, r := range results {
		if r.ContentHash != "" &&
			(blacklisted[r.ContentHash] || blacklisted[r.Provider+"|"+r.ContentHash]) {
			continue
		}
		if query.ForcedOnly != IsForced(r) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Download fetches a chosen result, extracts archives, validates the
// content parses as a subtitle and returns the final path plus the content
// hash. Failures count against the provider's breaker.
func (m *Manager) Download(ctx context.Context, result SubtitleResult, destDir string) (string, string, error) {
	p, err := m.registry.Get(result.Provider)
	if err != nil {
		return "", "", err
	}

	breaker := m.breakers.Get(result.Provider)
	if !breaker.Allow() {
		return "", "", &ProviderError{Provider: result.Provider, Kind: ErrNetwork, Err: errors.New("circuit breaker open")}
	}

	timeout := m.settings.SearchTimeout(ctx)
	dlCtx, cancel := context.WithTimeout(ctx, timeout*4)
	defer cancel()

	artifact, err := p.Download(dlCtx, result, destDir)
	if err != nil {
		m.recordFailure(result.Provider, breaker, err)
		return "", "", err
	}
	breaker.RecordSuccess()

	path, err := m.resolveArtifact(artifact, destDir, result)
	if err != nil {
		return "", "", err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", "", &subtitles.FileError{Kind: subtitles.FileNotFound, Path: path, Err: err}
	}
	if format := subtitles.DetectFormat(content); format == subtitles.FormatUnknown {
		return "", "", &subtitles.FileError{Kind: subtitles.FileFormatInvalid, Path: path}
	}

	hash := sha256.Sum256(content)
	return path, hex.EncodeToString(hash[:]), nil
}

// resolveArtifact extracts archives and picks the best contained subtitle.
func (m *Manager) resolveArtifact(artifact, destDir string, result SubtitleResult) (string, error) {
	content, err := os.ReadFile(artifact)
	if err != nil {
		return "", &subtitles.FileError{Kind: subtitles.FileNotFound, Path: artifact, Err: err}
	}

	if subtitles.DetectArchive(content) == subtitles.ArchiveNone {
		return artifact, nil
	}

	extracted, err := subtitles.ExtractSubtitles(artifact, destDir)
	if err != nil {
		return "", err
	}
	if len(extracted) == 0 {
		return "", &subtitles.FileError{Kind: subtitles.FileArchive, Path: artifact, Err: errors.New("archive contains no subtitles")}
	}

	// Prefer the entry matching the advertised format, then styled formats.
	best := extracted[0]
	for _, path := range extracted {
		ext := filepath.Ext(path)
		if ext == "."+result.Format {
			return path, nil
		}
		if ext == ".ass" || ext == ".ssa" {
			best = path
		}
	}
	return best, nil
}

// TestProvider runs a provider's health check.
func (m *Manager) TestProvider(ctx context.Context, name string) (bool, string, error) {
	p, err := m.registry.Get(name)
	if err != nil {
		return false, "", err
	}
	healthy, msg := p.HealthCheck(ctx)
	return healthy, msg, nil
}

func languageServed(langs []string, lang string) bool {
	for _, l := range langs {
		if l == lang || (len(l) >= 2 && len(lang) >= 2 && l[:2] == lang[:2]) {
			return true
		}
	}
	return false
}

// HashContent returns the canonical content hash used for blacklisting.
func HashContent(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}
