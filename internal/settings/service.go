package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const envPrefix = "SUBLARR_"

// InvalidateFunc is called for each changed key before the new value becomes
// visible to other workers, so stale derived caches never outlive a write.
type InvalidateFunc func(key string)

// Service merges environment defaults with stored overrides from the
// config_entries table. Stored overrides win over the environment, which in
// turn wins over the built-in default.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger

	mu          sync.RWMutex
	cache       map[string]string // stored overrides only
	loaded      bool
	subscribers []subscription
}

type subscription struct {
	prefix string
	fn     InvalidateFunc
}

// NewService creates a settings service over an open database.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "settings").Logger(),
		cache:  make(map[string]string),
	}
}

// Subscribe registers an invalidation callback for keys matching the prefix.
// An empty prefix matches every key.
func (s *Service) Subscribe(prefix string, fn InvalidateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, subscription{prefix: prefix, fn: fn})
}

func (s *Service) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM config_entries`)
	if err != nil {
		return fmt.Errorf("failed to load config entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("failed to scan config entry: %w", err)
		}
		entries[k] = v
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.loaded {
		s.cache = entries
		s.loaded = true
	}
	s.mu.Unlock()
	return nil
}

// Get returns the effective value for key: stored override, then environment
// variable (SUBLARR_<KEY> upper-cased), then built-in default.
func (s *Service) Get(ctx context.Context, key string) string {
	if err := s.ensureLoaded(ctx); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to load settings, using defaults")
		return defaults[key]
	}

	s.mu.RLock()
	stored, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return stored
	}

	if env := os.Getenv(envPrefix + strings.ToUpper(key)); env != "" {
		return env
	}

	return defaults[key]
}

// GetInt returns the effective integer value for key, or the built-in
// default when the stored value does not parse.
func (s *Service) GetInt(ctx context.Context, key string) int {
	v, err := strconv.Atoi(s.Get(ctx, key))
	if err != nil {
		v, _ = strconv.Atoi(defaults[key])
	}
	return v
}

// GetFloat returns the effective float value for key.
func (s *Service) GetFloat(ctx context.Context, key string) float64 {
	v, err := strconv.ParseFloat(s.Get(ctx, key), 64)
	if err != nil {
		v, _ = strconv.ParseFloat(defaults[key], 64)
	}
	return v
}

// GetBool returns the effective boolean value for key.
func (s *Service) GetBool(ctx context.Context, key string) bool {
	return strings.EqualFold(s.Get(ctx, key), "true")
}

// Set persists an override. Invalidation callbacks run before the new value
// is published to the in-memory cache, so no other worker can observe the
// new value while derived caches still hold the old one.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}

	s.notify(key)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config_entries (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to store config entry %q: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()

	s.logger.Debug().Str("key", key).Msg("Setting updated")
	return nil
}

// Delete removes a stored override so the environment or default applies again.
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}

	s.notify(key)

	if _, err := s.db.ExecContext(ctx, `DELETE FROM config_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete config entry %q: %w", key, err)
	}

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	return nil
}

func (s *Service) notify(key string) {
	s.mu.RLock()
	subs := make([]subscription, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.RUnlock()

	for _, sub := range subs {
		if sub.prefix == "" || strings.HasPrefix(key, sub.prefix) {
			sub.fn(key)
		}
	}
}

// All returns the merged effective settings. Sensitive values are masked
// when masked is true.
func (s *Service) All(ctx context.Context, masked bool) (map[string]string, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	merged := make(map[string]string, len(defaults))
	for k := range defaults {
		merged[k] = s.Get(ctx, k)
	}
	s.mu.RLock()
	for k := range s.cache {
		merged[k] = s.cache[k]
	}
	s.mu.RUnlock()

	if masked {
		for k, v := range merged {
			if v != "" && IsSensitive(k) {
				merged[k] = "********"
			}
		}
	}
	return merged, nil
}

// Export returns the stored overrides (not defaults) as JSON, masked.
func (s *Service) Export(ctx context.Context) ([]byte, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make(map[string]string, len(s.cache))
	for k, v := range s.cache {
		if v != "" && IsSensitive(k) {
			out[k] = "********"
			continue
		}
		out[k] = v
	}
	s.mu.RUnlock()

	return json.MarshalIndent(out, "", "  ")
}

// Import applies a JSON object of overrides. Masked placeholder values are
// skipped so a round-tripped export never clobbers real secrets.
func (s *Service) Import(ctx context.Context, data []byte) (int, error) {
	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("invalid settings payload: %w", err)
	}

	applied := 0
	for k, v := range entries {
		if v == "********" {
			continue
		}
		if err := s.Set(ctx, k, v); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// IsSensitive reports whether a settings key carries a credential.
func IsSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
