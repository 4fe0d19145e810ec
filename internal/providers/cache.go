package providers

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Cache persists search results per (provider, language, canonical query)
// with a TTL, so repeat scans inside the window never re-hit providers.
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

// NewCache creates a provider result cache over the provider_cache table.
func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db, now: time.Now}
}

// CacheKey derives the cache key for one provider search.
func CacheKey(provider string, query VideoQuery) string {
	h := sha256.Sum256([]byte(provider + "|" + query.Language() + "|" + query.Canonical()))
	return hex.EncodeToString(h[:])
}

// Get returns the cached results for key, or (nil, false) on miss or
// expiry. Expired rows are deleted lazily.
func (c *Cache) Get(ctx context.Context, key string) ([]SubtitleResult, bool, error) {
	var payload string
	var expiresAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM provider_cache WHERE key = ?`, key).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read provider cache: %w", err)
	}

	if c.now().Unix() >= expiresAt {
		_, _ = c.db.ExecContext(ctx, `DELETE FROM provider_cache WHERE key = ?`, key)
		return nil, false, nil
	}

	var results []SubtitleResult
	if err := json.Unmarshal([]byte(payload), &results); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached results: %w", err)
	}
	return results, true, nil
}

// Put stores results for key with the given TTL.
func (c *Cache) Put(ctx context.Context, key string, results []SubtitleResult, ttl time.Duration) error {
	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO provider_cache (key, payload, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		key, string(payload), c.now().Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("failed to write provider cache: %w", err)
	}
	return nil
}

// PurgeExpired removes expired entries and returns the count. Scheduled
// daily.
func (c *Cache) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM provider_cache WHERE expires_at <= ?`, c.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge provider cache: %w", err)
	}
	return res.RowsAffected()
}

// Clear drops every cache entry.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM provider_cache`); err != nil {
		return fmt.Errorf("failed to clear provider cache: %w", err)
	}
	return nil
}
