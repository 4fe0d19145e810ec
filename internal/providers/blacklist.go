package providers

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BlacklistEntry excludes a specific subtitle artifact from future searches.
type BlacklistEntry struct {
	ID          int64     `json:"id"`
	Provider    string    `json:"provider"`
	ContentHash string    `json:"contentHash"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Blacklist stores rejected subtitle hashes per provider.
type Blacklist struct {
	db *sql.DB
}

// NewBlacklist creates the blacklist store.
func NewBlacklist(db *sql.DB) *Blacklist {
	return &Blacklist{db: db}
}

// Add records a rejected artifact. Re-adding the same pair updates the reason.
func (b *Blacklist) Add(ctx context.Context, provider, contentHash, reason string) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO blacklist (provider, content_hash, reason) VALUES (?, ?, ?)
		ON CONFLICT(provider, content_hash) DO UPDATE SET reason = excluded.reason`,
		provider, contentHash, reason)
	if err != nil {
		return fmt.Errorf("failed to add blacklist entry: %w", err)
	}
	return nil
}

// Remove deletes one blacklist entry by id.
func (b *Blacklist) Remove(ctx context.Context, id int64) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM blacklist WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove blacklist entry: %w", err)
	}
	return nil
}

// List returns all blacklist entries, newest first.
func (b *Blacklist) List(ctx context.Context) ([]BlacklistEntry, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, provider, content_hash, reason, created_at
		FROM blacklist ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list blacklist: %w", err)
	}
	defer rows.Close()

	var entries []BlacklistEntry
	for rows.Next() {
		var e BlacklistEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Provider, &e.ContentHash, &e.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan blacklist entry: %w", err)
		}
		e.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Hashes returns the blacklisted hash set for fast filtering.
func (b *Blacklist) Hashes(ctx context.Context) (map[string]bool, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT provider, content_hash FROM blacklist`)
	if err != nil {
		return nil, fmt.Errorf("failed to load blacklist hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]bool)
	for rows.Next() {
		var provider, hash string
		if err := rows.Scan(&provider, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan blacklist hash: %w", err)
		}
		hashes[provider+"|"+hash] = true
		hashes[hash] = true
	}
	return hashes, rows.Err()
}
