// Package wanted tracks the subtitles the library still needs: one item per
// (video file, target language, subtitle type), driven through a status
// machine by the acquisition pipeline.
package wanted

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sublarr/sublarr/internal/subtitles"
)

// Item statuses.
const (
	StatusPending      = "pending"
	StatusSearching    = "searching"
	StatusDownloading  = "downloading"
	StatusTranslating  = "translating"
	StatusTranscribing = "transcribing"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
)

// Item is one wanted subtitle.
type Item struct {
	ID             int64                  `json:"id"`
	FilePath       string                 `json:"filePath"`
	TargetLanguage string                 `json:"targetLanguage"`
	SubtitleType   subtitles.SubtitleType `json:"subtitleType"`
	Status         string                 `json:"status"`
	ExistingSub    string                 `json:"existingSub"`
	MediaType      string                 `json:"mediaType"`
	MediaID        int64                  `json:"mediaId"`
	SourceLanguage string                 `json:"sourceLanguage"`
	Attempts       int                    `json:"attempts"`
	Error          *string                `json:"error,omitempty"`
	ResultPath     *string                `json:"resultPath,omitempty"`
	ResultHash     *string                `json:"resultHash,omitempty"`
	LastSearchAt   *string                `json:"lastSearchAt,omitempty"`
	CreatedAt      string                 `json:"createdAt"`
	UpdatedAt      string                 `json:"updatedAt"`
}

// Store persists wanted items.
type Store struct {
	db *sql.DB
}

// NewStore creates the wanted store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const itemColumns = `id, file_path, target_language, subtitle_type, status, existing_sub,
	media_type, media_id, source_language, attempts, error, result_path, result_hash,
	last_search_at, created_at, updated_at`

const prefixedItemColumns = `w.id, w.file_path, w.target_language, w.subtitle_type, w.status,
	w.existing_sub, w.media_type, w.media_id, w.source_language, w.attempts, w.error,
	w.result_path, w.result_hash, w.last_search_at, w.created_at, w.updated_at`

// Upsert inserts an item or refreshes the descriptive fields of the
// existing one; status and attempt bookkeeping are never reset. Reports
// whether a new row was created.
func (s *Store) Upsert(ctx context.Context, item Item) (int64, bool, error) {
	if item.SubtitleType == "" {
		item.SubtitleType = subtitles.TypeFull
	}
	if item.ExistingSub == "" {
		item.ExistingSub = "none"
	}

	var existing int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM wanted_items WHERE file_path = ? AND target_language = ? AND subtitle_type = ?`,
		item.FilePath, item.TargetLanguage, string(item.SubtitleType)).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO wanted_items (file_path, target_language, subtitle_type, existing_sub,
				media_type, media_id, source_language)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.FilePath, item.TargetLanguage, string(item.SubtitleType), item.ExistingSub,
			item.MediaType, item.MediaID, item.SourceLanguage)
		if err != nil {
			return 0, false, fmt.Errorf("failed to insert wanted item: %w", err)
		}
		id, _ := res.LastInsertId()
		return id, true, nil
	case err != nil:
		return 0, false, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE wanted_items
		SET existing_sub = ?, media_type = ?, media_id = ?, source_language = ?,
		    updated_at = datetime('now')
		WHERE id = ?`,
		item.ExistingSub, item.MediaType, item.MediaID, item.SourceLanguage, existing)
	if err != nil {
		return 0, false, fmt.Errorf("failed to update wanted item: %w", err)
	}
	return existing, false, nil
}

// Get returns one item by id.
func (s *Store) Get(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM wanted_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("wanted item %d not found", id)
	}
	return item, err
}

// Filter narrows List results.
type Filter struct {
	Status       string
	MediaType    string
	SubtitleType string
	Limit        int
	Offset       int
}

// List returns items matching the filter, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Item, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.MediaType != "" {
		where = append(where, "media_type = ?")
		args = append(args, f.MediaType)
	}
	if f.SubtitleType != "" {
		where = append(where, "subtitle_type = ?")
		args = append(args, f.SubtitleType)
	}

	query := `SELECT ` + itemColumns + ` FROM wanted_items`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list wanted items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// ByIDs returns the items with the given ids, skipping unknown ones.
func (s *Store) ByIDs(ctx context.Context, ids []int64) ([]Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM wanted_items WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// BySeries returns the items belonging to episodes of the given series.
func (s *Store) BySeries(ctx context.Context, seriesIDs []int64) ([]Item, error) {
	if len(seriesIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seriesIDs)), ",")
	args := make([]any, len(seriesIDs))
	for i, id := range seriesIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixedItemColumns+`
		FROM wanted_items w
		JOIN episodes e ON e.file_path = w.file_path
		WHERE w.media_type = 'episode' AND e.series_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// Summary counts items per status.
func (s *Store) Summary(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM wanted_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize wanted items: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// Claim transitions pending → searching for exactly one worker. The
// affected-row check is what serializes item ownership.
func (s *Store) Claim(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE wanted_items SET status = ?, updated_at = datetime('now')
		WHERE id = ? AND status = ?`, StatusSearching, id, StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim wanted item: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// SetStatus moves a claimed item to an intermediate status.
func (s *Store) SetStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE wanted_items SET status = ?, updated_at = datetime('now') WHERE id = ?`,
		status, id)
	if err != nil {
		return fmt.Errorf("failed to set wanted status: %w", err)
	}
	return nil
}

// MarkCompleted records the terminal success with the produced artifact.
func (s *Store) MarkCompleted(ctx context.Context, id int64, resultPath, resultHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE wanted_items
		SET status = ?, result_path = ?, result_hash = ?, error = NULL, updated_at = datetime('now')
		WHERE id = ?`,
		StatusCompleted, resultPath, resultHash, id)
	if err != nil {
		return fmt.Errorf("failed to complete wanted item: %w", err)
	}
	return nil
}

// MarkFailed records the terminal failure reason and bumps the attempt
// counter.
func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE wanted_items
		SET status = ?, error = ?, attempts = attempts + 1, updated_at = datetime('now')
		WHERE id = ?`,
		StatusFailed, reason, id)
	if err != nil {
		return fmt.Errorf("failed to fail wanted item: %w", err)
	}
	return nil
}

// Release puts a claimed item back to pending, e.g. after a transient error.
func (s *Store) Release(ctx context.Context, id int64) error {
	return s.SetStatus(ctx, id, StatusPending)
}

// Retry resets a failed item so the pipeline picks it up again.
func (s *Store) Retry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE wanted_items SET status = ?, error = NULL, updated_at = datetime('now')
		WHERE id = ? AND status = ?`, StatusPending, id, StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to retry wanted item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("wanted item %d is not failed", id)
	}
	return nil
}

// TouchSearch stamps the last provider search time.
func (s *Store) TouchSearch(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE wanted_items SET last_search_at = datetime('now') WHERE id = ?`, id)
	return err
}

// Delete removes one item.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM wanted_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete wanted item: %w", err)
	}
	return nil
}

// DeleteSatisfied removes a queued item whose subtitle turned up on disk
// outside the pipeline, e.g. dropped in manually between scans. In-flight
// and completed rows are left alone.
func (s *Store) DeleteSatisfied(ctx context.Context, filePath, lang string, subType subtitles.SubtitleType) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM wanted_items
		WHERE file_path = ? AND target_language = ? AND subtitle_type = ? AND status IN (?, ?)`,
		filePath, lang, string(subType), StatusPending, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to delete satisfied wanted item: %w", err)
	}
	return res.RowsAffected()
}

// Pending returns up to limit claimable items, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]Item, error) {
	return s.listPending(ctx, limit)
}

func (s *Store) listPending(ctx context.Context, limit int) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM wanted_items WHERE status = ? ORDER BY created_at, id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// RequeueUpgradeCandidates moves completed items whose result is still an
// SRT back to pending, so the daily upgrade pass can retry them for a
// styled replacement. Only items completed within the window are touched;
// outside it the pipeline keeps the SRT anyway.
func (s *Store) RequeueUpgradeCandidates(ctx context.Context, windowDays int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE wanted_items
		SET status = ?, error = NULL
		WHERE status = ? AND result_path LIKE '%.srt'
		  AND updated_at >= datetime('now', ?)`,
		StatusPending, StatusCompleted, fmt.Sprintf("-%d days", windowDays))
	if err != nil {
		return 0, fmt.Errorf("failed to requeue upgrade candidates: %w", err)
	}
	return res.RowsAffected()
}

// PruneMissing removes non-terminal items whose video no longer exists.
// Only full scans call this.
func (s *Store) PruneMissing(ctx context.Context, exists func(string) bool) (int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT file_path FROM wanted_items WHERE status != ?`, StatusCompleted)
	if err != nil {
		return 0, err
	}
	var gone []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, err
		}
		if !exists(path) {
			gone = append(gone, path)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var removed int64
	for _, path := range gone {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM wanted_items WHERE file_path = ? AND status != ?`, path, StatusCompleted)
		if err != nil {
			return removed, err
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}

func scanItem(row interface{ Scan(...any) error }) (*Item, error) {
	var it Item
	var subType string
	if err := row.Scan(&it.ID, &it.FilePath, &it.TargetLanguage, &subType, &it.Status,
		&it.ExistingSub, &it.MediaType, &it.MediaID, &it.SourceLanguage, &it.Attempts,
		&it.Error, &it.ResultPath, &it.ResultHash, &it.LastSearchAt,
		&it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.SubtitleType = subtitles.SubtitleType(subType)
	return &it, nil
}
