package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Service records and lists acquisition history.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates the history service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{db: db, logger: logger.With().Str("component", "history").Logger()}
}

// Record appends one entry. Recording is best-effort bookkeeping for the
// pipeline, so callers typically log rather than propagate the error.
func (s *Service) Record(ctx context.Context, e Entry) error {
	if e.EventType == "" {
		return fmt.Errorf("history entry requires an event type")
	}
	if e.SubtitleType == "" {
		e.SubtitleType = "full"
	}

	var data any
	if len(e.Data) > 0 {
		encoded, err := json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("encode history data: %w", err)
		}
		data = string(encoded)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (event_type, media_type, media_id, file_path, language, subtitle_type, provider, backend, score, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventType, e.MediaType, e.MediaID, e.FilePath, e.Language, e.SubtitleType,
		e.Provider, e.Backend, e.Score, data)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// List returns one page of history, newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResponse, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 || opts.PageSize > 200 {
		opts.PageSize = 50
	}

	var where []string
	var args []any
	if opts.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, opts.EventType)
	}
	if opts.MediaType != "" {
		where = append(where, "media_type = ?")
		args = append(args, opts.MediaType)
	}
	if opts.MediaID > 0 {
		where = append(where, "media_id = ?")
		args = append(args, opts.MediaID)
	}
	if opts.Language != "" {
		where = append(where, "language = ?")
		args = append(args, opts.Language)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM history"+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count history: %w", err)
	}

	query := `
		SELECT id, event_type, media_type, media_id, file_path, language, subtitle_type, provider, backend, score, data, created_at
		FROM history` + clause + `
		ORDER BY id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.PageSize, (opts.Page-1)*opts.PageSize)...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	items := []*Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totalPages := int((total + int64(opts.PageSize) - 1) / int64(opts.PageSize))
	return &ListResponse{
		Items:      items,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalCount: total,
		TotalPages: totalPages,
	}, nil
}

// ForMedia returns the most recent entries for one media item.
func (s *Service) ForMedia(ctx context.Context, mediaType string, mediaID int64, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, media_type, media_id, file_path, language, subtitle_type, provider, backend, score, data, created_at
		FROM history WHERE media_type = ? AND media_id = ?
		ORDER BY id DESC LIMIT ?`, mediaType, mediaID, limit)
	if err != nil {
		return nil, fmt.Errorf("list media history: %w", err)
	}
	defer rows.Close()

	items := []*Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// Prune deletes entries older than the cutoff, returning the removed count.
func (s *Service) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM history WHERE created_at < ?",
		olderThan.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// Clear deletes all history.
func (s *Service) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM history")
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var score sql.NullInt64
	var data sql.NullString
	if err := row.Scan(&e.ID, &e.EventType, &e.MediaType, &e.MediaID, &e.FilePath,
		&e.Language, &e.SubtitleType, &e.Provider, &e.Backend, &score, &data, &e.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan history entry: %w", err)
	}
	if score.Valid {
		v := int(score.Int64)
		e.Score = &v
	}
	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &e.Data); err != nil {
			e.Data = map[string]any{"raw": data.String}
		}
	}
	return &e, nil
}
