package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job statuses. Cancellation lands in failed with reason "cancelled".
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job kinds submitted by the API, the wanted batch actions and the
// transcription fallback.
const (
	KindTranslate      = "translate"
	KindBatchTranslate = "batch_translate"
	KindWantedSearch   = "wanted_search"
	KindWantedExtract  = "wanted_extract"
	KindTranscribe     = "transcribe"
)

// Job is one persisted unit of background work.
type Job struct {
	ID              string          `json:"id"`
	Kind            string          `json:"kind"`
	FilePath        string          `json:"filePath,omitempty"`
	Status          string          `json:"status"`
	Request         json.RawMessage `json:"request,omitempty"`
	Stats           json.RawMessage `json:"stats,omitempty"`
	Error           *string         `json:"error,omitempty"`
	CancelRequested bool            `json:"cancelRequested,omitempty"`
	CreatedAt       string          `json:"createdAt"`
	StartedAt       *string         `json:"startedAt,omitempty"`
	CompletedAt     *string         `json:"completedAt,omitempty"`
}

// Store persists jobs.
type Store struct {
	db *sql.DB
}

// NewStore creates the job store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a queued job with its request payload.
func (s *Store) Create(ctx context.Context, kind, filePath string, request any) (*Job, error) {
	encoded := []byte("{}")
	if request != nil {
		var err error
		encoded, err = json.Marshal(request)
		if err != nil {
			return nil, fmt.Errorf("encode job request: %w", err)
		}
	}

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO jobs (id, kind, file_path, request) VALUES (?, ?, ?, ?)",
		id, kind, filePath, string(encoded))
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.Get(ctx, id)
}

// MarkRunning moves a queued job to running.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, started_at = datetime('now') WHERE id = ?",
		StatusRunning, id)
	return err
}

// MarkCompleted finishes a job with its result stats.
func (s *Store) MarkCompleted(ctx context.Context, id string, stats any) error {
	var encoded any
	if stats != nil {
		raw, err := json.Marshal(stats)
		if err != nil {
			return fmt.Errorf("encode job stats: %w", err)
		}
		encoded = string(raw)
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, stats = ?, completed_at = datetime('now') WHERE id = ?",
		StatusCompleted, encoded, id)
	return err
}

// MarkFailed finishes a job with an error message.
func (s *Store) MarkFailed(ctx context.Context, id, msg string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, error = ?, completed_at = datetime('now') WHERE id = ?",
		StatusFailed, msg, id)
	return err
}

// RequestCancel flags a queued or running job for cancellation. Returns
// false when the job is already finished (or unknown).
func (s *Store) RequestCancel(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET cancel_requested = 1 WHERE id = ? AND status IN (?, ?)",
		id, StatusQueued, StatusRunning)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// CancelRequested reports the cancel flag, a safe point for workers.
func (s *Store) CancelRequested(ctx context.Context, id string) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(ctx, "SELECT cancel_requested FROM jobs WHERE id = ?", id).Scan(&flag)
	if err != nil {
		return false, err
	}
	return flag != 0, nil
}

const jobColumns = "id, kind, file_path, status, request, stats, error, cancel_requested, created_at, started_at, completed_at"

// Get returns one job.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	return scanJob(row)
}

// Filter narrows job listings.
type Filter struct {
	Kind   string
	Status string
	Limit  int
}

// List returns jobs newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE 1=1"
	var args []any
	if f.Kind != "" {
		query += " AND kind = ?"
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

// PruneFinished deletes terminal jobs older than the cutoff.
func (s *Store) PruneFinished(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM jobs WHERE status IN (?, ?) AND created_at < ?",
		StatusCompleted, StatusFailed, olderThan.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var request, stats, errMsg sql.NullString
	var cancel int
	if err := row.Scan(&j.ID, &j.Kind, &j.FilePath, &j.Status, &request, &stats, &errMsg,
		&cancel, &j.CreatedAt, &j.StartedAt, &j.CompletedAt); err != nil {
		return nil, err
	}
	if request.Valid && request.String != "" {
		j.Request = json.RawMessage(request.String)
	}
	if stats.Valid && stats.String != "" {
		j.Stats = json.RawMessage(stats.String)
	}
	if errMsg.Valid {
		j.Error = &errMsg.String
	}
	j.CancelRequested = cancel != 0
	return &j, nil
}
