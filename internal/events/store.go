package events

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sublarr/sublarr/internal/database"
)

// Store persists hook and webhook subscriptions and hook execution logs.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const hookColumns = "id, event_name, script_path, enabled, timeout_seconds, consecutive_failures, auto_disabled, created_at, updated_at"

func scanHook(row interface{ Scan(...any) error }) (*Hook, error) {
	var (
		h                  Hook
		enabled, disabled  int64
		createdAt, updated string
	)
	err := row.Scan(&h.ID, &h.EventName, &h.ScriptPath, &enabled, &h.TimeoutSeconds, &h.ConsecutiveFailures, &disabled, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	h.Enabled = enabled == 1
	h.AutoDisabled = disabled == 1
	h.CreatedAt = database.ParseTime(createdAt)
	h.UpdatedAt = database.ParseTime(updated)
	return &h, nil
}

// ListHooks returns all hook configs.
func (s *Store) ListHooks(ctx context.Context) ([]*Hook, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+hookColumns+" FROM hooks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list hooks: %w", err)
	}
	defer rows.Close()

	var hooks []*Hook
	for rows.Next() {
		h, err := scanHook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hook: %w", err)
		}
		hooks = append(hooks, h)
	}
	return hooks, rows.Err()
}

// ListEnabledHooksForEvent returns enabled, non-auto-disabled hooks
// subscribed to the event.
func (s *Store) ListEnabledHooksForEvent(ctx context.Context, eventName string) ([]*Hook, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+hookColumns+" FROM hooks WHERE event_name = ? AND enabled = 1 AND auto_disabled = 0 ORDER BY id",
		eventName)
	if err != nil {
		return nil, fmt.Errorf("list enabled hooks: %w", err)
	}
	defer rows.Close()

	var hooks []*Hook
	for rows.Next() {
		h, err := scanHook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hook: %w", err)
		}
		hooks = append(hooks, h)
	}
	return hooks, rows.Err()
}

// GetHook returns a hook by ID.
func (s *Store) GetHook(ctx context.Context, id int64) (*Hook, error) {
	h, err := scanHook(s.db.QueryRowContext(ctx, "SELECT "+hookColumns+" FROM hooks WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrHookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get hook: %w", err)
	}
	return h, nil
}

// CreateHook inserts a new hook.
func (s *Store) CreateHook(ctx context.Context, in CreateHookInput) (*Hook, error) {
	timeout := in.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO hooks (event_name, script_path, enabled, timeout_seconds) VALUES (?, ?, ?, ?)",
		in.EventName, in.ScriptPath, database.BoolToInt(in.Enabled), timeout)
	if err != nil {
		return nil, fmt.Errorf("create hook: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetHook(ctx, id)
}

// UpdateHook patches a hook. Re-enabling clears the failure bookkeeping.
func (s *Store) UpdateHook(ctx context.Context, id int64, in UpdateHookInput) (*Hook, error) {
	existing, err := s.GetHook(ctx, id)
	if err != nil {
		return nil, err
	}

	eventName := existing.EventName
	if in.EventName != nil {
		eventName = *in.EventName
	}
	scriptPath := existing.ScriptPath
	if in.ScriptPath != nil {
		scriptPath = *in.ScriptPath
	}
	enabled := existing.Enabled
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	timeout := existing.TimeoutSeconds
	if in.TimeoutSeconds != nil {
		timeout = *in.TimeoutSeconds
	}

	clearFailures := in.Enabled != nil && *in.Enabled && !existing.Enabled || existing.AutoDisabled && enabled

	_, err = s.db.ExecContext(ctx, `
		UPDATE hooks SET event_name = ?, script_path = ?, enabled = ?, timeout_seconds = ?,
			consecutive_failures = CASE WHEN ? THEN 0 ELSE consecutive_failures END,
			auto_disabled = CASE WHEN ? THEN 0 ELSE auto_disabled END,
			updated_at = datetime('now')
		WHERE id = ?`,
		eventName, scriptPath, database.BoolToInt(enabled), timeout,
		database.BoolToInt(clearFailures), database.BoolToInt(clearFailures), id)
	if err != nil {
		return nil, fmt.Errorf("update hook: %w", err)
	}
	return s.GetHook(ctx, id)
}

// DeleteHook removes a hook and its logs.
func (s *Store) DeleteHook(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM hooks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete hook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrHookNotFound
	}
	return nil
}

// RecordHookFailure increments the failure streak and reports whether the
// hook crossed the auto-disable threshold.
func (s *Store) RecordHookFailure(ctx context.Context, id int64, threshold int) (bool, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE hooks SET consecutive_failures = consecutive_failures + 1,
			auto_disabled = CASE WHEN consecutive_failures + 1 >= ? THEN 1 ELSE auto_disabled END,
			updated_at = datetime('now')
		WHERE id = ?`, threshold, id)
	if err != nil {
		return false, fmt.Errorf("record hook failure: %w", err)
	}

	var disabled int64
	if err := s.db.QueryRowContext(ctx, "SELECT auto_disabled FROM hooks WHERE id = ?", id).Scan(&disabled); err != nil {
		return false, err
	}
	return disabled == 1, nil
}

// ClearHookFailures resets the failure streak after a success.
func (s *Store) ClearHookFailures(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE hooks SET consecutive_failures = 0, updated_at = datetime('now') WHERE id = ?", id)
	return err
}

// InsertHookLog stores one execution record.
func (s *Store) InsertHookLog(ctx context.Context, log *HookLog) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO hook_logs (hook_id, event_name, exit_code, stdout, stderr, duration_ms) VALUES (?, ?, ?, ?, ?, ?)",
		log.HookID, log.EventName, log.ExitCode, log.Stdout, log.Stderr, log.DurationMS)
	if err != nil {
		return fmt.Errorf("insert hook log: %w", err)
	}
	return nil
}

// ListHookLogs returns recent executions for a hook, newest first.
func (s *Store) ListHookLogs(ctx context.Context, hookID int64, limit int) ([]*HookLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, hook_id, event_name, exit_code, stdout, stderr, duration_ms, executed_at FROM hook_logs WHERE hook_id = ? ORDER BY id DESC LIMIT ?",
		hookID, limit)
	if err != nil {
		return nil, fmt.Errorf("list hook logs: %w", err)
	}
	defer rows.Close()

	var logs []*HookLog
	for rows.Next() {
		var (
			l          HookLog
			executedAt string
		)
		if err := rows.Scan(&l.ID, &l.HookID, &l.EventName, &l.ExitCode, &l.Stdout, &l.Stderr, &l.DurationMS, &executedAt); err != nil {
			return nil, fmt.Errorf("scan hook log: %w", err)
		}
		l.ExecutedAt = database.ParseTime(executedAt)
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// PruneHookLogs deletes logs older than the cutoff.
func (s *Store) PruneHookLogs(ctx context.Context, olderThanDays int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM hook_logs WHERE executed_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", olderThanDays))
	if err != nil {
		return 0, fmt.Errorf("prune hook logs: %w", err)
	}
	return res.RowsAffected()
}

const webhookColumns = "id, event_name, url, secret, enabled, consecutive_failures, auto_disabled, created_at, updated_at"

func scanWebhook(row interface{ Scan(...any) error }) (*Webhook, error) {
	var (
		w                  Webhook
		enabled, disabled  int64
		createdAt, updated string
	)
	err := row.Scan(&w.ID, &w.EventName, &w.URL, &w.Secret, &enabled, &w.ConsecutiveFailures, &disabled, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	w.Enabled = enabled == 1
	w.AutoDisabled = disabled == 1
	w.CreatedAt = database.ParseTime(createdAt)
	w.UpdatedAt = database.ParseTime(updated)
	return &w, nil
}

// ListWebhooks returns all webhook configs.
func (s *Store) ListWebhooks(ctx context.Context) ([]*Webhook, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+webhookColumns+" FROM webhooks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []*Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

// ListEnabledWebhooksForEvent returns enabled, non-auto-disabled webhooks
// subscribed to the event.
func (s *Store) ListEnabledWebhooksForEvent(ctx context.Context, eventName string) ([]*Webhook, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+webhookColumns+" FROM webhooks WHERE event_name = ? AND enabled = 1 AND auto_disabled = 0 ORDER BY id",
		eventName)
	if err != nil {
		return nil, fmt.Errorf("list enabled webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []*Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

// GetWebhook returns a webhook by ID.
func (s *Store) GetWebhook(ctx context.Context, id int64) (*Webhook, error) {
	w, err := scanWebhook(s.db.QueryRowContext(ctx, "SELECT "+webhookColumns+" FROM webhooks WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrWebhookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return w, nil
}

// CreateWebhook inserts a new webhook.
func (s *Store) CreateWebhook(ctx context.Context, in CreateWebhookInput) (*Webhook, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO webhooks (event_name, url, secret, enabled) VALUES (?, ?, ?, ?)",
		in.EventName, in.URL, in.Secret, database.BoolToInt(in.Enabled))
	if err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetWebhook(ctx, id)
}

// UpdateWebhook patches a webhook. Re-enabling clears the failure streak.
func (s *Store) UpdateWebhook(ctx context.Context, id int64, in UpdateWebhookInput) (*Webhook, error) {
	existing, err := s.GetWebhook(ctx, id)
	if err != nil {
		return nil, err
	}

	eventName := existing.EventName
	if in.EventName != nil {
		eventName = *in.EventName
	}
	url := existing.URL
	if in.URL != nil {
		url = *in.URL
	}
	secret := existing.Secret
	if in.Secret != nil {
		secret = *in.Secret
	}
	enabled := existing.Enabled
	if in.Enabled != nil {
		enabled = *in.Enabled
	}

	clearFailures := in.Enabled != nil && *in.Enabled && (!existing.Enabled || existing.AutoDisabled)

	_, err = s.db.ExecContext(ctx, `
		UPDATE webhooks SET event_name = ?, url = ?, secret = ?, enabled = ?,
			consecutive_failures = CASE WHEN ? THEN 0 ELSE consecutive_failures END,
			auto_disabled = CASE WHEN ? THEN 0 ELSE auto_disabled END,
			updated_at = datetime('now')
		WHERE id = ?`,
		eventName, url, secret, database.BoolToInt(enabled),
		database.BoolToInt(clearFailures), database.BoolToInt(clearFailures), id)
	if err != nil {
		return nil, fmt.Errorf("update webhook: %w", err)
	}
	return s.GetWebhook(ctx, id)
}

// DeleteWebhook removes a webhook.
func (s *Store) DeleteWebhook(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM webhooks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWebhookNotFound
	}
	return nil
}

// RecordWebhookFailure increments the failure streak and reports whether the
// webhook crossed the auto-disable threshold.
func (s *Store) RecordWebhookFailure(ctx context.Context, id int64, threshold int) (bool, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhooks SET consecutive_failures = consecutive_failures + 1,
			auto_disabled = CASE WHEN consecutive_failures + 1 >= ? THEN 1 ELSE auto_disabled END,
			updated_at = datetime('now')
		WHERE id = ?`, threshold, id)
	if err != nil {
		return false, fmt.Errorf("record webhook failure: %w", err)
	}

	var disabled int64
	if err := s.db.QueryRowContext(ctx, "SELECT auto_disabled FROM webhooks WHERE id = ?", id).Scan(&disabled); err != nil {
		return false, err
	}
	return disabled == 1, nil
}

// ClearWebhookFailures resets the failure streak after a success.
func (s *Store) ClearWebhookFailures(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE webhooks SET consecutive_failures = 0, updated_at = datetime('now') WHERE id = ?", id)
	return err
}
