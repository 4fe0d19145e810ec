package translator

import (
	"context"
	"database/sql"
	"fmt"
)

// PromptPreset is a named reusable system prompt.
type PromptPreset struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Presets stores named prompt templates usable per translation request.
type Presets struct {
	db *sql.DB
}

// NewPresets creates the prompt preset store.
func NewPresets(db *sql.DB) *Presets {
	return &Presets{db: db}
}

// Save inserts or updates a preset by name and returns its id.
func (p *Presets) Save(ctx context.Context, preset PromptPreset) (int64, error) {
	if preset.Name == "" {
		return 0, fmt.Errorf("preset name is required")
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO prompt_presets (name, content) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET content = excluded.content, updated_at = datetime('now')`,
		preset.Name, preset.Content)
	if err != nil {
		return 0, fmt.Errorf("failed to save prompt preset: %w", err)
	}

	var id int64
	if err := p.db.QueryRowContext(ctx,
		`SELECT id FROM prompt_presets WHERE name = ?`, preset.Name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Get returns a preset by name.
func (p *Presets) Get(ctx context.Context, name string) (*PromptPreset, error) {
	var preset PromptPreset
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, content FROM prompt_presets WHERE name = ?`, name).
		Scan(&preset.ID, &preset.Name, &preset.Content)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("unknown prompt preset %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt preset: %w", err)
	}
	return &preset, nil
}

// List returns all presets ordered by name.
func (p *Presets) List(ctx context.Context) ([]PromptPreset, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, content FROM prompt_presets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompt presets: %w", err)
	}
	defer rows.Close()

	var presets []PromptPreset
	for rows.Next() {
		var preset PromptPreset
		if err := rows.Scan(&preset.ID, &preset.Name, &preset.Content); err != nil {
			return nil, fmt.Errorf("failed to scan prompt preset: %w", err)
		}
		presets = append(presets, preset)
	}
	return presets, rows.Err()
}

// Delete removes a preset by id.
func (p *Presets) Delete(ctx context.Context, id int64) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM prompt_presets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete prompt preset: %w", err)
	}
	return nil
}
