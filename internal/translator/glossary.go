package translator

import (
	"context"
	"database/sql"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Glossary stores pinned term translations. Terms are scoped: "global"
// applies everywhere, any other scope matches a series title.
type Glossary struct {
	db *sql.DB
}

// NewGlossary creates the glossary store.
func NewGlossary(db *sql.DB) *Glossary {
	return &Glossary{db: db}
}

// Add inserts or updates a term within its scope.
func (g *Glossary) Add(ctx context.Context, term GlossaryTerm) error {
	if term.Scope == "" {
		term.Scope = "global"
	}
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO glossary_terms (source_term, target_term, scope) VALUES (?, ?, ?)
		ON CONFLICT(source_term, scope) DO UPDATE SET target_term = excluded.target_term`,
		term.SourceTerm, term.TargetTerm, term.Scope)
	if err != nil {
		return fmt.Errorf("failed to add glossary term: %w", err)
	}
	return nil
}

// Remove deletes a term by id.
func (g *Glossary) Remove(ctx context.Context, id int64) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM glossary_terms WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove glossary term: %w", err)
	}
	return nil
}

// List returns all terms, optionally restricted to one scope.
func (g *Glossary) List(ctx context.Context, scope string) ([]GlossaryTerm, error) {
	query := `SELECT id, source_term, target_term, scope FROM glossary_terms ORDER BY scope, source_term`
	args := []any{}
	if scope != "" {
		query = `SELECT id, source_term, target_term, scope FROM glossary_terms WHERE scope = ? ORDER BY source_term`
		args = append(args, scope)
	}

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list glossary terms: %w", err)
	}
	defer rows.Close()

	var terms []GlossaryTerm
	for rows.Next() {
		var t GlossaryTerm
		if err := rows.Scan(&t.ID, &t.SourceTerm, &t.TargetTerm, &t.Scope); err != nil {
			return nil, fmt.Errorf("failed to scan glossary term: %w", err)
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// TermsFor returns the effective terms for one piece of media: global terms
// plus series-scoped overrides, the override winning on collision.
func (g *Glossary) TermsFor(ctx context.Context, seriesScope string) ([]GlossaryTerm, error) {
	global, err := g.List(ctx, "global")
	if err != nil {
		return nil, err
	}
	if seriesScope == "" || seriesScope == "global" {
		return global, nil
	}
	scoped, err := g.List(ctx, seriesScope)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]GlossaryTerm, len(global)+len(scoped))
	for _, t := range global {
		merged[t.SourceTerm] = t
	}
	for _, t := range scoped {
		merged[t.SourceTerm] = t
	}

	out := make([]GlossaryTerm, 0, len(merged))
	for _, t := range merged {
		out = append(out, t)
	}
	return out, nil
}

// Clear removes every glossary term.
func (g *Glossary) Clear(ctx context.Context) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM glossary_terms`); err != nil {
		return fmt.Errorf("failed to clear glossary: %w", err)
	}
	return nil
}

type glossaryDoc struct {
	Terms []GlossaryTerm `yaml:"terms"`
}

// ExportYAML serializes every term for backup or sharing.
func (g *Glossary) ExportYAML(ctx context.Context) ([]byte, error) {
	terms, err := g.List(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range terms {
		terms[i].ID = 0
	}
	return yaml.Marshal(glossaryDoc{Terms: terms})
}

// ImportYAML loads terms from a YAML document, upserting each.
func (g *Glossary) ImportYAML(ctx context.Context, data []byte) (int, error) {
	var doc glossaryDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("failed to parse glossary yaml: %w", err)
	}
	imported := 0
	for _, term := range doc.Terms {
		if term.SourceTerm == "" || term.TargetTerm == "" {
			continue
		}
		if err := g.Add(ctx, term); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
