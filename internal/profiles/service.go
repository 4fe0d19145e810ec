// Package profiles manages language profiles: which target languages a
// piece of media wants subtitles in, from which source language, and how
// forced tracks are handled.
package profiles

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/language"
)

// ForcedPreference controls forced-subtitle handling for a profile.
type ForcedPreference string

const (
	// ForcedDisabled ignores forced tracks entirely.
	ForcedDisabled ForcedPreference = "disabled"
	// ForcedSeparate wants a dedicated forced subtitle per target language.
	ForcedSeparate ForcedPreference = "separate"
	// ForcedAuto uses embedded forced streams when present but never
	// creates forced wanted items.
	ForcedAuto ForcedPreference = "auto"
)

// Profile is one language profile.
type Profile struct {
	ID               int64            `json:"id"`
	Name             string           `json:"name"`
	SourceLanguage   string           `json:"sourceLanguage"`
	TargetLanguages  []string         `json:"targetLanguages"`
	ForcedPreference ForcedPreference `json:"forcedPreference"`
	BackendChain     []string         `json:"backendChain,omitempty"`
	IsDefault        bool             `json:"isDefault"`
}

// Service stores language profiles and their media assignments.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates the profile service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{db: db, logger: logger.With().Str("component", "profiles").Logger()}
}

func validate(p *Profile) error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if !language.Known(p.SourceLanguage) {
		return fmt.Errorf("unknown source language %q", p.SourceLanguage)
	}
	if len(p.TargetLanguages) == 0 {
		return fmt.Errorf("at least one target language is required")
	}
	for i, lang := range p.TargetLanguages {
		if !language.Known(lang) {
			return fmt.Errorf("unknown target language %q", lang)
		}
		p.TargetLanguages[i] = language.Canonical(lang)
	}
	p.SourceLanguage = language.Canonical(p.SourceLanguage)

	switch p.ForcedPreference {
	case "":
		p.ForcedPreference = ForcedDisabled
	case ForcedDisabled, ForcedSeparate, ForcedAuto:
	default:
		return fmt.Errorf("invalid forced preference %q", p.ForcedPreference)
	}
	return nil
}

// Create inserts a profile and returns it with its id. The first profile
// ever created becomes the default automatically.
func (s *Service) Create(ctx context.Context, p Profile) (*Profile, error) {
	if err := validate(&p); err != nil {
		return nil, err
	}

	targets, _ := json.Marshal(p.TargetLanguages)
	var chain any
	if len(p.BackendChain) > 0 {
		raw, _ := json.Marshal(p.BackendChain)
		chain = string(raw)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM language_profiles`).Scan(&count); err != nil {
		return nil, err
	}
	if count == 0 {
		p.IsDefault = true
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO language_profiles (name, source_language, target_languages, forced_preference, backend_chain, is_default)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.Name, p.SourceLanguage, string(targets), string(p.ForcedPreference), chain, boolToInt(p.IsDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	p.ID, _ = res.LastInsertId()

	if p.IsDefault {
		if err := s.setOnlyDefault(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// Update rewrites a profile in place.
func (s *Service) Update(ctx context.Context, p Profile) error {
	if p.ID == 0 {
		return fmt.Errorf("profile id is required")
	}
	if err := validate(&p); err != nil {
		return err
	}

	targets, _ := json.Marshal(p.TargetLanguages)
	var chain any
	if len(p.BackendChain) > 0 {
		raw, _ := json.Marshal(p.BackendChain)
		chain = string(raw)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE language_profiles
		SET name = ?, source_language = ?, target_languages = ?, forced_preference = ?,
		    backend_chain = ?, is_default = ?, updated_at = datetime('now')
		WHERE id = ?`,
		p.Name, p.SourceLanguage, string(targets), string(p.ForcedPreference), chain,
		boolToInt(p.IsDefault), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("profile %d not found", p.ID)
	}

	if p.IsDefault {
		return s.setOnlyDefault(ctx, p.ID)
	}
	return nil
}

func (s *Service) setOnlyDefault(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE language_profiles SET is_default = (id = ?)`, id)
	return err
}

// Delete removes a profile; assignments cascade. The default profile cannot
// be deleted while other profiles exist.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var isDefault int
	err := s.db.QueryRowContext(ctx,
		`SELECT is_default FROM language_profiles WHERE id = ?`, id).Scan(&isDefault)
	if err == sql.ErrNoRows {
		return fmt.Errorf("profile %d not found", id)
	}
	if err != nil {
		return err
	}

	if isDefault == 1 {
		var others int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM language_profiles WHERE id != ?`, id).Scan(&others); err != nil {
			return err
		}
		if others > 0 {
			return fmt.Errorf("cannot delete the default profile; set another default first")
		}
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM language_profiles WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

// Get returns one profile by id.
func (s *Service) Get(ctx context.Context, id int64) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, source_language, target_languages, forced_preference, backend_chain, is_default
		FROM language_profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile %d not found", id)
	}
	return p, err
}

// List returns every profile, default first.
func (s *Service) List(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, source_language, target_languages, forced_preference, backend_chain, is_default
		FROM language_profiles ORDER BY is_default DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Default returns the default profile, or nil when none exist.
func (s *Service) Default(ctx context.Context) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, source_language, target_languages, forced_preference, backend_chain, is_default
		FROM language_profiles WHERE is_default = 1 LIMIT 1`)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// Assign maps a series or movie to a profile.
func (s *Service) Assign(ctx context.Context, mediaType string, mediaID, profileID int64) error {
	if mediaType != "series" && mediaType != "movie" {
		return fmt.Errorf("invalid media type %q", mediaType)
	}
	if _, err := s.Get(ctx, profileID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile_assignments (media_type, media_id, profile_id) VALUES (?, ?, ?)
		ON CONFLICT(media_type, media_id) DO UPDATE SET profile_id = excluded.profile_id`,
		mediaType, mediaID, profileID)
	if err != nil {
		return fmt.Errorf("failed to assign profile: %w", err)
	}
	return nil
}

// Unassign removes a media mapping, falling the media back to the default.
func (s *Service) Unassign(ctx context.Context, mediaType string, mediaID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM profile_assignments WHERE media_type = ? AND media_id = ?`, mediaType, mediaID)
	if err != nil {
		return fmt.Errorf("failed to unassign profile: %w", err)
	}
	return nil
}

// ForMedia resolves the effective profile for a series or movie: the
// explicit assignment when present, otherwise the default.
func (s *Service) ForMedia(ctx context.Context, mediaType string, mediaID int64) (*Profile, error) {
	var profileID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT profile_id FROM profile_assignments WHERE media_type = ? AND media_id = ?`,
		mediaType, mediaID).Scan(&profileID)
	if err == sql.ErrNoRows {
		return s.Default(ctx)
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, profileID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var targets string
	var chain sql.NullString
	var forced string
	var isDefault int
	if err := row.Scan(&p.ID, &p.Name, &p.SourceLanguage, &targets, &forced, &chain, &isDefault); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(targets), &p.TargetLanguages); err != nil {
		return nil, fmt.Errorf("failed to decode target languages: %w", err)
	}
	if chain.Valid && chain.String != "" {
		if err := json.Unmarshal([]byte(chain.String), &p.BackendChain); err != nil {
			return nil, fmt.Errorf("failed to decode backend chain: %w", err)
		}
	}
	p.ForcedPreference = ForcedPreference(forced)
	p.IsDefault = isDefault == 1
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
