// Package integrations connects Sublarr to external inventory managers
// (Sonarr, Radarr) and media servers (Plex, Jellyfin, Emby).
package integrations

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Instance kinds.
const (
	KindSonarr   = "sonarr"
	KindRadarr   = "radarr"
	KindPlex     = "plex"
	KindJellyfin = "jellyfin"
	KindEmby     = "emby"
)

// PathMapping rewrites one remote path prefix to a local one. Arr instances
// report paths as seen from their own filesystem; the mapping translates
// them before Sublarr touches disk.
type PathMapping struct {
	Remote string `json:"remote"`
	Local  string `json:"local"`
}

// Instance is one configured external service.
type Instance struct {
	ID           int64             `json:"id"`
	Kind         string            `json:"kind"`
	Name         string            `json:"name"`
	URL          string            `json:"url"`
	APIKey       string            `json:"apiKey"`
	Enabled      bool              `json:"enabled"`
	PathMappings []PathMapping     `json:"pathMappings,omitempty"`
	Settings     map[string]string `json:"settings,omitempty"`
}

// ToLocal rewrites an arr-reported path using the instance's mappings.
// The longest matching remote prefix wins; unmapped paths pass through.
func (i *Instance) ToLocal(remote string) string {
	best := -1
	mapped := remote
	for _, m := range i.PathMappings {
		if m.Remote == "" {
			continue
		}
		prefix := strings.TrimSuffix(m.Remote, "/")
		if (remote == prefix || strings.HasPrefix(remote, prefix+"/")) && len(prefix) > best {
			best = len(prefix)
			mapped = strings.TrimSuffix(m.Local, "/") + strings.TrimPrefix(remote, prefix)
		}
	}
	return mapped
}

func validKind(kind string) bool {
	switch kind {
	case KindSonarr, KindRadarr, KindPlex, KindJellyfin, KindEmby:
		return true
	}
	return false
}

// InstanceStore persists integration instances.
type InstanceStore struct {
	db *sql.DB
}

// NewInstanceStore creates the instance store.
func NewInstanceStore(db *sql.DB) *InstanceStore {
	return &InstanceStore{db: db}
}

// Create inserts an instance.
func (s *InstanceStore) Create(ctx context.Context, in Instance) (*Instance, error) {
	if !validKind(in.Kind) {
		return nil, fmt.Errorf("invalid instance kind %q", in.Kind)
	}
	if in.Name == "" || in.URL == "" {
		return nil, fmt.Errorf("instance name and url are required")
	}

	mappings, _ := json.Marshal(in.PathMappings)
	if in.PathMappings == nil {
		mappings = []byte("[]")
	}
	settings, _ := json.Marshal(in.Settings)
	if in.Settings == nil {
		settings = []byte("{}")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO integration_instances (kind, name, url, api_key, enabled, path_mappings, settings)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.Kind, in.Name, strings.TrimSuffix(in.URL, "/"), in.APIKey,
		boolToInt(in.Enabled), string(mappings), string(settings))
	if err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}
	in.ID, _ = res.LastInsertId()
	in.URL = strings.TrimSuffix(in.URL, "/")
	return &in, nil
}

// Update rewrites an instance.
func (s *InstanceStore) Update(ctx context.Context, in Instance) error {
	if !validKind(in.Kind) {
		return fmt.Errorf("invalid instance kind %q", in.Kind)
	}
	mappings, _ := json.Marshal(in.PathMappings)
	if in.PathMappings == nil {
		mappings = []byte("[]")
	}
	settings, _ := json.Marshal(in.Settings)
	if in.Settings == nil {
		settings = []byte("{}")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE integration_instances
		SET kind = ?, name = ?, url = ?, api_key = ?, enabled = ?, path_mappings = ?, settings = ?
		WHERE id = ?`,
		in.Kind, in.Name, strings.TrimSuffix(in.URL, "/"), in.APIKey,
		boolToInt(in.Enabled), string(mappings), string(settings), in.ID)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("instance %d not found", in.ID)
	}
	return nil
}

// Delete removes an instance.
func (s *InstanceStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM integration_instances WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	return nil
}

// Get returns one instance by id.
func (s *InstanceStore) Get(ctx context.Context, id int64) (*Instance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, name, url, api_key, enabled, path_mappings, settings
		FROM integration_instances WHERE id = ?`, id)
	in, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("instance %d not found", id)
	}
	return in, err
}

// List returns instances, optionally filtered by kind. Pass "" for all.
func (s *InstanceStore) List(ctx context.Context, kind string) ([]Instance, error) {
	query := `SELECT id, kind, name, url, api_key, enabled, path_mappings, settings
		FROM integration_instances ORDER BY kind, name`
	args := []any{}
	if kind != "" {
		query = `SELECT id, kind, name, url, api_key, enabled, path_mappings, settings
			FROM integration_instances WHERE kind = ? ORDER BY name`
		args = append(args, kind)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var out []Instance
	for rows.Next() {
		in, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

// ListEnabled returns the enabled instances of one kind.
func (s *InstanceStore) ListEnabled(ctx context.Context, kind string) ([]Instance, error) {
	all, err := s.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, in := range all {
		if in.Enabled {
			out = append(out, in)
		}
	}
	return out, nil
}

func scanInstance(row interface{ Scan(...any) error }) (*Instance, error) {
	var in Instance
	var enabled int
	var mappings, settings string
	if err := row.Scan(&in.ID, &in.Kind, &in.Name, &in.URL, &in.APIKey, &enabled, &mappings, &settings); err != nil {
		return nil, err
	}
	in.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(mappings), &in.PathMappings); err != nil {
		return nil, fmt.Errorf("failed to decode path mappings: %w", err)
	}
	if err := json.Unmarshal([]byte(settings), &in.Settings); err != nil {
		return nil, fmt.Errorf("failed to decode instance settings: %w", err)
	}
	return &in, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
