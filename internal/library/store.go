// Package library maintains the local inventory of series, episodes and
// movies synced from Sonarr/Radarr instances.
package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Series is one show synced from a Sonarr instance.
type Series struct {
	ID           int64    `json:"id"`
	InstanceID   int64    `json:"instanceId"`
	RemoteID     int64    `json:"remoteId"`
	Title        string   `json:"title"`
	Path         string   `json:"path"`
	Tags         []string `json:"tags,omitempty"`
	ProfileID    *int64   `json:"profileId,omitempty"`
	LastInfoSync *string  `json:"lastInfoSync,omitempty"`
	EpisodeCount int      `json:"episodeCount"`
}

// Episode is one episode file under a series.
type Episode struct {
	ID              int64   `json:"id"`
	SeriesID        int64   `json:"seriesId"`
	Season          int     `json:"season"`
	Episode         int     `json:"episode"`
	AbsoluteEpisode *int    `json:"absoluteEpisode,omitempty"`
	Title           string  `json:"title"`
	FilePath        string  `json:"filePath"`
	DateAdded       *string `json:"dateAdded,omitempty"`
}

// Movie is one film synced from a Radarr instance.
type Movie struct {
	ID         int64    `json:"id"`
	InstanceID int64    `json:"instanceId"`
	RemoteID   int64    `json:"remoteId"`
	Title      string   `json:"title"`
	Year       *int     `json:"year,omitempty"`
	FilePath   string   `json:"filePath"`
	Tags       []string `json:"tags,omitempty"`
	ProfileID  *int64   `json:"profileId,omitempty"`
	DateAdded  *string  `json:"dateAdded,omitempty"`
}

// Store persists the media inventory.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates the library store.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger.With().Str("component", "library").Logger()}
}

// UpsertSeries inserts or refreshes a series keyed by (instance, remote id)
// and returns its local id.
func (s *Store) UpsertSeries(ctx context.Context, series Series) (int64, error) {
	tags, _ := json.Marshal(series.Tags)
	if series.Tags == nil {
		tags = []byte("[]")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO series (instance_id, remote_id, title, path, tags, last_info_sync)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance_id, remote_id) DO UPDATE SET
			title = excluded.title,
			path = excluded.path,
			tags = excluded.tags,
			last_info_sync = excluded.last_info_sync,
			updated_at = datetime('now')`,
		series.InstanceID, series.RemoteID, series.Title, series.Path, string(tags), series.LastInfoSync)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert series: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM series WHERE instance_id = ? AND remote_id = ?`,
		series.InstanceID, series.RemoteID).Scan(&id)
	return id, err
}

// UpsertEpisode inserts or refreshes an episode keyed by (series, season,
// episode), stamping last_seen_at for later pruning.
func (s *Store) UpsertEpisode(ctx context.Context, ep Episode) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (series_id, season, episode, absolute_episode, title, file_path, date_added, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(series_id, season, episode) DO UPDATE SET
			absolute_episode = excluded.absolute_episode,
			title = excluded.title,
			file_path = excluded.file_path,
			date_added = excluded.date_added,
			last_seen_at = datetime('now')`,
		ep.SeriesID, ep.Season, ep.Episode, ep.AbsoluteEpisode, ep.Title, ep.FilePath, ep.DateAdded)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert episode: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM episodes WHERE series_id = ? AND season = ? AND episode = ?`,
		ep.SeriesID, ep.Season, ep.Episode).Scan(&id)
	return id, err
}

// UpsertMovie inserts or refreshes a movie keyed by (instance, remote id).
func (s *Store) UpsertMovie(ctx context.Context, m Movie) (int64, error) {
	tags, _ := json.Marshal(m.Tags)
	if m.Tags == nil {
		tags = []byte("[]")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO movies (instance_id, remote_id, title, year, file_path, tags, date_added, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(instance_id, remote_id) DO UPDATE SET
			title = excluded.title,
			year = excluded.year,
			file_path = excluded.file_path,
			tags = excluded.tags,
			date_added = excluded.date_added,
			last_seen_at = datetime('now')`,
		m.InstanceID, m.RemoteID, m.Title, m.Year, m.FilePath, string(tags), m.DateAdded)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert movie: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM movies WHERE instance_id = ? AND remote_id = ?`,
		m.InstanceID, m.RemoteID).Scan(&id)
	return id, err
}

// ListSeries returns every series with its episode count, sorted by title.
func (s *Store) ListSeries(ctx context.Context) ([]Series, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.instance_id, s.remote_id, s.title, s.path, s.tags, s.profile_id, s.last_info_sync,
		       COUNT(e.id)
		FROM series s
		LEFT JOIN episodes e ON e.series_id = s.id
		GROUP BY s.id
		ORDER BY s.title`)
	if err != nil {
		return nil, fmt.Errorf("failed to list series: %w", err)
	}
	defer rows.Close()

	var out []Series
	for rows.Next() {
		sr, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sr)
	}
	return out, rows.Err()
}

// GetSeries returns one series by local id.
func (s *Store) GetSeries(ctx context.Context, id int64) (*Series, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.instance_id, s.remote_id, s.title, s.path, s.tags, s.profile_id, s.last_info_sync,
		       (SELECT COUNT(*) FROM episodes e WHERE e.series_id = s.id)
		FROM series s WHERE s.id = ?`, id)
	sr, err := scanSeries(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("series %d not found", id)
	}
	return sr, err
}

// SeriesByTitle returns the first series matching a title exactly, or nil.
func (s *Store) SeriesByTitle(ctx context.Context, title string) (*Series, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.instance_id, s.remote_id, s.title, s.path, s.tags, s.profile_id, s.last_info_sync, 0
		FROM series s WHERE s.title = ? LIMIT 1`, title)
	sr, err := scanSeries(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sr, err
}

// EpisodesForSeries returns a series' episodes in airing order.
func (s *Store) EpisodesForSeries(ctx context.Context, seriesID int64) ([]Episode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, series_id, season, episode, absolute_episode, title, file_path, date_added
		FROM episodes WHERE series_id = ? ORDER BY season, episode`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		var e Episode
		if err := rows.Scan(&e.ID, &e.SeriesID, &e.Season, &e.Episode, &e.AbsoluteEpisode,
			&e.Title, &e.FilePath, &e.DateAdded); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EpisodeByPath looks an episode up by its video file path.
func (s *Store) EpisodeByPath(ctx context.Context, path string) (*Episode, error) {
	var e Episode
	err := s.db.QueryRowContext(ctx, `
		SELECT id, series_id, season, episode, absolute_episode, title, file_path, date_added
		FROM episodes WHERE file_path = ? LIMIT 1`, path).
		Scan(&e.ID, &e.SeriesID, &e.Season, &e.Episode, &e.AbsoluteEpisode, &e.Title, &e.FilePath, &e.DateAdded)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListMovies returns every movie sorted by title.
func (s *Store) ListMovies(ctx context.Context) ([]Movie, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instance_id, remote_id, title, year, file_path, tags, profile_id, date_added
		FROM movies ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("failed to list movies: %w", err)
	}
	defer rows.Close()

	var out []Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// GetMovie returns one movie by local id.
func (s *Store) GetMovie(ctx context.Context, id int64) (*Movie, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, instance_id, remote_id, title, year, file_path, tags, profile_id, date_added
		FROM movies WHERE id = ?`, id)
	m, err := scanMovie(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("movie %d not found", id)
	}
	return m, err
}

// MovieByPath looks a movie up by its video file path.
func (s *Store) MovieByPath(ctx context.Context, path string) (*Movie, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, instance_id, remote_id, title, year, file_path, tags, profile_id, date_added
		FROM movies WHERE file_path = ? LIMIT 1`, path)
	m, err := scanMovie(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// ChangedEpisodesSince returns episodes added to the arr after the given
// cutoff, for incremental wanted scans.
func (s *Store) ChangedEpisodesSince(ctx context.Context, cutoff time.Time) ([]Episode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, series_id, season, episode, absolute_episode, title, file_path, date_added
		FROM episodes WHERE date_added > ? ORDER BY date_added`, cutoff.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, fmt.Errorf("failed to query changed episodes: %w", err)
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		var e Episode
		if err := rows.Scan(&e.ID, &e.SeriesID, &e.Season, &e.Episode, &e.AbsoluteEpisode,
			&e.Title, &e.FilePath, &e.DateAdded); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ChangedMoviesSince returns movies added after the cutoff.
func (s *Store) ChangedMoviesSince(ctx context.Context, cutoff time.Time) ([]Movie, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instance_id, remote_id, title, year, file_path, tags, profile_id, date_added
		FROM movies WHERE date_added > ? ORDER BY date_added`, cutoff.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, fmt.Errorf("failed to query changed movies: %w", err)
	}
	defer rows.Close()

	var out []Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// PruneUnseen removes episodes and movies whose sync stamp predates the
// cutoff, and series left with no episodes. Run after a full sync so rows
// the arr no longer reports disappear.
func (s *Store) PruneUnseen(ctx context.Context, cutoff time.Time) (int64, error) {
	stamp := cutoff.UTC().Format("2006-01-02 15:04:05")

	var removed int64
	res, err := s.db.ExecContext(ctx, `DELETE FROM episodes WHERE last_seen_at < ?`, stamp)
	if err != nil {
		return 0, fmt.Errorf("failed to prune episodes: %w", err)
	}
	n, _ := res.RowsAffected()
	removed += n

	res, err = s.db.ExecContext(ctx, `DELETE FROM movies WHERE last_seen_at < ?`, stamp)
	if err != nil {
		return 0, fmt.Errorf("failed to prune movies: %w", err)
	}
	n, _ = res.RowsAffected()
	removed += n

	res, err = s.db.ExecContext(ctx,
		`DELETE FROM series WHERE NOT EXISTS (SELECT 1 FROM episodes e WHERE e.series_id = series.id)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prune empty series: %w", err)
	}
	n, _ = res.RowsAffected()
	removed += n

	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Msg("Pruned stale library rows")
	}
	return removed, nil
}

// Counts returns the inventory size per media kind.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, 3)
	for _, table := range []string{"series", "episodes", "movies"} {
		var n int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}

func scanSeries(row rowScanner) (*Series, error) {
	var sr Series
	var tags string
	if err := row.Scan(&sr.ID, &sr.InstanceID, &sr.RemoteID, &sr.Title, &sr.Path, &tags,
		&sr.ProfileID, &sr.LastInfoSync, &sr.EpisodeCount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &sr.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode series tags: %w", err)
	}
	return &sr, nil
}

func scanMovie(row rowScanner) (*Movie, error) {
	var m Movie
	var tags string
	if err := row.Scan(&m.ID, &m.InstanceID, &m.RemoteID, &m.Title, &m.Year, &m.FilePath,
		&tags, &m.ProfileID, &m.DateAdded); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode movie tags: %w", err)
	}
	return &m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
