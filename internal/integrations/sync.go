package integrations

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/library"
)

// Syncer mirrors arr inventories into the local library store.
type Syncer struct {
	instances *InstanceStore
	library   *library.Store
	logger    zerolog.Logger
}

// NewSyncer creates the inventory syncer.
func NewSyncer(instances *InstanceStore, lib *library.Store, logger zerolog.Logger) *Syncer {
	return &Syncer{
		instances: instances,
		library:   lib,
		logger:    logger.With().Str("component", "sync").Logger(),
	}
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	Series   int `json:"series"`
	Episodes int `json:"episodes"`
	Movies   int `json:"movies"`
	Pruned   int `json:"pruned"`
	Errors   int `json:"errors"`
}

// SyncAll refreshes every enabled Sonarr and Radarr instance. Per-instance
// failures are logged and counted, never fatal; pruning only runs when
// every instance synced cleanly, so a dead arr cannot wipe its inventory.
func (s *Syncer) SyncAll(ctx context.Context) (*SyncResult, error) {
	started := time.Now()
	result := &SyncResult{}

	sonarr, err := s.instances.ListEnabled(ctx, KindSonarr)
	if err != nil {
		return nil, err
	}
	for _, inst := range sonarr {
		if err := s.syncSonarr(ctx, inst, result); err != nil {
			s.logger.Error().Err(err).Str("instance", inst.Name).Msg("Sonarr sync failed")
			result.Errors++
		}
	}

	radarr, err := s.instances.ListEnabled(ctx, KindRadarr)
	if err != nil {
		return nil, err
	}
	for _, inst := range radarr {
		if err := s.syncRadarr(ctx, inst, result); err != nil {
			s.logger.Error().Err(err).Str("instance", inst.Name).Msg("Radarr sync failed")
			result.Errors++
		}
	}

	if result.Errors == 0 && (len(sonarr) > 0 || len(radarr) > 0) {
		pruned, err := s.library.PruneUnseen(ctx, started)
		if err != nil {
			return result, err
		}
		result.Pruned = int(pruned)
	}

	s.logger.Info().
		Int("series", result.Series).
		Int("episodes", result.Episodes).
		Int("movies", result.Movies).
		Int("pruned", result.Pruned).
		Int("errors", result.Errors).
		Dur("elapsed", time.Since(started)).
		Msg("Library sync complete")
	return result, nil
}

// SyncInstance refreshes a single instance by id.
func (s *Syncer) SyncInstance(ctx context.Context, id int64) (*SyncResult, error) {
	inst, err := s.instances.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	result := &SyncResult{}
	switch inst.Kind {
	case KindSonarr:
		err = s.syncSonarr(ctx, *inst, result)
	case KindRadarr:
		err = s.syncRadarr(ctx, *inst, result)
	default:
		err = fmt.Errorf("instance %q is not an inventory manager", inst.Name)
	}
	return result, err
}

func (s *Syncer) syncSonarr(ctx context.Context, inst Instance, result *SyncResult) error {
	client, err := NewArrClient(inst, s.logger)
	if err != nil {
		return err
	}

	series, err := client.Series(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)

	for _, sr := range series {
		localID, err := s.library.UpsertSeries(ctx, library.Series{
			InstanceID:   inst.ID,
			RemoteID:     sr.ID,
			Title:        sr.Title,
			Path:         inst.ToLocal(sr.Path),
			Tags:         tagStrings(sr.Tags),
			LastInfoSync: &now,
		})
		if err != nil {
			return err
		}
		result.Series++

		episodes, err := client.Episodes(ctx, sr.ID)
		if err != nil {
			return err
		}
		for _, ep := range episodes {
			if !ep.HasFile || ep.EpisodeFile == nil {
				continue
			}
			dateAdded := ep.EpisodeFile.DateAdded
			_, err := s.library.UpsertEpisode(ctx, library.Episode{
				SeriesID:        localID,
				Season:          ep.SeasonNumber,
				Episode:         ep.EpisodeNumber,
				AbsoluteEpisode: ep.AbsoluteEpisodeNumber,
				Title:           ep.Title,
				FilePath:        inst.ToLocal(ep.EpisodeFile.Path),
				DateAdded:       &dateAdded,
			})
			if err != nil {
				return err
			}
			result.Episodes++
		}
	}
	return nil
}

func (s *Syncer) syncRadarr(ctx context.Context, inst Instance, result *SyncResult) error {
	client, err := NewArrClient(inst, s.logger)
	if err != nil {
		return err
	}

	movies, err := client.Movies(ctx)
	if err != nil {
		return err
	}
	for _, mv := range movies {
		if !mv.HasFile || mv.MovieFile == nil {
			continue
		}
		year := mv.Year
		dateAdded := mv.MovieFile.DateAdded
		_, err := s.library.UpsertMovie(ctx, library.Movie{
			InstanceID: inst.ID,
			RemoteID:   mv.ID,
			Title:      mv.Title,
			Year:       &year,
			FilePath:   inst.ToLocal(mv.MovieFile.Path),
			Tags:       tagStrings(mv.Tags),
			DateAdded:  &dateAdded,
		})
		if err != nil {
			return err
		}
		result.Movies++
	}
	return nil
}

func tagStrings(tags []int) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, strconv.Itoa(t))
	}
	return out
}
