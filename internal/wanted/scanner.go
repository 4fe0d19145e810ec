package wanted

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/language"
	"github.com/sublarr/sublarr/internal/library"
	"github.com/sublarr/sublarr/internal/media"
	"github.com/sublarr/sublarr/internal/profiles"
	"github.com/sublarr/sublarr/internal/settings"
	"github.com/sublarr/sublarr/internal/subtitles"
)

// Bookkeeping keys, persisted next to the runtime settings.
const (
	keyLastScan  = "_last_scan_timestamp"
	keyScanCycle = "_scan_cycle"
)

const defaultProbeConcurrency = 4

// Scanner walks the library and materializes wanted items from language
// profiles.
type Scanner struct {
	store    *Store
	library  *library.Store
	profiles *profiles.Service
	prober   *media.Prober
	settings *settings.Service
	bus      *events.Bus
	logger   zerolog.Logger

	ProbeConcurrency int64

	// OnItemsCreated runs after a scan that created items, with their ids.
	// Wired to the auto-extract/auto-translate chain.
	OnItemsCreated func(ids []int64)

	mu      sync.Mutex
	running bool
}

// NewScanner creates the wanted scanner.
func NewScanner(store *Store, lib *library.Store, prof *profiles.Service, prober *media.Prober,
	set *settings.Service, bus *events.Bus, logger zerolog.Logger) *Scanner {
	return &Scanner{
		store:            store,
		library:          lib,
		profiles:         prof,
		prober:           prober,
		settings:         set,
		bus:              bus,
		logger:           logger.With().Str("component", "wanted-scanner").Logger(),
		ProbeConcurrency: defaultProbeConcurrency,
	}
}

// ScanResult summarizes one scan.
type ScanResult struct {
	Full    bool `json:"full"`
	Scanned int  `json:"scanned"`
	Created int  `json:"created"`
	Pruned  int  `json:"pruned"`
	Errors  int  `json:"errors"`
}

type candidate struct {
	mediaType string
	mediaID   int64
	profileBy string // media type used for profile resolution
	profileID int64  // series id for episodes, movie id for movies
	filePath  string
}

// Scan finds missing subtitles. Incremental scans only visit media added
// since the previous run; every Nth cycle (and any forced run) is a full
// scan, which alone prunes items whose video vanished.
func (s *Scanner) Scan(ctx context.Context, full bool) (*ScanResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug().Msg("Scan already running, skipping")
		return &ScanResult{}, nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	started := time.Now()

	cycle := s.settings.GetInt(ctx, keyScanCycle) + 1
	every := s.settings.GetInt(ctx, settings.KeyFullScanEvery)
	if !full && every > 0 && cycle%every == 0 {
		full = true
	}
	_ = s.settings.Set(ctx, keyScanCycle, strconv.Itoa(cycle))

	candidates, err := s.collect(ctx, full)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{Full: full, Scanned: len(candidates)}
	var createdIDs []int64
	var resultMu sync.Mutex

	processed := 0
	lastProgress := time.Time{}
	progress := func() {
		resultMu.Lock()
		processed++
		n := processed
		// At most one progress event per second.
		emit := s.bus != nil && time.Since(lastProgress) >= time.Second
		if emit {
			lastProgress = time.Now()
		}
		resultMu.Unlock()
		if emit {
			s.bus.Emit(events.EventWantedScanProgress, map[string]any{
				"processed": n,
				"total":     len(candidates),
			})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(max64(s.ProbeConcurrency, 1))
	for _, cand := range candidates {
		cand := cand
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			ids, pruned, err := s.scanOne(gctx, cand)
			resultMu.Lock()
			if err != nil {
				result.Errors++
				s.logger.Warn().Err(err).Str("path", cand.filePath).Msg("Scan failed for file")
			} else {
				createdIDs = append(createdIDs, ids...)
				result.Pruned += int(pruned)
			}
			resultMu.Unlock()
			progress()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	result.Created = len(createdIDs)

	if full {
		pruned, err := s.store.PruneMissing(ctx, func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		})
		if err != nil {
			return result, err
		}
		result.Pruned += int(pruned)
	}

	_ = s.settings.Set(ctx, keyLastScan, started.UTC().Format(time.RFC3339))

	if s.bus != nil {
		s.bus.Emit(events.EventWantedScanComplete, map[string]any{
			"full":    full,
			"scanned": result.Scanned,
			"created": result.Created,
			"pruned":  result.Pruned,
		})
	}
	s.logger.Info().
		Bool("full", full).
		Int("scanned", result.Scanned).
		Int("created", result.Created).
		Int("pruned", result.Pruned).
		Dur("elapsed", time.Since(started)).
		Msg("Wanted scan complete")

	if len(createdIDs) > 0 && s.OnItemsCreated != nil {
		s.OnItemsCreated(createdIDs)
	}
	return result, nil
}

func (s *Scanner) collect(ctx context.Context, full bool) ([]candidate, error) {
	var cutoff time.Time
	if !full {
		if raw := s.settings.Get(ctx, keyLastScan); raw != "" {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				cutoff = t
			}
		}
	}

	var out []candidate
	if full || cutoff.IsZero() {
		series, err := s.library.ListSeries(ctx)
		if err != nil {
			return nil, err
		}
		for _, sr := range series {
			episodes, err := s.library.EpisodesForSeries(ctx, sr.ID)
			if err != nil {
				return nil, err
			}
			for _, ep := range episodes {
				out = append(out, candidate{
					mediaType: "episode", mediaID: ep.ID,
					profileBy: "series", profileID: sr.ID,
					filePath: ep.FilePath,
				})
			}
		}
		movies, err := s.library.ListMovies(ctx)
		if err != nil {
			return nil, err
		}
		for _, m := range movies {
			out = append(out, candidate{
				mediaType: "movie", mediaID: m.ID,
				profileBy: "movie", profileID: m.ID,
				filePath: m.FilePath,
			})
		}
		return out, nil
	}

	episodes, err := s.library.ChangedEpisodesSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	for _, ep := range episodes {
		out = append(out, candidate{
			mediaType: "episode", mediaID: ep.ID,
			profileBy: "series", profileID: ep.SeriesID,
			filePath: ep.FilePath,
		})
	}
	movies, err := s.library.ChangedMoviesSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	for _, m := range movies {
		out = append(out, candidate{
			mediaType: "movie", mediaID: m.ID,
			profileBy: "movie", profileID: m.ID,
			filePath: m.FilePath,
		})
	}
	return out, nil
}

// scanOne reconciles one video against its profile: a styled target subtitle
// on disk satisfies the triple, so no item is created and any queued one is
// dropped. An SRT stays queued as an upgrade candidate, an embedded target
// stream as an extraction candidate. Returns the ids of newly created items
// and the number of satisfied ones pruned.
func (s *Scanner) scanOne(ctx context.Context, cand candidate) ([]int64, int64, error) {
	profile, err := s.profiles.ForMedia(ctx, cand.profileBy, cand.profileID)
	if err != nil {
		return nil, 0, err
	}
	if profile == nil {
		return nil, 0, nil
	}

	// One probe per file; a probe failure degrades to external-file checks.
	var probe *media.ProbeResult
	if s.prober != nil {
		probe, err = s.prober.Probe(ctx, cand.filePath)
		if err != nil {
			s.logger.Debug().Err(err).Str("path", cand.filePath).Msg("Probe failed, continuing without stream info")
			probe = nil
		}
	}

	var created []int64
	var pruned int64
	for _, target := range profile.TargetLanguages {
		found := subtitles.FindExisting(cand.filePath, target, subtitles.TypeFull)
		if found != nil && found.Format.IsStyled() {
			n, err := s.store.DeleteSatisfied(ctx, cand.filePath, language.Canonical(target), subtitles.TypeFull)
			if err != nil {
				return created, pruned, err
			}
			pruned += n
		} else {
			existingSub := "none"
			if found != nil {
				existingSub = string(found.Format)
			} else if probe != nil {
				if stream := probe.SubtitleInLanguage(target, language.Equal); stream != nil && stream.IsTextual() && !stream.Forced {
					existingSub = "embedded"
				}
			}

			id, isNew, err := s.store.Upsert(ctx, Item{
				FilePath:       cand.filePath,
				TargetLanguage: language.Canonical(target),
				SubtitleType:   subtitles.TypeFull,
				ExistingSub:    existingSub,
				MediaType:      cand.mediaType,
				MediaID:        cand.mediaID,
				SourceLanguage: profile.SourceLanguage,
			})
			if err != nil {
				return created, pruned, err
			}
			if isNew {
				created = append(created, id)
				s.emitItemAdded(id, cand, target, subtitles.TypeFull)
			}
		}

		// "separate" wants a dedicated forced track; "auto" relies on
		// embedded forced streams and creates nothing.
		if profile.ForcedPreference != profiles.ForcedSeparate {
			continue
		}
		forcedFound := subtitles.FindExisting(cand.filePath, target, subtitles.TypeForced)
		if forcedFound != nil && forcedFound.Format.IsStyled() {
			n, err := s.store.DeleteSatisfied(ctx, cand.filePath, language.Canonical(target), subtitles.TypeForced)
			if err != nil {
				return created, pruned, err
			}
			pruned += n
			continue
		}
		forcedExisting := "none"
		if forcedFound != nil {
			forcedExisting = string(forcedFound.Format)
		}
		fid, isNew, err := s.store.Upsert(ctx, Item{
			FilePath:       cand.filePath,
			TargetLanguage: language.Canonical(target),
			SubtitleType:   subtitles.TypeForced,
			ExistingSub:    forcedExisting,
			MediaType:      cand.mediaType,
			MediaID:        cand.mediaID,
			SourceLanguage: profile.SourceLanguage,
		})
		if err != nil {
			return created, pruned, err
		}
		if isNew {
			created = append(created, fid)
			s.emitItemAdded(fid, cand, target, subtitles.TypeForced)
		}
	}
	return created, pruned, nil
}

func (s *Scanner) emitItemAdded(id int64, cand candidate, target string, subType subtitles.SubtitleType) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(events.EventWantedItemAdded, map[string]any{
		"item_id":         id,
		"file_path":       cand.filePath,
		"target_language": language.Canonical(target),
		"subtitle_type":   string(subType),
		"media_type":      cand.mediaType,
		"media_id":        cand.mediaID,
	})
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
