package providers

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const weightsCacheTTL = 60 * time.Second

// WeightsSnapshot is an immutable view of the scoring configuration.
// ComputeScore is a pure function of a snapshot, the result and the query.
type WeightsSnapshot struct {
	Episode     map[string]int
	Movie       map[string]int
	Modifiers   map[string]int
	FormatBonus int
	MTPenalty   int
	MTThreshold int
	MTEnabled   bool
	TakenAt     time.Time
}

// ScoringStore reads and writes scoring configuration with a 60 s snapshot
// cache so per-result scoring never hits the database.
type ScoringStore struct {
	db     *sql.DB
	logger zerolog.Logger

	// tunables injected from settings at snapshot time
	settings ScoringSettings

	mu       sync.Mutex
	snapshot *WeightsSnapshot
}

// ScoringSettings supplies the runtime tunables merged into each snapshot.
type ScoringSettings interface {
	FormatBonus(ctx context.Context) int
	MTPenalty(ctx context.Context) (enabled bool, penalty, threshold int)
}

// NewScoringStore creates the scoring store.
func NewScoringStore(db *sql.DB, settings ScoringSettings, logger zerolog.Logger) *ScoringStore {
	return &ScoringStore{
		db:       db,
		settings: settings,
		logger:   logger.With().Str("component", "scoring").Logger(),
	}
}

// Invalidate drops the cached snapshot. Wired to settings writes on
// scoring-related keys so stale weights never outlive a config change.
func (s *ScoringStore) Invalidate(string) {
	s.mu.Lock()
	s.snapshot = nil
	s.mu.Unlock()
}

// Snapshot returns the current weights snapshot, refreshing it when the
// cache has expired.
func (s *ScoringStore) Snapshot(ctx context.Context) (*WeightsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot != nil && time.Since(s.snapshot.TakenAt) < weightsCacheTTL {
		return s.snapshot, nil
	}

	snap := &WeightsSnapshot{
		Episode:   make(map[string]int),
		Movie:     make(map[string]int),
		Modifiers: make(map[string]int),
		TakenAt:   time.Now(),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT score_type, weight_key, weight_value FROM scoring_weights`)
	if err != nil {
		return nil, fmt.Errorf("failed to load scoring weights: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var scoreType, key string
		var value int
		if err := rows.Scan(&scoreType, &key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan scoring weight: %w", err)
		}
		switch scoreType {
		case "episode":
			snap.Episode[key] = value
		case "movie":
			snap.Movie[key] = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	modRows, err := s.db.QueryContext(ctx, `SELECT provider, modifier FROM provider_score_modifiers`)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider modifiers: %w", err)
	}
	defer modRows.Close()
	for modRows.Next() {
		var provider string
		var modifier int
		if err := modRows.Scan(&provider, &modifier); err != nil {
			return nil, fmt.Errorf("failed to scan provider modifier: %w", err)
		}
		snap.Modifiers[provider] = modifier
	}
	if err := modRows.Err(); err != nil {
		return nil, err
	}

	if s.settings != nil {
		snap.FormatBonus = s.settings.FormatBonus(ctx)
		snap.MTEnabled, snap.MTPenalty, snap.MTThreshold = s.settings.MTPenalty(ctx)
	}

	s.snapshot = snap
	return snap, nil
}

// SetWeight persists one scoring weight.
func (s *ScoringStore) SetWeight(ctx context.Context, scoreType, key string, value int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scoring_weights (score_type, weight_key, weight_value) VALUES (?, ?, ?)
		ON CONFLICT(score_type, weight_key) DO UPDATE SET weight_value = excluded.weight_value`,
		scoreType, key, value)
	if err != nil {
		return fmt.Errorf("failed to set scoring weight: %w", err)
	}
	s.Invalidate("")
	return nil
}

// SetModifier persists a per-provider score modifier.
func (s *ScoringStore) SetModifier(ctx context.Context, provider string, modifier int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_score_modifiers (provider, modifier) VALUES (?, ?)
		ON CONFLICT(provider) DO UPDATE SET modifier = excluded.modifier`,
		provider, modifier)
	if err != nil {
		return fmt.Errorf("failed to set provider modifier: %w", err)
	}
	s.Invalidate("")
	return nil
}

var (
	seasonEpisodeRe = regexp.MustCompile(`(?i)s(\d{1,2})[\s._-]*e(\d{1,3})`)
	yearRe          = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	releaseGroupRe  = regexp.MustCompile(`(?:^\[([^\]]+)\]|-(\w+)$)`)
	resolutionRe    = regexp.MustCompile(`\b(2160p|1080p|720p|480p)\b`)
	sourceRe        = regexp.MustCompile(`(?i)\b(bluray|blu-ray|bdrip|web-?dl|webrip|hdtv|dvdrip)\b`)
)

// ComputeScore scores a result against a query under a fixed snapshot.
// Pure: identical inputs always produce the identical score.
func ComputeScore(snap *WeightsSnapshot, result SubtitleResult, query VideoQuery) (int, []string) {
	weights := snap.Movie
	if query.IsEpisode {
		weights = snap.Episode
	}

	release := strings.ToLower(result.Release)
	canonicalQuery := CanonicalTitle(query.Title)
	var matched []string
	score := 0

	titleKey := "title"
	if query.IsEpisode {
		titleKey = "series_title"
	}
	if canonicalQuery != "" && strings.Contains(CanonicalTitle(result.Release), canonicalQuery) {
		score += weights[titleKey]
		matched = append(matched, titleKey)
	}

	if query.IsEpisode {
		if m := seasonEpisodeRe.FindStringSubmatch(release); m != nil {
			season, _ := strconv.Atoi(m[1])
			episode, _ := strconv.Atoi(m[2])
			if season == query.Season {
				score += weights["season"]
				matched = append(matched, "season")
			}
			if episode == query.Episode {
				score += weights["episode"]
				matched = append(matched, "episode")
			}
		}
	}

	if query.Year > 0 {
		if m := yearRe.FindString(release); m != "" {
			if y, _ := strconv.Atoi(m); y == query.Year {
				score += weights["year"]
				matched = append(matched, "year")
			}
		}
	}

	if releaseGroupRe.MatchString(result.Release) {
		score += weights["release_group"]
		matched = append(matched, "release_group")
	}
	if sourceRe.MatchString(release) {
		score += weights["source"]
		matched = append(matched, "source")
	}
	if resolutionRe.MatchString(release) {
		score += weights["resolution"]
		matched = append(matched, "resolution")
	}

	score += snap.Modifiers[result.Provider]

	if result.Format == "ass" || result.Format == "ssa" {
		score += snap.FormatBonus
	}

	trust := result.UploaderTrust
	if trust > 20 {
		trust = 20
	}
	if trust < 0 {
		trust = 0
	}
	score += trust

	if snap.MTEnabled {
		if conf := MTConfidence(result); conf >= snap.MTThreshold {
			score -= snap.MTPenalty
		}
	}

	return score, matched
}

// RankResults scores and sorts results in place, best first. Ties break on
// styled format, then provider priority (lower wins), then uploader trust.
func RankResults(snap *WeightsSnapshot, results []SubtitleResult, query VideoQuery, priority func(provider string) int) {
	for i := range results {
		results[i].Score, results[i].MatchedAttributes = ComputeScore(snap, results[i], query)
		results[i].MTConfidence = MTConfidence(results[i])
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		aStyled := a.Format == "ass" || a.Format == "ssa"
		bStyled := b.Format == "ass" || b.Format == "ssa"
		if aStyled != bStyled {
			return aStyled
		}
		pa, pb := priority(a.Provider), priority(b.Provider)
		if pa != pb {
			return pa < pb
		}
		return a.UploaderTrust > b.UploaderTrust
	})
}
