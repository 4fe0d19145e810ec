package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/testutil"
)

type fakeScoringSettings struct {
	formatBonus int
	mtEnabled   bool
	mtPenalty   int
	mtThreshold int
}

func (f fakeScoringSettings) FormatBonus(context.Context) int { return f.formatBonus }
func (f fakeScoringSettings) MTPenalty(context.Context) (bool, int, int) {
	return f.mtEnabled, f.mtPenalty, f.mtThreshold
}

func testSnapshot() *WeightsSnapshot {
	return &WeightsSnapshot{
		Episode: map[string]int{
			"series_title": 180, "season": 30, "episode": 30,
			"year": 20, "release_group": 15, "source": 10, "resolution": 10,
		},
		Movie: map[string]int{
			"title": 180, "year": 40, "release_group": 15, "source": 10, "resolution": 10,
		},
		Modifiers:   map[string]int{"jimaku": 5},
		FormatBonus: 25,
		MTPenalty:   40,
		MTThreshold: 70,
		MTEnabled:   true,
	}
}

func TestComputeScoreEpisode(t *testing.T) {
	snap := testSnapshot()
	query := VideoQuery{Title: "Frieren", Season: 1, Episode: 5, IsEpisode: true, TargetLang: "en"}
	result := SubtitleResult{
		Provider:      "opensubtitles",
		Release:       "[SubGroup] Frieren S01E05 1080p WEB-DL",
		Format:        "srt",
		UploaderTrust: 12,
	}

	score, matched := ComputeScore(snap, result, query)
	// series_title + season + episode + release_group + source + resolution + trust
	assert.Equal(t, 180+30+30+15+10+10+12, score)
	assert.ElementsMatch(t,
		[]string{"series_title", "season", "episode", "release_group", "source", "resolution"}, matched)
}

func TestComputeScoreIsPure(t *testing.T) {
	snap := testSnapshot()
	query := VideoQuery{Title: "Frieren", Season: 1, Episode: 5, IsEpisode: true}
	result := SubtitleResult{Release: "Frieren S01E05", Format: "ass", Provider: "jimaku"}

	first, _ := ComputeScore(snap, result, query)
	for i := 0; i < 10; i++ {
		again, _ := ComputeScore(snap, result, query)
		assert.Equal(t, first, again)
	}
}

func TestComputeScoreFormatBonusAndModifier(t *testing.T) {
	snap := testSnapshot()
	query := VideoQuery{Title: "Frieren", Season: 1, Episode: 5, IsEpisode: true}

	srt, _ := ComputeScore(snap, SubtitleResult{Release: "Frieren S01E05", Format: "srt"}, query)
	ass, _ := ComputeScore(snap, SubtitleResult{Release: "Frieren S01E05", Format: "ass"}, query)
	assert.Equal(t, snap.FormatBonus, ass-srt)

	plain, _ := ComputeScore(snap, SubtitleResult{Release: "Frieren S01E05", Format: "srt"}, query)
	boosted, _ := ComputeScore(snap, SubtitleResult{Release: "Frieren S01E05", Format: "srt", Provider: "jimaku"}, query)
	assert.Equal(t, 5, boosted-plain)
}

func TestComputeScoreMTPenalty(t *testing.T) {
	snap := testSnapshot()
	query := VideoQuery{Title: "Frieren", IsEpisode: false}

	clean, _ := ComputeScore(snap, SubtitleResult{Release: "Frieren"}, query)
	mt, _ := ComputeScore(snap, SubtitleResult{Release: "Frieren", MachineTranslated: true, MTConfidence: 95}, query)
	assert.Equal(t, snap.MTPenalty, clean-mt)

	snap.MTEnabled = false
	mtOff, _ := ComputeScore(snap, SubtitleResult{Release: "Frieren", MachineTranslated: true, MTConfidence: 95}, query)
	assert.Equal(t, clean, mtOff)
}

func TestComputeScoreTrustCap(t *testing.T) {
	snap := testSnapshot()
	query := VideoQuery{Title: "Frieren"}

	capped, _ := ComputeScore(snap, SubtitleResult{Release: "Frieren", UploaderTrust: 99}, query)
	atCap, _ := ComputeScore(snap, SubtitleResult{Release: "Frieren", UploaderTrust: 20}, query)
	assert.Equal(t, atCap, capped)
}

func TestRankResultsTieBreaks(t *testing.T) {
	snap := testSnapshot()
	snap.FormatBonus = 0
	query := VideoQuery{Title: "Frieren", Season: 1, Episode: 5, IsEpisode: true}

	results := []SubtitleResult{
		{ID: "srt-low", Provider: "b", Release: "Frieren S01E05", Format: "srt", UploaderTrust: 0},
		{ID: "ass", Provider: "b", Release: "Frieren S01E05", Format: "ass", UploaderTrust: 0},
		{ID: "srt-pri", Provider: "a", Release: "Frieren S01E05", Format: "srt", UploaderTrust: 0},
	}
	priority := func(p string) int {
		if p == "a" {
			return 1
		}
		return 2
	}

	RankResults(snap, results, query, priority)

	assert.Equal(t, "ass", results[0].ID, "styled format wins the tie")
	assert.Equal(t, "srt-pri", results[1].ID, "then lower provider priority")
	assert.Equal(t, "srt-low", results[2].ID)
}

func TestScoringStoreSnapshotAndInvalidate(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()

	store := NewScoringStore(tdb.Conn, fakeScoringSettings{formatBonus: 25}, testutil.NopLogger())

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 180, snap.Episode["series_title"], "migration seeds default weights")
	assert.Equal(t, 25, snap.FormatBonus)

	require.NoError(t, store.SetWeight(ctx, "episode", "series_title", 200))
	snap, err = store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, snap.Episode["series_title"], "write invalidates the cache")

	require.NoError(t, store.SetModifier(ctx, "jimaku", -10))
	snap, err = store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, -10, snap.Modifiers["jimaku"])
}
