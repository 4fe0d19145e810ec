package wanted

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/library"
	"github.com/sublarr/sublarr/internal/subtitles"
	"github.com/sublarr/sublarr/internal/testutil"
)

func TestUpsertKeepsIdentityAndStatus(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()
	s := NewStore(tdb.Conn)

	id, created, err := s.Upsert(ctx, Item{
		FilePath: "/tv/e1.mkv", TargetLanguage: "en", MediaType: "episode", MediaID: 1,
		SourceLanguage: "ja",
	})
	require.NoError(t, err)
	assert.True(t, created)

	// Same identity tuple: updates in place, never duplicates.
	id2, created2, err := s.Upsert(ctx, Item{
		FilePath: "/tv/e1.mkv", TargetLanguage: "en", ExistingSub: "srt",
		MediaType: "episode", MediaID: 1, SourceLanguage: "ja",
	})
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, id, id2)

	// A forced item for the same file is a distinct identity.
	_, created3, err := s.Upsert(ctx, Item{
		FilePath: "/tv/e1.mkv", TargetLanguage: "en", SubtitleType: subtitles.TypeForced,
	})
	require.NoError(t, err)
	assert.True(t, created3)

	require.NoError(t, s.MarkFailed(ctx, id, "no results"))
	_, _, err = s.Upsert(ctx, Item{FilePath: "/tv/e1.mkv", TargetLanguage: "en"})
	require.NoError(t, err)

	item, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, item.Status, "re-upsert must not reset status")
	assert.Equal(t, "srt", item.ExistingSub)
}

func TestClaimIsExclusive(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()
	s := NewStore(tdb.Conn)

	id, _, err := s.Upsert(ctx, Item{FilePath: "/tv/e1.mkv", TargetLanguage: "en"})
	require.NoError(t, err)

	ok, err := s.Claim(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Claim(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	item, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSearching, item.Status)
}

func TestTerminalTransitions(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()
	s := NewStore(tdb.Conn)

	id, _, err := s.Upsert(ctx, Item{FilePath: "/tv/e1.mkv", TargetLanguage: "en"})
	require.NoError(t, err)

	require.NoError(t, s.MarkCompleted(ctx, id, "/tv/e1.en.ass", "abc123"))
	item, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, item.Status)
	require.NotNil(t, item.ResultPath)
	assert.Equal(t, "/tv/e1.en.ass", *item.ResultPath)

	// Retry only applies to failed items.
	assert.Error(t, s.Retry(ctx, id))

	require.NoError(t, s.MarkFailed(ctx, id, "provider down"))
	item, _ = s.Get(ctx, id)
	assert.Equal(t, 1, item.Attempts)
	require.NotNil(t, item.Error)

	require.NoError(t, s.Retry(ctx, id))
	item, _ = s.Get(ctx, id)
	assert.Equal(t, StatusPending, item.Status)
	assert.Nil(t, item.Error)
}

func TestSummaryAndFilters(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()
	s := NewStore(tdb.Conn)

	a, _, _ := s.Upsert(ctx, Item{FilePath: "/tv/e1.mkv", TargetLanguage: "en"})
	_, _, _ = s.Upsert(ctx, Item{FilePath: "/tv/e2.mkv", TargetLanguage: "en"})
	_, _, _ = s.Upsert(ctx, Item{FilePath: "/m/f.mkv", TargetLanguage: "de", MediaType: "movie"})
	require.NoError(t, s.MarkFailed(ctx, a, "x"))

	counts, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[StatusPending])
	assert.Equal(t, 1, counts[StatusFailed])

	failed, err := s.List(ctx, Filter{Status: StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "/tv/e1.mkv", failed[0].FilePath)

	movies, err := s.List(ctx, Filter{MediaType: "movie"})
	require.NoError(t, err)
	assert.Len(t, movies, 1)
}

func TestBySeriesJoinsEpisodes(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()
	s := NewStore(tdb.Conn)
	lib := library.NewStore(tdb.Conn, testutil.NopLogger())

	seriesID, err := lib.UpsertSeries(ctx, library.Series{InstanceID: 1, RemoteID: 1, Title: "Show", Path: "/tv/Show"})
	require.NoError(t, err)
	_, err = lib.UpsertEpisode(ctx, library.Episode{SeriesID: seriesID, Season: 1, Episode: 1, FilePath: "/tv/Show/e1.mkv"})
	require.NoError(t, err)

	_, _, err = s.Upsert(ctx, Item{FilePath: "/tv/Show/e1.mkv", TargetLanguage: "en", MediaType: "episode"})
	require.NoError(t, err)
	_, _, err = s.Upsert(ctx, Item{FilePath: "/other/e9.mkv", TargetLanguage: "en", MediaType: "episode"})
	require.NoError(t, err)

	items, err := s.BySeries(ctx, []int64{seriesID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "/tv/Show/e1.mkv", items[0].FilePath)
}

func TestPruneMissingSparesCompleted(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()
	s := NewStore(tdb.Conn)

	gone, _, _ := s.Upsert(ctx, Item{FilePath: "/tv/gone.mkv", TargetLanguage: "en"})
	done, _, _ := s.Upsert(ctx, Item{FilePath: "/tv/done.mkv", TargetLanguage: "en"})
	kept, _, _ := s.Upsert(ctx, Item{FilePath: "/tv/kept.mkv", TargetLanguage: "en"})
	require.NoError(t, s.MarkCompleted(ctx, done, "/tv/done.en.ass", "h"))

	removed, err := s.PruneMissing(ctx, func(path string) bool {
		return path == "/tv/kept.mkv"
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = s.Get(ctx, gone)
	assert.Error(t, err)
	_, err = s.Get(ctx, done)
	assert.NoError(t, err, "completed items keep their record")
	_, err = s.Get(ctx, kept)
	assert.NoError(t, err)
}

func TestRequeueUpgradeCandidates(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()
	s := NewStore(tdb.Conn)

	srtDone, _, err := s.Upsert(ctx, Item{FilePath: "/tv/srt.mkv", TargetLanguage: "en"})
	require.NoError(t, err)
	require.NoError(t, s.MarkCompleted(ctx, srtDone, "/tv/srt.en.srt", "h1"))

	assDone, _, err := s.Upsert(ctx, Item{FilePath: "/tv/ass.mkv", TargetLanguage: "en"})
	require.NoError(t, err)
	require.NoError(t, s.MarkCompleted(ctx, assDone, "/tv/ass.en.ass", "h2"))

	pending, _, err := s.Upsert(ctx, Item{FilePath: "/tv/new.mkv", TargetLanguage: "en"})
	require.NoError(t, err)

	n, err := s.RequeueUpgradeCandidates(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Get(ctx, srtDone)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	got, err = s.Get(ctx, assDone)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	got, err = s.Get(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}
