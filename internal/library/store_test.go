package library

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/testutil"
)

func newTestStore(t *testing.T) (*Store, *testutil.TestDB) {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	return NewStore(tdb.Conn, testutil.NopLogger()), tdb
}

func TestUpsertSeriesIsIdempotent(t *testing.T) {
	s, tdb := newTestStore(t)
	defer tdb.Close()
	ctx := context.Background()

	id1, err := s.UpsertSeries(ctx, Series{InstanceID: 1, RemoteID: 100, Title: "Frieren", Path: "/anime/Frieren"})
	require.NoError(t, err)

	id2, err := s.UpsertSeries(ctx, Series{InstanceID: 1, RemoteID: 100, Title: "Frieren: Beyond Journey's End", Path: "/anime/Frieren"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "same instance+remote id keeps the same row")

	got, err := s.GetSeries(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "Frieren: Beyond Journey's End", got.Title)
}

func TestSameRemoteIDOnDifferentInstances(t *testing.T) {
	s, tdb := newTestStore(t)
	defer tdb.Close()
	ctx := context.Background()

	id1, err := s.UpsertSeries(ctx, Series{InstanceID: 1, RemoteID: 100, Title: "A", Path: "/a"})
	require.NoError(t, err)
	id2, err := s.UpsertSeries(ctx, Series{InstanceID: 2, RemoteID: 100, Title: "A", Path: "/a"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestEpisodeUpsertAndLookup(t *testing.T) {
	s, tdb := newTestStore(t)
	defer tdb.Close()
	ctx := context.Background()

	seriesID, err := s.UpsertSeries(ctx, Series{InstanceID: 1, RemoteID: 100, Title: "Frieren", Path: "/anime/Frieren"})
	require.NoError(t, err)

	abs := 5
	epID, err := s.UpsertEpisode(ctx, Episode{
		SeriesID: seriesID, Season: 1, Episode: 5, AbsoluteEpisode: &abs,
		Title: "Phantoms of the Dead", FilePath: "/anime/Frieren/S01E05.mkv",
	})
	require.NoError(t, err)

	// Re-import with a new file path (re-downloaded release).
	epID2, err := s.UpsertEpisode(ctx, Episode{
		SeriesID: seriesID, Season: 1, Episode: 5, AbsoluteEpisode: &abs,
		Title: "Phantoms of the Dead", FilePath: "/anime/Frieren/S01E05.v2.mkv",
	})
	require.NoError(t, err)
	assert.Equal(t, epID, epID2)

	ep, err := s.EpisodeByPath(ctx, "/anime/Frieren/S01E05.v2.mkv")
	require.NoError(t, err)
	require.NotNil(t, ep)
	assert.Equal(t, 5, ep.Episode)

	missing, err := s.EpisodeByPath(ctx, "/nope.mkv")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListSeriesIncludesEpisodeCounts(t *testing.T) {
	s, tdb := newTestStore(t)
	defer tdb.Close()
	ctx := context.Background()

	seriesID, err := s.UpsertSeries(ctx, Series{InstanceID: 1, RemoteID: 100, Title: "B Show", Path: "/b"})
	require.NoError(t, err)
	_, err = s.UpsertSeries(ctx, Series{InstanceID: 1, RemoteID: 101, Title: "A Show", Path: "/a"})
	require.NoError(t, err)

	for ep := 1; ep <= 3; ep++ {
		_, err := s.UpsertEpisode(ctx, Episode{SeriesID: seriesID, Season: 1, Episode: ep, FilePath: "/b/ep.mkv"})
		require.NoError(t, err)
	}

	list, err := s.ListSeries(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A Show", list[0].Title, "sorted by title")
	assert.Equal(t, 0, list[0].EpisodeCount)
	assert.Equal(t, 3, list[1].EpisodeCount)
}

func TestMovieRoundTrip(t *testing.T) {
	s, tdb := newTestStore(t)
	defer tdb.Close()
	ctx := context.Background()

	year := 2021
	id, err := s.UpsertMovie(ctx, Movie{
		InstanceID: 1, RemoteID: 7, Title: "Belle", Year: &year,
		FilePath: "/movies/Belle (2021)/Belle.mkv", Tags: []string{"anime"},
	})
	require.NoError(t, err)

	m, err := s.GetMovie(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Belle", m.Title)
	require.NotNil(t, m.Year)
	assert.Equal(t, 2021, *m.Year)
	assert.Equal(t, []string{"anime"}, m.Tags)

	byPath, err := s.MovieByPath(ctx, "/movies/Belle (2021)/Belle.mkv")
	require.NoError(t, err)
	require.NotNil(t, byPath)
	assert.Equal(t, id, byPath.ID)
}

func TestChangedEpisodesSince(t *testing.T) {
	s, tdb := newTestStore(t)
	defer tdb.Close()
	ctx := context.Background()

	seriesID, err := s.UpsertSeries(ctx, Series{InstanceID: 1, RemoteID: 100, Title: "Show", Path: "/s"})
	require.NoError(t, err)

	oldStamp := "2024-01-01 00:00:00"
	newStamp := "2026-06-01 00:00:00"
	_, err = s.UpsertEpisode(ctx, Episode{SeriesID: seriesID, Season: 1, Episode: 1, FilePath: "/s/e1.mkv", DateAdded: &oldStamp})
	require.NoError(t, err)
	_, err = s.UpsertEpisode(ctx, Episode{SeriesID: seriesID, Season: 1, Episode: 2, FilePath: "/s/e2.mkv", DateAdded: &newStamp})
	require.NoError(t, err)

	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	changed, err := s.ChangedEpisodesSince(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "/s/e2.mkv", changed[0].FilePath)
}

func TestPruneUnseen(t *testing.T) {
	s, tdb := newTestStore(t)
	defer tdb.Close()
	ctx := context.Background()

	seriesID, err := s.UpsertSeries(ctx, Series{InstanceID: 1, RemoteID: 100, Title: "Show", Path: "/s"})
	require.NoError(t, err)
	_, err = s.UpsertEpisode(ctx, Episode{SeriesID: seriesID, Season: 1, Episode: 1, FilePath: "/s/e1.mkv"})
	require.NoError(t, err)
	_, err = s.UpsertMovie(ctx, Movie{InstanceID: 1, RemoteID: 7, Title: "Film", FilePath: "/m/f.mkv"})
	require.NoError(t, err)

	// Nothing predates a cutoff in the past.
	removed, err := s.PruneUnseen(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)

	// A future cutoff sweeps everything, series included.
	removed, err = s.PruneUnseen(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	list, err := s.ListSeries(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
