package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)
	return NewService(tdb.Conn, testutil.NopLogger())
}

func TestRecordAndList(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	score := 87
	require.NoError(t, s.Record(ctx, Entry{
		EventType: EventDownloaded,
		MediaType: "episode", MediaID: 7,
		FilePath: "/tv/e1.mkv", Language: "en",
		Provider: "opensubtitles", Score: &score,
		Data: map[string]any{"release": "Group-1080p"},
	}))
	require.NoError(t, s.Record(ctx, Entry{
		EventType: EventTranslated,
		MediaType: "episode", MediaID: 7,
		FilePath: "/tv/e1.mkv", Language: "de", Backend: "deepl",
	}))

	resp, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, int64(2), resp.TotalCount)

	// Newest first.
	assert.Equal(t, EventTranslated, resp.Items[0].EventType)
	assert.Equal(t, "deepl", resp.Items[0].Backend)
	assert.Equal(t, "full", resp.Items[0].SubtitleType)

	require.NotNil(t, resp.Items[1].Score)
	assert.Equal(t, 87, *resp.Items[1].Score)
	assert.Equal(t, "Group-1080p", resp.Items[1].Data["release"])
}

func TestListFiltersAndPagination(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, Entry{EventType: EventDownloaded, MediaType: "episode", MediaID: int64(i)}))
	}
	require.NoError(t, s.Record(ctx, Entry{EventType: EventFailed, MediaType: "movie", MediaID: 99, Language: "en"}))

	resp, err := s.List(ctx, ListOptions{EventType: EventFailed})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "movie", resp.Items[0].MediaType)

	resp, err = s.List(ctx, ListOptions{Page: 2, PageSize: 4})
	require.NoError(t, err)
	assert.Len(t, resp.Items, 2)
	assert.Equal(t, int64(6), resp.TotalCount)
	assert.Equal(t, 2, resp.TotalPages)
}

func TestForMedia(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Entry{EventType: EventDownloaded, MediaType: "episode", MediaID: 1}))
	require.NoError(t, s.Record(ctx, Entry{EventType: EventUpgraded, MediaType: "episode", MediaID: 1}))
	require.NoError(t, s.Record(ctx, Entry{EventType: EventDownloaded, MediaType: "episode", MediaID: 2}))

	items, err := s.ForMedia(ctx, "episode", 1, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, EventUpgraded, items[0].EventType)
}

func TestRecordRequiresEventType(t *testing.T) {
	s := newTestService(t)
	assert.Error(t, s.Record(context.Background(), Entry{MediaType: "episode"}))
}

func TestPruneAndClear(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Entry{EventType: EventDownloaded, MediaType: "episode", MediaID: 1}))

	// Everything was just written: a cutoff in the past removes nothing.
	removed, err := s.Prune(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = s.Prune(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	require.NoError(t, s.Record(ctx, Entry{EventType: EventDownloaded, MediaType: "episode", MediaID: 2}))
	require.NoError(t, s.Clear(ctx))
	resp, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
}
