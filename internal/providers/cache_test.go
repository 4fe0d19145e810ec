package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/testutil"
)

func TestCacheKeyStability(t *testing.T) {
	a := VideoQuery{Title: "Sousou no Frieren", Season: 1, Episode: 5, IsEpisode: true, TargetLang: "en"}
	b := VideoQuery{Title: "sousou   no FRIEREN!", Season: 1, Episode: 5, IsEpisode: true, TargetLang: "en"}
	assert.Equal(t, CacheKey("jimaku", a), CacheKey("jimaku", b),
		"punctuation and casing must not change the key")

	forced := a
	forced.ForcedOnly = true
	assert.NotEqual(t, CacheKey("jimaku", a), CacheKey("jimaku", forced))
	assert.NotEqual(t, CacheKey("jimaku", a), CacheKey("opensubtitles", a))
}

func TestCachePutGet(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()

	cache := NewCache(tdb.Conn)
	key := CacheKey("mock", VideoQuery{Title: "Frieren", TargetLang: "en"})

	_, hit, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, hit)

	stored := []SubtitleResult{{Provider: "mock", ID: "1", Language: "en", Format: "srt"}}
	require.NoError(t, cache.Put(ctx, key, stored, time.Hour))

	got, hit, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, stored, got)
}

func TestCacheExpiry(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()

	cache := NewCache(tdb.Conn)
	now := time.Now()
	cache.now = func() time.Time { return now }

	key := CacheKey("mock", VideoQuery{Title: "Frieren"})
	require.NoError(t, cache.Put(ctx, key, []SubtitleResult{{ID: "1"}}, time.Hour))

	now = now.Add(2 * time.Hour)
	_, hit, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, hit, "expired entry is a miss")

	// The lazy delete removed the row; purge finds nothing left.
	purged, err := cache.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged)
}

func TestCachePurgeExpired(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()

	cache := NewCache(tdb.Conn)
	now := time.Now()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Put(ctx, "stale", []SubtitleResult{{ID: "1"}}, time.Minute))
	require.NoError(t, cache.Put(ctx, "fresh", []SubtitleResult{{ID: "2"}}, time.Hour))

	now = now.Add(30 * time.Minute)
	purged, err := cache.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, hit, err := cache.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestBlacklistRoundTrip(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()

	bl := NewBlacklist(tdb.Conn)
	require.NoError(t, bl.Add(ctx, "mock", "deadbeef", "desynced timing"))
	require.NoError(t, bl.Add(ctx, "mock", "deadbeef", "updated reason"))

	entries, err := bl.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1, "re-adding the same pair updates in place")
	assert.Equal(t, "updated reason", entries[0].Reason)

	hashes, err := bl.Hashes(ctx)
	require.NoError(t, err)
	assert.True(t, hashes["deadbeef"])
	assert.True(t, hashes["mock|deadbeef"])

	require.NoError(t, bl.Remove(ctx, entries[0].ID))
	entries, err = bl.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
