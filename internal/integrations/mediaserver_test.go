package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/testutil"
)

type fakeServer struct {
	name     string
	err      error
	refreshN int
}

func (f *fakeServer) Name() string { return f.name }

func (f *fakeServer) Refresh(ctx context.Context, path, kind string) error {
	f.refreshN++
	return f.err
}

func (f *fakeServer) TestConnection(ctx context.Context) error { return f.err }

func newTestManager(t *testing.T, servers map[string]*fakeServer) (*MediaServerManager, *InstanceStore, *testutil.TestDB) {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	store := NewInstanceStore(tdb.Conn)
	m := NewMediaServerManager(store, testutil.NopLogger())
	m.newServer = func(inst Instance, _ zerolog.Logger) (MediaServer, error) {
		if s, ok := servers[inst.Name]; ok {
			return s, nil
		}
		return nil, errors.New("no such server")
	}
	return m, store, tdb
}

func TestRefreshAllCollectsOutcomes(t *testing.T) {
	servers := map[string]*fakeServer{
		"plex":     {name: "plex"},
		"jellyfin": {name: "jellyfin", err: errors.New("offline")},
	}
	m, store, tdb := newTestManager(t, servers)
	defer tdb.Close()
	ctx := context.Background()

	_, err := store.Create(ctx, Instance{Kind: KindPlex, Name: "plex", URL: "http://p", APIKey: "t", Enabled: true})
	require.NoError(t, err)
	_, err = store.Create(ctx, Instance{Kind: KindJellyfin, Name: "jellyfin", URL: "http://j", APIKey: "t", Enabled: true})
	require.NoError(t, err)

	summary := m.RefreshAll(ctx, "/mnt/tv/Frieren/S01E01.mkv", "episode")
	require.Len(t, summary.Outcomes, 2)
	assert.Equal(t, 1, summary.Failed())
	assert.Equal(t, 1, servers["plex"].refreshN)
	assert.Equal(t, 1, servers["jellyfin"].refreshN)
}

func TestRefreshSkipsDisabledInstances(t *testing.T) {
	servers := map[string]*fakeServer{"plex": {name: "plex"}}
	m, store, tdb := newTestManager(t, servers)
	defer tdb.Close()
	ctx := context.Background()

	_, err := store.Create(ctx, Instance{Kind: KindPlex, Name: "plex", URL: "http://p", APIKey: "t", Enabled: false})
	require.NoError(t, err)

	summary := m.RefreshAll(ctx, "/x.mkv", "movie")
	assert.Empty(t, summary.Outcomes)
	assert.Zero(t, servers["plex"].refreshN)
}

func TestRefreshBreakerShortCircuits(t *testing.T) {
	broken := &fakeServer{name: "plex", err: errors.New("offline")}
	m, store, tdb := newTestManager(t, map[string]*fakeServer{"plex": broken})
	defer tdb.Close()
	ctx := context.Background()

	_, err := store.Create(ctx, Instance{Kind: KindPlex, Name: "plex", URL: "http://p", APIKey: "t", Enabled: true})
	require.NoError(t, err)

	// Default threshold is 3: calls 4 and 5 must not reach the server.
	for i := 0; i < 5; i++ {
		m.RefreshAll(ctx, "/x.mkv", "movie")
	}
	assert.Equal(t, 3, broken.refreshN)

	summary := m.RefreshAll(ctx, "/x.mkv", "movie")
	require.Len(t, summary.Outcomes, 1)
	assert.True(t, summary.Outcomes[0].Skipped)
	assert.Zero(t, summary.Failed(), "breaker skips are not failures")
}

func TestPlexRefreshScopedToSection(t *testing.T) {
	var refreshed string
	mux := http.NewServeMux()
	mux.HandleFunc("/library/sections", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "plex-token", r.Header.Get("X-Plex-Token"))
		json.NewEncoder(w).Encode(map[string]any{
			"MediaContainer": map[string]any{
				"Directory": []map[string]any{
					{"key": "1", "type": "movie", "Location": []map[string]string{{"path": "/movies"}}},
					{"key": "2", "type": "show", "Location": []map[string]string{{"path": "/tv"}}},
				},
			},
		})
	})
	mux.HandleFunc("/library/sections/2/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshed = r.URL.Query().Get("path")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := newPlexClient(Instance{Kind: KindPlex, Name: "plex", URL: srv.URL, APIKey: "plex-token"}, testutil.NopLogger())
	require.NoError(t, err)

	require.NoError(t, client.Refresh(context.Background(), "/tv/Frieren/S01E01.mkv", "episode"))
	assert.Equal(t, "/tv/Frieren/S01E01.mkv", refreshed)

	assert.Error(t, client.Refresh(context.Background(), "/music/track.flac", "episode"),
		"path outside every section")
}

func TestEmbyRefreshPostsMediaUpdate(t *testing.T) {
	var got struct {
		Updates []struct {
			Path       string `json:"Path"`
			UpdateType string `json:"UpdateType"`
		} `json:"Updates"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Library/Media/Updated", r.URL.Path)
		assert.Equal(t, "emby-token", r.Header.Get("X-Emby-Token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	client, err := newEmbyClient(Instance{Kind: KindJellyfin, Name: "jf", URL: srv.URL, APIKey: "emby-token"}, testutil.NopLogger())
	require.NoError(t, err)

	require.NoError(t, client.Refresh(context.Background(), "/tv/ep.mkv", "episode"))
	require.Len(t, got.Updates, 1)
	assert.Equal(t, "/tv/ep.mkv", got.Updates[0].Path)
	assert.Equal(t, "Modified", got.Updates[0].UpdateType)
}
