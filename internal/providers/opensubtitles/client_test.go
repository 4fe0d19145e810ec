package opensubtitles

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/providers"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, APIKey: "test-key"}, zerolog.Nop())
	return c, srv
}

func TestSearchBuildsEpisodeQuery(t *testing.T) {
	var gotQuery map[string]string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("Api-Key"))
		q := r.URL.Query()
		gotQuery = map[string]string{
			"query":          q.Get("query"),
			"languages":      q.Get("languages"),
			"season_number":  q.Get("season_number"),
			"episode_number": q.Get("episode_number"),
		}
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	})

	_, err := c.Search(context.Background(), providers.VideoQuery{
		Title: "Frieren", Season: 1, Episode: 5, IsEpisode: true, TargetLang: "en",
	})
	require.NoError(t, err)
	assert.Equal(t, "Frieren", gotQuery["query"])
	assert.Equal(t, "en", gotQuery["languages"])
	assert.Equal(t, "1", gotQuery["season_number"])
	assert.Equal(t, "5", gotQuery["episode_number"])
}

func TestSearchForcedOnlyRequestsForeignParts(t *testing.T) {
	var foreign string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		foreign = r.URL.Query().Get("foreign_parts_only")
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	})

	_, err := c.Search(context.Background(), providers.VideoQuery{
		Title: "Frieren", TargetLang: "en", ForcedOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "only", foreign)
}

func TestSearchMapsAttributes(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{
				"id": "123",
				"attributes": map[string]any{
					"language":           "en",
					"release":            "Frieren.S01E05.1080p",
					"foreign_parts_only": true,
					"ai_translated":      true,
					"from_trusted":       true,
					"ratings":            10.0,
					"uploader":           map[string]any{"name": "someone", "rank": "trusted member"},
					"files": []map[string]any{
						{"file_id": 456, "file_name": "frieren.s01e05.srt"},
					},
				},
			},
			{
				// Results with no files are unusable and skipped.
				"id":         "789",
				"attributes": map[string]any{"language": "en", "files": []any{}},
			},
		}})
	})

	results, err := c.Search(context.Background(), providers.VideoQuery{Title: "Frieren", TargetLang: "en"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "opensubtitles", r.Provider)
	assert.Equal(t, "123", r.ID)
	assert.Equal(t, "srt", r.Format)
	assert.Equal(t, "456", r.DownloadURL)
	assert.True(t, r.Forced)
	assert.True(t, r.MachineTranslated)
	assert.Equal(t, 80, r.MTConfidence, "ai_translated maps to moderate confidence")
	assert.Equal(t, 20, r.UploaderTrust, "trusted uploader with top ratings caps out")
}

func TestUploaderTrust(t *testing.T) {
	assert.Equal(t, 0, uploaderTrust(false, "", 0))
	assert.Equal(t, 10, uploaderTrust(true, "", 0))
	assert.Equal(t, 16, uploaderTrust(true, "trusted member", 0))
	assert.Equal(t, 20, uploaderTrust(true, "administrator", 10))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   providers.ErrorKind
	}{
		{http.StatusUnauthorized, providers.ErrAuth},
		{http.StatusForbidden, providers.ErrAuth},
		{http.StatusTooManyRequests, providers.ErrRateLimit},
		{http.StatusInternalServerError, providers.ErrNetwork},
	}
	for _, tt := range tests {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if tt.status == http.StatusTooManyRequests {
				w.Header().Set("Retry-After", "42")
			}
			w.WriteHeader(tt.status)
		})

		_, err := c.Search(context.Background(), providers.VideoQuery{Title: "x", TargetLang: "en"})
		require.Error(t, err)
		assert.True(t, providers.IsProviderError(err, tt.kind), "status %d should map to %s", tt.status, tt.kind)

		if tt.kind == providers.ErrRateLimit {
			var pe *providers.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, 42, pe.RetryAfter)
		}
	}
}

func TestDownloadTwoStep(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(456), body["file_id"])
		json.NewEncoder(w).Encode(map[string]string{
			"link":      srv.URL + "/files/sub",
			"file_name": "frieren.s01e05.srt",
		})
	})
	mux.HandleFunc("/files/sub", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("1\n00:00:01,000 --> 00:00:02,000\nhello\n"))
	})

	c := New(Config{BaseURL: srv.URL, APIKey: "test-key"}, zerolog.Nop())

	dest := t.TempDir()
	path, err := c.Download(context.Background(),
		providers.SubtitleResult{Provider: "opensubtitles", ID: "123", DownloadURL: "456", Format: "srt"}, dest)
	require.NoError(t, err)
	assert.FileExists(t, path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "hello")
}
