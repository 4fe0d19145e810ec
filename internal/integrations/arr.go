package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	arrTimeout = 90 * time.Second
	//nolint:gosec // header name constant, not a credential
	apiKeyHeader = "X-Api-Key"
)

// ArrClient talks to a Sonarr or Radarr instance over its v3 REST API.
type ArrClient struct {
	instance   Instance
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewArrClient creates a client for one arr instance.
func NewArrClient(instance Instance, logger zerolog.Logger) (*ArrClient, error) {
	if instance.URL == "" {
		return nil, fmt.Errorf("%s URL is required", instance.Kind)
	}
	if instance.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", instance.Kind)
	}
	instance.URL = strings.TrimSuffix(instance.URL, "/")

	return &ArrClient{
		instance:   instance,
		httpClient: &http.Client{Timeout: arrTimeout},
		logger: logger.With().
			Str("component", instance.Kind+"-client").
			Str("instance", instance.Name).
			Logger(),
	}, nil
}

// Instance returns the instance this client was built from.
func (c *ArrClient) Instance() Instance {
	return c.instance
}

func (c *ArrClient) doJSON(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.instance.URL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.instance.APIKey)

	c.logger.Debug().Str("path", path).Msg("executing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// TestConnection verifies connectivity by fetching system status.
func (c *ArrClient) TestConnection(ctx context.Context) error {
	var status struct {
		Version string `json:"version"`
	}
	if err := c.doJSON(ctx, "/api/v3/system/status", &status); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	c.logger.Info().Str("version", status.Version).Msg("connection test successful")
	return nil
}

// ArrSeries is one show as reported by Sonarr.
type ArrSeries struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Path  string `json:"path"`
	Tags  []int  `json:"tags"`
	Added string `json:"added"`
}

// ArrEpisode is one episode as reported by Sonarr, with its file inlined.
type ArrEpisode struct {
	ID                    int64  `json:"id"`
	SeriesID              int64  `json:"seriesId"`
	SeasonNumber          int    `json:"seasonNumber"`
	EpisodeNumber         int    `json:"episodeNumber"`
	AbsoluteEpisodeNumber *int   `json:"absoluteEpisodeNumber,omitempty"`
	Title                 string `json:"title"`
	HasFile               bool   `json:"hasFile"`
	EpisodeFile           *struct {
		Path      string `json:"path"`
		DateAdded string `json:"dateAdded"`
	} `json:"episodeFile,omitempty"`
}

// ArrMovie is one film as reported by Radarr.
type ArrMovie struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Year      int    `json:"year"`
	HasFile   bool   `json:"hasFile"`
	Tags      []int  `json:"tags"`
	MovieFile *struct {
		Path      string `json:"path"`
		DateAdded string `json:"dateAdded"`
	} `json:"movieFile,omitempty"`
}

// Series fetches every show from a Sonarr instance.
func (c *ArrClient) Series(ctx context.Context) ([]ArrSeries, error) {
	var series []ArrSeries
	if err := c.doJSON(ctx, "/api/v3/series", &series); err != nil {
		return nil, fmt.Errorf("failed to fetch series: %w", err)
	}
	c.logger.Debug().Int("count", len(series)).Msg("fetched series")
	return series, nil
}

// Episodes fetches one show's episodes with their files inlined.
func (c *ArrClient) Episodes(ctx context.Context, seriesID int64) ([]ArrEpisode, error) {
	path := "/api/v3/episode?seriesId=" + strconv.FormatInt(seriesID, 10) + "&includeEpisodeFile=true"
	var episodes []ArrEpisode
	if err := c.doJSON(ctx, path, &episodes); err != nil {
		return nil, fmt.Errorf("failed to fetch episodes: %w", err)
	}
	return episodes, nil
}

// Movies fetches every film from a Radarr instance.
func (c *ArrClient) Movies(ctx context.Context) ([]ArrMovie, error) {
	var movies []ArrMovie
	if err := c.doJSON(ctx, "/api/v3/movie", &movies); err != nil {
		return nil, fmt.Errorf("failed to fetch movies: %w", err)
	}
	c.logger.Debug().Int("count", len(movies)).Msg("fetched movies")
	return movies, nil
}
