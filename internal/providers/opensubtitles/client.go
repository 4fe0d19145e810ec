// Package opensubtitles implements the OpenSubtitles REST v1 provider.
package opensubtitles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/providers"
)

const (
	defaultBaseURL = "https://api.opensubtitles.com/api/v1"
	userAgent      = "Sublarr v1"
)

// Client is the OpenSubtitles REST v1 provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Config holds OpenSubtitles provider configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New creates an OpenSubtitles client.
func New(cfg Config, logger zerolog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "opensubtitles").Logger(),
	}
}

// Name implements providers.Provider.
func (c *Client) Name() string { return "opensubtitles" }

// Languages implements providers.Provider; OpenSubtitles serves any language.
func (c *Client) Languages() []string { return nil }

// ConfigFields implements providers.Provider.
func (c *Client) ConfigFields() []providers.ConfigField {
	return []providers.ConfigField{
		{Name: "api_key", Label: "API Key", Type: providers.FieldSecret,
			Help: "OpenSubtitles consumer API key"},
		{Name: "base_url", Label: "Base URL", Type: providers.FieldString, Default: defaultBaseURL},
	}
}

type searchResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Language          string  `json:"language"`
			Release           string  `json:"release"`
			ForeignPartsOnly  bool    `json:"foreign_parts_only"`
			HearingImpaired   bool    `json:"hearing_impaired"`
			AITranslated      bool    `json:"ai_translated"`
			MachineTranslated bool    `json:"machine_translated"`
			FromTrusted       bool    `json:"from_trusted"`
			Ratings           float64 `json:"ratings"`
			Uploader          struct {
				Name string `json:"name"`
				Rank string `json:"rank"`
			} `json:"uploader"`
			Files []struct {
				FileID   int64  `json:"file_id"`
				FileName string `json:"file_name"`
			} `json:"files"`
		} `json:"attributes"`
	} `json:"data"`
}

// Search implements providers.Provider.
func (c *Client) Search(ctx context.Context, query providers.VideoQuery) ([]providers.SubtitleResult, error) {
	params := url.Values{}
	params.Set("query", query.Title)
	params.Set("languages", query.Language())
	if query.IsEpisode {
		params.Set("season_number", strconv.Itoa(query.Season))
		params.Set("episode_number", strconv.Itoa(query.Episode))
	} else if query.Year > 0 {
		params.Set("year", strconv.Itoa(query.Year))
	}
	if query.ForcedOnly {
		// Native forced filtering: only foreign-parts tracks come back.
		params.Set("foreign_parts_only", "only")
	}

	var resp searchResponse
	if err := c.getJSON(ctx, "/subtitles?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	results := make([]providers.SubtitleResult, 0, len(resp.Data))
	for _, item := range resp.Data {
		if len(item.Attributes.Files) == 0 {
			continue
		}
		attr := item.Attributes

		mtConfidence := 0
		if attr.MachineTranslated {
			mtConfidence = 95
		} else if attr.AITranslated {
			mtConfidence = 80
		}

		ext := "srt"
		if name := attr.Files[0].FileName; strings.HasSuffix(strings.ToLower(name), ".ass") {
			ext = "ass"
		}

		results = append(results, providers.SubtitleResult{
			Provider:          c.Name(),
			ID:                item.ID,
			Language:          attr.Language,
			Format:            ext,
			DownloadURL:       strconv.FormatInt(attr.Files[0].FileID, 10),
			Release:           attr.Release,
			Uploader:          attr.Uploader.Name,
			UploaderTrust:     uploaderTrust(attr.FromTrusted, attr.Uploader.Rank, attr.Ratings),
			Forced:            attr.ForeignPartsOnly,
			HearingImpaired:   attr.HearingImpaired,
			MachineTranslated: attr.MachineTranslated || attr.AITranslated,
			MTConfidence:      mtConfidence,
		})
	}

	return results, nil
}

// uploaderTrust maps OpenSubtitles trust hints onto the 0-20 scale.
func uploaderTrust(fromTrusted bool, rank string, ratings float64) int {
	trust := 0
	if fromTrusted {
		trust += 10
	}
	switch strings.ToLower(rank) {
	case "administrator", "trusted member":
		trust += 6
	case "gold member", "silver member":
		trust += 4
	case "bronze member":
		trust += 2
	}
	trust += int(ratings / 2.5) // 0-10 rating contributes up to 4
	if trust > 20 {
		trust = 20
	}
	return trust
}

type downloadResponse struct {
	Link     string `json:"link"`
	FileName string `json:"file_name"`
}

// Download implements providers.Provider. OpenSubtitles requires a download
// request per file id that returns a short-lived link.
func (c *Client) Download(ctx context.Context, result providers.SubtitleResult, destDir string) (string, error) {
	body := strings.NewReader(fmt.Sprintf(`{"file_id": %s}`, result.DownloadURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/download", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &providers.ProviderError{Provider: c.Name(), Kind: providers.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return "", err
	}

	var dl downloadResponse
	if err := json.NewDecoder(resp.Body).Decode(&dl); err != nil {
		return "", &providers.ProviderError{Provider: c.Name(), Kind: providers.ErrParse, Err: err}
	}

	name := dl.FileName
	if name == "" {
		name = "subtitle." + result.Format
	}
	return c.fetchFile(ctx, dl.Link, filepath.Join(destDir, filepath.Base(name)))
}

func (c *Client) fetchFile(ctx context.Context, link, dest string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &providers.ProviderError{Provider: c.Name(), Kind: providers.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &providers.ProviderError{Provider: c.Name(), Kind: providers.ErrNetwork,
			Err: fmt.Errorf("download returned %d", resp.StatusCode)}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", err
	}
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(dest)
		return "", &providers.ProviderError{Provider: c.Name(), Kind: providers.ErrNetwork, Err: err}
	}
	return dest, nil
}

// HealthCheck implements providers.Provider.
func (c *Client) HealthCheck(ctx context.Context) (bool, string) {
	var out map[string]any
	if err := c.getJSON(ctx, "/infos/user", &out); err != nil {
		return false, err.Error()
	}
	return true, "ok"
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &providers.ProviderError{Provider: c.Name(), Kind: providers.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &providers.ProviderError{Provider: c.Name(), Kind: providers.ErrParse, Err: err}
	}
	return nil
}

func (c *Client) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &providers.ProviderError{Provider: c.Name(), Kind: providers.ErrAuth,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 0
		if v := resp.Header.Get("Retry-After"); v != "" {
			retryAfter, _ = strconv.Atoi(v)
		}
		return &providers.ProviderError{Provider: c.Name(), Kind: providers.ErrRateLimit, RetryAfter: retryAfter}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &providers.ProviderError{Provider: c.Name(), Kind: providers.ErrNetwork,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}
