// Package jimaku implements the Jimaku anime subtitle provider.
package jimaku

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

const defaultBaseURL = "https://jimaku.cc/api"

// Client is the Jimaku provider. Jimaku catalogs anime subtitle files per
// entry; a search resolves the entry by name, then lists its files.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Config holds Jimaku provider configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New creates a Jimaku client.
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
		logger:     logger.With().Str("component", "jimaku").Logger(),
	}
}

// Name implements providers.Provider.
func (c *Client) Name() string { return "jimaku" }

// Languages implements providers.Provider. Jimaku hosts Japanese source
// subtitles plus community translations; practically ja and en dominate.
func (c *Client) Languages() []string { return []string{"ja", "jpn", "en", "eng"} }

// ConfigFields implements providers.Provider.
func (c *Client) ConfigFields() []providers.ConfigField {
	return []providers.ConfigField{
		{Name: "api_key", Label: "API Key", Type: providers.FieldSecret, Help: "Jimaku API key"},
		{Name: "base_url", Label: "Base URL", Type: providers.FieldString, Default: defaultBaseURL},
	}
}

type entry struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	English string `json:"english_name"`
}

type entryFile struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Search implements providers.Provider.
func (c *Client) Search(ctx context.Context, query providers.VideoQuery) ([]providers.SubtitleResult, error) {
	params := url.Values{}
	params.Set("query", query.Title)
	params.Set("anime", "true")

	var entries []entry
	if err := c.getJSON(ctx, "/entries/search?"+params.Encode(), &entries); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	best := pickEntry(entries, query.Title)

	var files []entryFile
	path := fmt.Sprintf("/entries/%d/files", best.ID)
	if query.IsEpisode && query.Episode > 0 {
		ep := query.Episode
		if query.AbsoluteEpisode > 0 {
			ep = query.AbsoluteEpisode
		}
		path += "?episode=" + strconv.Itoa(ep)
	}
	if err := c.getJSON(ctx, path, &files); err != nil {
		return nil, err
	}

	results := make([]providers.SubtitleResult, 0, len(files))
	for _, f := range files {
		format := formatFromName(f.Name)
		if format == "" {
			continue
		}
		results = append(results, providers.SubtitleResult{
			Provider:    c.Name(),
			ID:          f.Name,
			Language:    languageFromName(f.Name, query.Language()),
			Format:      format,
			DownloadURL: f.URL,
			Release:     f.Name,
		})
	}
	return results, nil
}

// pickEntry chooses the entry whose name best matches the query title.
func pickEntry(entries []entry, title string) entry {
	canonical := providers.CanonicalTitle(title)
	for _, e := range entries {
		if providers.CanonicalTitle(e.Name) == canonical ||
			providers.CanonicalTitle(e.English) == canonical {
			return e
		}
	}
	return entries[0]
}

func formatFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ass":
		return "ass"
	case ".ssa":
		return "ssa"
	case ".srt":
		return "srt"
	case ".vtt":
		return "vtt"
	case ".zip", ".rar", ".xz", ".7z":
		// Archives resolve after extraction; advertise the styled format.
		return "ass"
	}
	return ""
}

// languageFromName guesses the track language from filename tags, falling
// back to the queried language (Jimaku files are mostly unlabeled Japanese).
func languageFromName(name, queried string) string {
	lower := strings.ToLower(name)
	for _, tag := range []string{".en.", ".eng.", "[en]", "(en)"} {
		if strings.Contains(lower, tag) {
			return "en"
		}
	}
	if queried != "" {
		return queried
	}
	return "ja"
}

// Download implements providers.Provider.
func (c *Client) Download(ctx context.Context, result providers.SubtitleResult, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.DownloadURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &providers.ProviderError{Provider: c.Name(), Kind: providers.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return "", err
	}

	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", err
	}
	dest := filepath.Join(destDir, filepath.Base(result.ID))
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
	var entries []entry
	if err := c.getJSON(ctx, "/entries/search?query=test", &entries); err != nil {
		return false, err.Error()
	}
	return true, "ok"
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.apiKey)

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
