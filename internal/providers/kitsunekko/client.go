// Package kitsunekko scrapes the kitsunekko.net subtitle directory listing.
package kitsunekko

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/providers"
)

const defaultBaseURL = "https://kitsunekko.net"

// Client scrapes kitsunekko's Japanese subtitle directory. There is no API:
// a show resolves to a directory page whose anchors are the subtitle files.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Config holds kitsunekko provider configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New creates a kitsunekko client.
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
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "kitsunekko").Logger(),
	}
}

// Name implements providers.Provider.
func (c *Client) Name() string { return "kitsunekko" }

// Languages implements providers.Provider; the scraped tree is Japanese only.
func (c *Client) Languages() []string { return []string{"ja", "jpn"} }

// ConfigFields implements providers.Provider.
func (c *Client) ConfigFields() []providers.ConfigField {
	return []providers.ConfigField{
		{Name: "base_url", Label: "Base URL", Type: providers.FieldString, Default: defaultBaseURL},
	}
}

// Search implements providers.Provider: find the show directory by fuzzy
// title match, then list its files, filtered to the queried episode.
func (c *Client) Search(ctx context.Context, query providers.VideoQuery) ([]providers.SubtitleResult, error) {
	dirURL, dirName, err := c.findShowDir(ctx, query.Title)
	if err != nil {
		return nil, err
	}
	if dirURL == "" {
		return nil, nil
	}

	doc, err := c.fetchDoc(ctx, dirURL)
	if err != nil {
		return nil, err
	}

	var results []providers.SubtitleResult
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		name := strings.TrimSpace(sel.Text())
		format := formatFromName(name)
		if format == "" {
			return
		}
		if query.IsEpisode && !matchesEpisode(name, query) {
			return
		}
		results = append(results, providers.SubtitleResult{
			Provider:    c.Name(),
			ID:          name,
			Language:    "ja",
			Format:      format,
			DownloadURL: c.absoluteURL(href),
			Release:     dirName + " " + name,
		})
	})

	return results, nil
}

// findShowDir scans the top-level Japanese directory for the best title match.
func (c *Client) findShowDir(ctx context.Context, title string) (string, string, error) {
	doc, err := c.fetchDoc(ctx, c.baseURL+"/dirlist.php?dir="+url.QueryEscape("subtitles/japanese/"))
	if err != nil {
		return "", "", err
	}

	canonical := providers.CanonicalTitle(title)
	bestURL, bestName := "", ""
	bestLen := 0

	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || !strings.Contains(href, "dir=") {
			return
		}
		name := strings.TrimSpace(sel.Text())
		canonicalName := providers.CanonicalTitle(name)
		if canonicalName == "" {
			return
		}
		// Exact canonical match wins; otherwise the longest shared prefix.
		if canonicalName == canonical {
			bestURL, bestName, bestLen = c.absoluteURL(href), name, 1<<30
			return
		}
		if strings.Contains(canonicalName, canonical) || strings.Contains(canonical, canonicalName) {
			if len(canonicalName) > bestLen {
				bestURL, bestName, bestLen = c.absoluteURL(href), name, len(canonicalName)
			}
		}
	})

	return bestURL, bestName, nil
}

func (c *Client) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return c.baseURL + "/" + strings.TrimPrefix(href, "/")
}

func (c *Client) fetchDoc(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &providers.ProviderError{Provider: c.Name(), Kind: providers.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return nil, &providers.ProviderError{Provider: c.Name(), Kind: providers.ErrRateLimit, RetryAfter: retryAfter}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &providers.ProviderError{Provider: c.Name(), Kind: providers.ErrNetwork,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &providers.ProviderError{Provider: c.Name(), Kind: providers.ErrParse, Err: err}
	}
	return doc, nil
}

func formatFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ass":
		return "ass"
	case ".ssa":
		return "ssa"
	case ".srt":
		return "srt"
	case ".zip", ".rar", ".xz", ".7z":
		return "ass"
	}
	return ""
}

// matchesEpisode keeps files whose name carries the queried episode number
// in any common convention, plus archives (whole-season packs).
func matchesEpisode(name string, query providers.VideoQuery) bool {
	lower := strings.ToLower(name)
	switch filepath.Ext(lower) {
	case ".zip", ".rar", ".xz", ".7z":
		return true
	}

	candidates := []string{
		fmt.Sprintf("s%02de%02d", query.Season, query.Episode),
		fmt.Sprintf(" %02d", query.Episode),
		fmt.Sprintf("e%02d", query.Episode),
		fmt.Sprintf("ep%02d", query.Episode),
	}
	if query.AbsoluteEpisode > 0 {
		candidates = append(candidates,
			fmt.Sprintf(" %02d", query.AbsoluteEpisode),
			fmt.Sprintf(" %03d", query.AbsoluteEpisode))
	}
	for _, cand := range candidates {
		if strings.Contains(lower, cand) {
			return true
		}
	}
	return false
}

// Download implements providers.Provider.
func (c *Client) Download(ctx context.Context, result providers.SubtitleResult, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.DownloadURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &providers.ProviderError{Provider: c.Name(), Kind: providers.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &providers.ProviderError{Provider: c.Name(), Kind: providers.ErrNetwork,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
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
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err.Error()
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("status %d", resp.StatusCode)
	}
	return true, "ok"
}
