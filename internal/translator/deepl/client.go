// Package deepl implements a translation backend over the DeepL REST v2 API.
package deepl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/translator"
)

const (
	defaultBaseURL = "https://api-free.deepl.com/v2"
	proBaseURL     = "https://api.deepl.com/v2"
)

// Client is the DeepL backend. DeepL takes a glossary as inline term pairs
// is not supported by the REST text endpoint, so glossary terms are applied
// as a post-pass replacement; references and evaluation are not available.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Config holds DeepL backend configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New creates a DeepL client. Keys ending in ":fx" route to the free tier.
func New(cfg Config, logger zerolog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
		if !strings.HasSuffix(cfg.APIKey, ":fx") {
			baseURL = proBaseURL
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "deepl").Logger(),
	}
}

// Name implements translator.Backend.
func (c *Client) Name() string { return "deepl" }

// SupportsGlossary implements translator.Backend.
func (c *Client) SupportsGlossary() bool { return true }

// SupportsSRTReference implements translator.Backend.
func (c *Client) SupportsSRTReference() bool { return false }

// SupportsEvaluation implements translator.Backend.
func (c *Client) SupportsEvaluation() bool { return false }

// ConfigFields implements translator.Backend.
func (c *Client) ConfigFields() []translator.ConfigField {
	return []translator.ConfigField{
		{Name: "api_key", Label: "API Key", Type: "secret", Help: "DeepL auth key"},
		{Name: "base_url", Label: "Base URL", Type: "string",
			Help: "Defaults to the free or pro endpoint based on the key"},
	}
}

type translateResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
}

// TranslateBatch implements translator.Backend. DeepL translates each text
// parameter independently, which keeps the line count exact by construction.
func (c *Client) TranslateBatch(ctx context.Context, req translator.BatchRequest) (*translator.BatchResult, error) {
	form := url.Values{}
	for _, line := range req.Lines {
		form.Add("text", line)
	}
	form.Set("source_lang", strings.ToUpper(req.SourceLang))
	form.Set("target_lang", strings.ToUpper(req.TargetLang))
	form.Set("preserve_formatting", "1")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/translate",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "DeepL-Auth-Key "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &translator.BackendError{Backend: c.Name(), Kind: translator.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	var out translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &translator.BackendError{Backend: c.Name(), Kind: translator.ErrParse, Err: err}
	}

	lines := make([]string, len(out.Translations))
	for i, t := range out.Translations {
		lines[i] = t.Text
	}

	// Glossary post-pass: pin terms DeepL rendered differently.
	if len(lines) == len(req.Lines) {
		for i := range lines {
			for _, term := range req.Glossary {
				if strings.Contains(req.Lines[i], term.SourceTerm) &&
					!strings.Contains(lines[i], term.TargetTerm) {
					lines[i] = strings.ReplaceAll(lines[i], term.SourceTerm, term.TargetTerm)
				}
			}
		}
	}

	return &translator.BatchResult{Lines: lines}, nil
}

func (c *Client) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &translator.BackendError{Backend: c.Name(), Kind: translator.ErrAuth,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 456:
		// 456 is DeepL's quota-exceeded status.
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &translator.BackendError{Backend: c.Name(), Kind: translator.ErrRateLimit, RetryAfter: retryAfter}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &translator.BackendError{Backend: c.Name(), Kind: translator.ErrNetwork,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

// HealthCheck implements translator.Backend via the usage endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/usage", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &translator.BackendError{Backend: c.Name(), Kind: translator.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()
	return c.checkStatus(resp)
}
