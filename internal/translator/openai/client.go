// Package openai implements a translation backend over any OpenAI-compatible
// chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/translator"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

// Client talks to an OpenAI-compatible chat completions endpoint. Local
// servers (Ollama, llama.cpp, vLLM) work through the configurable base URL.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Config holds OpenAI backend configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// New creates an OpenAI-compatible backend.
func New(cfg Config, logger zerolog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "openai").Logger(),
	}
}

// Name implements translator.Backend.
func (c *Client) Name() string { return "openai" }

// SupportsGlossary implements translator.Backend.
func (c *Client) SupportsGlossary() bool { return true }

// SupportsSRTReference implements translator.Backend.
func (c *Client) SupportsSRTReference() bool { return true }

// SupportsEvaluation implements translator.Backend.
func (c *Client) SupportsEvaluation() bool { return true }

// ConfigFields implements translator.Backend.
func (c *Client) ConfigFields() []translator.ConfigField {
	return []translator.ConfigField{
		{Name: "api_key", Label: "API Key", Type: "secret"},
		{Name: "base_url", Label: "Base URL", Type: "string", Default: defaultBaseURL,
			Help: "Any OpenAI-compatible endpoint"},
		{Name: "model", Label: "Model", Type: "string", Default: defaultModel},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// TranslateBatch implements translator.Backend.
func (c *Client) TranslateBatch(ctx context.Context, req translator.BatchRequest) (*translator.BatchResult, error) {
	content, err := c.chat(ctx,
		translator.BuildSystemPrompt(req),
		translator.BuildUserPrompt(req.Lines))
	if err != nil {
		return nil, err
	}

	lines := translator.ParseBatchResponse(content)
	return &translator.BatchResult{Lines: lines}, nil
}

// EvaluateBatch implements translator.Evaluator: the model scores each
// translation pair 0-100.
func (c *Client) EvaluateBatch(ctx context.Context, sourceLines, translatedLines []string, sourceLang, targetLang string) ([]int, error) {
	var user strings.Builder
	for i := range sourceLines {
		fmt.Fprintf(&user, "%d.\nSOURCE: %s\nTRANSLATION: %s\n", i+1, sourceLines[i], translatedLines[i])
	}

	system := fmt.Sprintf(
		"You are a translation quality rater. For each numbered pair below, rate how accurately and naturally the TRANSLATION renders the %s SOURCE into %s.\n"+
			"Respond with EXACTLY %d lines. Each line is a single integer 0-100, nothing else.",
		sourceLang, targetLang, len(sourceLines))

	content, err := c.chat(ctx, system, user.String())
	if err != nil {
		return nil, err
	}

	raw := translator.ParseBatchResponse(content)
	if len(raw) != len(sourceLines) {
		return nil, &translator.BackendError{Backend: c.Name(), Kind: translator.ErrParse,
			Err: fmt.Errorf("expected %d scores, got %d", len(sourceLines), len(raw))}
	}

	scores := make([]int, len(raw))
	for i, line := range raw {
		score, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			return nil, &translator.BackendError{Backend: c.Name(), Kind: translator.ErrParse,
				Err: fmt.Errorf("non-numeric score %q", line)}
		}
		scores[i] = score
	}
	return scores, nil
}

func (c *Client) chat(ctx context.Context, system, user string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &translator.BackendError{Backend: c.Name(), Kind: translator.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &translator.BackendError{Backend: c.Name(), Kind: translator.ErrAuth,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return "", &translator.BackendError{Backend: c.Name(), Kind: translator.ErrRateLimit, RetryAfter: retryAfter}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", &translator.BackendError{Backend: c.Name(), Kind: translator.ErrNetwork,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &translator.BackendError{Backend: c.Name(), Kind: translator.ErrParse, Err: err}
	}
	if out.Error != nil {
		return "", &translator.BackendError{Backend: c.Name(), Kind: translator.ErrNetwork,
			Err: fmt.Errorf("%s", out.Error.Message)}
	}
	if len(out.Choices) == 0 {
		return "", &translator.BackendError{Backend: c.Name(), Kind: translator.ErrParse,
			Err: fmt.Errorf("response contains no choices")}
	}
	return out.Choices[0].Message.Content, nil
}

// HealthCheck implements translator.Backend with a one-line round trip.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.chat(ctx, "Reply with the single word: ok", "ok")
	return err
}
