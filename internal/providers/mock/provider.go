// Package mock provides an in-process provider for tests and dev mode.
package mock

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/sublarr/sublarr/internal/providers"
)

// Provider is a configurable in-memory subtitle source.
type Provider struct {
	ProviderName string
	Langs        []string

	mu          sync.Mutex
	Results     []providers.SubtitleResult
	Content     map[string][]byte // result ID -> file content
	SearchErr   error
	DownloadErr error
	Healthy     bool
	HealthMsg   string

	SearchCalls   int
	DownloadCalls int
	LastQuery     providers.VideoQuery
}

// New creates a mock provider named "mock".
func New() *Provider {
	return &Provider{
		ProviderName: "mock",
		Healthy:      true,
		HealthMsg:    "ok",
		Content:      make(map[string][]byte),
	}
}

// Name implements providers.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Languages implements providers.Provider.
func (p *Provider) Languages() []string { return p.Langs }

// ConfigFields implements providers.Provider.
func (p *Provider) ConfigFields() []providers.ConfigField { return nil }

// Search implements providers.Provider.
func (p *Provider) Search(_ context.Context, query providers.VideoQuery) ([]providers.SubtitleResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SearchCalls++
	p.LastQuery = query
	if p.SearchErr != nil {
		return nil, p.SearchErr
	}
	out := make([]providers.SubtitleResult, len(p.Results))
	copy(out, p.Results)
	return out, nil
}

// Download implements providers.Provider by writing the configured content.
func (p *Provider) Download(_ context.Context, result providers.SubtitleResult, destDir string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DownloadCalls++
	if p.DownloadErr != nil {
		return "", p.DownloadErr
	}

	content, ok := p.Content[result.ID]
	if !ok {
		content = []byte("1\n00:00:01,000 --> 00:00:02,000\nmock line\n")
	}
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", err
	}
	dest := filepath.Join(destDir, result.ID+"."+result.Format)
	if err := os.WriteFile(dest, content, 0o644); err != nil {
		return "", err
	}
	return dest, nil
}

// HealthCheck implements providers.Provider.
func (p *Provider) HealthCheck(context.Context) (bool, string) {
	return p.Healthy, p.HealthMsg
}
