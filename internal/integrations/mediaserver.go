package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/providers"
)

// MediaServer notifies one media-server instance that a library path changed.
type MediaServer interface {
	Name() string
	Refresh(ctx context.Context, path, kind string) error
	TestConnection(ctx context.Context) error
}

// RefreshOutcome records one instance's result inside a RefreshSummary.
type RefreshOutcome struct {
	Instance string `json:"instance"`
	OK       bool   `json:"ok"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RefreshSummary collects the per-instance outcomes of one refresh fan-out.
type RefreshSummary struct {
	Outcomes []RefreshOutcome `json:"outcomes"`
}

// Failed reports how many instances errored.
func (s *RefreshSummary) Failed() int {
	n := 0
	for _, o := range s.Outcomes {
		if !o.OK && !o.Skipped {
			n++
		}
	}
	return n
}

// MediaServerManager fans refresh notifications out to every configured
// media server. Refresh failures are logged and summarized, never
// propagated: a dead Plex must not fail a subtitle download.
type MediaServerManager struct {
	instances *InstanceStore
	breakers  *providers.BreakerSet
	logger    zerolog.Logger

	// newServer builds a client for an instance; swappable in tests.
	newServer func(Instance, zerolog.Logger) (MediaServer, error)
}

// NewMediaServerManager creates the refresh fan-out manager.
func NewMediaServerManager(instances *InstanceStore, logger zerolog.Logger) *MediaServerManager {
	return &MediaServerManager{
		instances: instances,
		breakers:  providers.NewBreakerSet(providers.DefaultBreakerConfig()),
		logger:    logger.With().Str("component", "mediaserver").Logger(),
		newServer: newMediaServer,
	}
}

func newMediaServer(inst Instance, logger zerolog.Logger) (MediaServer, error) {
	switch inst.Kind {
	case KindPlex:
		return newPlexClient(inst, logger)
	case KindJellyfin, KindEmby:
		return newEmbyClient(inst, logger)
	}
	return nil, fmt.Errorf("instance %q is not a media server", inst.Name)
}

// RefreshAll notifies every enabled media server that a path gained a
// subtitle, in parallel, each behind its own breaker.
func (m *MediaServerManager) RefreshAll(ctx context.Context, path, kind string) *RefreshSummary {
	summary := &RefreshSummary{}

	var instances []Instance
	for _, k := range []string{KindPlex, KindJellyfin, KindEmby} {
		list, err := m.instances.ListEnabled(ctx, k)
		if err != nil {
			m.logger.Error().Err(err).Msg("Failed to list media servers")
			return summary
		}
		instances = append(instances, list...)
	}
	if len(instances) == 0 {
		return summary
	}

	outcomes := make([]RefreshOutcome, len(instances))
	var wg sync.WaitGroup
	for i, inst := range instances {
		wg.Add(1)
		go func(i int, inst Instance) {
			defer wg.Done()
			outcomes[i] = m.refreshOne(ctx, inst, path, kind)
		}(i, inst)
	}
	wg.Wait()

	summary.Outcomes = outcomes
	if failed := summary.Failed(); failed > 0 {
		m.logger.Warn().Int("failed", failed).Str("path", path).Msg("Media server refresh partially failed")
	}
	return summary
}

func (m *MediaServerManager) refreshOne(ctx context.Context, inst Instance, path, kind string) RefreshOutcome {
	identity := fmt.Sprintf("%s:%d", inst.Kind, inst.ID)
	breaker := m.breakers.Get(identity)
	if !breaker.Allow() {
		return RefreshOutcome{Instance: inst.Name, Skipped: true, Error: "breaker open"}
	}

	server, err := m.newServer(inst, m.logger)
	if err != nil {
		return RefreshOutcome{Instance: inst.Name, Error: err.Error()}
	}

	if err := server.Refresh(ctx, path, kind); err != nil {
		breaker.RecordFailure()
		m.logger.Warn().Err(err).Str("instance", inst.Name).Str("path", path).Msg("Media server refresh failed")
		return RefreshOutcome{Instance: inst.Name, Error: err.Error()}
	}
	breaker.RecordSuccess()
	return RefreshOutcome{Instance: inst.Name, OK: true}
}

// TestInstance runs a connectivity check against one media server.
func (m *MediaServerManager) TestInstance(ctx context.Context, id int64) error {
	inst, err := m.instances.Get(ctx, id)
	if err != nil {
		return err
	}
	server, err := m.newServer(*inst, m.logger)
	if err != nil {
		return err
	}
	return server.TestConnection(ctx)
}

const mediaServerTimeout = 30 * time.Second

// plexClient refreshes Plex library sections scoped to a path.
type plexClient struct {
	instance   Instance
	httpClient *http.Client
	logger     zerolog.Logger
}

func newPlexClient(inst Instance, logger zerolog.Logger) (*plexClient, error) {
	if inst.URL == "" || inst.APIKey == "" {
		return nil, fmt.Errorf("plex URL and token are required")
	}
	return &plexClient{
		instance:   inst,
		httpClient: &http.Client{Timeout: mediaServerTimeout},
		logger:     logger.With().Str("component", "plex-client").Str("instance", inst.Name).Logger(),
	}, nil
}

func (p *plexClient) Name() string { return p.instance.Name }

func (p *plexClient) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.instance.URL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Plex-Token", p.instance.APIKey)
	req.Header.Set("Accept", "application/json")
	return p.httpClient.Do(req)
}

type plexSections struct {
	MediaContainer struct {
		Directory []struct {
			Key      string `json:"key"`
			Type     string `json:"type"`
			Location []struct {
				Path string `json:"path"`
			} `json:"Location"`
		} `json:"Directory"`
	} `json:"MediaContainer"`
}

// Refresh triggers a partial scan of the section containing the path.
func (p *plexClient) Refresh(ctx context.Context, path, kind string) error {
	resp, err := p.do(ctx, http.MethodGet, "/library/sections")
	if err != nil {
		return fmt.Errorf("failed to list sections: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("section list returned status %d", resp.StatusCode)
	}

	var sections plexSections
	if err := json.NewDecoder(resp.Body).Decode(&sections); err != nil {
		return fmt.Errorf("failed to decode sections: %w", err)
	}

	for _, dir := range sections.MediaContainer.Directory {
		for _, loc := range dir.Location {
			prefix := strings.TrimSuffix(loc.Path, "/")
			if path != prefix && !strings.HasPrefix(path, prefix+"/") {
				continue
			}
			refreshPath := "/library/sections/" + dir.Key + "/refresh?path=" + url.QueryEscape(path)
			r, err := p.do(ctx, http.MethodGet, refreshPath)
			if err != nil {
				return fmt.Errorf("refresh request failed: %w", err)
			}
			io.Copy(io.Discard, r.Body)
			r.Body.Close()
			if r.StatusCode >= 300 {
				return fmt.Errorf("refresh returned status %d", r.StatusCode)
			}
			p.logger.Debug().Str("section", dir.Key).Str("path", path).Msg("triggered section refresh")
			return nil
		}
	}
	return fmt.Errorf("no plex section contains %s", path)
}

func (p *plexClient) TestConnection(ctx context.Context) error {
	resp, err := p.do(ctx, http.MethodGet, "/library/sections")
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("connection test returned status %d", resp.StatusCode)
	}
	return nil
}

// embyClient serves both Jellyfin and Emby, which share the media-updated
// endpoint and token header.
type embyClient struct {
	instance   Instance
	httpClient *http.Client
	logger     zerolog.Logger
}

func newEmbyClient(inst Instance, logger zerolog.Logger) (*embyClient, error) {
	if inst.URL == "" || inst.APIKey == "" {
		return nil, fmt.Errorf("%s URL and token are required", inst.Kind)
	}
	return &embyClient{
		instance:   inst,
		httpClient: &http.Client{Timeout: mediaServerTimeout},
		logger:     logger.With().Str("component", inst.Kind+"-client").Str("instance", inst.Name).Logger(),
	}, nil
}

func (e *embyClient) Name() string { return e.instance.Name }

func (e *embyClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.instance.URL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Emby-Token", e.instance.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.httpClient.Do(req)
}

// Refresh reports the changed path so the server rescans just that item.
func (e *embyClient) Refresh(ctx context.Context, path, kind string) error {
	payload := map[string]any{
		"Updates": []map[string]string{
			{"Path": path, "UpdateType": "Modified"},
		},
	}
	resp, err := e.do(ctx, http.MethodPost, "/Library/Media/Updated", payload)
	if err != nil {
		return fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("refresh returned status %d", resp.StatusCode)
	}
	e.logger.Debug().Str("path", path).Msg("reported media update")
	return nil
}

func (e *embyClient) TestConnection(ctx context.Context) error {
	resp, err := e.do(ctx, http.MethodGet, "/System/Info", nil)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("connection test returned status %d", resp.StatusCode)
	}
	return nil
}
