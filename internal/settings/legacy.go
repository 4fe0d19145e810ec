package settings

import (
	"context"
	"fmt"
)

// legacyInstanceKeys maps old single-instance settings to the instance kind
// they migrate into. Earlier releases stored one URL/key pair per
// integration; the multi-instance schema keeps them as integration_instances
// rows instead.
var legacyInstanceKeys = []struct {
	kind   string
	urlKey string
	apiKey string
}{
	{kind: "sonarr", urlKey: "sonarr_url", apiKey: "sonarr_api_key"},
	{kind: "radarr", urlKey: "radarr_url", apiKey: "radarr_api_key"},
	{kind: "plex", urlKey: "plex_url", apiKey: "plex_token"},
	{kind: "jellyfin", urlKey: "jellyfin_url", apiKey: "jellyfin_api_key"},
}

// MigrateLegacyInstances converts pre-multi-instance settings into
// integration_instances rows. Runs once at startup; a legacy pair is only
// migrated when no instance of that kind exists yet, then the old keys are
// removed.
func (s *Service) MigrateLegacyInstances(ctx context.Context) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}

	for _, legacy := range legacyInstanceKeys {
		s.mu.RLock()
		url, hasURL := s.cache[legacy.urlKey]
		key := s.cache[legacy.apiKey]
		s.mu.RUnlock()
		if !hasURL || url == "" {
			continue
		}

		var count int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM integration_instances WHERE kind = ?`, legacy.kind).Scan(&count); err != nil {
			return fmt.Errorf("failed to check %s instances: %w", legacy.kind, err)
		}
		if count == 0 {
			_, err := s.db.ExecContext(ctx, `
				INSERT INTO integration_instances (kind, name, url, api_key, enabled)
				VALUES (?, ?, ?, ?, 1)`,
				legacy.kind, legacy.kind, url, key)
			if err != nil {
				return fmt.Errorf("failed to migrate legacy %s settings: %w", legacy.kind, err)
			}
			s.logger.Info().Str("kind", legacy.kind).Msg("Migrated legacy single-instance settings")
		}

		if err := s.Delete(ctx, legacy.urlKey); err != nil {
			return err
		}
		if err := s.Delete(ctx, legacy.apiKey); err != nil {
			return err
		}
	}

	return nil
}
