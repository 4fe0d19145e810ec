package main

import (
	"context"
	"strings"
	"time"

	"github.com/sublarr/sublarr/internal/settings"
)

// runtimeSettings adapts the settings service to the per-call tunable
// interfaces the provider manager and translator consume, so neither package
// depends on the settings key names.
type runtimeSettings struct {
	svc *settings.Service
}

func (r *runtimeSettings) FormatBonus(ctx context.Context) int {
	return r.svc.GetInt(ctx, settings.KeyFormatBonus)
}

func (r *runtimeSettings) MTPenalty(ctx context.Context) (bool, int, int) {
	return r.svc.GetBool(ctx, settings.KeyMTPenaltyEnabled),
		r.svc.GetInt(ctx, settings.KeyMTPenalty),
		r.svc.GetInt(ctx, settings.KeyMTThreshold)
}

func (r *runtimeSettings) CacheTTL(ctx context.Context) time.Duration {
	return time.Duration(r.svc.GetInt(ctx, settings.KeyProviderCacheTTL)) * time.Second
}

func (r *runtimeSettings) SearchTimeout(ctx context.Context) time.Duration {
	return time.Duration(r.svc.GetInt(ctx, settings.KeyProviderTimeout)) * time.Second
}

func (r *runtimeSettings) TMEnabled(ctx context.Context) bool {
	return r.svc.GetBool(ctx, settings.KeyTMEnabled)
}

func (r *runtimeSettings) TMSimilarity(ctx context.Context) float64 {
	return r.svc.GetFloat(ctx, settings.KeyTMSimilarity)
}

func (r *runtimeSettings) QualityEval(ctx context.Context) (bool, int, int) {
	return r.svc.GetBool(ctx, settings.KeyQualityEnabled),
		r.svc.GetInt(ctx, settings.KeyQualityThreshold),
		r.svc.GetInt(ctx, settings.KeyQualityMaxRetries)
}

func (r *runtimeSettings) BatchSize(ctx context.Context) int {
	return r.svc.GetInt(ctx, settings.KeyTranslateBatchSize)
}

func (r *runtimeSettings) BackendChain(ctx context.Context) []string {
	raw := strings.TrimSpace(r.svc.Get(ctx, settings.KeyBackendChain))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
