package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/history"
	"github.com/sublarr/sublarr/internal/jobs"
	"github.com/sublarr/sublarr/internal/providers"
	"github.com/sublarr/sublarr/internal/scheduler"
	"github.com/sublarr/sublarr/internal/settings"
)

const (
	historyRetentionDays = 90
	jobRetentionDays     = 14
)

// MaintenanceDeps collects the stores the nightly cleanup touches.
type MaintenanceDeps struct {
	Providers *providers.Manager
	History   *history.Service
	Jobs      *jobs.Store
	Hooks     *events.Store
	Settings  *settings.Service
}

// RegisterMaintenanceTask schedules the nightly cleanup: expired provider
// cache entries, old history rows, finished jobs and hook execution logs.
func RegisterMaintenanceTask(sched *scheduler.Scheduler, deps MaintenanceDeps, logger zerolog.Logger) error {
	log := logger.With().Str("task", "maintenance").Logger()
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          "maintenance",
		Name:        "Nightly Maintenance",
		Description: "Prunes expired caches, old history, finished jobs and hook logs",
		Cron:        "0 4 * * *",
		Func: func(ctx context.Context) error {
			if deps.Providers != nil {
				if n, err := deps.Providers.Cache().PurgeExpired(ctx); err != nil {
					log.Warn().Err(err).Msg("Provider cache purge failed")
				} else if n > 0 {
					log.Info().Int64("purged", n).Msg("Purged expired provider cache entries")
				}
			}

			if deps.History != nil {
				cutoff := time.Now().AddDate(0, 0, -historyRetentionDays)
				if n, err := deps.History.Prune(ctx, cutoff); err != nil {
					log.Warn().Err(err).Msg("History prune failed")
				} else if n > 0 {
					log.Info().Int64("pruned", n).Msg("Pruned old history entries")
				}
			}

			if deps.Jobs != nil {
				cutoff := time.Now().AddDate(0, 0, -jobRetentionDays)
				if n, err := deps.Jobs.PruneFinished(ctx, cutoff); err != nil {
					log.Warn().Err(err).Msg("Job prune failed")
				} else if n > 0 {
					log.Info().Int64("pruned", n).Msg("Pruned finished jobs")
				}
			}

			if deps.Hooks != nil {
				days := deps.Settings.GetInt(ctx, settings.KeyHookLogRetentionDays)
				if n, err := deps.Hooks.PruneHookLogs(ctx, days); err != nil {
					log.Warn().Err(err).Msg("Hook log prune failed")
				} else if n > 0 {
					log.Info().Int64("pruned", n).Msg("Pruned hook execution logs")
				}
			}
			return nil
		},
	})
}
