package tasks

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/pipeline"
	"github.com/sublarr/sublarr/internal/scheduler"
	"github.com/sublarr/sublarr/internal/settings"
	"github.com/sublarr/sublarr/internal/wanted"
)

// RegisterUpgradeScanTask schedules the daily pass that retries SRT results
// still inside the upgrade window, looking for a styled replacement.
func RegisterUpgradeScanTask(sched *scheduler.Scheduler, store *wanted.Store,
	engine *pipeline.Engine, svc *settings.Service, logger zerolog.Logger) error {
	log := logger.With().Str("task", "upgrade-scan").Logger()
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          "upgrade-scan",
		Name:        "Upgrade Scan",
		Description: "Retries recent SRT subtitles for a styled upgrade",
		Cron:        "0 3 * * *",
		Func: func(ctx context.Context) error {
			window := svc.GetInt(ctx, settings.KeyUpgradeWindowDays)
			requeued, err := store.RequeueUpgradeCandidates(ctx, window)
			if err != nil {
				return err
			}
			if requeued == 0 {
				return nil
			}
			log.Info().Int64("requeued", requeued).Msg("Upgrade candidates requeued")
			_, _, err = engine.ProcessPending(ctx)
			return err
		},
	})
}
