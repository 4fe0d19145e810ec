package tasks

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/pipeline"
	"github.com/sublarr/sublarr/internal/scheduler"
)

// RegisterWantedProcessTask schedules the queue worker that runs the
// acquisition pipeline over pending wanted items. Offset from the scan so a
// fresh scan's items are picked up within the hour.
func RegisterWantedProcessTask(sched *scheduler.Scheduler, engine *pipeline.Engine, logger zerolog.Logger) error {
	log := logger.With().Str("task", "wanted-process").Logger()
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          "wanted-process",
		Name:        "Process Wanted Items",
		Description: "Acquires subtitles for pending wanted items",
		Cron:        "30 * * * *",
		Func: func(ctx context.Context) error {
			processed, failed, err := engine.ProcessPending(ctx)
			if err != nil {
				return err
			}
			if processed > 0 {
				log.Info().Int("processed", processed).Int("failed", failed).Msg("Pending queue drained")
			}
			return nil
		},
	})
}
