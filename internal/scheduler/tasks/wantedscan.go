package tasks

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sublarr/sublarr/internal/scheduler"
	"github.com/sublarr/sublarr/internal/settings"
	"github.com/sublarr/sublarr/internal/wanted"
)

// intervalCron maps an hour interval to a cron expression firing at minute 0.
func intervalCron(hours int) string {
	switch {
	case hours <= 1:
		return "0 * * * *"
	case hours >= 24:
		return "0 0 * * *"
	default:
		return fmt.Sprintf("0 */%d * * *", hours)
	}
}

// RegisterWantedScanTask schedules the library scan that keeps the wanted
// list in sync. Every Nth run is a full rescan that also prunes items whose
// files disappeared.
func RegisterWantedScanTask(sched *scheduler.Scheduler, scanner *wanted.Scanner, svc *settings.Service) error {
	ctx := context.Background()
	interval := svc.GetInt(ctx, settings.KeyScanIntervalHours)

	var runs atomic.Int64
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          "wanted-scan",
		Name:        "Wanted Scan",
		Description: "Scans the library for videos missing target-language subtitles",
		Cron:        intervalCron(interval),
		RunOnStart:  true,
		Func: func(ctx context.Context) error {
			n := runs.Add(1)
			every := int64(svc.GetInt(ctx, settings.KeyFullScanEvery))
			full := every > 0 && n%every == 0
			_, err := scanner.Scan(ctx, full)
			return err
		},
	})
}
