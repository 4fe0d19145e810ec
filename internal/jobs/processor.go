package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/settings"
	"github.com/sublarr/sublarr/internal/subtitles"
	"github.com/sublarr/sublarr/internal/wanted"
)

// ItemProcessor runs the acquisition pipeline for a single wanted item.
// Implemented by the pipeline engine.
type ItemProcessor interface {
	ProcessItem(ctx context.Context, id int64) error
	ExtractItem(ctx context.Context, id int64) (string, error)
}

// Processor fans wanted batch actions out as background jobs. It implements
// wanted.Processor on top of the single-item pipeline.
type Processor struct {
	engine   ItemProcessor
	runner   *Runner
	store    *wanted.Store
	settings *settings.Service
	bus      *events.Bus
	logger   zerolog.Logger
}

// NewProcessor creates the batch processor.
func NewProcessor(engine ItemProcessor, runner *Runner, store *wanted.Store, svc *settings.Service, bus *events.Bus, logger zerolog.Logger) *Processor {
	return &Processor{
		engine:   engine,
		runner:   runner,
		store:    store,
		settings: svc,
		bus:      bus,
		logger:   logger.With().Str("component", "batch").Logger(),
	}
}

// ProcessItem runs the acquisition pipeline for one item synchronously.
func (p *Processor) ProcessItem(ctx context.Context, id int64) error {
	return p.engine.ProcessItem(ctx, id)
}

// ExtractItem extracts the embedded source-language track for one item.
func (p *Processor) ExtractItem(ctx context.Context, id int64) (string, error) {
	return p.engine.ExtractItem(ctx, id)
}

type batchStats struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// ProcessBatch submits a background job running the full pipeline over the
// given items and returns its id.
func (p *Processor) ProcessBatch(ids []int64) (string, error) {
	return p.submitBatch(KindWantedSearch, ids, func(ctx context.Context, id int64) error {
		return p.engine.ProcessItem(ctx, id)
	})
}

// ExtractBatch submits a background job extracting embedded tracks for the
// given items and returns its id.
func (p *Processor) ExtractBatch(ids []int64) (string, error) {
	return p.submitBatch(KindWantedExtract, ids, func(ctx context.Context, id int64) error {
		_, err := p.engine.ExtractItem(ctx, id)
		return err
	})
}

func (p *Processor) submitBatch(kind string, ids []int64, each func(context.Context, int64) error) (string, error) {
	if len(ids) == 0 {
		return "", fmt.Errorf("empty batch")
	}
	items := make([]int64, len(ids))
	copy(items, ids)

	return p.runner.Submit(kind, "", map[string]any{"item_ids": items}, func(ctx context.Context, job *JobContext) (any, error) {
		stats := batchStats{Total: len(items)}
		lastEmit := time.Time{}
		for i, id := range items {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			if requested, err := p.runner.store.CancelRequested(ctx, job.ID); err == nil && requested {
				return stats, context.Canceled
			}

			if err := each(ctx, id); err != nil {
				stats.Failed++
				p.logger.Warn().Err(err).Int64("item", id).Str("job", job.ID).Msg("Batch item failed")
			}
			stats.Processed++

			job.Progress("processing", float64(i+1)/float64(len(items)),
				fmt.Sprintf("%d/%d items", i+1, len(items)))
			if time.Since(lastEmit) >= time.Second || i == len(items)-1 {
				lastEmit = time.Now()
				p.emit(events.EventWantedBatchProgress, map[string]any{
					"job_id":    job.ID,
					"completed": stats.Processed,
					"total":     stats.Total,
					"failed":    stats.Failed,
				})
			}
		}
		return stats, nil
	})
}

// HandleScanCreated reacts to newly created wanted items after a library
// scan. With auto-translate on, the full pipeline runs; with auto-extract
// only, embedded source tracks are pulled out for later review.
func (p *Processor) HandleScanCreated(ids []int64) {
	ctx := context.Background()
	if !p.settings.GetBool(ctx, settings.KeyScanAutoExtract) {
		return
	}

	items, err := p.store.ByIDs(ctx, ids)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to load scan-created items")
		return
	}
	var full []int64
	for _, it := range items {
		if it.SubtitleType == subtitles.TypeFull {
			full = append(full, it.ID)
		}
	}
	if len(full) == 0 {
		return
	}

	var jobID string
	if p.settings.GetBool(ctx, settings.KeyScanAutoTranslate) {
		jobID, err = p.ProcessBatch(full)
	} else {
		jobID, err = p.ExtractBatch(full)
	}
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to submit post-scan batch")
		return
	}
	p.logger.Info().Str("job", jobID).Int("items", len(full)).Msg("Post-scan batch submitted")
}

func (p *Processor) emit(name string, payload map[string]any) {
	if p.bus != nil {
		p.bus.Emit(name, payload)
	}
}
