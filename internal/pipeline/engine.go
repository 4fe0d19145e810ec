package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/history"
	"github.com/sublarr/sublarr/internal/integrations"
	"github.com/sublarr/sublarr/internal/language"
	"github.com/sublarr/sublarr/internal/library"
	"github.com/sublarr/sublarr/internal/media"
	"github.com/sublarr/sublarr/internal/profiles"
	"github.com/sublarr/sublarr/internal/providers"
	"github.com/sublarr/sublarr/internal/settings"
	"github.com/sublarr/sublarr/internal/subtitles"
	"github.com/sublarr/sublarr/internal/translator"
	"github.com/sublarr/sublarr/internal/wanted"
)

// Refresher tells media servers about a subtitle that landed next to a
// video. Called only after the atomic rename completes.
type Refresher interface {
	RefreshAll(ctx context.Context, path, kind string) *integrations.RefreshSummary
}

// Engine acquires one subtitle per wanted item: it decides between skipping,
// upgrading an existing SRT, extracting an embedded track, downloading from
// providers and transcribing, then translates where needed.
type Engine struct {
	store      *wanted.Store
	library    *library.Store
	profiles   *profiles.Service
	providers  *providers.Manager
	translator *translator.Manager
	prober     *media.Prober
	settings   *settings.Service
	history    *history.Service
	bus        *events.Bus
	logger     zerolog.Logger

	// Transcriber enables the Whisper fallback when set.
	Transcriber media.Transcriber
	// Refresher is notified after a subtitle is written. Optional.
	Refresher Refresher
}

// NewEngine wires the acquisition engine.
func NewEngine(store *wanted.Store, lib *library.Store, prof *profiles.Service,
	prov *providers.Manager, trans *translator.Manager, prober *media.Prober,
	set *settings.Service, hist *history.Service, bus *events.Bus, logger zerolog.Logger) *Engine {
	return &Engine{
		store:      store,
		library:    lib,
		profiles:   prof,
		providers:  prov,
		translator: trans,
		prober:     prober,
		settings:   set,
		history:    hist,
		bus:        bus,
		logger:     logger.With().Str("component", "pipeline").Logger(),
	}
}

// ProcessItem runs the full acquisition for one wanted item. The item must
// be pending; a failed item is implicitly retried first. The item ends up
// completed or failed either way; the returned error carries the failure.
func (e *Engine) ProcessItem(ctx context.Context, id int64) error {
	item, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}

	claimed, err := e.store.Claim(ctx, id)
	if err != nil {
		return err
	}
	if !claimed {
		if item.Status != wanted.StatusFailed {
			return fmt.Errorf("item %d is %s, not pending", id, item.Status)
		}
		if err := e.store.Retry(ctx, id); err != nil {
			return err
		}
		claimed, err = e.store.Claim(ctx, id)
		if err != nil {
			return err
		}
		if !claimed {
			return fmt.Errorf("item %d was claimed concurrently", id)
		}
	}
	_ = e.store.TouchSearch(ctx, id)

	out, runErr := e.run(ctx, item)
	if runErr != nil {
		reason := runErr.Error()
		if err := e.store.MarkFailed(ctx, id, reason); err != nil {
			e.logger.Error().Err(err).Int64("item", id).Msg("Failed to mark item failed")
		}
		if err := e.history.Record(ctx, history.Entry{
			EventType: history.EventFailed,
			MediaType: item.MediaType, MediaID: item.MediaID,
			FilePath: item.FilePath, Language: item.TargetLanguage,
			SubtitleType: string(item.SubtitleType),
			Data:         map[string]any{"error": reason},
		}); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to record history entry")
		}
		e.emitProcessed(item, wanted.StatusFailed, reason)
		e.logger.Warn().Err(runErr).Int64("item", id).Str("path", item.FilePath).Msg("Wanted item failed")
		return runErr
	}

	if err := e.store.MarkCompleted(ctx, id, out.resultPath, out.resultHash); err != nil {
		return err
	}
	e.finish(ctx, item, out)
	e.emitProcessed(item, wanted.StatusCompleted, out.note)
	e.logger.Info().Int64("item", id).Str("path", item.FilePath).Str("result", out.note).Msg("Wanted item completed")
	return nil
}

// ProcessPending works through the pending queue in order, skipping items
// that exhausted their attempts. Individual failures do not stop the run.
func (e *Engine) ProcessPending(ctx context.Context) (processed, failed int, err error) {
	items, err := e.store.Pending(ctx, 0)
	if err != nil {
		return 0, 0, err
	}
	maxAttempts := e.settings.GetInt(ctx, settings.KeyWantedMaxAttempts)
	for _, it := range items {
		if ctx.Err() != nil {
			return processed, failed, ctx.Err()
		}
		if maxAttempts > 0 && it.Attempts >= maxAttempts {
			continue
		}
		if err := e.ProcessItem(ctx, it.ID); err != nil {
			failed++
		}
		processed++
	}
	return processed, failed, nil
}

// ExtractItem pulls the embedded source-language track out of the item's
// video and writes it next to the file, without touching the item status.
func (e *Engine) ExtractItem(ctx context.Context, id int64) (string, error) {
	item, err := e.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	mc, err := e.mediaContext(ctx, item)
	if err != nil {
		return "", err
	}
	lang := mc.sourceLang
	if lang == "" {
		return "", fmt.Errorf("item %d has no source language", id)
	}

	probe, err := e.prober.Probe(ctx, item.FilePath)
	if err != nil {
		return "", err
	}
	stream := probe.SubtitleInLanguage(lang, language.Equal)
	if stream == nil || !stream.IsTextual() {
		return "", fmt.Errorf("no extractable %s subtitle stream in %s", lang, filepath.Base(item.FilePath))
	}

	tmp, err := os.MkdirTemp("", "sublarr-extract-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)

	extracted, err := e.prober.ExtractSubtitle(ctx, item.FilePath, *stream, tmp)
	if err != nil {
		return "", err
	}
	final := subtitles.OutputPath(item.FilePath, lang, subtitles.TypeFull, subtitles.FormatFromPath(extracted))
	if err := install(extracted, final); err != nil {
		return "", err
	}

	if err := e.history.Record(ctx, history.Entry{
		EventType: history.EventExtracted,
		MediaType: item.MediaType, MediaID: item.MediaID,
		FilePath: item.FilePath, Language: lang,
		SubtitleType: string(item.SubtitleType),
		Data:         map[string]any{"subtitle_path": final, "stream_index": stream.Index},
	}); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to record history entry")
	}
	return final, nil
}

// mediaContext resolves the library row behind a wanted item into the
// search query, glossary scope, backend chain and upgrade-window input.
type mediaContext struct {
	query      providers.VideoQuery
	scope      string
	chain      []string
	sourceLang string
	dateAdded  *string
}

func (e *Engine) mediaContext(ctx context.Context, it *wanted.Item) (*mediaContext, error) {
	mc := &mediaContext{
		sourceLang: it.SourceLanguage,
		query:      providers.VideoQuery{FilePath: it.FilePath},
	}

	switch it.MediaType {
	case "movie":
		movie, err := e.library.MovieByPath(ctx, it.FilePath)
		if err != nil {
			return nil, fail(ReasonIO, err)
		}
		if movie != nil {
			mc.query.Title = movie.Title
			if movie.Year != nil {
				mc.query.Year = *movie.Year
			}
			mc.dateAdded = movie.DateAdded
			e.applyProfile(ctx, mc, "movie", movie.ID)
		}
	default:
		ep, err := e.library.EpisodeByPath(ctx, it.FilePath)
		if err != nil {
			return nil, fail(ReasonIO, err)
		}
		if ep != nil {
			mc.query.IsEpisode = true
			mc.query.Season = ep.Season
			mc.query.Episode = ep.Episode
			if ep.AbsoluteEpisode != nil {
				mc.query.AbsoluteEpisode = *ep.AbsoluteEpisode
			}
			mc.dateAdded = ep.DateAdded
			if series, err := e.library.GetSeries(ctx, ep.SeriesID); err == nil && series != nil {
				mc.query.Title = series.Title
				mc.scope = series.Title
				e.applyProfile(ctx, mc, "series", series.ID)
			}
		}
	}

	if mc.query.Title == "" {
		// Not in the inventory (manually added item): search by file name.
		base := filepath.Base(it.FilePath)
		mc.query.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return mc, nil
}

func (e *Engine) applyProfile(ctx context.Context, mc *mediaContext, mediaType string, mediaID int64) {
	profile, err := e.profiles.ForMedia(ctx, mediaType, mediaID)
	if err != nil || profile == nil {
		return
	}
	mc.chain = profile.BackendChain
	if mc.sourceLang == "" {
		mc.sourceLang = profile.SourceLanguage
	}
}

func (e *Engine) finish(ctx context.Context, it *wanted.Item, out *outcome) {
	if out.event == "" {
		return
	}

	if e.Refresher != nil {
		if summary := e.Refresher.RefreshAll(ctx, it.FilePath, it.MediaType); summary != nil && summary.Failed() > 0 {
			e.logger.Warn().Int("failed", summary.Failed()).Str("path", it.FilePath).Msg("Media server refresh partially failed")
		}
	}

	entry := history.Entry{
		EventType: out.event,
		MediaType: it.MediaType, MediaID: it.MediaID,
		FilePath: it.FilePath, Language: it.TargetLanguage,
		SubtitleType: string(it.SubtitleType),
		Provider:     out.provider,
		Backend:      out.backend,
		Data:         map[string]any{"subtitle_path": out.resultPath, "note": out.note},
	}
	if out.provider != "" {
		score := out.score
		entry.Score = &score
	}
	if out.prevFormat != "" {
		entry.Data["previous_format"] = out.prevFormat
	}
	if err := e.history.Record(ctx, entry); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to record history entry")
	}

	switch out.event {
	case history.EventDownloaded:
		e.emit(events.EventSubtitleDownloaded, map[string]any{
			"file_path":     it.FilePath,
			"subtitle_path": out.resultPath,
			"language":      it.TargetLanguage,
			"subtitle_type": string(it.SubtitleType),
			"provider":      out.provider,
			"score":         out.score,
		})
	case history.EventUpgraded:
		e.emit(events.EventSubtitleUpgraded, map[string]any{
			"file_path":       it.FilePath,
			"subtitle_path":   out.resultPath,
			"language":        it.TargetLanguage,
			"previous_format": out.prevFormat,
			"provider":        out.provider,
		})
	}
	if out.translated {
		e.emit(events.EventTranslationComplete, map[string]any{
			"file_path":       it.FilePath,
			"subtitle_path":   out.resultPath,
			"source_language": out.sourceLang,
			"target_language": it.TargetLanguage,
			"backend":         out.backend,
			"avg_quality":     out.avgQuality,
		})
	}
}

func (e *Engine) emit(name string, payload map[string]any) {
	if e.bus != nil {
		e.bus.Emit(name, payload)
	}
}

func (e *Engine) emitProcessed(it *wanted.Item, status, note string) {
	e.emit(events.EventWantedItemProcessed, map[string]any{
		"item_id":         it.ID,
		"file_path":       it.FilePath,
		"target_language": it.TargetLanguage,
		"subtitle_type":   string(it.SubtitleType),
		"status":          status,
		"note":            note,
	})
}

func (e *Engine) probe(ctx context.Context, path string) *media.ProbeResult {
	if e.prober == nil {
		return nil
	}
	probe, err := e.prober.Probe(ctx, path)
	if err != nil {
		e.logger.Debug().Err(err).Str("path", path).Msg("Probe failed, continuing without stream info")
		return nil
	}
	return probe
}

// install writes a subtitle to its final path via temp file and rename,
// refusing content that no longer parses as a subtitle.
func install(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if format := subtitles.DetectFormat(data); format == subtitles.FormatUnknown {
		return &subtitles.FileError{Kind: subtitles.FileFormatInvalid, Path: src}
	}
	return renameio.WriteFile(dst, data, 0o644)
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", raw)
}
