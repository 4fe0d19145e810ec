package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/history"
	"github.com/sublarr/sublarr/internal/language"
	"github.com/sublarr/sublarr/internal/media"
	"github.com/sublarr/sublarr/internal/providers"
	"github.com/sublarr/sublarr/internal/settings"
	"github.com/sublarr/sublarr/internal/subtitles"
	"github.com/sublarr/sublarr/internal/translator"
	"github.com/sublarr/sublarr/internal/wanted"
)

// Failure reasons stored on failed wanted items.
const (
	ReasonNoSource      = "no_source"
	ReasonNoTarget      = "no_target"
	ReasonTranslation   = "translation_error"
	ReasonTranscription = "transcription_error"
	ReasonIO            = "io_error"
)

// maxDownloadCandidates bounds how many ranked results one item tries.
const maxDownloadCandidates = 3

// Failure is a terminal pipeline error with a stable reason prefix.
type Failure struct {
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Reason
	}
	return f.Reason + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(reason string, err error) *Failure {
	return &Failure{Reason: reason, Err: err}
}

// FailureReason extracts the stable reason from a pipeline error.
func FailureReason(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ReasonIO
}

// outcome carries what one successful acquisition produced.
type outcome struct {
	note       string
	resultPath string
	resultHash string
	provider   string
	backend    string
	score      int
	prevFormat string
	sourceLang string
	avgQuality float64
	translated bool

	// event is the history event type; empty means nothing new on disk.
	event string
}

func (e *Engine) run(ctx context.Context, it *wanted.Item) (*outcome, error) {
	if _, err := os.Stat(it.FilePath); err != nil {
		return nil, fail(ReasonNoSource, fmt.Errorf("video missing: %w", err))
	}
	mc, err := e.mediaContext(ctx, it)
	if err != nil {
		return nil, err
	}

	if it.SubtitleType == subtitles.TypeForced {
		return e.acquireForced(ctx, it, mc)
	}

	existing := subtitles.FindExisting(it.FilePath, it.TargetLanguage, subtitles.TypeFull)
	if existing != nil {
		if existing.Format.IsStyled() {
			return skipOutcome(existing), nil
		}
		if e.inUpgradeWindow(ctx, mc) {
			return e.upgrade(ctx, it, mc, existing)
		}
		return skipOutcome(existing), nil
	}
	return e.acquire(ctx, it, mc)
}

func skipOutcome(existing *subtitles.ExistingSubtitle) *outcome {
	hash, _ := hashFile(existing.Path)
	return &outcome{note: "skip: present", resultPath: existing.Path, resultHash: hash}
}

// acquireForced downloads a forced subtitle in the target language. Forced
// tracks are download-only and never translated.
func (e *Engine) acquireForced(ctx context.Context, it *wanted.Item, mc *mediaContext) (*outcome, error) {
	if existing := subtitles.FindExisting(it.FilePath, it.TargetLanguage, subtitles.TypeForced); existing != nil {
		return skipOutcome(existing), nil
	}

	query := mc.query
	query.SourceLang = mc.sourceLang
	query.TargetLang = it.TargetLanguage
	query.ForcedOnly = true

	results, err := e.providers.Search(ctx, query)
	if err != nil {
		return nil, fail(ReasonNoTarget, err)
	}
	if len(results) == 0 {
		return nil, fail(ReasonNoTarget, errors.New("no forced subtitles found"))
	}
	return e.downloadInstall(ctx, it, results, subtitles.TypeForced)
}

// downloadInstall fetches the best ranked result and renames it into place.
func (e *Engine) downloadInstall(ctx context.Context, it *wanted.Item, results []providers.SubtitleResult, subType subtitles.SubtitleType) (*outcome, error) {
	if err := e.store.SetStatus(ctx, it.ID, wanted.StatusDownloading); err != nil {
		return nil, fail(ReasonIO, err)
	}
	tmp, err := os.MkdirTemp("", "sublarr-dl-*")
	if err != nil {
		return nil, fail(ReasonIO, err)
	}
	defer os.RemoveAll(tmp)

	for i, result := range results {
		if i >= maxDownloadCandidates {
			break
		}
		path, hash, err := e.providers.Download(ctx, result, tmp)
		if err != nil {
			e.logger.Warn().Err(err).Str("provider", result.Provider).Msg("Download failed, trying next candidate")
			continue
		}
		final := subtitles.OutputPath(it.FilePath, it.TargetLanguage, subType, subtitles.FormatFromPath(path))
		if err := install(path, final); err != nil {
			return nil, fail(ReasonIO, err)
		}
		return &outcome{
			event:      history.EventDownloaded,
			note:       "downloaded from " + result.Provider,
			resultPath: final,
			resultHash: hash,
			provider:   result.Provider,
			score:      result.Score,
		}, nil
	}
	return nil, fail(ReasonNoTarget, errors.New("all download candidates failed"))
}

// inUpgradeWindow reports whether the file was added recently enough that
// an SRT is still worth upgrading to ASS.
func (e *Engine) inUpgradeWindow(ctx context.Context, mc *mediaContext) bool {
	if mc.dateAdded == nil || *mc.dateAdded == "" {
		return false
	}
	added, err := parseTimestamp(*mc.dateAdded)
	if err != nil {
		return false
	}
	days := e.settings.GetInt(ctx, settings.KeyUpgradeWindowDays)
	if days <= 0 {
		return false
	}
	return time.Since(added) <= time.Duration(days)*24*time.Hour
}

// upgrade tries to replace an existing target SRT with a styled subtitle:
// a provider ASS first, then a translated embedded source ASS. With no
// upgrade path the SRT stays and the item completes.
func (e *Engine) upgrade(ctx context.Context, it *wanted.Item, mc *mediaContext, existing *subtitles.ExistingSubtitle) (*outcome, error) {
	query := mc.query
	query.SourceLang = mc.sourceLang
	query.TargetLang = it.TargetLanguage

	results, err := e.providers.Search(ctx, query)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Upgrade search failed")
		results = nil
	}
	var styled []providers.SubtitleResult
	for _, r := range results {
		if subtitles.Format(r.Format).IsStyled() {
			styled = append(styled, r)
		}
	}
	if len(styled) > 0 {
		out, err := e.downloadInstall(ctx, it, styled, subtitles.TypeFull)
		if err == nil {
			out.event = history.EventUpgraded
			out.prevFormat = string(existing.Format)
			out.note = "upgraded " + string(existing.Format) + " from " + out.provider
			e.cleanupReplaced(ctx, existing, out.resultPath)
			return out, nil
		}
		e.logger.Warn().Err(err).Msg("Styled download failed, trying embedded source")
	}

	if probe := e.probe(ctx, it.FilePath); probe != nil && mc.sourceLang != "" {
		stream := probe.SubtitleInLanguage(mc.sourceLang, language.Equal)
		if stream != nil && stream.IsASS() && !stream.Forced {
			out, err := e.translateStream(ctx, it, mc, *stream, existing.Path)
			if err == nil {
				out.event = history.EventUpgraded
				out.prevFormat = string(existing.Format)
				out.note = "upgraded " + string(existing.Format) + " via translation"
				e.cleanupReplaced(ctx, existing, out.resultPath)
				return out, nil
			}
			e.logger.Warn().Err(err).Msg("Upgrade translation failed, keeping SRT")
		}
	}

	out := skipOutcome(existing)
	out.note = "no upgrade path"
	return out, nil
}

// cleanupReplaced removes the superseded SRT when configured to. The
// default keeps both files on disk.
func (e *Engine) cleanupReplaced(ctx context.Context, existing *subtitles.ExistingSubtitle, newPath string) {
	if !e.settings.GetBool(ctx, settings.KeyUpgradeDeleteSRT) || existing.Path == newPath {
		return
	}
	if err := os.Remove(existing.Path); err != nil {
		e.logger.Warn().Err(err).Str("path", existing.Path).Msg("Failed to remove replaced subtitle")
	}
}

// acquire handles items with no usable target subtitle: embedded target
// extraction, embedded source translation, provider download plus
// translation, and finally transcription when enabled.
func (e *Engine) acquire(ctx context.Context, it *wanted.Item, mc *mediaContext) (*outcome, error) {
	probe := e.probe(ctx, it.FilePath)

	// An embedded target-language track only needs extracting.
	if probe != nil {
		if stream := probe.SubtitleInLanguage(it.TargetLanguage, language.Equal); stream != nil && stream.IsTextual() && !stream.Forced {
			return e.extractTarget(ctx, it, *stream)
		}
	}

	// Embedded source-language track: extract, then translate.
	if probe != nil && mc.sourceLang != "" {
		if stream := probe.SubtitleInLanguage(mc.sourceLang, language.Equal); stream != nil && stream.IsTextual() && !stream.Forced {
			return e.translateStream(ctx, it, mc, *stream, "")
		}
	}

	// Providers as translation input.
	var results []providers.SubtitleResult
	if mc.sourceLang != "" {
		query := mc.query
		query.SourceLang = mc.sourceLang
		var err error
		results, err = e.providers.Search(ctx, query)
		if err != nil {
			e.logger.Warn().Err(err).Msg("Source search failed")
			results = nil
		}
	}

	whisper := e.settings.GetBool(ctx, settings.KeyWhisperEnabled) && e.Transcriber != nil
	threshold := e.settings.GetInt(ctx, settings.KeyWhisperScoreMin)

	if len(results) > 0 && (!whisper || results[0].Score >= threshold) {
		out, err := e.downloadTranslate(ctx, it, mc, results)
		if err == nil {
			return out, nil
		}
		// A failed translation would fail on transcribed text too.
		if !whisper || FailureReason(err) == ReasonTranslation {
			return nil, err
		}
		e.logger.Warn().Err(err).Msg("Provider path failed, falling back to transcription")
	}

	if whisper {
		return e.transcribeTranslate(ctx, it, mc)
	}
	return nil, fail(ReasonNoSource, errors.New("no subtitle source available"))
}

// extractTarget installs an embedded target-language track as the result.
func (e *Engine) extractTarget(ctx context.Context, it *wanted.Item, stream media.SubtitleStream) (*outcome, error) {
	tmp, err := os.MkdirTemp("", "sublarr-extract-*")
	if err != nil {
		return nil, fail(ReasonIO, err)
	}
	defer os.RemoveAll(tmp)

	extracted, err := e.prober.ExtractSubtitle(ctx, it.FilePath, stream, tmp)
	if err != nil {
		return nil, fail(ReasonNoSource, err)
	}
	final := subtitles.OutputPath(it.FilePath, it.TargetLanguage, subtitles.TypeFull, subtitles.FormatFromPath(extracted))
	if err := install(extracted, final); err != nil {
		return nil, fail(ReasonIO, err)
	}
	hash, _ := hashFile(final)
	return &outcome{
		event:      history.EventExtracted,
		note:       "extracted embedded track",
		resultPath: final,
		resultHash: hash,
	}, nil
}

// translateStream extracts an embedded source track and translates it.
func (e *Engine) translateStream(ctx context.Context, it *wanted.Item, mc *mediaContext, stream media.SubtitleStream, refPath string) (*outcome, error) {
	tmp, err := os.MkdirTemp("", "sublarr-extract-*")
	if err != nil {
		return nil, fail(ReasonIO, err)
	}
	defer os.RemoveAll(tmp)

	extracted, err := e.prober.ExtractSubtitle(ctx, it.FilePath, stream, tmp)
	if err != nil {
		return nil, fail(ReasonNoSource, err)
	}
	return e.translateFile(ctx, it, mc, extracted, refPath)
}

// downloadTranslate fetches source-language material and translates it.
// The download stays in the temp dir; only the translation lands on disk.
func (e *Engine) downloadTranslate(ctx context.Context, it *wanted.Item, mc *mediaContext, results []providers.SubtitleResult) (*outcome, error) {
	if err := e.store.SetStatus(ctx, it.ID, wanted.StatusDownloading); err != nil {
		return nil, fail(ReasonIO, err)
	}
	tmp, err := os.MkdirTemp("", "sublarr-dl-*")
	if err != nil {
		return nil, fail(ReasonIO, err)
	}
	defer os.RemoveAll(tmp)

	var src string
	var picked providers.SubtitleResult
	for i, result := range results {
		if i >= maxDownloadCandidates {
			break
		}
		path, _, err := e.providers.Download(ctx, result, tmp)
		if err != nil {
			e.logger.Warn().Err(err).Str("provider", result.Provider).Msg("Download failed, trying next candidate")
			continue
		}
		src, picked = path, result
		break
	}
	if src == "" {
		return nil, fail(ReasonNoSource, errors.New("all provider downloads failed"))
	}

	out, err := e.translateFile(ctx, it, mc, src, "")
	if err != nil {
		return nil, err
	}
	out.provider = picked.Provider
	out.score = picked.Score
	out.note = "translated " + picked.Provider + " subtitle via " + out.backend
	return out, nil
}

// transcribeTranslate runs the Whisper fallback, then translates the
// transcript.
func (e *Engine) transcribeTranslate(ctx context.Context, it *wanted.Item, mc *mediaContext) (*outcome, error) {
	if err := e.store.SetStatus(ctx, it.ID, wanted.StatusTranscribing); err != nil {
		return nil, fail(ReasonIO, err)
	}
	tmp, err := os.MkdirTemp("", "sublarr-whisper-*")
	if err != nil {
		return nil, fail(ReasonIO, err)
	}
	defer os.RemoveAll(tmp)

	transcript, err := e.Transcriber.Transcribe(ctx, it.FilePath, mc.sourceLang, tmp)
	if err != nil {
		return nil, fail(ReasonTranscription, err)
	}
	e.emit(events.EventTranscriptionComplete, map[string]any{
		"file_path": it.FilePath,
		"language":  mc.sourceLang,
	})

	out, err := e.translateFile(ctx, it, mc, transcript, "")
	if err != nil {
		return nil, err
	}
	out.note = "transcribed and translated via " + out.backend
	return out, nil
}

// translateFile runs one translation into the item's output path. The
// output format follows the input: ASS in, ASS out.
func (e *Engine) translateFile(ctx context.Context, it *wanted.Item, mc *mediaContext, inputPath, refPath string) (*outcome, error) {
	if err := e.store.SetStatus(ctx, it.ID, wanted.StatusTranslating); err != nil {
		return nil, fail(ReasonIO, err)
	}

	if refPath == "" {
		if ref := subtitles.FindExisting(it.FilePath, it.TargetLanguage, subtitles.TypeFull); ref != nil && ref.Format == subtitles.FormatSRT {
			refPath = ref.Path
		}
	}

	outPath := subtitles.OutputPath(it.FilePath, it.TargetLanguage, subtitles.TypeFull, subtitles.FormatFromPath(inputPath))
	result, err := e.translator.TranslateFile(ctx, translator.Request{
		InputPath:     inputPath,
		OutputPath:    outPath,
		SourceLang:    mc.sourceLang,
		TargetLang:    it.TargetLanguage,
		Scope:         mc.scope,
		ChainNames:    mc.chain,
		ReferencePath: refPath,
	})
	if err != nil {
		e.emit(events.EventTranslationFailed, map[string]any{
			"file_path":       it.FilePath,
			"source_language": mc.sourceLang,
			"target_language": it.TargetLanguage,
			"errors":          err.Error(),
		})
		return nil, fail(ReasonTranslation, err)
	}

	hash, _ := hashFile(outPath)
	out := &outcome{
		event:      history.EventTranslated,
		note:       "translated via " + result.Backend,
		resultPath: outPath,
		resultHash: hash,
		backend:    result.Backend,
		sourceLang: mc.sourceLang,
		translated: true,
	}
	if result.Quality != nil {
		out.avgQuality = result.Quality.AvgQuality
	}
	return out, nil
}
