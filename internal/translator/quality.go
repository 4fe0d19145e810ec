package translator

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/sublarr/sublarr/internal/subtitles"
)

const evalBatchSize = 50

// fallbackScore stands in when the evaluator errors; evaluation problems
// never fail a translation.
const fallbackScore = 50

// pickEvaluator chooses the evaluation backend: the backend that produced
// the translation when it can evaluate, otherwise the first chain member
// that can.
func pickEvaluator(backends []Backend, producing string) Evaluator {
	for _, b := range backends {
		if b.Name() == producing && b.SupportsEvaluation() {
			if ev, ok := b.(Evaluator); ok {
				return ev
			}
		}
	}
	for _, b := range backends {
		if b.SupportsEvaluation() {
			if ev, ok := b.(Evaluator); ok {
				return ev
			}
		}
	}
	return nil
}

// evaluate scores freshly translated lines and retries the ones below the
// threshold, keeping the best-scoring version of each. Returns nil stats
// when evaluation is disabled or no backend can evaluate.
func (m *Manager) evaluate(ctx context.Context, req Request, backends []Backend, producing string,
	lines, translated []string, fromTM []bool) (*QualityStats, []int, []string) {

	enabled, threshold, maxRetries := m.settings.QualityEval(ctx)
	if !enabled {
		return nil, nil, translated
	}
	evaluator := pickEvaluator(backends, producing)
	if evaluator == nil {
		return nil, nil, translated
	}

	// Memory hits were scored when first stored; only fresh lines count.
	var indices []int
	for i := range lines {
		if !fromTM[i] && strings.TrimSpace(lines[i]) != "" {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		return nil, nil, translated
	}

	best := make([]string, len(translated))
	copy(best, translated)
	scores := m.scoreLines(ctx, evaluator, req, lines, best, indices)

	for attempt := 0; attempt < maxRetries; attempt++ {
		var low []int
		for _, idx := range indices {
			if scores[idx] < threshold {
				low = append(low, idx)
			}
		}
		if len(low) == 0 {
			break
		}

		retryLines := make([]string, len(low))
		for j, idx := range low {
			retryLines[j] = lines[idx]
		}
		out, _, _, err := m.translateBatch(ctx, backends, BatchRequest{
			Lines:      retryLines,
			SourceLang: req.SourceLang,
			TargetLang: req.TargetLang,
			Prompt:     req.Prompt,
		})
		if err != nil {
			m.logger.Warn().Err(err).Int("lines", len(low)).Msg("Quality retry translation failed")
			break
		}

		candidate := make([]string, len(best))
		copy(candidate, best)
		for j, idx := range low {
			candidate[idx] = out[j]
		}
		newScores := m.scoreLines(ctx, evaluator, req, lines, candidate, low)

		for _, idx := range low {
			if newScores[idx] > scores[idx] {
				scores[idx] = newScores[idx]
				best[idx] = candidate[idx]
			}
		}
	}

	stats := &QualityStats{MinQuality: 101, QualityThreshold: threshold}
	sum := 0
	for _, idx := range indices {
		s := scores[idx]
		sum += s
		if s < stats.MinQuality {
			stats.MinQuality = s
		}
		if s < threshold {
			stats.LowQualityLines++
		}
	}
	stats.AvgQuality = float64(sum) / float64(len(indices))

	lineScores := make([]int, len(lines))
	for i := range lineScores {
		lineScores[i] = -1
	}
	for _, idx := range indices {
		lineScores[idx] = scores[idx]
	}
	return stats, lineScores, best
}

// scoreLines evaluates the given line indexes in batches. Evaluator errors
// and malformed responses fall back to a neutral score.
func (m *Manager) scoreLines(ctx context.Context, evaluator Evaluator, req Request,
	lines, translated []string, indices []int) map[int]int {

	scores := make(map[int]int, len(indices))
	for start := 0; start < len(indices); start += evalBatchSize {
		end := start + evalBatchSize
		if end > len(indices) {
			end = len(indices)
		}
		batch := indices[start:end]

		src := make([]string, len(batch))
		dst := make([]string, len(batch))
		for j, idx := range batch {
			src[j] = lines[idx]
			dst[j] = translated[idx]
		}

		batchScores, err := evaluator.EvaluateBatch(ctx, src, dst, req.SourceLang, req.TargetLang)
		if err != nil || len(batchScores) != len(batch) {
			if err != nil {
				m.logger.Warn().Err(err).Msg("Quality evaluation failed, using fallback score")
			}
			for _, idx := range batch {
				scores[idx] = fallbackScore
			}
			continue
		}
		for j, idx := range batch {
			s := batchScores[j]
			if s < 0 {
				s = 0
			}
			if s > 100 {
				s = 100
			}
			scores[idx] = s
		}
	}
	return scores
}

type qualitySidecar struct {
	Scores []int `json:"scores"`
	QualityStats
}

// writeQualitySidecar persists per-line scores next to the subtitle as
// <subtitle>.quality.json. Sidecar failures are logged, never fatal.
func (m *Manager) writeQualitySidecar(subtitlePath string, result *TranslationResult) {
	if result.Quality == nil || result.LineScores == nil {
		return
	}
	payload, err := json.MarshalIndent(qualitySidecar{
		Scores:       result.LineScores,
		QualityStats: *result.Quality,
	}, "", "  ")
	if err != nil {
		return
	}
	sidecar := subtitles.QualitySidecarPath(subtitlePath)
	if err := renameio.WriteFile(sidecar, payload, 0o644); err != nil {
		m.logger.Warn().Err(err).Str("path", sidecar).Msg("Failed to write quality sidecar")
	}
}
