package translator

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/language"
	"github.com/sublarr/sublarr/internal/subtitles"
)

// Settings supplies the runtime tunables the manager reads per translation.
type Settings interface {
	TMEnabled(ctx context.Context) bool
	TMSimilarity(ctx context.Context) float64
	QualityEval(ctx context.Context) (enabled bool, threshold, maxRetries int)
	BatchSize(ctx context.Context) int
	BackendChain(ctx context.Context) []string
}

// Request describes one file translation.
type Request struct {
	InputPath  string
	OutputPath string
	SourceLang string
	TargetLang string

	// Scope selects series-specific glossary terms; empty means global only.
	Scope string

	// ChainNames overrides the global backend chain, usually per profile.
	ChainNames []string

	// ReferencePath points at an existing translation in another language
	// whose vocabulary should be matched. Optional.
	ReferencePath string

	// Prompt overrides the default system prompt. Optional.
	Prompt string

	// Progress is called after each translated batch. Optional.
	Progress func(done, total int)
}

// Manager coordinates file translation: parsing, memory substitution,
// chained backend calls, evaluation and atomic output writes.
type Manager struct {
	chain    *Chain
	memory   *Memory
	glossary *Glossary
	settings Settings
	logger   zerolog.Logger
}

// NewManager wires the translation manager.
func NewManager(chain *Chain, memory *Memory, glossary *Glossary, settings Settings, logger zerolog.Logger) *Manager {
	return &Manager{
		chain:    chain,
		memory:   memory,
		glossary: glossary,
		settings: settings,
		logger:   logger.With().Str("component", "translator").Logger(),
	}
}

// Chain exposes the backend chain.
func (m *Manager) Chain() *Chain { return m.chain }

// Memory exposes the translation memory store.
func (m *Manager) Memory() *Memory { return m.memory }

// Glossary exposes the glossary store.
func (m *Manager) Glossary() *Glossary { return m.glossary }

// TranslateFile translates one subtitle file and writes the result to
// req.OutputPath atomically. The input format is preserved: ASS stays ASS
// with signs untouched, SRT stays SRT.
func (m *Manager) TranslateFile(ctx context.Context, req Request) (*TranslationResult, error) {
	content, err := os.ReadFile(req.InputPath)
	if err != nil {
		return nil, &subtitles.FileError{Kind: subtitles.FileNotFound, Path: req.InputPath, Err: err}
	}

	switch subtitles.DetectFormat(content) {
	case subtitles.FormatASS, subtitles.FormatSSA:
		return m.translateASS(ctx, req, content)
	case subtitles.FormatSRT:
		return m.translateSRT(ctx, req, content)
	default:
		return nil, &subtitles.FileError{Kind: subtitles.FileFormatInvalid, Path: req.InputPath}
	}
}

func (m *Manager) translateSRT(ctx context.Context, req Request, content []byte) (*TranslationResult, error) {
	cues, err := subtitles.ParseSRT(content)
	if err != nil {
		return nil, err
	}

	lines := make([]string, len(cues))
	for i, cue := range cues {
		// Multi-line cues travel as one logical line; \N keeps the break.
		lines[i] = strings.Join(cue.Lines, `\N`)
	}

	translated, result, err := m.translateLines(ctx, req, lines)
	if err != nil {
		return nil, err
	}

	for i := range cues {
		cues[i].Lines = strings.Split(strings.ReplaceAll(translated[i], `\N`, "\n"), "\n")
	}

	if err := renameio.WriteFile(req.OutputPath, subtitles.MarshalSRT(cues), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write translated subtitle: %w", err)
	}
	result.OutputPath = req.OutputPath
	m.writeQualitySidecar(req.OutputPath, result)
	return result, nil
}

func (m *Manager) translateASS(ctx context.Context, req Request, content []byte) (*TranslationResult, error) {
	file, err := subtitles.ParseASS(content)
	if err != nil {
		return nil, err
	}

	dialog, signs := subtitles.SplitDialog(file)

	lines := make([]string, len(dialog))
	for i, ev := range dialog {
		lines[i] = ev.Text()
	}

	translated, result, err := m.translateLines(ctx, req, lines)
	if err != nil {
		return nil, err
	}

	for i, ev := range dialog {
		ev.SetText(translated[i])
	}
	file.SetScriptInfo("Language", language.Display(req.TargetLang))

	if err := renameio.WriteFile(req.OutputPath, file.Marshal(), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write translated subtitle: %w", err)
	}
	result.OutputPath = req.OutputPath
	result.SignsPreserved = len(signs)
	m.writeQualitySidecar(req.OutputPath, result)
	return result, nil
}

// translateLines runs the core pipeline over bare text lines: memory
// substitution, batched chain translation, evaluation retries, memory store.
func (m *Manager) translateLines(ctx context.Context, req Request, lines []string) ([]string, *TranslationResult, error) {
	result := &TranslationResult{LinesTotal: len(lines)}
	translated := make([]string, len(lines))
	fromTM := make([]bool, len(lines))

	tmEnabled := m.settings.TMEnabled(ctx)
	similarity := m.settings.TMSimilarity(ctx)

	var pending []int
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			translated[i] = line
			continue
		}
		if tmEnabled {
			if hit, ok, err := m.memory.Lookup(ctx, req.SourceLang, req.TargetLang, line, similarity); err != nil {
				return nil, nil, err
			} else if ok {
				translated[i] = hit
				fromTM[i] = true
				result.LinesFromTM++
				continue
			}
		}
		pending = append(pending, i)
	}

	if len(pending) > 0 {
		backends := m.chain.Resolve(m.chainNames(ctx, req))
		glossary, err := m.glossary.TermsFor(ctx, req.Scope)
		if err != nil {
			return nil, nil, err
		}
		reference := m.loadReference(req.ReferencePath)

		batchSize := m.settings.BatchSize(ctx)
		if batchSize <= 0 {
			batchSize = 50
		}

		done := 0
		for start := 0; start < len(pending); start += batchSize {
			end := start + batchSize
			if end > len(pending) {
				end = len(pending)
			}
			indices := pending[start:end]

			batchLines := make([]string, len(indices))
			for j, idx := range indices {
				batchLines[j] = lines[idx]
			}

			out, backend, attempts, err := m.translateBatch(ctx, backends, BatchRequest{
				Lines:          batchLines,
				SourceLang:     req.SourceLang,
				TargetLang:     req.TargetLang,
				Glossary:       glossary,
				ReferenceLines: ReferenceWindow(reference, indices[0], indices[len(indices)-1]+1, len(lines)),
				Prompt:         req.Prompt,
			})
			result.Attempts = append(result.Attempts, attempts...)
			if err != nil {
				return nil, nil, err
			}
			result.Backend = backend

			for j, idx := range indices {
				translated[idx] = out[j]
			}

			done += len(indices)
			if req.Progress != nil {
				req.Progress(done, len(pending))
			}
		}

		if stats, scores, updated := m.evaluate(ctx, req, backends, result.Backend, lines, translated, fromTM); stats != nil {
			result.Quality = stats
			result.LineScores = scores
			translated = updated
		}

		if tmEnabled {
			for _, idx := range pending {
				if err := m.memory.Store(ctx, req.SourceLang, req.TargetLang, lines[idx], translated[idx]); err != nil {
					m.logger.Warn().Err(err).Msg("Failed to store translation memory entry")
				}
			}
		}
	}

	return translated, result, nil
}

// translateBatch sends one batch through the chain, halving the batch on a
// line-count violation until single lines go through.
func (m *Manager) translateBatch(ctx context.Context, backends []Backend, req BatchRequest) ([]string, string, []BackendAttempt, error) {
	result, backend, attempts, err := m.chain.Translate(ctx, backends, req)
	if err == nil {
		return result.Lines, backend, attempts, nil
	}
	if !IsBackendError(err, ErrLineCount) || len(req.Lines) <= 1 {
		return nil, "", attempts, err
	}

	mid := len(req.Lines) / 2
	left := req
	left.Lines = req.Lines[:mid]
	right := req
	right.Lines = req.Lines[mid:]

	leftOut, leftBackend, leftAttempts, err := m.translateBatch(ctx, backends, left)
	attempts = append(attempts, leftAttempts...)
	if err != nil {
		return nil, "", attempts, err
	}
	rightOut, _, rightAttempts, err := m.translateBatch(ctx, backends, right)
	attempts = append(attempts, rightAttempts...)
	if err != nil {
		return nil, "", attempts, err
	}
	return append(leftOut, rightOut...), leftBackend, attempts, nil
}

func (m *Manager) chainNames(ctx context.Context, req Request) []string {
	if len(req.ChainNames) > 0 {
		return req.ChainNames
	}
	return m.settings.BackendChain(ctx)
}

// loadReference reads an SRT reference file into bare text lines. A missing
// or unparsable reference degrades to no reference, never to a failure.
func (m *Manager) loadReference(path string) []string {
	if path == "" {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		m.logger.Warn().Err(err).Str("path", path).Msg("Failed to read reference subtitle")
		return nil
	}
	cues, err := subtitles.ParseSRT(content)
	if err != nil {
		m.logger.Warn().Err(err).Str("path", path).Msg("Failed to parse reference subtitle")
		return nil
	}
	lines := make([]string, 0, len(cues))
	for _, cue := range cues {
		if text := strings.TrimSpace(cue.Text()); text != "" {
			lines = append(lines, strings.ReplaceAll(text, "\n", " "))
		}
	}
	return lines
}
