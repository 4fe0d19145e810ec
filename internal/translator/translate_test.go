package translator_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/providers"
	"github.com/sublarr/sublarr/internal/subtitles"
	"github.com/sublarr/sublarr/internal/testutil"
	"github.com/sublarr/sublarr/internal/translator"
	"github.com/sublarr/sublarr/internal/translator/mock"
)

type fakeSettings struct {
	tmEnabled  bool
	similarity float64
	qualityOn  bool
	threshold  int
	maxRetries int
	batchSize  int
	chain      []string
}

func (f fakeSettings) TMEnabled(context.Context) bool        { return f.tmEnabled }
func (f fakeSettings) TMSimilarity(context.Context) float64  { return f.similarity }
func (f fakeSettings) BatchSize(context.Context) int         { return f.batchSize }
func (f fakeSettings) BackendChain(context.Context) []string { return f.chain }

func (f fakeSettings) QualityEval(context.Context) (bool, int, int) {
	return f.qualityOn, f.threshold, f.maxRetries
}

func defaultSettings() fakeSettings {
	return fakeSettings{tmEnabled: true, similarity: 0.9, threshold: 50, maxRetries: 2, batchSize: 50}
}

func newManager(t *testing.T, tdb *testutil.TestDB, settings translator.Settings, backends ...translator.Backend) *translator.Manager {
	t.Helper()
	registry := translator.NewRegistry()
	for _, b := range backends {
		registry.Register(b)
	}
	chain := translator.NewChain(registry,
		providers.NewBreakerSet(providers.BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute}),
		testutil.NopLogger())
	return translator.NewManager(chain,
		translator.NewMemory(tdb.Conn),
		translator.NewGlossary(tdb.Conn),
		settings, testutil.NopLogger())
}

const testSRT = `1
00:00:01,000 --> 00:00:02,000
First line

2
00:00:03,000 --> 00:00:04,500
Second line
with a break

3
00:00:05,000 --> 00:00:06,000
Third line
`

const testASS = `[Script Info]
Title: test
Language: Japanese

[V4+ Styles]
Format: Name, Fontname, Fontsize
Style: Default,Arial,48
Style: Signs,Arial,48

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
Dialogue: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,First spoken line
Dialogue: 0,0:00:03.00,0:00:04.00,Default,,0,0,0,,Second spoken line
Dialogue: 0,0:00:05.00,0:00:06.00,Signs,,0,0,0,,{\pos(10,20)}SIGN TEXT
`

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTranslateFileSRT(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	m := newManager(t, tdb, defaultSettings(), mock.New())
	input := writeInput(t, "episode.ja.srt", testSRT)
	output := filepath.Join(filepath.Dir(input), "episode.en.srt")

	result, err := m.TranslateFile(context.Background(), translator.Request{
		InputPath: input, OutputPath: output, SourceLang: "ja", TargetLang: "en",
	})
	require.NoError(t, err)
	assert.Equal(t, output, result.OutputPath)
	assert.Equal(t, 3, result.LinesTotal)
	assert.Equal(t, "mock", result.Backend)

	content, err := os.ReadFile(output)
	require.NoError(t, err)
	cues, err := subtitles.ParseSRT(content)
	require.NoError(t, err)
	require.Len(t, cues, 3)
	assert.Equal(t, "[en] First line", cues[0].Text())
	assert.Len(t, cues[1].Lines, 2, "multi-line cue keeps its break")
}

func TestTranslateFileASSPreservesSigns(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	m := newManager(t, tdb, defaultSettings(), mock.New())
	input := writeInput(t, "episode.ja.ass", testASS)
	output := filepath.Join(filepath.Dir(input), "episode.en.ass")

	result, err := m.TranslateFile(context.Background(), translator.Request{
		InputPath: input, OutputPath: output, SourceLang: "ja", TargetLang: "en",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SignsPreserved)

	content, err := os.ReadFile(output)
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "[en] First spoken line")
	assert.Contains(t, text, `{\pos(10,20)}SIGN TEXT`, "signs pass through verbatim")
	assert.Contains(t, text, "Language: English", "header language updated")
}

func TestTranslateFileUsesMemory(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()

	backend := mock.New()
	m := newManager(t, tdb, defaultSettings(), backend)
	require.NoError(t, m.Memory().Store(ctx, "ja", "en", "First line", "Stored translation"))

	input := writeInput(t, "episode.ja.srt", testSRT)
	output := filepath.Join(filepath.Dir(input), "episode.en.srt")

	result, err := m.TranslateFile(ctx, translator.Request{
		InputPath: input, OutputPath: output, SourceLang: "ja", TargetLang: "en",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.LinesFromTM)

	content, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Stored translation")

	// Fresh lines were stored; translating again needs no backend calls.
	backendCallsBefore := backend.TranslateCalls
	result, err = m.TranslateFile(ctx, translator.Request{
		InputPath: input, OutputPath: output, SourceLang: "ja", TargetLang: "en",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.LinesFromTM)
	assert.Equal(t, backendCallsBefore, backend.TranslateCalls)
}

func TestTranslateFileQualitySidecar(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	backend := mock.New()
	backend.EvaluateFn = func(src, dst []string) ([]int, error) {
		scores := make([]int, len(src))
		for i := range scores {
			scores[i] = 85
		}
		return scores, nil
	}

	settings := defaultSettings()
	settings.qualityOn = true
	m := newManager(t, tdb, settings, backend)

	input := writeInput(t, "episode.ja.srt", testSRT)
	output := filepath.Join(filepath.Dir(input), "episode.en.srt")

	result, err := m.TranslateFile(context.Background(), translator.Request{
		InputPath: input, OutputPath: output, SourceLang: "ja", TargetLang: "en",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Quality)
	assert.InDelta(t, 85, result.Quality.AvgQuality, 0.01)
	assert.Equal(t, 85, result.Quality.MinQuality)
	assert.Equal(t, 0, result.Quality.LowQualityLines)

	sidecar, err := os.ReadFile(subtitles.QualitySidecarPath(output))
	require.NoError(t, err)
	var doc struct {
		Scores           []int   `json:"scores"`
		AvgQuality       float64 `json:"avg_quality"`
		QualityThreshold int     `json:"quality_threshold"`
	}
	require.NoError(t, json.Unmarshal(sidecar, &doc))
	assert.Len(t, doc.Scores, 3)
	assert.Equal(t, 50, doc.QualityThreshold)
}

func TestTranslateFileQualityRetryKeepsBest(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	backend := mock.New()
	attempt := 0
	backend.TranslateFn = func(req translator.BatchRequest) ([]string, error) {
		attempt++
		lines := make([]string, len(req.Lines))
		for i, l := range req.Lines {
			if attempt == 1 {
				lines[i] = "bad " + l
			} else {
				lines[i] = "good " + l
			}
		}
		return lines, nil
	}
	backend.EvaluateFn = func(src, dst []string) ([]int, error) {
		scores := make([]int, len(dst))
		for i, d := range dst {
			if strings.HasPrefix(d, "good") {
				scores[i] = 95
			} else {
				scores[i] = 20
			}
		}
		return scores, nil
	}

	settings := defaultSettings()
	settings.qualityOn = true
	settings.tmEnabled = false
	m := newManager(t, tdb, settings, backend)

	input := writeInput(t, "episode.ja.srt", testSRT)
	output := filepath.Join(filepath.Dir(input), "episode.en.srt")

	result, err := m.TranslateFile(context.Background(), translator.Request{
		InputPath: input, OutputPath: output, SourceLang: "ja", TargetLang: "en",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Quality)
	assert.Equal(t, 95, result.Quality.MinQuality, "retry replaced every low-quality line")

	content, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(content), "good ")
	assert.NotContains(t, string(content), "bad ")
}

func TestTranslateFileBatchHalving(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	backend := mock.New()
	backend.TranslateFn = func(req translator.BatchRequest) ([]string, error) {
		// Misbehaves on multi-line batches, exact on single lines.
		if len(req.Lines) > 1 {
			return []string{"merged everything"}, nil
		}
		return []string{"[en] " + req.Lines[0]}, nil
	}

	settings := defaultSettings()
	settings.tmEnabled = false
	m := newManager(t, tdb, settings, backend)

	input := writeInput(t, "episode.ja.srt", testSRT)
	output := filepath.Join(filepath.Dir(input), "episode.en.srt")

	_, err := m.TranslateFile(context.Background(), translator.Request{
		InputPath: input, OutputPath: output, SourceLang: "ja", TargetLang: "en",
	})
	require.NoError(t, err)

	content, err := os.ReadFile(output)
	require.NoError(t, err)
	cues, err := subtitles.ParseSRT(content)
	require.NoError(t, err)
	require.Len(t, cues, 3)
	assert.Equal(t, "[en] First line", cues[0].Text())
	assert.Equal(t, "[en] Third line", cues[2].Text())
}

func TestTranslateFileGlossaryScope(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()

	backend := mock.New()
	m := newManager(t, tdb, defaultSettings(), backend)
	require.NoError(t, m.Glossary().Add(ctx, translator.GlossaryTerm{
		SourceTerm: "魔王", TargetTerm: "Demon King", Scope: "global"}))
	require.NoError(t, m.Glossary().Add(ctx, translator.GlossaryTerm{
		SourceTerm: "魔王", TargetTerm: "Dark Lord", Scope: "Frieren"}))

	input := writeInput(t, "episode.ja.srt", testSRT)
	output := filepath.Join(filepath.Dir(input), "episode.en.srt")

	_, err := m.TranslateFile(ctx, translator.Request{
		InputPath: input, OutputPath: output, SourceLang: "ja", TargetLang: "en", Scope: "Frieren",
	})
	require.NoError(t, err)

	require.Len(t, backend.LastRequest.Glossary, 1, "scoped override replaces the global term")
	assert.Equal(t, "Dark Lord", backend.LastRequest.Glossary[0].TargetTerm)
}

func TestTranslateFileAllBackendsFail(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	backend := mock.New()
	backend.TranslateFn = func(translator.BatchRequest) ([]string, error) {
		return nil, &translator.BackendError{Backend: "mock", Kind: translator.ErrNetwork}
	}

	settings := defaultSettings()
	settings.tmEnabled = false
	m := newManager(t, tdb, settings, backend)

	input := writeInput(t, "episode.ja.srt", testSRT)
	_, err := m.TranslateFile(context.Background(), translator.Request{
		InputPath: input, OutputPath: input + ".out", SourceLang: "ja", TargetLang: "en",
	})
	require.Error(t, err)
	assert.True(t, translator.IsBackendError(err, translator.ErrNetwork))
}
