package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/history"
	"github.com/sublarr/sublarr/internal/integrations"
	"github.com/sublarr/sublarr/internal/library"
	"github.com/sublarr/sublarr/internal/media"
	"github.com/sublarr/sublarr/internal/profiles"
	"github.com/sublarr/sublarr/internal/providers"
	pmock "github.com/sublarr/sublarr/internal/providers/mock"
	"github.com/sublarr/sublarr/internal/settings"
	"github.com/sublarr/sublarr/internal/subtitles"
	"github.com/sublarr/sublarr/internal/testutil"
	"github.com/sublarr/sublarr/internal/translator"
	tmock "github.com/sublarr/sublarr/internal/translator/mock"
	"github.com/sublarr/sublarr/internal/wanted"
)

const probeNoSubs = `{
	"format": {"format_name": "matroska"},
	"streams": [{"index": 1, "codec_type": "audio", "codec_name": "aac", "tags": {"language": "jpn"}}]
}`

const probeJaASS = `{
	"format": {"format_name": "matroska"},
	"streams": [
		{"index": 1, "codec_type": "audio", "codec_name": "aac", "tags": {"language": "jpn"}},
		{"index": 2, "codec_type": "subtitle", "codec_name": "ass", "tags": {"language": "jpn"}}
	]
}`

const probeEnSRT = `{
	"format": {"format_name": "matroska"},
	"streams": [{"index": 2, "codec_type": "subtitle", "codec_name": "subrip", "tags": {"language": "eng"}}]
}`

const sampleSRT = `1
00:00:01,000 --> 00:00:02,000
First line

2
00:00:03,000 --> 00:00:04,000
Second line
`

const sampleASS = `[Script Info]
Title: test

[V4+ Styles]
Format: Name, Fontname, Fontsize
Style: Default,Arial,48

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
Dialogue: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,First spoken line
Dialogue: 0,0:00:03.00,0:00:04.00,Default,,0,0,0,,Second spoken line
`

// fakeRunner answers ffprobe calls with canned JSON and materializes
// ffmpeg extractions by writing the configured content.
type fakeRunner struct {
	probeJSON string
}

func (r *fakeRunner) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	if len(args) > 0 && args[0] == "-y" {
		out := args[len(args)-1]
		content := sampleSRT
		if strings.HasSuffix(out, ".ass") {
			content = sampleASS
		}
		return nil, os.WriteFile(out, []byte(content), 0o644)
	}
	return []byte(r.probeJSON), nil
}

type fakeTranscriber struct {
	calls int
	err   error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, videoPath, _, destDir string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	base := filepath.Base(videoPath)
	path := filepath.Join(destDir, strings.TrimSuffix(base, filepath.Ext(base))+".srt")
	return path, os.WriteFile(path, []byte(sampleSRT), 0o644)
}

type fakeRefresher struct {
	calls int
	paths []string
}

func (f *fakeRefresher) RefreshAll(_ context.Context, path, _ string) *integrations.RefreshSummary {
	f.calls++
	f.paths = append(f.paths, path)
	return &integrations.RefreshSummary{}
}

type provSettings struct{}

func (provSettings) FormatBonus(context.Context) int             { return 50 }
func (provSettings) MTPenalty(context.Context) (bool, int, int)  { return false, 0, 0 }
func (provSettings) CacheTTL(context.Context) time.Duration      { return time.Hour }
func (provSettings) SearchTimeout(context.Context) time.Duration { return 5 * time.Second }

type transSettings struct{}

func (transSettings) TMEnabled(context.Context) bool               { return false }
func (transSettings) TMSimilarity(context.Context) float64         { return 0.9 }
func (transSettings) BatchSize(context.Context) int                { return 50 }
func (transSettings) BackendChain(context.Context) []string        { return []string{"mock"} }
func (transSettings) QualityEval(context.Context) (bool, int, int) { return false, 0, 0 }

type fixture struct {
	engine      *Engine
	store       *wanted.Store
	library     *library.Store
	settings    *settings.Service
	history     *history.Service
	provider    *pmock.Provider
	backend     *tmock.Backend
	transcriber *fakeTranscriber
	refresher   *fakeRefresher
}

func newFixture(t *testing.T, probeJSON string) *fixture {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)

	provider := pmock.New()
	pm := providers.NewManager(
		providers.NewRegistry(),
		providers.NewCache(tdb.Conn),
		providers.NewBlacklist(tdb.Conn),
		providers.NewScoringStore(tdb.Conn, provSettings{}, testutil.NopLogger()),
		providers.NewBreakerSet(providers.BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute}),
		provSettings{},
		testutil.NopLogger(),
	)
	pm.Registry().Register(provider, 1)

	backend := tmock.New()
	registry := translator.NewRegistry()
	registry.Register(backend)
	chain := translator.NewChain(registry,
		providers.NewBreakerSet(providers.BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute}),
		testutil.NopLogger())
	tm := translator.NewManager(chain,
		translator.NewMemory(tdb.Conn),
		translator.NewGlossary(tdb.Conn),
		transSettings{}, testutil.NopLogger())

	prober := media.NewProber(&fakeRunner{probeJSON: probeJSON}, "", "", testutil.NopLogger())

	f := &fixture{
		store:       wanted.NewStore(tdb.Conn),
		library:     library.NewStore(tdb.Conn, testutil.NopLogger()),
		settings:    settings.NewService(tdb.Conn, testutil.NopLogger()),
		history:     history.NewService(tdb.Conn, testutil.NopLogger()),
		provider:    provider,
		backend:     backend,
		transcriber: &fakeTranscriber{},
		refresher:   &fakeRefresher{},
	}
	f.engine = NewEngine(f.store, f.library,
		profiles.NewService(tdb.Conn, testutil.NopLogger()),
		pm, tm, prober, f.settings, f.history, nil, testutil.NopLogger())
	f.engine.Refresher = f.refresher
	return f
}

func (f *fixture) addVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "show s01e01.mkv")
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
	return path
}

func (f *fixture) addItem(t *testing.T, path string, subType subtitles.SubtitleType) int64 {
	t.Helper()
	id, _, err := f.store.Upsert(context.Background(), wanted.Item{
		FilePath:       path,
		TargetLanguage: "en",
		SubtitleType:   subType,
		MediaType:      "episode",
		SourceLanguage: "ja",
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) item(t *testing.T, id int64) *wanted.Item {
	t.Helper()
	item, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return item
}

func stem(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

func TestSkipWhenStyledTargetPresent(t *testing.T) {
	f := newFixture(t, probeNoSubs)
	video := f.addVideo(t)
	require.NoError(t, os.WriteFile(stem(video)+".en.ass", []byte(sampleASS), 0o644))
	id := f.addItem(t, video, subtitles.TypeFull)

	require.NoError(t, f.engine.ProcessItem(context.Background(), id))

	item := f.item(t, id)
	assert.Equal(t, wanted.StatusCompleted, item.Status)
	require.NotNil(t, item.ResultPath)
	assert.Equal(t, stem(video)+".en.ass", *item.ResultPath)
	assert.Zero(t, f.provider.SearchCalls)
	assert.Zero(t, f.refresher.calls, "skips do not trigger refreshes")
}

func TestForcedItemsAreDownloadOnly(t *testing.T) {
	f := newFixture(t, probeNoSubs)
	video := f.addVideo(t)
	id := f.addItem(t, video, subtitles.TypeForced)

	f.provider.Results = []providers.SubtitleResult{
		{ID: "f1", Language: "en", Format: "srt", Forced: true},
	}
	f.provider.Content["f1"] = []byte(sampleSRT)

	require.NoError(t, f.engine.ProcessItem(context.Background(), id))

	assert.True(t, f.provider.LastQuery.ForcedOnly)
	assert.FileExists(t, stem(video)+".en.forced.srt")
	assert.Zero(t, f.backend.TranslateCalls, "forced subtitles are never translated")
	assert.Equal(t, 1, f.refresher.calls)

	entries, err := f.history.ForMedia(context.Background(), "episode", 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, history.EventDownloaded, entries[0].EventType)
}

func TestAcquireExtractsEmbeddedTarget(t *testing.T) {
	f := newFixture(t, probeEnSRT)
	video := f.addVideo(t)
	id := f.addItem(t, video, subtitles.TypeFull)

	require.NoError(t, f.engine.ProcessItem(context.Background(), id))

	item := f.item(t, id)
	assert.Equal(t, wanted.StatusCompleted, item.Status)
	assert.FileExists(t, stem(video)+".en.srt")
	assert.Zero(t, f.backend.TranslateCalls, "an embedded target track needs no translation")
	assert.Zero(t, f.provider.SearchCalls)
}

func TestAcquireTranslatesEmbeddedSource(t *testing.T) {
	f := newFixture(t, probeJaASS)
	video := f.addVideo(t)
	id := f.addItem(t, video, subtitles.TypeFull)

	require.NoError(t, f.engine.ProcessItem(context.Background(), id))

	item := f.item(t, id)
	assert.Equal(t, wanted.StatusCompleted, item.Status)
	require.NotNil(t, item.ResultHash)

	out := stem(video) + ".en.ass"
	assert.FileExists(t, out)
	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[en] First spoken line")
	assert.Equal(t, 1, f.refresher.calls)
}

func TestAcquireDownloadsAndTranslates(t *testing.T) {
	f := newFixture(t, probeNoSubs)
	video := f.addVideo(t)
	id := f.addItem(t, video, subtitles.TypeFull)

	f.provider.Results = []providers.SubtitleResult{
		{ID: "ja1", Language: "ja", Format: "srt"},
	}
	f.provider.Content["ja1"] = []byte(sampleSRT)

	require.NoError(t, f.engine.ProcessItem(context.Background(), id))

	item := f.item(t, id)
	assert.Equal(t, wanted.StatusCompleted, item.Status)
	assert.Equal(t, 1, f.provider.DownloadCalls)

	out := stem(video) + ".en.srt"
	assert.FileExists(t, out)
	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[en] First line")

	// The source-language download itself never lands next to the video.
	assert.NoFileExists(t, stem(video)+".ja.srt")

	resp, err := f.history.List(context.Background(), history.ListOptions{EventType: history.EventTranslated})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "mock", resp.Items[0].Provider)
	assert.Equal(t, "mock", resp.Items[0].Backend)
}

func (f *fixture) addLibraryEpisode(t *testing.T, path, dateAdded string) {
	t.Helper()
	ctx := context.Background()
	seriesID, err := f.library.UpsertSeries(ctx, library.Series{
		InstanceID: 1, RemoteID: 1, Title: "Show", Path: filepath.Dir(path),
	})
	require.NoError(t, err)
	_, err = f.library.UpsertEpisode(ctx, library.Episode{
		SeriesID: seriesID, Season: 1, Episode: 1, FilePath: path, DateAdded: &dateAdded,
	})
	require.NoError(t, err)
}

func TestUpgradeReplacesRecentSRT(t *testing.T) {
	f := newFixture(t, probeNoSubs)
	video := f.addVideo(t)
	f.addLibraryEpisode(t, video, time.Now().UTC().Format("2006-01-02 15:04:05"))
	require.NoError(t, os.WriteFile(stem(video)+".en.srt", []byte(sampleSRT), 0o644))
	id := f.addItem(t, video, subtitles.TypeFull)

	f.provider.Results = []providers.SubtitleResult{
		{ID: "a1", Language: "en", Format: "ass"},
	}
	f.provider.Content["a1"] = []byte(sampleASS)

	require.NoError(t, f.engine.ProcessItem(context.Background(), id))

	item := f.item(t, id)
	assert.Equal(t, wanted.StatusCompleted, item.Status)
	assert.FileExists(t, stem(video)+".en.ass")
	assert.FileExists(t, stem(video)+".en.srt", "replaced SRT is kept by default")

	resp, err := f.history.List(context.Background(), history.ListOptions{EventType: history.EventUpgraded})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "srt", resp.Items[0].Data["previous_format"])
}

func TestUpgradeDeletesSRTWhenConfigured(t *testing.T) {
	f := newFixture(t, probeNoSubs)
	ctx := context.Background()
	require.NoError(t, f.settings.Set(ctx, settings.KeyUpgradeDeleteSRT, "true"))

	video := f.addVideo(t)
	f.addLibraryEpisode(t, video, time.Now().UTC().Format("2006-01-02 15:04:05"))
	require.NoError(t, os.WriteFile(stem(video)+".en.srt", []byte(sampleSRT), 0o644))
	id := f.addItem(t, video, subtitles.TypeFull)

	f.provider.Results = []providers.SubtitleResult{{ID: "a1", Language: "en", Format: "ass"}}
	f.provider.Content["a1"] = []byte(sampleASS)

	require.NoError(t, f.engine.ProcessItem(ctx, id))
	assert.FileExists(t, stem(video)+".en.ass")
	assert.NoFileExists(t, stem(video)+".en.srt")
}

func TestUpgradeOutsideWindowSkips(t *testing.T) {
	f := newFixture(t, probeNoSubs)
	video := f.addVideo(t)
	f.addLibraryEpisode(t, video, "2020-01-01 00:00:00")
	require.NoError(t, os.WriteFile(stem(video)+".en.srt", []byte(sampleSRT), 0o644))
	id := f.addItem(t, video, subtitles.TypeFull)

	f.provider.Results = []providers.SubtitleResult{{ID: "a1", Language: "en", Format: "ass"}}

	require.NoError(t, f.engine.ProcessItem(context.Background(), id))

	item := f.item(t, id)
	assert.Equal(t, wanted.StatusCompleted, item.Status)
	assert.Zero(t, f.provider.SearchCalls, "old files are not searched for upgrades")
	assert.NoFileExists(t, stem(video)+".en.ass")
}

func TestNoUpgradePathKeepsSRT(t *testing.T) {
	f := newFixture(t, probeNoSubs)
	video := f.addVideo(t)
	f.addLibraryEpisode(t, video, time.Now().UTC().Format("2006-01-02 15:04:05"))
	srt := stem(video) + ".en.srt"
	require.NoError(t, os.WriteFile(srt, []byte(sampleSRT), 0o644))
	id := f.addItem(t, video, subtitles.TypeFull)

	require.NoError(t, f.engine.ProcessItem(context.Background(), id))

	item := f.item(t, id)
	assert.Equal(t, wanted.StatusCompleted, item.Status)
	require.NotNil(t, item.ResultPath)
	assert.Equal(t, srt, *item.ResultPath)
	assert.FileExists(t, srt)
}

func TestExhaustedCasesFailTheItem(t *testing.T) {
	f := newFixture(t, probeNoSubs)
	video := f.addVideo(t)
	id := f.addItem(t, video, subtitles.TypeFull)

	err := f.engine.ProcessItem(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, ReasonNoSource, FailureReason(err))

	item := f.item(t, id)
	assert.Equal(t, wanted.StatusFailed, item.Status)
	assert.Equal(t, 1, item.Attempts)
	require.NotNil(t, item.Error)
	assert.Contains(t, *item.Error, ReasonNoSource)

	resp, herr := f.history.List(context.Background(), history.ListOptions{EventType: history.EventFailed})
	require.NoError(t, herr)
	assert.Len(t, resp.Items, 1)
}

func TestMissingVideoFails(t *testing.T) {
	f := newFixture(t, probeNoSubs)
	id := f.addItem(t, "/nonexistent/video.mkv", subtitles.TypeFull)

	err := f.engine.ProcessItem(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, ReasonNoSource, FailureReason(err))
}

func TestWhisperFallback(t *testing.T) {
	f := newFixture(t, probeNoSubs)
	ctx := context.Background()
	require.NoError(t, f.settings.Set(ctx, settings.KeyWhisperEnabled, "true"))
	f.engine.Transcriber = f.transcriber

	video := f.addVideo(t)
	id := f.addItem(t, video, subtitles.TypeFull)

	require.NoError(t, f.engine.ProcessItem(ctx, id))

	assert.Equal(t, 1, f.transcriber.calls)
	item := f.item(t, id)
	assert.Equal(t, wanted.StatusCompleted, item.Status)
	assert.FileExists(t, stem(video)+".en.srt")

	resp, err := f.history.List(ctx, history.ListOptions{EventType: history.EventTranslated})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Contains(t, resp.Items[0].Data["note"], "transcribed")
}

func TestProcessItemRetriesFailedItems(t *testing.T) {
	f := newFixture(t, probeNoSubs)
	video := f.addVideo(t)
	id := f.addItem(t, video, subtitles.TypeFull)
	ctx := context.Background()

	require.Error(t, f.engine.ProcessItem(ctx, id))
	assert.Equal(t, wanted.StatusFailed, f.item(t, id).Status)

	// Material appeared: a manual search on the failed item retries it.
	f.provider.Results = []providers.SubtitleResult{{ID: "ja1", Language: "ja", Format: "srt"}}
	f.provider.Content["ja1"] = []byte(sampleSRT)
	require.NoError(t, f.engine.providers.Cache().Clear(ctx), "drop the cached empty search")

	require.NoError(t, f.engine.ProcessItem(ctx, id))
	assert.Equal(t, wanted.StatusCompleted, f.item(t, id).Status)
}

func TestProcessPendingSkipsExhaustedItems(t *testing.T) {
	f := newFixture(t, probeNoSubs)
	ctx := context.Background()
	require.NoError(t, f.settings.Set(ctx, settings.KeyWantedMaxAttempts, "1"))

	video := f.addVideo(t)
	exhausted := f.addItem(t, video, subtitles.TypeFull)
	require.Error(t, f.engine.ProcessItem(ctx, exhausted))
	require.NoError(t, f.store.Retry(ctx, exhausted))

	processed, failed, err := f.engine.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, processed, "items out of attempts are skipped")
	assert.Zero(t, failed)
}

func TestExtractItemWritesSourceTrack(t *testing.T) {
	f := newFixture(t, probeJaASS)
	video := f.addVideo(t)
	id := f.addItem(t, video, subtitles.TypeFull)

	path, err := f.engine.ExtractItem(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, stem(video)+".ja.ass", path)
	assert.FileExists(t, path)

	// Extraction is a utility operation, not a status transition.
	assert.Equal(t, wanted.StatusPending, f.item(t, id).Status)
}
