package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/settings"
	"github.com/sublarr/sublarr/internal/subtitles"
	"github.com/sublarr/sublarr/internal/testutil"
	"github.com/sublarr/sublarr/internal/wanted"
)

type fakeEngine struct {
	mu        sync.Mutex
	processed []int64
	extracted []int64
	failOn    map[int64]bool
}

func (f *fakeEngine) ProcessItem(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, id)
	if f.failOn[id] {
		return fmt.Errorf("no subtitle source available")
	}
	return nil
}

func (f *fakeEngine) ExtractItem(ctx context.Context, id int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracted = append(f.extracted, id)
	if f.failOn[id] {
		return "", fmt.Errorf("no embedded track")
	}
	return fmt.Sprintf("/tv/e%d.en.srt", id), nil
}

func (f *fakeEngine) processedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.processed...)
}

func (f *fakeEngine) extractedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.extracted...)
}

type processorFixture struct {
	processor *Processor
	engine    *fakeEngine
	runner    *Runner
	jobs      *Store
	wanted    *wanted.Store
	settings  *settings.Service
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)

	jobStore := NewStore(tdb.Conn)
	runner := NewRunner(jobStore, nil, testutil.NopLogger())
	engine := &fakeEngine{failOn: make(map[int64]bool)}
	wantedStore := wanted.NewStore(tdb.Conn)
	svc := settings.NewService(tdb.Conn, testutil.NopLogger())

	return &processorFixture{
		processor: NewProcessor(engine, runner, wantedStore, svc, nil, testutil.NopLogger()),
		engine:    engine,
		runner:    runner,
		jobs:      jobStore,
		wanted:    wantedStore,
		settings:  svc,
	}
}

func (f *processorFixture) addItem(t *testing.T, path string, subType subtitles.SubtitleType) int64 {
	t.Helper()
	id, _, err := f.wanted.Upsert(context.Background(), wanted.Item{
		FilePath:       path,
		TargetLanguage: "en",
		SubtitleType:   subType,
		MediaType:      "episode",
		SourceLanguage: "ja",
	})
	require.NoError(t, err)
	return id
}

func waitForJob(t *testing.T, store *Store, id string) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = store.Get(context.Background(), id)
		return err == nil && (job.Status == StatusCompleted || job.Status == StatusFailed)
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestProcessBatchRunsEveryItem(t *testing.T) {
	f := newProcessorFixture(t)
	f.engine.failOn[2] = true

	jobID, err := f.processor.ProcessBatch([]int64{1, 2, 3})
	require.NoError(t, err)

	job := waitForJob(t, f.jobs, jobID)
	f.runner.Wait()

	assert.Equal(t, StatusCompleted, job.Status, "item failures do not fail the batch")
	assert.Equal(t, KindWantedSearch, job.Kind)
	assert.Contains(t, string(job.Stats), `"processed":3`)
	assert.Contains(t, string(job.Stats), `"failed":1`)
	assert.Equal(t, []int64{1, 2, 3}, f.engine.processedIDs())
}

func TestExtractBatchUsesExtraction(t *testing.T) {
	f := newProcessorFixture(t)

	jobID, err := f.processor.ExtractBatch([]int64{5, 6})
	require.NoError(t, err)

	job := waitForJob(t, f.jobs, jobID)
	f.runner.Wait()

	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, KindWantedExtract, job.Kind)
	assert.Equal(t, []int64{5, 6}, f.engine.extractedIDs())
	assert.Empty(t, f.engine.processedIDs())
}

func TestProcessBatchRejectsEmpty(t *testing.T) {
	f := newProcessorFixture(t)
	_, err := f.processor.ProcessBatch(nil)
	assert.Error(t, err)
}

func TestHandleScanCreatedRespectsAutoExtract(t *testing.T) {
	f := newProcessorFixture(t)
	id := f.addItem(t, "/tv/show/e1.mkv", subtitles.TypeFull)

	// Auto-extract defaults off: nothing is submitted.
	f.processor.HandleScanCreated([]int64{id})
	f.runner.Wait()
	assert.Empty(t, f.engine.extractedIDs())

	require.NoError(t, f.settings.Set(context.Background(), settings.KeyScanAutoExtract, "true"))
	f.processor.HandleScanCreated([]int64{id})
	f.runner.Wait()
	assert.Equal(t, []int64{id}, f.engine.extractedIDs())
	assert.Empty(t, f.engine.processedIDs())
}

func TestHandleScanCreatedAutoTranslate(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	require.NoError(t, f.settings.Set(ctx, settings.KeyScanAutoExtract, "true"))
	require.NoError(t, f.settings.Set(ctx, settings.KeyScanAutoTranslate, "true"))

	full := f.addItem(t, "/tv/show/e1.mkv", subtitles.TypeFull)
	forced := f.addItem(t, "/tv/show/e2.mkv", subtitles.TypeForced)

	f.processor.HandleScanCreated([]int64{full, forced})
	f.runner.Wait()

	assert.Equal(t, []int64{full}, f.engine.processedIDs(), "forced items stay out of auto batches")
	assert.Empty(t, f.engine.extractedIDs())
}
