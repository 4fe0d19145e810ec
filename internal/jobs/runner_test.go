package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/testutil"
)

func newTestRunner(t *testing.T) (*Runner, *Store) {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)
	store := NewStore(tdb.Conn)
	return NewRunner(store, nil, testutil.NopLogger()), store
}

func waitForStatus(t *testing.T, store *Store, id, want string) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = store.Get(context.Background(), id)
		return err == nil && job.Status == want
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached %s", id, want)
	return job
}

func TestRunnerCompletesWithStats(t *testing.T) {
	r, store := newTestRunner(t)

	id, err := r.Submit(KindTranslate, "/tv/e1.ja.srt", nil, func(ctx context.Context, job *JobContext) (any, error) {
		return map[string]int{"lines": 42}, nil
	})
	require.NoError(t, err)

	job := waitForStatus(t, store, id, StatusCompleted)
	assert.Contains(t, string(job.Stats), `"lines":42`)
	assert.Nil(t, job.Error)
	r.Wait()
}

func TestRunnerRecordsFailure(t *testing.T) {
	r, store := newTestRunner(t)

	id, err := r.Submit(KindTranslate, "", nil, func(ctx context.Context, job *JobContext) (any, error) {
		return nil, fmt.Errorf("backend unreachable")
	})
	require.NoError(t, err)

	job := waitForStatus(t, store, id, StatusFailed)
	require.NotNil(t, job.Error)
	assert.Equal(t, "backend unreachable", *job.Error)
	r.Wait()
}

func TestRunnerCancelMidRun(t *testing.T) {
	r, store := newTestRunner(t)

	started := make(chan struct{})
	id, err := r.Submit(KindTranslate, "", nil, func(ctx context.Context, job *JobContext) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	<-started
	require.NoError(t, r.Cancel(id))

	job := waitForStatus(t, store, id, StatusFailed)
	require.NotNil(t, job.Error)
	assert.Equal(t, "cancelled", *job.Error)
	assert.True(t, job.CancelRequested)
	r.Wait()
}

func TestRunnerCancelWhileQueued(t *testing.T) {
	r, store := newTestRunner(t)
	r.SetConcurrency(KindTranslate, 1)

	release := make(chan struct{})
	first, err := r.Submit(KindTranslate, "", nil, func(ctx context.Context, job *JobContext) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	waitForStatus(t, store, first, StatusRunning)

	blocked := make(chan struct{})
	second, err := r.Submit(KindTranslate, "", nil, func(ctx context.Context, job *JobContext) (any, error) {
		close(blocked)
		return nil, nil
	})
	require.NoError(t, err)

	require.NoError(t, r.Cancel(second))
	close(release)

	job := waitForStatus(t, store, second, StatusFailed)
	require.NotNil(t, job.Error)
	assert.Equal(t, "cancelled", *job.Error)
	select {
	case <-blocked:
		t.Fatal("cancelled queued job should never run")
	default:
	}
	r.Wait()
}

func TestRunnerCancelFinishedJobFails(t *testing.T) {
	r, store := newTestRunner(t)

	id, err := r.Submit(KindTranslate, "", nil, func(ctx context.Context, job *JobContext) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	waitForStatus(t, store, id, StatusCompleted)
	r.Wait()

	assert.Error(t, r.Cancel(id))
}

func TestTranscriptionJobsRunSerially(t *testing.T) {
	r, store := newTestRunner(t)

	var active, peak int32
	worker := func(ctx context.Context, job *JobContext) (any, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil, nil
	}

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := r.Submit(KindTranscribe, "", nil, worker)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitForStatus(t, store, id, StatusCompleted)
	}
	r.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&peak), "transcription must hold a single slot")
}
