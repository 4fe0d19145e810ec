package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/testutil"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(testutil.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestRunNowExecutesTask(t *testing.T) {
	s := newTestScheduler(t)

	ran := make(chan struct{})
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:   "test-task",
		Name: "Test Task",
		Cron: "0 0 * * *",
		Func: func(ctx context.Context) error {
			close(ran)
			return nil
		},
	}))

	require.NoError(t, s.RunNow("test-task"))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}

	require.Eventually(t, func() bool {
		info, err := s.GetTask("test-task")
		return err == nil && info.LastRun != nil && !info.Running
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunNowRejectsRunningTask(t *testing.T) {
	s := newTestScheduler(t)

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:   "slow-task",
		Name: "Slow Task",
		Cron: "0 0 * * *",
		Func: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	}))

	require.NoError(t, s.RunNow("slow-task"))
	<-started
	assert.Error(t, s.RunNow("slow-task"), "a running task cannot be triggered again")
	close(release)
}

func TestRegisterTaskRejectsDuplicateID(t *testing.T) {
	s := newTestScheduler(t)

	cfg := TaskConfig{
		ID:   "dup",
		Name: "Dup",
		Cron: "0 0 * * *",
		Func: func(ctx context.Context) error { return nil },
	}
	require.NoError(t, s.RegisterTask(cfg))
	assert.Error(t, s.RegisterTask(cfg))
}

func TestRunNowUnknownTask(t *testing.T) {
	s := newTestScheduler(t)
	assert.Error(t, s.RunNow("missing"))
}
