package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/sublarr/sublarr/internal/events"
)

// Func is the body of one background job. It must return at the next safe
// point once ctx is cancelled; the returned value is persisted as stats.
type Func func(ctx context.Context, job *JobContext) (any, error)

// JobContext identifies the running job and throttles its progress stream.
type JobContext struct {
	ID string

	runner *Runner
	mu     sync.Mutex
	last   time.Time
}

// Progress broadcasts one progress update, at most one per second. The
// update goes to the WebSocket only and is never stored.
func (j *JobContext) Progress(phase string, fraction float64, message string) {
	j.mu.Lock()
	if time.Since(j.last) < time.Second {
		j.mu.Unlock()
		return
	}
	j.last = time.Now()
	j.mu.Unlock()

	j.runner.emit(events.EventJobUpdate, map[string]any{
		"job_id":   j.ID,
		"phase":    phase,
		"progress": fraction,
		"message":  message,
	})
}

// Runner executes jobs on a bounded pool with one semaphore per job kind.
type Runner struct {
	store  *Store
	bus    *events.Bus
	logger zerolog.Logger

	mu      sync.Mutex
	sems    map[string]*semaphore.Weighted
	weights map[string]int64
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner creates the job runner. Transcription defaults to one slot;
// every other kind gets two.
func NewRunner(store *Store, bus *events.Bus, logger zerolog.Logger) *Runner {
	return &Runner{
		store:   store,
		bus:     bus,
		logger:  logger.With().Str("component", "jobs").Logger(),
		sems:    make(map[string]*semaphore.Weighted),
		weights: map[string]int64{KindTranscribe: 1},
		cancels: make(map[string]context.CancelFunc),
	}
}

const defaultConcurrency = 2

// SetConcurrency fixes the slot count for a kind. Only effective before
// the first job of that kind runs.
func (r *Runner) SetConcurrency(kind string, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > 0 {
		r.weights[kind] = n
	}
}

func (r *Runner) sem(kind string) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sems[kind]; ok {
		return s
	}
	weight := r.weights[kind]
	if weight <= 0 {
		weight = defaultConcurrency
	}
	s := semaphore.NewWeighted(weight)
	r.sems[kind] = s
	return s
}

// Submit persists a queued job and schedules it. The returned id is
// immediately queryable.
func (r *Runner) Submit(kind, filePath string, request any, fn Func) (string, error) {
	job, err := r.store.Create(context.Background(), kind, filePath, request)
	if err != nil {
		return "", err
	}
	r.emitStatus(job.ID, StatusQueued)

	r.wg.Add(1)
	go r.execute(job.ID, kind, fn)
	return job.ID, nil
}

func (r *Runner) execute(id, kind string, fn Func) {
	defer r.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.mu.Lock()
	r.cancels[id] = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.cancels, id)
		r.mu.Unlock()
	}()

	if err := r.sem(kind).Acquire(ctx, 1); err != nil {
		r.fail(id, "cancelled")
		return
	}
	defer r.sem(kind).Release(1)

	// Cancels issued while the job sat in the queue.
	if requested, err := r.store.CancelRequested(context.Background(), id); err == nil && requested {
		r.fail(id, "cancelled")
		return
	}

	if err := r.store.MarkRunning(context.Background(), id); err != nil {
		r.logger.Error().Err(err).Str("job", id).Msg("Failed to mark job running")
	}
	r.emitStatus(id, StatusRunning)
	r.logger.Info().Str("job", id).Str("kind", kind).Msg("Job started")

	stats, err := fn(ctx, &JobContext{ID: id, runner: r})
	if err != nil {
		msg := err.Error()
		if ctx.Err() != nil {
			msg = "cancelled"
		}
		r.fail(id, msg)
		return
	}

	if err := r.store.MarkCompleted(context.Background(), id, stats); err != nil {
		r.logger.Error().Err(err).Str("job", id).Msg("Failed to mark job completed")
	}
	r.emitStatus(id, StatusCompleted)
	r.logger.Info().Str("job", id).Str("kind", kind).Msg("Job completed")
}

// Cancel flags the job and interrupts its context. Workers exit at their
// next safe point.
func (r *Runner) Cancel(id string) error {
	ok, err := r.store.RequestCancel(context.Background(), id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job %s is not queued or running", id)
	}
	r.mu.Lock()
	cancel := r.cancels[id]
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Wait blocks until every submitted job finished. Used on shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) fail(id, msg string) {
	if err := r.store.MarkFailed(context.Background(), id, msg); err != nil {
		r.logger.Error().Err(err).Str("job", id).Msg("Failed to mark job failed")
	}
	r.emitStatus(id, StatusFailed)
	r.logger.Warn().Str("job", id).Str("error", msg).Msg("Job failed")
}

func (r *Runner) emitStatus(id, status string) {
	r.emit(events.EventJobUpdate, map[string]any{"job_id": id, "status": status})
}

func (r *Runner) emit(name string, payload map[string]any) {
	if r.bus != nil {
		r.bus.Emit(name, payload)
	}
}
