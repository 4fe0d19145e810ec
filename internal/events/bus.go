package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
)

// Event is one emitted occurrence of a catalog signal.
type Event struct {
	Name      string         `json:"event_name"`
	Version   int            `json:"version"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Broadcaster pushes events to connected WebSocket clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Subscriber consumes business events from the bus worker pool.
type Subscriber interface {
	HandleEvent(ctx context.Context, evt Event)
}

// Bus is the in-process named-signal pub/sub hub. Emission never blocks the
// producer: events are queued and dispatched from a bounded worker pool.
// Progress streams bypass the queue and go straight to the broadcaster.
type Bus struct {
	queue       chan Event
	broadcaster Broadcaster
	logger      zerolog.Logger

	mu          sync.RWMutex
	subscribers []Subscriber

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewBus creates an event bus with the given worker count (0 means default).
func NewBus(broadcaster Broadcaster, logger zerolog.Logger, workers int) *Bus {
	if workers <= 0 {
		workers = defaultWorkers
	}

	b := &Bus{
		queue:       make(chan Event, defaultQueueSize),
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "eventbus").Logger(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.worker(ctx)
	}

	return b
}

// Subscribe registers a subscriber for business events.
func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

// Emit publishes an event. Progress streams are broadcast directly and never
// queued; business events are broadcast and fanned out to subscribers from
// the worker pool. Emit never blocks: on a full queue the event is dropped
// with a warning.
func (b *Bus) Emit(name string, data map[string]any) {
	signal, known := Lookup(name)
	if !known {
		b.logger.Warn().Str("event", name).Msg("emitting uncataloged event")
	}

	if b.broadcaster != nil {
		if err := b.broadcaster.Broadcast(name, data); err != nil {
			b.logger.Debug().Err(err).Str("event", name).Msg("broadcast failed")
		}
	}

	if IsProgress(name) {
		return
	}

	evt := Event{
		Name:      name,
		Version:   signal.Version,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	select {
	case b.queue <- evt:
	default:
		b.logger.Warn().Str("event", name).Msg("event queue full, dropping event")
	}
}

// Close stops the worker pool after draining queued events.
func (b *Bus) Close() {
	close(b.queue)
	b.wg.Wait()
	b.cancel()
}

func (b *Bus) worker(ctx context.Context) {
	defer b.wg.Done()
	for evt := range b.queue {
		b.mu.RLock()
		subs := make([]Subscriber, len(b.subscribers))
		copy(subs, b.subscribers)
		b.mu.RUnlock()

		for _, s := range subs {
			s.HandleEvent(ctx, evt)
		}
	}
}
