package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// autoDisableThreshold is the consecutive-failure count at which a hook
// or webhook stops being dispatched until manually re-enabled.
const autoDisableThreshold = 10

// Dispatcher fans events out to shell hooks and webhooks. It implements
// Subscriber so the bus worker pool drives it.
type Dispatcher struct {
	store    *Store
	executor *ShellExecutor
	sender   *WebhookSender
	bus      *Bus
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher backed by the given database.
func NewDispatcher(db *sql.DB, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    NewStore(db),
		executor: NewShellExecutor(""),
		sender:   NewWebhookSender(logger),
		logger:   logger.With().Str("component", "events").Logger(),
	}
}

// SetBus wires the bus for meta events (hook_executed, auto-disable
// notices). Set after construction to break the bus/dispatcher cycle.
func (d *Dispatcher) SetBus(bus *Bus) {
	d.bus = bus
}

// Store exposes the subscription store for the HTTP handlers.
func (d *Dispatcher) Store() *Store {
	return d.store
}

// HandleEvent dispatches one event to all matching hooks and webhooks.
// hook_executed is never re-dispatched, so a failing hook cannot feed
// itself.
func (d *Dispatcher) HandleEvent(ctx context.Context, event Event) {
	if event.Name == EventHookExecuted {
		return
	}

	hooks, err := d.store.ListEnabledHooksForEvent(ctx, event.Name)
	if err != nil {
		d.logger.Error().Err(err).Str("event", event.Name).Msg("failed to list hooks")
	}
	for _, hook := range hooks {
		d.runHook(ctx, hook, event)
	}

	webhooks, err := d.store.ListEnabledWebhooksForEvent(ctx, event.Name)
	if err != nil {
		d.logger.Error().Err(err).Str("event", event.Name).Msg("failed to list webhooks")
	}
	for _, webhook := range webhooks {
		d.sendWebhook(ctx, webhook, event)
	}
}

func (d *Dispatcher) runHook(ctx context.Context, hook *Hook, event Event) {
	result := d.executor.Execute(ctx, hook, event)

	log := &HookLog{
		HookID:     hook.ID,
		EventName:  event.Name,
		ExitCode:   result.ExitCode,
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		DurationMS: result.Duration.Milliseconds(),
	}
	if err := d.store.InsertHookLog(ctx, log); err != nil {
		d.logger.Error().Err(err).Int64("hook_id", hook.ID).Msg("failed to record hook log")
	}

	if result.Err != nil || result.ExitCode != 0 {
		d.logger.Warn().
			Int64("hook_id", hook.ID).
			Str("event", event.Name).
			Int("exit_code", result.ExitCode).
			Err(result.Err).
			Msg("hook failed")
		disabled, err := d.store.RecordHookFailure(ctx, hook.ID, autoDisableThreshold)
		if err != nil {
			d.logger.Error().Err(err).Int64("hook_id", hook.ID).Msg("failed to record hook failure")
		}
		if disabled {
			d.logger.Warn().Int64("hook_id", hook.ID).Msg("hook auto-disabled after repeated failures")
			d.emitMeta(EventHookAutoDisabled, map[string]any{
				"hook_id":    hook.ID,
				"event_name": hook.EventName,
			})
		}
	} else if hook.ConsecutiveFailures > 0 {
		if err := d.store.ClearHookFailures(ctx, hook.ID); err != nil {
			d.logger.Error().Err(err).Int64("hook_id", hook.ID).Msg("failed to clear hook failures")
		}
	}

	d.emitMeta(EventHookExecuted, map[string]any{
		"hook_id":     hook.ID,
		"event_name":  event.Name,
		"exit_code":   result.ExitCode,
		"duration_ms": result.Duration.Milliseconds(),
	})
}

func (d *Dispatcher) sendWebhook(ctx context.Context, webhook *Webhook, event Event) {
	err := d.sender.Send(ctx, webhook, event)
	if err == nil {
		if webhook.ConsecutiveFailures > 0 {
			if err := d.store.ClearWebhookFailures(ctx, webhook.ID); err != nil {
				d.logger.Error().Err(err).Int64("webhook_id", webhook.ID).Msg("failed to clear webhook failures")
			}
		}
		return
	}

	d.logger.Warn().Err(err).Int64("webhook_id", webhook.ID).Str("event", event.Name).Msg("webhook delivery failed")
	disabled, recErr := d.store.RecordWebhookFailure(ctx, webhook.ID, autoDisableThreshold)
	if recErr != nil {
		d.logger.Error().Err(recErr).Int64("webhook_id", webhook.ID).Msg("failed to record webhook failure")
	}
	if disabled {
		d.logger.Warn().Int64("webhook_id", webhook.ID).Msg("webhook auto-disabled after repeated failures")
		d.emitMeta(EventWebhookAutoDisabled, map[string]any{
			"webhook_id": webhook.ID,
			"url":        webhook.URL,
		})
	}
}

func (d *Dispatcher) emitMeta(name string, data map[string]any) {
	if d.bus == nil {
		return
	}
	d.bus.Emit(name, data)
}

// TestHook runs a hook once with a synthetic payload and returns the
// outcome without touching the failure bookkeeping.
func (d *Dispatcher) TestHook(ctx context.Context, id int64) (*TestResult, error) {
	hook, err := d.store.GetHook(ctx, id)
	if err != nil {
		return nil, err
	}
	event := testEvent(hook.EventName)
	result := d.executor.Execute(ctx, hook, event)

	tr := &TestResult{
		Success:    result.Err == nil && result.ExitCode == 0,
		ExitCode:   result.ExitCode,
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		DurationMS: result.Duration.Milliseconds(),
	}
	if result.Err != nil {
		tr.Error = result.Err.Error()
	}
	return tr, nil
}

// TestWebhook delivers a synthetic payload to a webhook and returns the
// outcome without touching the failure bookkeeping.
func (d *Dispatcher) TestWebhook(ctx context.Context, id int64) (*TestResult, error) {
	webhook, err := d.store.GetWebhook(ctx, id)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	err = d.sender.Send(ctx, webhook, testEvent(webhook.EventName))
	tr := &TestResult{
		Success:    err == nil,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		tr.Error = err.Error()
	}
	return tr, nil
}

func testEvent(name string) Event {
	return Event{
		Name:      name,
		Version:   eventVersion(name),
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"test":    true,
			"message": fmt.Sprintf("test dispatch for %s", name),
		},
	}
}

func eventVersion(name string) int {
	if sig, ok := Lookup(name); ok {
		return sig.Version
	}
	return 1
}
