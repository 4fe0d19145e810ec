package events

import (
	"errors"
	"time"
)

var (
	ErrHookNotFound    = errors.New("hook not found")
	ErrWebhookNotFound = errors.New("webhook not found")
	ErrUnknownEvent    = errors.New("unknown event name")
)

// Hook is a shell-script subscriber for one event name.
type Hook struct {
	ID                  int64     `json:"id"`
	EventName           string    `json:"event_name"`
	ScriptPath          string    `json:"script_path"`
	Enabled             bool      `json:"enabled"`
	TimeoutSeconds      int       `json:"timeout_seconds"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	AutoDisabled        bool      `json:"auto_disabled"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Webhook is an HTTP POST subscriber for one event name.
type Webhook struct {
	ID                  int64     `json:"id"`
	EventName           string    `json:"event_name"`
	URL                 string    `json:"url"`
	Secret              string    `json:"secret,omitempty"`
	Enabled             bool      `json:"enabled"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	AutoDisabled        bool      `json:"auto_disabled"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// HookLog is one captured hook execution.
type HookLog struct {
	ID         int64     `json:"id"`
	HookID     int64     `json:"hook_id"`
	EventName  string    `json:"event_name"`
	ExitCode   int       `json:"exit_code"`
	Stdout     string    `json:"stdout"`
	Stderr     string    `json:"stderr"`
	DurationMS int64     `json:"duration_ms"`
	ExecutedAt time.Time `json:"executed_at"`
}

// CreateHookInput creates a new hook subscription.
type CreateHookInput struct {
	EventName      string `json:"event_name"`
	ScriptPath     string `json:"script_path"`
	Enabled        bool   `json:"enabled"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// UpdateHookInput patches a hook; nil fields keep their value.
type UpdateHookInput struct {
	EventName      *string `json:"event_name"`
	ScriptPath     *string `json:"script_path"`
	Enabled        *bool   `json:"enabled"`
	TimeoutSeconds *int    `json:"timeout_seconds"`
}

// CreateWebhookInput creates a new webhook subscription.
type CreateWebhookInput struct {
	EventName string `json:"event_name"`
	URL       string `json:"url"`
	Secret    string `json:"secret"`
	Enabled   bool   `json:"enabled"`
}

// UpdateWebhookInput patches a webhook; nil fields keep their value.
type UpdateWebhookInput struct {
	EventName *string `json:"event_name"`
	URL       *string `json:"url"`
	Secret    *string `json:"secret"`
	Enabled   *bool   `json:"enabled"`
}

// TestResult reports a hook/webhook test invocation.
type TestResult struct {
	Success    bool   `json:"success"`
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}
