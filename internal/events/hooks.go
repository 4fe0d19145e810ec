package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	// hookOutputCap bounds captured stdout/stderr per execution.
	hookOutputCap = 4 * 1024

	defaultHookTimeout = 30 * time.Second
)

// ShellExecutor runs hook scripts in a controlled environment.
type ShellExecutor struct {
	workDir string
}

// NewShellExecutor creates an executor. Scripts run from workDir
// (defaults to the OS temp dir).
func NewShellExecutor(workDir string) *ShellExecutor {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &ShellExecutor{workDir: workDir}
}

// ExecResult captures one script execution.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	Err      error
}

// Execute runs the hook script with the event serialized into the
// environment. The script inherits nothing from the server process
// beyond PATH and HOME.
func (e *ShellExecutor) Execute(ctx context.Context, hook *Hook, event Event) ExecResult {
	timeout := defaultHookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, hook.ScriptPath)
	cmd.Dir = e.workDir
	cmd.Env = buildHookEnv(event)

	var stdout, stderr cappedBuffer
	stdout.cap = hookOutputCap
	stderr.cap = hookOutputCap
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		if ctx.Err() == context.DeadlineExceeded {
			result.Err = fmt.Errorf("hook timed out after %s", timeout)
		} else {
			result.Err = err
		}
	}
	return result
}

// buildHookEnv constructs the script environment: PATH and HOME from the
// server process, the event name, the full payload as JSON, and one
// SUBLARR_<KEY> variable per scalar payload field.
func buildHookEnv(event Event) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
		"SUBLARR_EVENT=" + event.Name,
	}

	if data, err := json.Marshal(event.Data); err == nil {
		env = append(env, "SUBLARR_EVENT_DATA="+string(data))
	}

	for key, value := range event.Data {
		env = append(env, "SUBLARR_"+envKey(key)+"="+envValue(value))
	}
	return env
}

func envKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 32)
		case r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func envValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		// JSON round-trips numbers as float64; keep integers clean.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// cappedBuffer keeps at most cap bytes and silently drops the rest.
type cappedBuffer struct {
	buf bytes.Buffer
	cap int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remaining := b.cap - b.buf.Len()
	if remaining > 0 {
		if len(p) > remaining {
			b.buf.Write(p[:remaining])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
