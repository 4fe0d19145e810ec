package events

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildHookEnvExposesPayload(t *testing.T) {
	env := buildHookEnv(Event{
		Name: EventTranslationComplete,
		Data: map[string]any{
			"file_path":   "/tv/e1.mkv",
			"lines_total": float64(432),
			"cached":      true,
		},
	})

	byKey := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		byKey[k] = v
	}

	assert.Equal(t, EventTranslationComplete, byKey["SUBLARR_EVENT"])
	assert.Equal(t, "/tv/e1.mkv", byKey["SUBLARR_FILE_PATH"])
	assert.Equal(t, "432", byKey["SUBLARR_LINES_TOTAL"])
	assert.Equal(t, "true", byKey["SUBLARR_CACHED"])
	assert.Contains(t, byKey["SUBLARR_EVENT_DATA"], `"file_path":"/tv/e1.mkv"`)

	// Nothing beyond PATH/HOME leaks from the server environment.
	for k := range byKey {
		if k == "PATH" || k == "HOME" {
			continue
		}
		assert.True(t, strings.HasPrefix(k, "SUBLARR_"), "unexpected env var %s", k)
	}
}

func TestExecuteCapturesOutputAndExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script test")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "hook.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"got $SUBLARR_EVENT\"\necho oops >&2\nexit 3\n"), 0o755))

	exec := NewShellExecutor(dir)
	result := exec.Execute(context.Background(), &Hook{ID: 1, ScriptPath: script}, Event{
		Name: EventWantedScanComplete,
		Data: map[string]any{"created": float64(2)},
	})

	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "got "+EventWantedScanComplete, strings.TrimSpace(result.Stdout))
	assert.Equal(t, "oops", strings.TrimSpace(result.Stderr))
	require.Error(t, result.Err)
}

func TestExecuteTimesOut(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script test")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "slow.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0o755))

	exec := NewShellExecutor(dir)
	start := time.Now()
	result := exec.Execute(context.Background(), &Hook{ID: 2, ScriptPath: script, TimeoutSeconds: 1}, Event{
		Name: EventWantedScanComplete,
	})

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}
