package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Transcriber turns a video's audio track into an SRT file. The concrete
// tool (whisper.cpp, faster-whisper, a remote service wrapper) is opaque;
// only this contract matters to the pipeline.
type Transcriber interface {
	Transcribe(ctx context.Context, videoPath, language, destDir string) (string, error)
}

// CommandTranscriber shells out to a whisper-compatible CLI that accepts
// `<binary> [args...] --language <lang> --output_dir <dir> <video>` and
// writes `<video-stem>.srt` into the output directory.
type CommandTranscriber struct {
	runner  Runner
	binary  string
	args    []string
	timeout time.Duration
}

// NewCommandTranscriber builds a transcriber around an external binary.
// extraArgs are passed through before the fixed arguments.
func NewCommandTranscriber(runner Runner, binary string, extraArgs []string, timeout time.Duration) *CommandTranscriber {
	if runner == nil {
		runner = ExecRunner{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &CommandTranscriber{runner: runner, binary: binary, args: extraArgs, timeout: timeout}
}

// Transcribe runs the external tool and returns the produced SRT path.
func (t *CommandTranscriber) Transcribe(ctx context.Context, videoPath, language, destDir string) (string, error) {
	if t.binary == "" {
		return "", fmt.Errorf("no transcription binary configured")
	}
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create transcription dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := append([]string{}, t.args...)
	args = append(args,
		"--language", language,
		"--output_format", "srt",
		"--output_dir", destDir,
		videoPath,
	)

	if _, err := t.runner.Run(ctx, t.binary, args...); err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	outPath := filepath.Join(destDir, stem+".srt")
	if fi, err := os.Stat(outPath); err != nil || fi.Size() == 0 {
		return "", fmt.Errorf("transcription produced no output at %s", outPath)
	}

	return outPath, nil
}
