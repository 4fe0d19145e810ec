package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const probeTimeout = 30 * time.Second

// Runner executes an external tool and returns its stdout. Swappable in
// tests so probing never shells out.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs tools through os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Prober extracts stream metadata from video files with ffprobe.
type Prober struct {
	runner      Runner
	ffprobePath string
	ffmpegPath  string
	logger      zerolog.Logger
}

// NewProber creates a prober. Empty binary paths fall back to PATH lookup.
func NewProber(runner Runner, ffprobePath, ffmpegPath string, logger zerolog.Logger) *Prober {
	if runner == nil {
		runner = ExecRunner{}
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Prober{
		runner:      runner,
		ffprobePath: ffprobePath,
		ffmpegPath:  ffmpegPath,
		logger:      logger.With().Str("component", "media").Logger(),
	}
}

type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	Index       int    `json:"index"`
	CodecType   string `json:"codec_type"`
	CodecName   string `json:"codec_name"`
	Disposition struct {
		Default int `json:"default"`
		Forced  int `json:"forced"`
	} `json:"disposition"`
	Tags struct {
		Language string `json:"language"`
		Title    string `json:"title"`
	} `json:"tags"`
}

// Probe runs ffprobe and returns the subtitle and audio streams.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := p.runner.Run(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, err
	}

	return ParseProbeOutput(path, out)
}

// ParseProbeOutput parses ffprobe JSON into a ProbeResult.
func ParseProbeOutput(path string, data []byte) (*ProbeResult, error) {
	var output ffprobeOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	result := &ProbeResult{
		Path:      path,
		Container: output.Format.FormatName,
	}

	for _, stream := range output.Streams {
		switch stream.CodecType {
		case "subtitle":
			result.Subtitles = append(result.Subtitles, SubtitleStream{
				Index:    stream.Index,
				Codec:    stream.CodecName,
				Language: normalizeStreamLanguage(stream.Tags.Language),
				Title:    stream.Tags.Title,
				Forced:   stream.Disposition.Forced == 1,
				Default:  stream.Disposition.Default == 1,
			})
		case "audio":
			result.Audio = append(result.Audio, AudioStream{
				Index:    stream.Index,
				Codec:    stream.CodecName,
				Language: normalizeStreamLanguage(stream.Tags.Language),
				Default:  stream.Disposition.Default == 1,
			})
		}
	}

	return result, nil
}

func normalizeStreamLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "und" {
		return ""
	}
	return lang
}
