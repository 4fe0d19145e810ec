package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const extractTimeout = 5 * time.Minute

// ExtractSubtitle copies one embedded subtitle stream into a standalone file
// under destDir. The output extension follows the stream codec so the
// toolkit can re-detect the format from content afterwards.
func (p *Prober) ExtractSubtitle(ctx context.Context, videoPath string, stream SubtitleStream, destDir string) (string, error) {
	if !stream.IsTextual() {
		return "", fmt.Errorf("stream %d codec %q is not extractable as text", stream.Index, stream.Codec)
	}
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create extraction dir: %w", err)
	}

	ext := "srt"
	codec := "srt"
	if stream.IsASS() {
		ext = "ass"
		codec = "ass"
	}

	base := filepath.Base(videoPath)
	outPath := filepath.Join(destDir, fmt.Sprintf("%s.stream%d.%s", base, stream.Index, ext))

	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	_, err := p.runner.Run(ctx, p.ffmpegPath,
		"-y",
		"-v", "error",
		"-i", videoPath,
		"-map", fmt.Sprintf("0:%d", stream.Index),
		"-c:s", codec,
		outPath,
	)
	if err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("failed to extract subtitle stream %d: %w", stream.Index, err)
	}

	if fi, statErr := os.Stat(outPath); statErr != nil || fi.Size() == 0 {
		os.Remove(outPath)
		return "", fmt.Errorf("extraction produced no output for stream %d", stream.Index)
	}

	p.logger.Debug().
		Str("video", videoPath).
		Int("stream", stream.Index).
		Str("output", outPath).
		Msg("Extracted embedded subtitle")

	return outPath, nil
}
