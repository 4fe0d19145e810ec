package media

import (
	"context"
	"strings"
	"testing"

	"github.com/sublarr/sublarr/internal/testutil"
)

const sampleProbeJSON = `{
  "format": {"format_name": "matroska,webm"},
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "hevc"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac",
     "disposition": {"default": 1, "forced": 0},
     "tags": {"language": "jpn"}},
    {"index": 2, "codec_type": "subtitle", "codec_name": "ass",
     "disposition": {"default": 1, "forced": 0},
     "tags": {"language": "eng", "title": "Full Subtitles"}},
    {"index": 3, "codec_type": "subtitle", "codec_name": "subrip",
     "disposition": {"default": 0, "forced": 1},
     "tags": {"language": "eng", "title": "Signs & Songs"}},
    {"index": 4, "codec_type": "subtitle", "codec_name": "hdmv_pgs_subtitle",
     "disposition": {"default": 0, "forced": 0},
     "tags": {"language": "und"}}
  ]
}`

func TestParseProbeOutput(t *testing.T) {
	result, err := ParseProbeOutput("/m/show.mkv", []byte(sampleProbeJSON))
	if err != nil {
		t.Fatalf("ParseProbeOutput failed: %v", err)
	}

	if len(result.Subtitles) != 3 {
		t.Fatalf("expected 3 subtitle streams, got %d", len(result.Subtitles))
	}
	if len(result.Audio) != 1 {
		t.Fatalf("expected 1 audio stream, got %d", len(result.Audio))
	}

	ass := result.Subtitles[0]
	if !ass.IsASS() || ass.Language != "eng" || ass.Forced {
		t.Errorf("unexpected first stream: %+v", ass)
	}

	forced := result.Subtitles[1]
	if !forced.Forced || forced.Codec != "subrip" {
		t.Errorf("unexpected forced stream: %+v", forced)
	}

	pgs := result.Subtitles[2]
	if pgs.IsTextual() {
		t.Error("PGS stream must not be textual")
	}
	if pgs.Language != "" {
		t.Errorf("und language should normalize to empty, got %q", pgs.Language)
	}

	if result.Audio[0].Language != "jpn" {
		t.Errorf("unexpected audio language %q", result.Audio[0].Language)
	}
}

func TestSubtitleInLanguagePrefersASS(t *testing.T) {
	result, err := ParseProbeOutput("/m/show.mkv", []byte(sampleProbeJSON))
	if err != nil {
		t.Fatal(err)
	}

	eq := func(a, b string) bool { return strings.HasPrefix(a, b[:2]) }
	best := result.SubtitleInLanguage("en", eq)
	if best == nil {
		t.Fatal("expected a match for en")
	}
	if !best.IsASS() {
		t.Errorf("expected ASS stream preferred, got %+v", best)
	}

	if got := result.SubtitleInLanguage("de", eq); got != nil {
		t.Errorf("expected no match for de, got %+v", got)
	}
}

type fakeRunner struct {
	output []byte
	err    error
	name   string
	args   []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.name = name
	f.args = args
	return f.output, f.err
}

func TestProbeInvokesFFprobe(t *testing.T) {
	runner := &fakeRunner{output: []byte(sampleProbeJSON)}
	prober := NewProber(runner, "", "", testutil.NopLogger())

	result, err := prober.Probe(context.Background(), "/m/show.mkv")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if runner.name != "ffprobe" {
		t.Errorf("expected ffprobe invocation, got %q", runner.name)
	}
	if result.Container != "matroska,webm" {
		t.Errorf("unexpected container %q", result.Container)
	}
}
