package subtitles

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOutputPath(t *testing.T) {
	video := "/media/Show/Season 01/Show - S01E01.mkv"

	full := OutputPath(video, "de", TypeFull, FormatASS)
	if full != "/media/Show/Season 01/Show - S01E01.de.ass" {
		t.Errorf("OutputPath(full) = %q", full)
	}

	forced := OutputPath(video, "de", TypeForced, FormatSRT)
	if forced != "/media/Show/Season 01/Show - S01E01.de.forced.srt" {
		t.Errorf("OutputPath(forced) = %q", forced)
	}

	// ISO-639-2 input canonicalizes to the two-letter tag
	ger := OutputPath(video, "ger", TypeFull, FormatASS)
	if ger != "/media/Show/Season 01/Show - S01E01.de.ass" {
		t.Errorf("OutputPath(ger) = %q, want canonical de", ger)
	}
}

func TestFindExisting(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "episode.mkv")

	// ISO-639-2 spelling on disk must match a 639-1 query
	subPath := filepath.Join(dir, "episode.ger.srt")
	if err := os.WriteFile(subPath, []byte(srtPayload), 0o644); err != nil {
		t.Fatal(err)
	}

	found := FindExisting(video, "de", TypeFull)
	if found == nil {
		t.Fatal("FindExisting() = nil, want match on ger spelling")
	}
	if found.Format != FormatSRT {
		t.Errorf("found.Format = %q, want srt", found.Format)
	}

	if got := FindExisting(video, "fr", TypeFull); got != nil {
		t.Errorf("FindExisting(fr) = %v, want nil", got)
	}
	if got := FindExisting(video, "de", TypeForced); got != nil {
		t.Errorf("FindExisting(de, forced) = %v, want nil (only full exists)", got)
	}
}

func TestFindExisting_PrefersASS(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "episode.mkv")

	for _, name := range []string{"episode.de.srt", "episode.de.ass"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	found := FindExisting(video, "de", TypeFull)
	if found == nil || found.Format != FormatASS {
		t.Fatalf("FindExisting() = %+v, want ass preferred over srt", found)
	}
}

func TestFindExisting_ForcedVariant(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "episode.mkv")

	if err := os.WriteFile(filepath.Join(dir, "episode.de.forced.ass"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := FindExisting(video, "de", TypeForced); got == nil {
		t.Error("FindExisting(forced) = nil, want match")
	}
	// The forced file must not satisfy a full-subtitle lookup
	if got := FindExisting(video, "de", TypeFull); got != nil {
		t.Errorf("FindExisting(full) = %v, want nil", got)
	}
}

func TestLanguageFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/m/show.de.ass", "de"},
		{"/m/show.ger.srt", "de"},
		{"/m/show.de.forced.ass", "de"},
		{"/m/show.eng.srt", "en"},
		{"/m/show.ass", ""},
		{"/m/Show S01E01.1080p.mkv", ""},
	}
	for _, tt := range tests {
		if got := LanguageFromPath(tt.path); got != tt.want {
			t.Errorf("LanguageFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestIsForcedPath(t *testing.T) {
	if !IsForcedPath("/m/show.de.forced.ass") {
		t.Error("IsForcedPath(forced) = false")
	}
	if !IsForcedPath("/m/show.signs.ass") {
		t.Error("IsForcedPath(signs) = false")
	}
	if IsForcedPath("/m/show.de.ass") {
		t.Error("IsForcedPath(plain) = true")
	}
}

func TestQualitySidecarPath(t *testing.T) {
	got := QualitySidecarPath("/m/show.de.ass")
	if got != "/m/show.de.ass.quality.json" {
		t.Errorf("QualitySidecarPath() = %q", got)
	}
}
