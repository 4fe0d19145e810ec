package subtitles

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	path := filepath.Join(t.TempDir(), "test.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write zip: %v", err)
	}
	return path
}

const srtPayload = "1\n00:00:01,000 --> 00:00:02,000\nHi\n"

func TestExtractSubtitles_Zip(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"episode.en.srt": srtPayload,
		"readme.txt":     "not a subtitle",
	})
	dest := t.TempDir()

	paths, err := ExtractSubtitles(archive, dest)
	if err != nil {
		t.Fatalf("ExtractSubtitles() error = %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("extracted %d files, want 1 (readme filtered)", len(paths))
	}
	if filepath.Base(paths[0]) != "episode.en.srt" {
		t.Errorf("extracted %q, want episode.en.srt", paths[0])
	}

	content, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read extracted: %v", err)
	}
	if string(content) != srtPayload {
		t.Errorf("extracted content mismatch")
	}
}

func TestExtractSubtitles_NestedZip(t *testing.T) {
	inner := writeZip(t, map[string]string{"inner.de.srt": srtPayload})
	innerBytes, err := os.ReadFile(inner)
	if err != nil {
		t.Fatal(err)
	}

	outer := writeZip(t, map[string]string{"bundle.zip": string(innerBytes)})
	dest := t.TempDir()

	paths, err := ExtractSubtitles(outer, dest)
	if err != nil {
		t.Fatalf("ExtractSubtitles() error = %v", err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != "inner.de.srt" {
		t.Fatalf("nested extraction = %v, want inner.de.srt", paths)
	}
}

func TestExtractSubtitles_RejectsTraversal(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"../evil.srt": srtPayload,
	})
	dest := t.TempDir()

	if _, err := ExtractSubtitles(archive, dest); err == nil {
		t.Fatal("ExtractSubtitles() expected error for traversal entry")
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(dest), "evil.srt")); err == nil {
		t.Fatal("traversal entry was written outside destination")
	}
}

func TestExtractSubtitles_PlainFile(t *testing.T) {
	// A non-archive subtitle passes through unchanged
	src := filepath.Join(t.TempDir(), "plain.srt")
	if err := os.WriteFile(src, []byte(srtPayload), 0o644); err != nil {
		t.Fatal(err)
	}
	dest := t.TempDir()

	paths, err := ExtractSubtitles(src, dest)
	if err != nil {
		t.Fatalf("ExtractSubtitles() error = %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("extracted %d files, want 1", len(paths))
	}
}

func TestDetectArchive(t *testing.T) {
	if got := DetectArchive([]byte("PK\x03\x04rest")); got != ArchiveZip {
		t.Errorf("DetectArchive(zip) = %q", got)
	}
	if got := DetectArchive([]byte{0xFD, '7', 'z', 'X', 'Z', 0x00, 1, 2}); got != ArchiveXZ {
		t.Errorf("DetectArchive(xz) = %q", got)
	}
	if got := DetectArchive([]byte{0x1F, 0x8B, 8}); got != ArchiveGzip {
		t.Errorf("DetectArchive(gzip) = %q", got)
	}
	if got := DetectArchive([]byte("plain text")); got != ArchiveNone {
		t.Errorf("DetectArchive(text) = %q", got)
	}
}
