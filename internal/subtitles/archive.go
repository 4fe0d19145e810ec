package subtitles

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nwaples/rardecode/v2"
	"github.com/ulikunitz/xz"
)

// maxArchiveDepth caps nested-archive recursion. Subtitle releases nest at
// most one level (zip-in-zip from repackers); three is already paranoid.
const maxArchiveDepth = 3

// maxExtractedSize caps a single decompressed entry.
const maxExtractedSize = 64 << 20

// ArchiveKind identifies a supported archive container.
type ArchiveKind string

const (
	ArchiveZip  ArchiveKind = "zip"
	ArchiveRar  ArchiveKind = "rar"
	ArchiveXZ   ArchiveKind = "xz"
	ArchiveGzip ArchiveKind = "gz"
	ArchiveNone ArchiveKind = ""
)

// DetectArchive sniffs archive magic bytes.
func DetectArchive(content []byte) ArchiveKind {
	switch {
	case len(content) >= 4 && bytes.Equal(content[:4], []byte("PK\x03\x04")):
		return ArchiveZip
	case len(content) >= 7 && bytes.Equal(content[:7], []byte("Rar!\x1a\x07\x00")):
		return ArchiveRar
	case len(content) >= 8 && bytes.Equal(content[:8], []byte("Rar!\x1a\x07\x01\x00")):
		return ArchiveRar
	case len(content) >= 6 && bytes.Equal(content[:6], []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}):
		return ArchiveXZ
	case len(content) >= 2 && content[0] == 0x1F && content[1] == 0x8B:
		return ArchiveGzip
	}
	return ArchiveNone
}

// ExtractSubtitles extracts every subtitle file from an archive into destDir,
// recursing into nested archives. Returns the extracted file paths.
//
// Entries whose cleaned path would escape destDir are rejected outright;
// a hostile archive fails the whole extraction.
func ExtractSubtitles(archivePath, destDir string) ([]string, error) {
	content, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, &FileError{Kind: FileNotFound, Path: archivePath, Err: err}
	}
	return extractRecursive(content, filepath.Base(archivePath), destDir, 0)
}

func extractRecursive(content []byte, name, destDir string, depth int) ([]string, error) {
	if depth > maxArchiveDepth {
		return nil, &FileError{Kind: FileArchive, Path: name, Err: fmt.Errorf("archive nesting exceeds depth %d", maxArchiveDepth)}
	}

	kind := DetectArchive(content)
	switch kind {
	case ArchiveZip:
		return extractZip(content, destDir, depth)
	case ArchiveRar:
		return extractRar(content, destDir, depth)
	case ArchiveXZ:
		r, err := xz.NewReader(bytes.NewReader(content))
		if err != nil {
			return nil, &FileError{Kind: FileArchive, Path: name, Err: err}
		}
		return extractStream(r, strings.TrimSuffix(name, ".xz"), destDir, depth)
	case ArchiveGzip:
		r, err := gzip.NewReader(bytes.NewReader(content))
		if err != nil {
			return nil, &FileError{Kind: FileArchive, Path: name, Err: err}
		}
		defer r.Close()
		inner := strings.TrimSuffix(name, ".gz")
		if r.Name != "" {
			inner = r.Name
		}
		return extractStream(r, inner, destDir, depth)
	default:
		// Not an archive: keep it if it sniffs as a subtitle
		if DetectFormat(content) == FormatUnknown {
			return nil, nil
		}
		path, err := writeEntry(content, name, destDir)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	}
}

func extractZip(content []byte, destDir string, depth int) ([]string, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, &FileError{Kind: FileArchive, Err: fmt.Errorf("failed to open zip: %w", err)}
	}

	var extracted []string
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := rejectTraversal(f.Name, destDir); err != nil {
			return nil, err
		}

		rc, err := f.Open()
		if err != nil {
			return nil, &FileError{Kind: FileArchive, Path: f.Name, Err: err}
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxExtractedSize))
		rc.Close()
		if err != nil {
			return nil, &FileError{Kind: FileArchive, Path: f.Name, Err: err}
		}

		paths, err := extractRecursive(data, filepath.Base(f.Name), destDir, depth+1)
		if err != nil {
			return nil, err
		}
		extracted = append(extracted, paths...)
	}
	return extracted, nil
}

func extractRar(content []byte, destDir string, depth int) ([]string, error) {
	reader, err := rardecode.NewReader(bytes.NewReader(content))
	if err != nil {
		return nil, &FileError{Kind: FileArchive, Err: fmt.Errorf("failed to open rar: %w", err)}
	}

	var extracted []string
	for {
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &FileError{Kind: FileArchive, Err: err}
		}
		if header.IsDir {
			continue
		}
		if err := rejectTraversal(header.Name, destDir); err != nil {
			return nil, err
		}

		data, err := io.ReadAll(io.LimitReader(reader, maxExtractedSize))
		if err != nil {
			return nil, &FileError{Kind: FileArchive, Path: header.Name, Err: err}
		}

		paths, err := extractRecursive(data, filepath.Base(header.Name), destDir, depth+1)
		if err != nil {
			return nil, err
		}
		extracted = append(extracted, paths...)
	}
	return extracted, nil
}

func extractStream(r io.Reader, name, destDir string, depth int) ([]string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxExtractedSize))
	if err != nil {
		return nil, &FileError{Kind: FileArchive, Path: name, Err: err}
	}
	return extractRecursive(data, name, destDir, depth+1)
}

// rejectTraversal fails on any entry that would land outside destDir.
func rejectTraversal(entryName, destDir string) error {
	cleaned := filepath.Clean(filepath.Join(destDir, filepath.FromSlash(entryName)))
	if cleaned != destDir && !strings.HasPrefix(cleaned, destDir+string(filepath.Separator)) {
		return &FileError{Kind: FileArchive, Path: entryName, Err: fmt.Errorf("entry escapes extraction directory")}
	}
	return nil
}

func writeEntry(content []byte, name, destDir string) (string, error) {
	if err := rejectTraversal(name, destDir); err != nil {
		return "", err
	}
	dest := filepath.Join(destDir, filepath.Base(name))
	if err := os.WriteFile(dest, content, 0o644); err != nil {
		return "", &FileError{Kind: FileArchive, Path: dest, Err: err}
	}
	return dest, nil
}
