package subtitles

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies a subtitle container format.
type Format string

const (
	FormatASS     Format = "ass"
	FormatSSA     Format = "ssa"
	FormatSRT     Format = "srt"
	FormatVTT     Format = "vtt"
	FormatUnknown Format = ""
)

// Extension returns the file extension for the format, without the dot.
func (f Format) Extension() string {
	if f == FormatUnknown {
		return "sub"
	}
	return string(f)
}

// IsStyled reports whether the format carries styling metadata.
func (f Format) IsStyled() bool {
	return f == FormatASS || f == FormatSSA
}

// FormatFromPath maps a file extension to its format, defaulting to SRT.
// Only for naming decisions; trust DetectFormat for content.
func FormatFromPath(path string) Format {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "ass":
		return FormatASS
	case "ssa":
		return FormatSSA
	case "vtt":
		return FormatVTT
	default:
		return FormatSRT
	}
}

// FileErrorKind classifies subtitle file failures.
type FileErrorKind string

const (
	FileNotFound      FileErrorKind = "not_found"
	FileEncoding      FileErrorKind = "encoding"
	FileFormatInvalid FileErrorKind = "format_invalid"
	FileArchive       FileErrorKind = "archive"
)

// FileError is fatal for the item being processed.
type FileError struct {
	Kind FileErrorKind
	Path string
	Err  error
}

func (e *FileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("subtitle file %s: %s: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("subtitle file %s: %s", e.Path, e.Kind)
}

func (e *FileError) Unwrap() error { return e.Err }

// IsFileError reports whether err is a FileError of the given kind.
func IsFileError(err error, kind FileErrorKind) bool {
	var fe *FileError
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// StyleClass labels an ASS style by what its events carry.
type StyleClass string

const (
	StyleDialog StyleClass = "dialog"
	StyleSigns  StyleClass = "signs"
)
