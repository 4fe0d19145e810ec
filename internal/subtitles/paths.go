package subtitles

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sublarr/sublarr/internal/language"
)

// SubtitleType distinguishes full subtitles from forced-only tracks.
type SubtitleType string

const (
	TypeFull   SubtitleType = "full"
	TypeForced SubtitleType = "forced"
)

// OutputPath derives the sibling subtitle path for a video file:
// {stem}.{lang}.{fmt} for full subtitles, {stem}.{lang}.forced.{fmt}
// for forced ones. The language tag is canonicalized.
func OutputPath(videoPath, lang string, subType SubtitleType, format Format) string {
	stem := strings.TrimSuffix(videoPath, filepath.Ext(videoPath))
	tag := language.Canonical(lang)
	if subType == TypeForced {
		return stem + "." + tag + ".forced." + format.Extension()
	}
	return stem + "." + tag + "." + format.Extension()
}

// ExistingSubtitle describes a target-language subtitle found on disk.
type ExistingSubtitle struct {
	Path   string
	Format Format
	Forced bool
}

var subtitleExtensions = []Format{FormatASS, FormatSSA, FormatSRT, FormatVTT}

// FindExisting looks for on-disk subtitles next to the video for the given
// language and type. Both ISO-639-1 and ISO-639-2 spellings are matched, in
// preference order ASS > SSA > SRT > VTT.
func FindExisting(videoPath, lang string, subType SubtitleType) *ExistingSubtitle {
	stem := strings.TrimSuffix(videoPath, filepath.Ext(videoPath))

	for _, format := range subtitleExtensions {
		for _, tag := range language.Variants(lang) {
			var candidate string
			if subType == TypeForced {
				candidate = stem + "." + tag + ".forced." + format.Extension()
			} else {
				candidate = stem + "." + tag + "." + format.Extension()
			}
			if fileExists(candidate) {
				return &ExistingSubtitle{Path: candidate, Format: format, Forced: subType == TypeForced}
			}
		}
	}
	return nil
}

// FindAnyExisting reports full and forced variants for a language in one call.
func FindAnyExisting(videoPath, lang string) (full, forced *ExistingSubtitle) {
	return FindExisting(videoPath, lang, TypeFull), FindExisting(videoPath, lang, TypeForced)
}

// QualitySidecarPath returns the quality-score sidecar path for a subtitle:
// {subtitle}.quality.json.
func QualitySidecarPath(subtitlePath string) string {
	return subtitlePath + ".quality.json"
}

// IsForcedPath reports whether the filename carries a forced or signs marker.
func IsForcedPath(path string) bool {
	lower := strings.ToLower(filepath.Base(path))
	return strings.Contains(lower, ".forced.") || strings.Contains(lower, ".signs.")
}

// LanguageFromPath extracts the language tag from a subtitle filename of the
// form {stem}.{lang}[.forced].{ext}; empty when the name carries no tag.
func LanguageFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimSuffix(base, ".forced")
	base = strings.TrimSuffix(base, ".signs")

	idx := strings.LastIndex(base, ".")
	if idx < 0 {
		return ""
	}
	tag := base[idx+1:]
	if len(tag) < 2 || len(tag) > 3 || !language.Known(tag) {
		return ""
	}
	return language.Canonical(tag)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
