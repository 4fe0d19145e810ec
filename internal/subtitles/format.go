package subtitles

import (
	"bytes"
	"regexp"
	"strings"
)

var (
	srtTimingRe = regexp.MustCompile(`\d{2}:\d{2}:\d{2},\d{3}\s*-->\s*\d{2}:\d{2}:\d{2},\d{3}`)
	vttTimingRe = regexp.MustCompile(`\d{2}:\d{2}(:\d{2})?\.\d{3}\s*-->\s*\d{2}:\d{2}(:\d{2})?\.\d{3}`)
)

// DetectFormat sniffs the subtitle format from content. It never trusts a
// file extension; providers routinely mislabel artifacts.
func DetectFormat(content []byte) Format {
	content = stripBOM(content)
	head := content
	if len(head) > 4096 {
		head = head[:4096]
	}
	text := string(head)

	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "[script info]"):
		// SSA and ASS share the header; the styles section disambiguates
		if strings.Contains(lower, "[v4+ styles]") {
			return FormatASS
		}
		if strings.Contains(lower, "[v4 styles]") {
			return FormatSSA
		}
		return FormatASS
	case strings.HasPrefix(strings.TrimSpace(text), "WEBVTT"):
		return FormatVTT
	case srtTimingRe.MatchString(text):
		return FormatSRT
	case vttTimingRe.MatchString(text):
		return FormatVTT
	}

	return FormatUnknown
}

// Validate reports whether content parses as the declared format.
func Validate(content []byte, format Format) bool {
	switch format {
	case FormatASS, FormatSSA:
		f, err := ParseASS(content)
		return err == nil && len(f.Events()) > 0
	case FormatSRT:
		cues, err := ParseSRT(content)
		return err == nil && len(cues) > 0
	case FormatVTT:
		return DetectFormat(content) == FormatVTT
	default:
		return false
	}
}

func stripBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
}
