package subtitles

import (
	"regexp"
	"strings"
)

// Override tags that pin an event to screen coordinates or draw shapes.
// Events carrying these are typesetting, not dialogue.
var (
	positioningTagRe = regexp.MustCompile(`\\(pos|move|org|clip|iclip)\(`)
	drawingTagRe     = regexp.MustCompile(`\\p[1-9]`)
)

// Style names conventionally used for non-dialogue typesetting.
var signsNamePatterns = []string{
	"sign", "song", "title", "credit", "karaoke", "kara",
	"lyric", "note", "staff", "typeset", "op_", "ed_", "-op", "-ed",
}

// ClassifyStyles labels every style in the script as dialog or signs.
//
// A style whose events are more than 80% free of positioning and drawing
// overrides is dialog. Styles at or below the threshold, and styles with no
// events, are decided by override presence and the conventional name set.
func ClassifyStyles(f *ASSFile) map[string]StyleClass {
	type styleStats struct {
		total    int
		overlaid int
	}

	stats := make(map[string]*styleStats)
	for _, name := range f.Styles() {
		stats[name] = &styleStats{}
	}

	for _, ev := range f.Events() {
		st, ok := stats[ev.Style()]
		if !ok {
			st = &styleStats{}
			stats[ev.Style()] = st
		}
		st.total++
		if hasPositioning(ev.Text()) {
			st.overlaid++
		}
	}

	classes := make(map[string]StyleClass, len(stats))
	for name, st := range stats {
		classes[name] = classifyOne(name, st.total, st.overlaid)
	}
	return classes
}

func classifyOne(name string, total, overlaid int) StyleClass {
	if total > 0 {
		plain := total - overlaid
		if float64(plain)/float64(total) > 0.8 {
			return StyleDialog
		}
		if overlaid > plain {
			return StyleSigns
		}
	}
	// Tie or no events: fall back to the conventional name set
	if matchesSignsName(name) {
		return StyleSigns
	}
	if total == 0 {
		return StyleDialog
	}
	return StyleSigns
}

func hasPositioning(text string) bool {
	return positioningTagRe.MatchString(text) || drawingTagRe.MatchString(text)
}

func matchesSignsName(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range signsNamePatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}

// SplitDialog partitions the script's events into dialog and signs slices
// using the per-style classification. Events referencing unknown styles
// follow their own override tags.
func SplitDialog(f *ASSFile) (dialog, signs []*Event) {
	classes := ClassifyStyles(f)
	for _, ev := range f.Events() {
		class, ok := classes[ev.Style()]
		if !ok {
			if hasPositioning(ev.Text()) {
				class = StyleSigns
			} else {
				class = StyleDialog
			}
		}
		if class == StyleDialog && !hasPositioning(ev.Text()) {
			dialog = append(dialog, ev)
		} else {
			signs = append(signs, ev)
		}
	}
	return dialog, signs
}

// AllSignsRatio returns the fraction of events classified as signs.
// Used as a forced-subtitle signal: a file that is almost entirely signs
// is very likely a signs/forced track.
func AllSignsRatio(f *ASSFile) float64 {
	total := len(f.Events())
	if total == 0 {
		return 0
	}
	_, signs := SplitDialog(f)
	return float64(len(signs)) / float64(total)
}
