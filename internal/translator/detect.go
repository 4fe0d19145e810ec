package translator

import (
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/sublarr/sublarr/internal/subtitles"
)

// DetectLanguage guesses the language of subtitle content from its text
// lines. Returns the canonical ISO-639-1 code and a confidence in [0, 1];
// empty code when the content cannot be parsed or the guess is unreliable.
func DetectLanguage(content []byte) (string, float64) {
	var sample strings.Builder

	switch subtitles.DetectFormat(content) {
	case subtitles.FormatASS, subtitles.FormatSSA:
		f, err := subtitles.ParseASS(content)
		if err != nil {
			return "", 0
		}
		for _, ev := range f.Events() {
			sample.WriteString(assOverrideRe.ReplaceAllString(ev.Text(), ""))
			sample.WriteByte('\n')
			if sample.Len() > 8192 {
				break
			}
		}
	case subtitles.FormatSRT:
		cues, err := subtitles.ParseSRT(content)
		if err != nil {
			return "", 0
		}
		for _, cue := range cues {
			sample.WriteString(cue.Text())
			sample.WriteByte('\n')
			if sample.Len() > 8192 {
				break
			}
		}
	default:
		return "", 0
	}

	info := whatlanggo.Detect(sample.String())
	if !info.IsReliable() {
		return "", info.Confidence
	}
	return info.Lang.Iso6391(), info.Confidence
}
