package providers

import (
	"strings"

	"github.com/sublarr/sublarr/internal/subtitles"
)

// Signal is one classifier input: a label vote with a confidence.
type Signal struct {
	Source     string
	Label      string
	Confidence float64
}

// AggregateRule decides the final label from the collected signals.
type AggregateRule func(signals []Signal) (label string, confidence float64)

// Classifier aggregates weak signals into a labelled decision. The same
// machinery drives forced detection and machine-translation detection.
type Classifier struct {
	rule AggregateRule
}

// NewClassifier creates a classifier with the given aggregation rule.
func NewClassifier(rule AggregateRule) *Classifier {
	return &Classifier{rule: rule}
}

// Classify runs the aggregation rule over the signals.
func (c *Classifier) Classify(signals []Signal) (string, float64) {
	return c.rule(signals)
}

// KOfNRule labels when at least k signals agree, or a single signal reaches
// soloThreshold. Confidence is the mean of the agreeing signals, floored at
// 0.8 when the k-agreement fires.
func KOfNRule(k int, soloThreshold float64) AggregateRule {
	return func(signals []Signal) (string, float64) {
		votes := make(map[string][]float64)
		for _, s := range signals {
			votes[s.Label] = append(votes[s.Label], s.Confidence)
		}

		bestLabel := ""
		bestConf := 0.0
		for label, confs := range votes {
			solo := 0.0
			sum := 0.0
			for _, c := range confs {
				sum += c
				if c > solo {
					solo = c
				}
			}
			mean := sum / float64(len(confs))

			if len(confs) >= k {
				if mean < 0.8 {
					mean = 0.8
				}
				if mean > bestConf {
					bestLabel, bestConf = label, mean
				}
			} else if solo >= soloThreshold && solo > bestConf {
				bestLabel, bestConf = label, solo
			}
		}
		return bestLabel, bestConf
	}
}

const (
	labelForced = "forced"
	labelFull   = "full"
)

// ForcedClassifier decides whether a subtitle is a forced/signs track.
var ForcedClassifier = NewClassifier(KOfNRule(2, 0.9))

// ForcedSignalsFromResult derives forced signals from provider metadata:
// the provider's own flag, filename markers, and release title tokens.
func ForcedSignalsFromResult(result SubtitleResult) []Signal {
	var signals []Signal

	if result.Forced {
		signals = append(signals, Signal{Source: "provider_flag", Label: labelForced, Confidence: 0.95})
	}

	lowerURL := strings.ToLower(result.DownloadURL)
	lowerRelease := strings.ToLower(result.Release)
	if strings.Contains(lowerURL, ".forced.") || strings.Contains(lowerRelease, ".forced.") ||
		strings.Contains(lowerURL, ".signs.") || strings.Contains(lowerRelease, ".signs.") {
		signals = append(signals, Signal{Source: "filename", Label: labelForced, Confidence: 0.85})
	}

	for _, token := range []string{"forced", "signs only", "signs & songs", "signs and songs"} {
		if strings.Contains(lowerRelease, token) {
			signals = append(signals, Signal{Source: "release_title", Label: labelForced, Confidence: 0.6})
			break
		}
	}

	return signals
}

// ForcedSignalsFromStream derives signals from a container stream: the
// disposition flag and the stream title.
func ForcedSignalsFromStream(dispositionForced bool, streamTitle string) []Signal {
	var signals []Signal
	if dispositionForced {
		signals = append(signals, Signal{Source: "disposition", Label: labelForced, Confidence: 0.95})
	}
	lower := strings.ToLower(streamTitle)
	if strings.Contains(lower, "forced") || strings.Contains(lower, "sign") {
		signals = append(signals, Signal{Source: "stream_title", Label: labelForced, Confidence: 0.7})
	}
	return signals
}

// ForcedSignalFromContent inspects downloaded ASS content: a file whose
// events are nearly all signs-styled is a forced/signs track. Line count
// alone never contributes a signal.
func ForcedSignalFromContent(content []byte) []Signal {
	if subtitles.DetectFormat(content) != subtitles.FormatASS {
		return nil
	}
	f, err := subtitles.ParseASS(content)
	if err != nil {
		return nil
	}
	ratio := subtitles.AllSignsRatio(f)
	if ratio >= 0.95 {
		return []Signal{{Source: "ass_styles", Label: labelForced, Confidence: 0.9}}
	}
	if ratio >= 0.8 {
		return []Signal{{Source: "ass_styles", Label: labelForced, Confidence: 0.6}}
	}
	return nil
}

// IsForced classifies a search result without content, using metadata only.
func IsForced(result SubtitleResult) bool {
	label, _ := ForcedClassifier.Classify(ForcedSignalsFromResult(result))
	return label == labelForced
}

// mtClassifier aggregates machine-translation hints. One strong provider
// flag is decisive; weaker hints must agree.
var mtClassifier = NewClassifier(KOfNRule(2, 0.9))

// MTSignals derives machine-translation signals from provider metadata.
func MTSignals(result SubtitleResult) []Signal {
	var signals []Signal
	if result.MachineTranslated {
		signals = append(signals, Signal{Source: "provider_flag", Label: "mt", Confidence: 0.95})
	}
	lower := strings.ToLower(result.Release + " " + result.Uploader)
	for _, token := range []string{"machine translated", "mtl", "auto-translated", "google translate"} {
		if strings.Contains(lower, token) {
			signals = append(signals, Signal{Source: "release_title", Label: "mt", Confidence: 0.7})
			break
		}
	}
	return signals
}

// MTConfidence returns the aggregated 0-100 confidence that a result is
// machine translated.
func MTConfidence(result SubtitleResult) int {
	label, conf := mtClassifier.Classify(MTSignals(result))
	if label != "mt" {
		return 0
	}
	pct := int(conf * 100)
	if result.MTConfidence > pct {
		pct = result.MTConfidence
	}
	return pct
}
