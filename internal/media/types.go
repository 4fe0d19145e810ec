package media

// SubtitleStream is one embedded subtitle track discovered by probing.
type SubtitleStream struct {
	Index    int    `json:"index"`
	Codec    string `json:"codec"`
	Language string `json:"language"`
	Title    string `json:"title"`
	Forced   bool   `json:"forced"`
	Default  bool   `json:"default"`
}

// IsASS reports whether the stream carries styled subtitles.
func (s SubtitleStream) IsASS() bool {
	return s.Codec == "ass" || s.Codec == "ssa"
}

// IsTextual reports whether the stream can be extracted as text subtitles.
// Bitmap formats (PGS, VobSub) need OCR and are not extractable here.
func (s SubtitleStream) IsTextual() bool {
	switch s.Codec {
	case "ass", "ssa", "subrip", "srt", "webvtt", "mov_text", "text":
		return true
	}
	return false
}

// AudioStream is one audio track, used to pick the transcription source.
type AudioStream struct {
	Index    int    `json:"index"`
	Codec    string `json:"codec"`
	Language string `json:"language"`
	Default  bool   `json:"default"`
}

// ProbeResult summarizes the streams of one video file.
type ProbeResult struct {
	Path      string           `json:"path"`
	Container string           `json:"container"`
	Subtitles []SubtitleStream `json:"subtitles"`
	Audio     []AudioStream    `json:"audio"`
}

// SubtitleInLanguage returns the best embedded subtitle stream for the given
// language, preferring ASS over other codecs and non-forced over forced.
func (p *ProbeResult) SubtitleInLanguage(lang string, matches func(a, b string) bool) *SubtitleStream {
	var best *SubtitleStream
	for i := range p.Subtitles {
		s := &p.Subtitles[i]
		if !matches(s.Language, lang) {
			continue
		}
		if best == nil {
			best = s
			continue
		}
		if s.IsASS() && !best.IsASS() {
			best = s
			continue
		}
		if s.IsASS() == best.IsASS() && best.Forced && !s.Forced {
			best = s
		}
	}
	return best
}
