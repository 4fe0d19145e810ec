package subtitles

import "testing"

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Format
	}{
		{"ass header", "[Script Info]\nTitle: x\n\n[V4+ Styles]\n", FormatASS},
		{"ssa header", "[Script Info]\nTitle: x\n\n[V4 Styles]\n", FormatSSA},
		{"ass without styles section", "[Script Info]\nTitle: x\n", FormatASS},
		{"srt", "1\n00:00:01,000 --> 00:00:02,000\nHi\n", FormatSRT},
		{"vtt", "WEBVTT\n\n00:01.000 --> 00:02.000\nHi\n", FormatVTT},
		{"vtt without header", "00:01.000 --> 00:02.000\nHi\n", FormatVTT},
		{"garbage", "this is not a subtitle", FormatUnknown},
		{"bom srt", "\xEF\xBB\xBF1\n00:00:01,000 --> 00:00:02,000\nHi\n", FormatSRT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat([]byte(tt.content)); got != tt.want {
				t.Errorf("DetectFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectFormat_IgnoresExtensionClaims(t *testing.T) {
	// An "srt" payload that is actually ASS must detect as ASS
	content := "[Script Info]\nTitle: mislabeled\n\n[Events]\nFormat: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\nDialogue: 0,0:00:01.00,0:00:02.00,Default,,0,0,0,,Hi\n"
	if got := DetectFormat([]byte(content)); got != FormatASS {
		t.Errorf("DetectFormat() = %q, want ass regardless of extension", got)
	}
}

func TestValidate(t *testing.T) {
	srt := "1\n00:00:01,000 --> 00:00:02,000\nHi\n"
	if !Validate([]byte(srt), FormatSRT) {
		t.Error("Validate(srt) = false, want true")
	}
	if Validate([]byte(srt), FormatASS) {
		t.Error("Validate(srt as ass) = true, want false")
	}
	if Validate([]byte("garbage"), FormatSRT) {
		t.Error("Validate(garbage) = true, want false")
	}
}
