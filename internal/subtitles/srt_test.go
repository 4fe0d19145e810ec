package subtitles

import (
	"strings"
	"testing"
	"time"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:03,000
Hello there.

2
00:00:04,500 --> 00:00:06,000
How are you?
Second line.

3
00:00:07,000 --> 00:00:09,250
Goodbye.
`

func TestParseSRT(t *testing.T) {
	cues, err := ParseSRT([]byte(sampleSRT))
	if err != nil {
		t.Fatalf("ParseSRT() error = %v", err)
	}

	if len(cues) != 3 {
		t.Fatalf("ParseSRT() returned %d cues, want 3", len(cues))
	}

	if cues[0].Start != time.Second {
		t.Errorf("cues[0].Start = %v, want 1s", cues[0].Start)
	}
	if cues[1].Start != 4500*time.Millisecond {
		t.Errorf("cues[1].Start = %v, want 4.5s", cues[1].Start)
	}
	if len(cues[1].Lines) != 2 {
		t.Errorf("cues[1] has %d lines, want 2", len(cues[1].Lines))
	}
	if cues[2].Text() != "Goodbye." {
		t.Errorf("cues[2].Text() = %q, want Goodbye.", cues[2].Text())
	}
}

func TestParseSRT_CRLFAndBOM(t *testing.T) {
	input := "\xEF\xBB\xBF" + strings.ReplaceAll(sampleSRT, "\n", "\r\n")
	cues, err := ParseSRT([]byte(input))
	if err != nil {
		t.Fatalf("ParseSRT() error = %v", err)
	}
	if len(cues) != 3 {
		t.Errorf("ParseSRT() returned %d cues, want 3", len(cues))
	}
	if cues[0].Lines[0] != "Hello there." {
		t.Errorf("cues[0].Lines[0] = %q, carriage return not stripped", cues[0].Lines[0])
	}
}

func TestParseSRT_MissingIndices(t *testing.T) {
	input := "00:00:01,000 --> 00:00:02,000\nFirst.\n\n00:00:03,000 --> 00:00:04,000\nSecond.\n"
	cues, err := ParseSRT([]byte(input))
	if err != nil {
		t.Fatalf("ParseSRT() error = %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("ParseSRT() returned %d cues, want 2", len(cues))
	}
	if cues[1].Index != 2 {
		t.Errorf("cues[1].Index = %d, want renumbered 2", cues[1].Index)
	}
}

func TestParseSRT_BadTiming(t *testing.T) {
	input := "1\n00:00:01,000 --> garbage\nText.\n"
	if _, err := ParseSRT([]byte(input)); err == nil {
		t.Fatal("ParseSRT() expected error for malformed timing")
	}
}

func TestParseSRT_Empty(t *testing.T) {
	if _, err := ParseSRT([]byte("\n\n")); err == nil {
		t.Fatal("ParseSRT() expected error for empty input")
	}
}

func TestMarshalSRT_RoundTrip(t *testing.T) {
	cues, err := ParseSRT([]byte(sampleSRT))
	if err != nil {
		t.Fatalf("ParseSRT() error = %v", err)
	}

	out := MarshalSRT(cues)
	reparsed, err := ParseSRT(out)
	if err != nil {
		t.Fatalf("ParseSRT(marshaled) error = %v", err)
	}
	if len(reparsed) != len(cues) {
		t.Fatalf("round trip changed cue count: %d != %d", len(reparsed), len(cues))
	}
	for i := range cues {
		if reparsed[i].Start != cues[i].Start || reparsed[i].End != cues[i].End {
			t.Errorf("cue %d timing changed: %v-%v != %v-%v", i, reparsed[i].Start, reparsed[i].End, cues[i].Start, cues[i].End)
		}
		if reparsed[i].Text() != cues[i].Text() {
			t.Errorf("cue %d text changed: %q != %q", i, reparsed[i].Text(), cues[i].Text())
		}
	}
}
