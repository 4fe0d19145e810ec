package subtitles

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Cue is a single SRT entry.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Lines []string
}

// Text joins the cue's lines with spaces.
func (c Cue) Text() string {
	return strings.Join(c.Lines, " ")
}

var srtTimeRe = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{2}):(\d{2}):(\d{2})[,.](\d{3})`)

type srtParseState int

const (
	srtStateIndex srtParseState = iota
	srtStateTime
	srtStateText
)

// ParseSRT parses SRT content with a line-oriented state machine.
// Cues with malformed indices are re-numbered rather than rejected;
// malformed timing lines fail the parse.
func ParseSRT(content []byte) ([]Cue, error) {
	scanner := bufio.NewScanner(bytes.NewReader(stripBOM(content)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		cues    []Cue
		current Cue
		state   = srtStateIndex
		lineNo  int
	)

	flush := func() {
		if len(current.Lines) > 0 {
			current.Index = len(cues) + 1
			cues = append(cues, current)
		}
		current = Cue{}
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		switch state {
		case srtStateIndex:
			if strings.TrimSpace(line) == "" {
				continue
			}
			// Some files omit indices and start straight at the timing line
			if srtTimeRe.MatchString(line) {
				start, end, err := parseSRTTiming(line)
				if err != nil {
					return nil, &FileError{Kind: FileFormatInvalid, Err: fmt.Errorf("line %d: %w", lineNo, err)}
				}
				current.Start, current.End = start, end
				state = srtStateText
				continue
			}
			if _, err := strconv.Atoi(strings.TrimSpace(line)); err != nil {
				return nil, &FileError{Kind: FileFormatInvalid, Err: fmt.Errorf("line %d: expected cue index, got %q", lineNo, line)}
			}
			state = srtStateTime

		case srtStateTime:
			start, end, err := parseSRTTiming(line)
			if err != nil {
				return nil, &FileError{Kind: FileFormatInvalid, Err: fmt.Errorf("line %d: %w", lineNo, err)}
			}
			current.Start, current.End = start, end
			state = srtStateText

		case srtStateText:
			if strings.TrimSpace(line) == "" {
				flush()
				state = srtStateIndex
				continue
			}
			current.Lines = append(current.Lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &FileError{Kind: FileEncoding, Err: err}
	}

	flush()

	if len(cues) == 0 {
		return nil, &FileError{Kind: FileFormatInvalid, Err: fmt.Errorf("no cues found")}
	}
	return cues, nil
}

func parseSRTTiming(line string) (time.Duration, time.Duration, error) {
	m := srtTimeRe.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid timing line %q", line)
	}
	start := srtDuration(m[1], m[2], m[3], m[4])
	end := srtDuration(m[5], m[6], m[7], m[8])
	return start, end, nil
}

func srtDuration(h, m, s, ms string) time.Duration {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	ss, _ := strconv.Atoi(s)
	mss, _ := strconv.Atoi(ms)
	return time.Duration(hh)*time.Hour +
		time.Duration(mm)*time.Minute +
		time.Duration(ss)*time.Second +
		time.Duration(mss)*time.Millisecond
}

// MarshalSRT serializes cues back to SRT, re-indexing from 1.
func MarshalSRT(cues []Cue) []byte {
	var buf bytes.Buffer
	for i, cue := range cues {
		if i > 0 {
			buf.WriteString("\n")
		}
		fmt.Fprintf(&buf, "%d\n", i+1)
		fmt.Fprintf(&buf, "%s --> %s\n", formatSRTTime(cue.Start), formatSRTTime(cue.End))
		for _, line := range cue.Lines {
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}
	return buf.Bytes()
}

func formatSRTTime(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
