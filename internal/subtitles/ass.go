package subtitles

import (
	"fmt"
	"strings"
)

// ASSFile is a parsed ASS/SSA script. Parsing keeps every original line;
// untouched lines re-emit byte-identically, so a zero-edit round trip
// reproduces the input exactly.
type ASSFile struct {
	sections        []*assSection
	crlf            bool
	trailingNewline bool
	events          []*Event
	styles          []string
}

type assSection struct {
	name   string // normalized lowercase, e.g. "script info"
	header string // raw "[Script Info]" line, empty for preamble
	lines  []*assLine
}

type assLine struct {
	raw   string
	event *Event
}

// Event is a Dialogue line in the Events section.
type Event struct {
	fields    []string // values for the Format columns preceding Text
	format    []string // column names, lowercased
	text      string
	rawPrefix string // untouched bytes up to the Text field
	dirty     bool
}

// Text returns the event text, including inline override tags.
func (e *Event) Text() string { return e.text }

// SetText replaces the event text; timing and styling fields are untouched.
func (e *Event) SetText(text string) {
	if text == e.text {
		return
	}
	e.text = text
	e.dirty = true
}

// Field returns the value of a named Format column (case-insensitive).
func (e *Event) Field(name string) string {
	name = strings.ToLower(name)
	for i, col := range e.format {
		if col == name && i < len(e.fields) {
			return e.fields[i]
		}
	}
	return ""
}

// Style returns the event's style name.
func (e *Event) Style() string { return e.Field("style") }

// ParseASS parses ASS or SSA content.
func ParseASS(content []byte) (*ASSFile, error) {
	text := string(stripBOM(content))

	f := &ASSFile{
		crlf:            strings.Contains(text, "\r\n"),
		trailingNewline: strings.HasSuffix(text, "\n"),
	}

	rawLines := strings.Split(text, "\n")
	if f.trailingNewline && len(rawLines) > 0 && rawLines[len(rawLines)-1] == "" {
		rawLines = rawLines[:len(rawLines)-1]
	}

	current := &assSection{name: ""}
	f.sections = append(f.sections, current)

	var eventFormat []string

	for _, raw := range rawLines {
		line := strings.TrimSuffix(raw, "\r")

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			current = &assSection{
				name:   strings.ToLower(strings.TrimSpace(trimmed[1 : len(trimmed)-1])),
				header: line,
			}
			f.sections = append(f.sections, current)
			eventFormat = nil
			continue
		}

		al := &assLine{raw: line}

		switch {
		case current.name == "events" && strings.HasPrefix(trimmed, "Format:"):
			eventFormat = parseFormatColumns(trimmed)

		case current.name == "events" && strings.HasPrefix(trimmed, "Dialogue:"):
			ev, err := parseEventLine(line, eventFormat)
			if err != nil {
				return nil, &FileError{Kind: FileFormatInvalid, Err: err}
			}
			al.event = ev
			f.events = append(f.events, ev)

		case (current.name == "v4+ styles" || current.name == "v4 styles") && strings.HasPrefix(trimmed, "Style:"):
			if name := parseStyleName(trimmed); name != "" {
				f.styles = append(f.styles, name)
			}
		}

		current.lines = append(current.lines, al)
	}

	if len(f.sections) == 1 && len(f.sections[0].lines) == 0 {
		return nil, &FileError{Kind: FileFormatInvalid, Err: fmt.Errorf("empty script")}
	}
	if !f.hasSection("script info") {
		return nil, &FileError{Kind: FileFormatInvalid, Err: fmt.Errorf("missing [Script Info] section")}
	}

	return f, nil
}

func parseFormatColumns(line string) []string {
	spec := strings.TrimPrefix(line, "Format:")
	parts := strings.Split(spec, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		cols = append(cols, strings.ToLower(strings.TrimSpace(p)))
	}
	return cols
}

var defaultEventFormat = []string{"layer", "start", "end", "style", "name", "marginl", "marginr", "marginv", "effect", "text"}

func parseEventLine(line string, format []string) (*Event, error) {
	if format == nil {
		format = defaultEventFormat
	}

	body := strings.TrimPrefix(strings.TrimLeft(line, " \t"), "Dialogue:")
	prefixLen := len(line) - len(body)

	// Text is the last column and may itself contain commas
	n := len(format) - 1
	fields := make([]string, 0, n)
	rest := body
	offset := prefixLen
	for i := 0; i < n; i++ {
		idx := strings.Index(rest, ",")
		if idx < 0 {
			return nil, fmt.Errorf("dialogue line has %d of %d fields: %q", i, n, line)
		}
		fields = append(fields, strings.TrimSpace(rest[:idx]))
		offset += idx + 1
		rest = rest[idx+1:]
	}

	return &Event{
		fields:    fields,
		format:    format,
		text:      rest,
		rawPrefix: line[:offset],
	}, nil
}

func parseStyleName(line string) string {
	spec := strings.TrimPrefix(line, "Style:")
	if idx := strings.Index(spec, ","); idx >= 0 {
		spec = spec[:idx]
	}
	return strings.TrimSpace(spec)
}

func (f *ASSFile) hasSection(name string) bool {
	for _, s := range f.sections {
		if s.name == name {
			return true
		}
	}
	return false
}

// Events returns the Dialogue events in script order.
func (f *ASSFile) Events() []*Event { return f.events }

// Styles returns the style names declared in the styles section.
func (f *ASSFile) Styles() []string { return f.styles }

// ScriptInfo returns the value of a Script Info key, empty when absent.
func (f *ASSFile) ScriptInfo(key string) string {
	prefix := strings.ToLower(key) + ":"
	for _, s := range f.sections {
		if s.name != "script info" {
			continue
		}
		for _, l := range s.lines {
			if strings.HasPrefix(strings.ToLower(l.raw), prefix) {
				return strings.TrimSpace(l.raw[len(prefix):])
			}
		}
	}
	return ""
}

// SetScriptInfo sets a Script Info key, replacing an existing line or
// appending after the section's last non-empty line.
func (f *ASSFile) SetScriptInfo(key, value string) {
	newLine := key + ": " + value
	prefix := strings.ToLower(key) + ":"

	for _, s := range f.sections {
		if s.name != "script info" {
			continue
		}
		for _, l := range s.lines {
			if strings.HasPrefix(strings.ToLower(l.raw), prefix) {
				l.raw = newLine
				return
			}
		}
		insertAt := len(s.lines)
		for insertAt > 0 && strings.TrimSpace(s.lines[insertAt-1].raw) == "" {
			insertAt--
		}
		lines := make([]*assLine, 0, len(s.lines)+1)
		lines = append(lines, s.lines[:insertAt]...)
		lines = append(lines, &assLine{raw: newLine})
		lines = append(lines, s.lines[insertAt:]...)
		s.lines = lines
		return
	}
}

// Marshal serializes the script, preserving original bytes for every
// line whose event text was not modified.
func (f *ASSFile) Marshal() []byte {
	eol := "\n"
	if f.crlf {
		eol = "\r\n"
	}

	var b strings.Builder
	first := true
	write := func(line string) {
		if !first {
			b.WriteString(eol)
		}
		first = false
		b.WriteString(line)
	}

	for _, s := range f.sections {
		if s.header != "" {
			write(s.header)
		}
		for _, l := range s.lines {
			if l.event != nil && l.event.dirty {
				write(l.event.rawPrefix + l.event.text)
			} else {
				write(l.raw)
			}
		}
	}

	if f.trailingNewline {
		b.WriteString(eol)
	}
	return []byte(b.String())
}
