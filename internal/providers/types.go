package providers

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// VideoQuery describes one subtitle search.
type VideoQuery struct {
	Title           string `json:"title"`
	Season          int    `json:"season,omitempty"`
	Episode         int    `json:"episode,omitempty"`
	AbsoluteEpisode int    `json:"absoluteEpisode,omitempty"`
	Year            int    `json:"year,omitempty"`
	SourceLang      string `json:"sourceLang"`
	TargetLang      string `json:"targetLang"`
	ForcedOnly      bool   `json:"forcedOnly"`
	IsEpisode       bool   `json:"isEpisode"`
	FilePath        string `json:"filePath,omitempty"`
}

// Language returns the language the query searches for: the target language,
// or the source language when the query fetches translation input.
func (q VideoQuery) Language() string {
	if q.TargetLang != "" {
		return q.TargetLang
	}
	return q.SourceLang
}

// Canonical returns the normalized query form used for cache keys and
// provider-side matching: lower-cased, diacritics and punctuation stripped,
// whitespace collapsed.
func (q VideoQuery) Canonical() string {
	var sb strings.Builder
	sb.WriteString(CanonicalTitle(q.Title))
	if q.IsEpisode {
		fmt.Fprintf(&sb, "|s%02de%02d", q.Season, q.Episode)
		if q.AbsoluteEpisode > 0 {
			fmt.Fprintf(&sb, "|abs%d", q.AbsoluteEpisode)
		}
	} else if q.Year > 0 {
		fmt.Fprintf(&sb, "|%d", q.Year)
	}
	if q.ForcedOnly {
		sb.WriteString("|forced")
	}
	return sb.String()
}

// CanonicalTitle normalizes a title for fuzzy comparison.
func CanonicalTitle(title string) string {
	decomposed := norm.NFD.String(strings.ToLower(title))
	var sb strings.Builder
	lastSpace := true
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			// Combining mark from decomposition: the diacritic itself.
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				sb.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

// SubtitleResult is one candidate subtitle returned by a provider search.
type SubtitleResult struct {
	Provider          string   `json:"provider"`
	ID                string   `json:"id"`
	Language          string   `json:"language"`
	Format            string   `json:"format"`
	DownloadURL       string   `json:"downloadUrl"`
	Release           string   `json:"release,omitempty"`
	Uploader          string   `json:"uploader,omitempty"`
	UploaderTrust     int      `json:"uploaderTrust"` // 0-20
	Forced            bool     `json:"forced"`
	HearingImpaired   bool     `json:"hearingImpaired"`
	MachineTranslated bool     `json:"machineTranslated"`
	MTConfidence      int      `json:"mtConfidence"` // 0-100
	ContentHash       string   `json:"contentHash,omitempty"`
	Score             int      `json:"score"`
	MatchedAttributes []string `json:"matchedAttributes,omitempty"`
}

// ConfigFieldType enumerates the field kinds a provider can declare.
type ConfigFieldType string

const (
	FieldString ConfigFieldType = "string"
	FieldInt    ConfigFieldType = "int"
	FieldBool   ConfigFieldType = "bool"
	FieldSecret ConfigFieldType = "secret"
	FieldSelect ConfigFieldType = "select"
)

// ConfigField self-describes one provider or backend setting so the UI can
// render a form and the API can validate writes.
type ConfigField struct {
	Name    string          `json:"name"`
	Label   string          `json:"label"`
	Type    ConfigFieldType `json:"type"`
	Default string          `json:"default,omitempty"`
	Help    string          `json:"help,omitempty"`
	Options []string        `json:"options,omitempty"`
}

// ValidateConfig checks a settings payload against declared fields.
func ValidateConfig(fields []ConfigField, values map[string]string) error {
	known := make(map[string]ConfigField, len(fields))
	for _, f := range fields {
		known[f.Name] = f
	}
	for name, value := range values {
		f, ok := known[name]
		if !ok {
			return fmt.Errorf("unknown config field %q", name)
		}
		switch f.Type {
		case FieldInt:
			for _, r := range value {
				if !unicode.IsDigit(r) && r != '-' {
					return fmt.Errorf("field %q expects an integer", name)
				}
			}
		case FieldBool:
			if value != "true" && value != "false" {
				return fmt.Errorf("field %q expects true or false", name)
			}
		case FieldSelect:
			found := false
			for _, opt := range f.Options {
				if opt == value {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("field %q does not accept %q", name, value)
			}
		}
	}
	return nil
}

// ErrorKind classifies provider failures for breaker and logging decisions.
type ErrorKind string

const (
	ErrAuth      ErrorKind = "auth"
	ErrRateLimit ErrorKind = "rate_limit"
	ErrNetwork   ErrorKind = "network"
	ErrParse     ErrorKind = "parse"
	ErrEmpty     ErrorKind = "empty"
)

// ProviderError never propagates above the manager; it feeds the breaker
// and is reported upstream as zero results.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	RetryAfter int // seconds, for rate_limit errors
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderError reports whether err is a ProviderError of the given kind.
func IsProviderError(err error, kind ErrorKind) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}
