// Package translator turns source-language subtitles into target-language
// subtitles through a chain of translation backends, with translation
// memory, glossary enforcement and optional self-evaluation.
package translator

import (
	"context"
	"errors"
	"fmt"

	"github.com/sublarr/sublarr/internal/providers"
)

// ConfigField reuses the self-describing settings schema providers declare.
type ConfigField = providers.ConfigField

// GlossaryTerm pins a translation for one source term.
type GlossaryTerm struct {
	ID         int64  `json:"id" yaml:"-"`
	SourceTerm string `json:"sourceTerm" yaml:"source"`
	TargetTerm string `json:"targetTerm" yaml:"target"`
	Scope      string `json:"scope" yaml:"scope,omitempty"`
}

// BatchRequest is one translation call: a slice of subtitle lines plus the
// context the backend may use.
type BatchRequest struct {
	Lines      []string
	SourceLang string
	TargetLang string

	// Glossary terms the translation must honor. Empty when the backend
	// does not support glossaries.
	Glossary []GlossaryTerm

	// ReferenceLines is a non-numbered excerpt of an existing translation
	// in another language, used for vocabulary and tone. Empty when the
	// backend does not support references.
	ReferenceLines []string

	// Prompt overrides the default system prompt when set.
	Prompt string
}

// BatchResult carries the translated lines, index-aligned with the request.
type BatchResult struct {
	Lines []string
}

// Backend is the contract every translation backend implements.
type Backend interface {
	Name() string
	TranslateBatch(ctx context.Context, req BatchRequest) (*BatchResult, error)
	HealthCheck(ctx context.Context) error
	ConfigFields() []ConfigField

	SupportsGlossary() bool
	SupportsSRTReference() bool
	SupportsEvaluation() bool
}

// Evaluator is implemented by backends that can score translation quality.
type Evaluator interface {
	// EvaluateBatch scores each (source, translated) pair 0-100.
	EvaluateBatch(ctx context.Context, sourceLines, translatedLines []string, sourceLang, targetLang string) ([]int, error)
}

// ErrorKind classifies backend failures.
type ErrorKind string

const (
	ErrAuth      ErrorKind = "auth"
	ErrRateLimit ErrorKind = "rate_limit"
	ErrNetwork   ErrorKind = "network"
	ErrParse     ErrorKind = "parse"
	ErrLineCount ErrorKind = "line_count"
)

// BackendError wraps a backend failure with its classification.
type BackendError struct {
	Backend    string
	Kind       ErrorKind
	RetryAfter int // seconds, for rate_limit errors
	Err        error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Kind, e.Err)
	}
	return fmt.Sprintf("backend %s: %s", e.Backend, e.Kind)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsBackendError reports whether err is a BackendError of the given kind.
func IsBackendError(err error, kind ErrorKind) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind == kind
	}
	return false
}

// BackendAttempt records one backend's outcome inside a chain call.
type BackendAttempt struct {
	Backend   string `json:"backend"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// TranslationResult summarizes one file translation.
type TranslationResult struct {
	OutputPath     string           `json:"outputPath"`
	Backend        string           `json:"backend"`
	LinesTotal     int              `json:"linesTotal"`
	LinesFromTM    int              `json:"linesFromTm"`
	SignsPreserved int              `json:"signsPreserved"`
	Quality        *QualityStats    `json:"quality,omitempty"`
	Attempts       []BackendAttempt `json:"attempts,omitempty"`

	// LineScores holds the per-line evaluation scores (-1 for lines that
	// were not evaluated); written to the quality sidecar, not the API.
	LineScores []int `json:"-"`
}

// QualityStats aggregates per-line evaluation scores.
type QualityStats struct {
	AvgQuality       float64 `json:"avg_quality"`
	MinQuality       int     `json:"min_quality"`
	LowQualityLines  int     `json:"low_quality_lines"`
	QualityThreshold int     `json:"quality_threshold"`
}
