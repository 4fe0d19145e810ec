// Package mock provides a deterministic translation backend for tests and
// dev mode.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/sublarr/sublarr/internal/translator"
)

// Backend is a configurable in-memory translation backend. By default it
// translates a line to "[lang] line", which keeps tests readable.
type Backend struct {
	BackendName string
	Glossary    bool
	Reference   bool
	Evaluation  bool

	mu             sync.Mutex
	TranslateFn    func(req translator.BatchRequest) ([]string, error)
	EvaluateFn     func(sourceLines, translatedLines []string) ([]int, error)
	HealthErr      error
	TranslateCalls int
	EvaluateCalls  int
	LastRequest    translator.BatchRequest
}

// New creates a mock backend named "mock" with every capability enabled.
func New() *Backend {
	return &Backend{BackendName: "mock", Glossary: true, Reference: true, Evaluation: true}
}

// Name implements translator.Backend.
func (b *Backend) Name() string {
	if b.BackendName == "" {
		return "mock"
	}
	return b.BackendName
}

// SupportsGlossary implements translator.Backend.
func (b *Backend) SupportsGlossary() bool { return b.Glossary }

// SupportsSRTReference implements translator.Backend.
func (b *Backend) SupportsSRTReference() bool { return b.Reference }

// SupportsEvaluation implements translator.Backend.
func (b *Backend) SupportsEvaluation() bool { return b.Evaluation }

// ConfigFields implements translator.Backend.
func (b *Backend) ConfigFields() []translator.ConfigField { return nil }

// TranslateBatch implements translator.Backend.
func (b *Backend) TranslateBatch(_ context.Context, req translator.BatchRequest) (*translator.BatchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.TranslateCalls++
	b.LastRequest = req

	if b.TranslateFn != nil {
		lines, err := b.TranslateFn(req)
		if err != nil {
			return nil, err
		}
		return &translator.BatchResult{Lines: lines}, nil
	}

	lines := make([]string, len(req.Lines))
	for i, line := range req.Lines {
		lines[i] = fmt.Sprintf("[%s] %s", req.TargetLang, line)
	}
	return &translator.BatchResult{Lines: lines}, nil
}

// EvaluateBatch implements translator.Evaluator.
func (b *Backend) EvaluateBatch(_ context.Context, sourceLines, translatedLines []string, _, _ string) ([]int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.EvaluateCalls++

	if b.EvaluateFn != nil {
		return b.EvaluateFn(sourceLines, translatedLines)
	}
	scores := make([]int, len(sourceLines))
	for i := range scores {
		scores[i] = 90
	}
	return scores, nil
}

// HealthCheck implements translator.Backend.
func (b *Backend) HealthCheck(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.HealthErr
}
