package translator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSystemPromptLineContract(t *testing.T) {
	prompt := BuildSystemPrompt(BatchRequest{
		Lines:      []string{"a", "b", "c"},
		SourceLang: "ja",
		TargetLang: "en",
	})
	assert.Contains(t, prompt, "EXACTLY 3 lines")
	assert.Contains(t, prompt, "Japanese")
	assert.Contains(t, prompt, "English")
}

func TestBuildSystemPromptGlossaryBlock(t *testing.T) {
	prompt := BuildSystemPrompt(BatchRequest{
		Lines:      []string{"a"},
		SourceLang: "ja",
		TargetLang: "en",
		Glossary: []GlossaryTerm{
			{SourceTerm: "魔王", TargetTerm: "Demon King"},
		},
	})
	assert.Contains(t, prompt, "Glossary")
	assert.Contains(t, prompt, "魔王 => Demon King")
}

func TestBuildSystemPromptReferenceBlock(t *testing.T) {
	prompt := BuildSystemPrompt(BatchRequest{
		Lines:          []string{"a"},
		SourceLang:     "ja",
		TargetLang:     "de",
		ReferenceLines: []string{"Hello there", "General greeting"},
	})
	assert.Contains(t, prompt, "vocabulary and tone")
	assert.Contains(t, prompt, "Hello there")
	assert.NotContains(t, prompt, "1. Hello there", "reference lines are not numbered")
}

func TestBuildSystemPromptCustomPrompt(t *testing.T) {
	prompt := BuildSystemPrompt(BatchRequest{
		Lines:      []string{"a", "b"},
		SourceLang: "ja",
		TargetLang: "en",
		Prompt:     "Translate in pirate speak.",
	})
	assert.Contains(t, prompt, "Translate in pirate speak.")
	assert.Contains(t, prompt, "EXACTLY 2 lines", "custom prompts keep the line contract")
}

func TestBuildUserPromptPlainLines(t *testing.T) {
	user := BuildUserPrompt([]string{"first", "second"})
	assert.Equal(t, "first\nsecond\n", user)
}

func TestParseBatchResponse(t *testing.T) {
	lines := ParseBatchResponse("Hello\n  World  \n\nLast line\n")
	assert.Equal(t, []string{"Hello", "World", "Last line"}, lines)
}

func TestReferenceWindowProportional(t *testing.T) {
	reference := make([]string, 100)
	for i := range reference {
		reference[i] = strings.Repeat("x", 3)
	}

	window := ReferenceWindow(reference, 0, 50, 200)
	assert.NotEmpty(t, window)
	assert.LessOrEqual(t, len(window), 32, "first quarter plus buffer")

	full := ReferenceWindow(reference, 0, 200, 200)
	assert.Len(t, full, 100)

	assert.Nil(t, ReferenceWindow(nil, 0, 10, 100))
	assert.Nil(t, ReferenceWindow(reference, 0, 10, 0))
}

func TestReferenceWindowTailBatch(t *testing.T) {
	reference := make([]string, 50)
	window := ReferenceWindow(reference, 180, 200, 200)
	assert.NotEmpty(t, window, "tail batches still get a window")
}
