package translator

import (
	"fmt"
	"strings"

	"github.com/sublarr/sublarr/internal/language"
)

// BuildSystemPrompt composes the instruction block LLM backends send as the
// system message. The exact-line-count contract is non-negotiable: the model
// must return precisely one translated line per input line.
func BuildSystemPrompt(req BatchRequest) string {
	var sb strings.Builder

	src := language.Display(req.SourceLang)
	dst := language.Display(req.TargetLang)

	if req.Prompt != "" {
		sb.WriteString(strings.TrimSpace(req.Prompt))
		sb.WriteString("\n\n")
	} else {
		fmt.Fprintf(&sb, "You are a professional subtitle translator. Translate the following subtitle lines from %s to %s.\n", src, dst)
		sb.WriteString("Keep the tone natural and conversational, matching how people actually speak.\n")
		sb.WriteString("Preserve any formatting tags exactly as they appear.\n\n")
	}

	sb.WriteString("Rules:\n")
	fmt.Fprintf(&sb, "- Respond with EXACTLY %d lines, one translation per input line, in the same order.\n", len(req.Lines))
	sb.WriteString("- Never merge, split or skip lines.\n")
	sb.WriteString("- Output only the translated lines, with no numbering, prefixes or commentary.\n")

	if len(req.Glossary) > 0 {
		sb.WriteString("\nGlossary (always use these translations):\n")
		for _, term := range req.Glossary {
			fmt.Fprintf(&sb, "- %s => %s\n", term.SourceTerm, term.TargetTerm)
		}
	}

	if len(req.ReferenceLines) > 0 {
		fmt.Fprintf(&sb, "\nFor vocabulary and tone, here is an excerpt of the same scene translated into another language. Match its terminology and register where it helps, but translate from the %s source:\n", src)
		for _, line := range req.ReferenceLines {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}

	return sb.String()
}

// BuildUserPrompt sends the input lines as-is, one per row; the system
// prompt pins the output to the same count with no numbering.
func BuildUserPrompt(lines []string) string {
	return strings.Join(lines, "\n") + "\n"
}

// ParseBatchResponse splits the model output into its non-empty lines. The
// line-count contract is enforced by the caller, not here.
func ParseBatchResponse(response string) []string {
	var out []string
	for _, raw := range strings.Split(response, "\n") {
		if line := strings.TrimSpace(raw); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// ReferenceWindow slices reference cues proportionally to the batch position
// within the whole file, widened by a buffer on both sides. Subtitle files
// for the same episode rarely align cue-for-cue, so the window errs wide.
func ReferenceWindow(reference []string, batchStart, batchEnd, totalLines int) []string {
	if len(reference) == 0 || totalLines <= 0 {
		return nil
	}
	if batchEnd > totalLines {
		batchEnd = totalLines
	}

	scale := float64(len(reference)) / float64(totalLines)
	start := int(float64(batchStart) * scale)
	end := int(float64(batchEnd) * scale)

	buffer := (end - start) / 5 // ±20%
	if buffer < 1 {
		buffer = 1
	}
	start -= buffer
	end += buffer

	if start < 0 {
		start = 0
	}
	if end > len(reference) {
		end = len(reference)
	}
	if start >= end {
		return nil
	}
	return reference[start:end]
}
