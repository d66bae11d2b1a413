package prompts

import (
	"fmt"
	"strings"
)

// JSONRepairSystemPrompt frames the low-cost JSON repair model.
const JSONRepairSystemPrompt = "You repair malformed JSON. Return only the corrected JSON document."

// BuildJSONRepairPrompt asks for a corrected document given the parse error
// and the malformed text. shape describes the expected top-level structure.
func BuildJSONRepairPrompt(shape, malformed, parseError string) string {
	var b strings.Builder

	b.WriteString("The following text was supposed to be a JSON document but could not be parsed.\n\n")
	fmt.Fprintf(&b, "Parse error: %s\n\n", parseError)
	if shape != "" {
		fmt.Fprintf(&b, "Expected shape: %s\n\n", shape)
	}
	b.WriteString("Text:\n\n")
	b.WriteString(strings.TrimSpace(malformed))
	b.WriteString("\n\nReturn the corrected JSON only, with no commentary and no code fences.\n")

	return b.String()
}

// WithFeedback appends a user feedback block to a project context so a
// regenerated item reflects the requested change.
func WithFeedback(projectContext, feedback, originalSummary string) string {
	var b strings.Builder

	b.WriteString(strings.TrimSpace(projectContext))
	if originalSummary != "" {
		b.WriteString("\n\n## Current Version\n\n")
		b.WriteString(originalSummary)
	}
	b.WriteString("\n\n## User Feedback\n\n")
	b.WriteString("Regenerate the item above so that it addresses this feedback:\n\n")
	b.WriteString(strings.TrimSpace(feedback))
	b.WriteString("\n")

	return strings.TrimLeft(b.String(), "\n")
}
