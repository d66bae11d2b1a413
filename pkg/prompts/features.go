// Package prompts builds the instructions sent to the generation agents.
package prompts

import (
	"fmt"
	"strings"
)

// FeatureSystemPrompt frames the feature agent.
const FeatureSystemPrompt = "You are a senior product engineer. You turn product ideas into " +
	"implementation-ready feature lists. Respond with JSON only."

// BuildFeaturePrompt asks for count features, or at least 8 when count is 0.
func BuildFeaturePrompt(projectContext string, count int) string {
	var b strings.Builder

	b.WriteString("# Feature Generation\n\n")
	b.WriteString("## Project\n\n")
	b.WriteString(strings.TrimSpace(projectContext))
	b.WriteString("\n\n## Task\n\n")
	switch {
	case count == 1:
		b.WriteString("Describe exactly 1 feature for this project.\n")
	case count > 1:
		fmt.Fprintf(&b, "List exactly %d features for this project.\n", count)
	default:
		b.WriteString("List at least 8 features for this project.\n")
	}
	b.WriteString("Each feature must be specific enough for an engineer to start building it.\n\n")
	b.WriteString("## Response Format\n\n")
	b.WriteString("```json\n")
	b.WriteString(`{"features": [{"title": "Short name", "description": "One or two sentences", "acceptanceCriteria": ["..."]}]}`)
	b.WriteString("\n```\n")

	return b.String()
}
