package prompts

import (
	"fmt"
	"strings"
)

// DiagramSystemPrompt frames the diagram agent.
const DiagramSystemPrompt = "You are a software architect who draws Mermaid diagrams. " +
	"Respond with Mermaid source only, no prose and no code fences."

// DiagramStory is a story as presented to the diagram agent.
type DiagramStory struct {
	FeatureTitle string
	UserStory    string
}

var diagramInstructions = map[string]string{
	"hld": "Draw a high-level architecture diagram. Start with `graph TD` or `flowchart TD`. " +
		"Show clients, services, data stores and external integrations.",
	"lld": "Draw a low-level design as a Mermaid class diagram. Start with `classDiagram`. " +
		"Declare each class with the `class` keyword, including key attributes, methods and relationships. " +
		"Do not use graph or flowchart syntax.",
	"database": "Draw the database schema as an entity-relationship diagram. Start with `erDiagram`. " +
		"Include entities, key columns and cardinalities.",
}

// BuildDiagramPrompt asks for one diagram of diagramType covering the features and stories.
func BuildDiagramPrompt(diagramType, projectContext string, features []StoryFeature, stories []DiagramStory) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s Diagram\n\n", strings.ToUpper(diagramType))
	if ctx := strings.TrimSpace(projectContext); ctx != "" {
		b.WriteString("## Project\n\n")
		b.WriteString(ctx)
		b.WriteString("\n\n")
	}

	b.WriteString("## Features\n\n")
	for _, f := range features {
		if f.Description != "" {
			fmt.Fprintf(&b, "- %s: %s\n", f.Title, f.Description)
		} else {
			fmt.Fprintf(&b, "- %s\n", f.Title)
		}
	}

	if len(stories) > 0 {
		b.WriteString("\n## User Stories\n\n")
		for _, s := range stories {
			fmt.Fprintf(&b, "- [%s] %s\n", s.FeatureTitle, s.UserStory)
		}
	}

	b.WriteString("\n## Task\n\n")
	instructions, ok := diagramInstructions[diagramType]
	if !ok {
		instructions = diagramInstructions["hld"]
	}
	b.WriteString(instructions)
	b.WriteString("\n")

	return b.String()
}

// BuildDiagramRepairPrompt appends the previous output and its defect to the
// original prompt and asks for a corrected diagram. acceptedStarts, when
// non-empty, lists the keywords the diagram may open with.
func BuildDiagramRepairPrompt(original, previousOutput, diagnostic string, acceptedStarts []string) string {
	var b strings.Builder

	b.WriteString(original)
	b.WriteString("\n\n## Previous Attempt Was Rejected\n\n")
	b.WriteString("Your previous diagram failed validation:\n\n")
	fmt.Fprintf(&b, "> %s\n\n", diagnostic)
	if len(acceptedStarts) > 0 {
		fmt.Fprintf(&b, "The diagram must begin with `%s`.\n\n", strings.Join(acceptedStarts, "` or `"))
	}
	b.WriteString("Previous output:\n\n")
	b.WriteString(previousOutput)
	b.WriteString("\n\nFix exactly this defect and return the complete corrected Mermaid diagram.\n")

	return b.String()
}
