package prompts

import (
	"fmt"
	"strings"
)

// StorySystemPrompt frames the story agent.
const StorySystemPrompt = "You are an agile product owner. You write user stories that trace " +
	"back to the feature they implement. Respond with JSON only."

// StoryFeature is a feature as presented to the story agent.
type StoryFeature struct {
	ID          string
	Title       string
	Description string
}

// BuildStoryPrompt asks for 2-3 user stories per feature, each tagged with the
// feature id it belongs to.
func BuildStoryPrompt(projectContext string, features []StoryFeature) string {
	var b strings.Builder

	b.WriteString("# User Story Generation\n\n")
	if ctx := strings.TrimSpace(projectContext); ctx != "" {
		b.WriteString("## Project\n\n")
		b.WriteString(ctx)
		b.WriteString("\n\n")
	}

	b.WriteString("## Features\n\n")
	for _, f := range features {
		fmt.Fprintf(&b, "- id: %s\n  title: %s\n", f.ID, f.Title)
		if f.Description != "" {
			fmt.Fprintf(&b, "  description: %s\n", f.Description)
		}
	}

	b.WriteString("\n## Task\n\n")
	b.WriteString("Write 2-3 user stories for every feature above. Copy the feature id and title exactly ")
	b.WriteString("into featureId and featureTitle.\n\n")
	b.WriteString("## Response Format\n\n")
	b.WriteString("```json\n")
	b.WriteString(`{"stories": [{"featureId": "...", "featureTitle": "...", "userStory": "As a ..., I want ..., so that ...", "acceptanceCriteria": ["..."], "implementationNotes": ["..."]}]}`)
	b.WriteString("\n```\n")

	return b.String()
}
