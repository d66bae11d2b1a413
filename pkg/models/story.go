package models

import (
	"time"

	"github.com/google/uuid"
)

// Story is a persisted user story attached to a feature.
type Story struct {
	ID                  uuid.UUID `json:"id"`
	ProjectID           uuid.UUID `json:"projectId"`
	FeatureID           uuid.UUID `json:"featureId"`
	FeatureTitle        string    `json:"featureTitle"`
	UserStory           string    `json:"userStory"`
	AcceptanceCriteria  []string  `json:"acceptanceCriteria"`
	ImplementationNotes []string  `json:"implementationNotes"`
	Placeholder         bool      `json:"placeholder"`
	CreatedAt           time.Time `json:"createdAt"`
}

// StorySpec is a story as produced by the model. FeatureID refers to the
// normalized feature record id the story was matched to.
type StorySpec struct {
	FeatureID           string   `json:"featureId"`
	FeatureTitle        string   `json:"featureTitle"`
	UserStory           string   `json:"userStory"`
	AcceptanceCriteria  []string `json:"acceptanceCriteria"`
	ImplementationNotes []string `json:"implementationNotes"`
	Placeholder         bool     `json:"placeholder,omitempty"`
}

// FeatureRecord is a feature in the canonical shape used for story generation,
// regardless of how the caller spelled its keys.
type FeatureRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}
