package models

import (
	"time"

	"github.com/google/uuid"
)

// Feature is a persisted product capability.
type Feature struct {
	ID                 uuid.UUID `json:"id"`
	ProjectID          uuid.UUID `json:"projectId"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	AcceptanceCriteria []string  `json:"acceptanceCriteria"`
	OrderIndex         int       `json:"orderIndex"`
	CreatedAt          time.Time `json:"createdAt"`
}

// FeatureSpec is a feature as produced by the model, before it has an identity.
type FeatureSpec struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	AcceptanceCriteria []string `json:"acceptanceCriteria,omitempty"`
}

// Line renders the feature in the "Title: description" form returned by feature generation.
func (f FeatureSpec) Line() string {
	if f.Description == "" {
		return f.Title
	}
	return f.Title + ": " + f.Description
}
