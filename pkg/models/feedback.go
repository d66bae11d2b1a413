package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ItemType is the kind of artifact feedback is attached to.
type ItemType string

const (
	ItemTypeFeature       ItemType = "feature"
	ItemTypeStory         ItemType = "story"
	ItemTypeVisualization ItemType = "visualization"
)

// ValidItemTypes lists every item type feedback can target.
var ValidItemTypes = []ItemType{ItemTypeFeature, ItemTypeStory, ItemTypeVisualization}

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeFeature, ItemTypeStory, ItemTypeVisualization:
		return true
	}
	return false
}

// ParseItemType validates s as an ItemType.
func ParseItemType(s string) (ItemType, error) {
	t := ItemType(s)
	if !t.Valid() {
		return "", fmt.Errorf("invalid item type %q (must be feature, story or visualization)", s)
	}
	return t, nil
}

// FeedbackStatus tracks whether feedback has been applied.
type FeedbackStatus string

const (
	FeedbackStatusSubmitted   FeedbackStatus = "submitted"
	FeedbackStatusRegenerated FeedbackStatus = "regenerated"
	FeedbackStatusFailed      FeedbackStatus = "failed"
)

// FeedbackEntry is one piece of user feedback on a generated item. It starts at
// version 0 with status submitted and is updated in place when a regeneration
// based on it succeeds.
type FeedbackEntry struct {
	ID                 uuid.UUID      `json:"id"`
	ItemID             string         `json:"itemId"`
	ItemType           ItemType       `json:"itemType"`
	ProjectID          string         `json:"projectId,omitempty"`
	FeedbackText       string         `json:"feedbackText"`
	OriginalContent    JSONBMap       `json:"originalContent,omitempty"`
	ProjectContext     string         `json:"projectContext,omitempty"`
	Status             FeedbackStatus `json:"status"`
	Version            int            `json:"version"`
	CreatedAt          time.Time      `json:"createdAt"`
	RegeneratedAt      *time.Time     `json:"regeneratedAt,omitempty"`
	RegeneratedContent JSONBMap       `json:"regeneratedContent,omitempty"`
}

// FeedbackVersion is an immutable snapshot written each time an item is regenerated.
type FeedbackVersion struct {
	ID         uuid.UUID `json:"id"`
	FeedbackID uuid.UUID `json:"feedbackId"`
	ItemID     string    `json:"itemId"`
	ItemType   ItemType  `json:"itemType"`
	Version    int       `json:"version"`
	Content    JSONBMap  `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}
