package models

import (
	"time"

	"github.com/google/uuid"
)

// LLMCall is one completion request with its verbatim prompt and response.
type LLMCall struct {
	ID        uuid.UUID `json:"id"`
	ProjectID string    `json:"projectId,omitempty"`
	// Context carries caller tags such as agent, item_id, item_type and attempt.
	Context JSONBMap `json:"context,omitempty"`

	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	SystemPrompt string   `json:"systemPrompt"`
	UserPrompt   string   `json:"userPrompt"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"maxTokens,omitempty"`

	Response   string `json:"response,omitempty"`
	DurationMs int    `json:"durationMs"`

	Status       string `json:"status"`
	ErrorType    string `json:"errorType,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Status values for LLM calls.
const (
	LLMCallStatusPending = "pending" // Request sent, awaiting response
	LLMCallStatusSuccess = "success"
	LLMCallStatusError   = "error"
)
