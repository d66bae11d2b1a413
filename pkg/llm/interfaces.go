// Package llm provides text-completion clients for the generation agents.
package llm

import (
	"context"
)

// CompletionRequest is a single text-in, text-out completion call.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// CompletionClient defines the interface for completion calls.
// Implementations do not retry; retry and model escalation belong to the caller.
// Use this interface for dependency injection to enable mocking in tests.
type CompletionClient interface {
	// Complete returns the raw text produced by the model.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// DefaultModel returns the model used when a request leaves Model empty.
	DefaultModel() string
}

// Ensure clients implement CompletionClient at compile time.
var (
	_ CompletionClient = (*AnthropicClient)(nil)
	_ CompletionClient = (*OpenAIClient)(nil)
)
