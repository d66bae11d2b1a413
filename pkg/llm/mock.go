package llm

import (
	"context"
	"sync"
)

// MockCompletionClient is a configurable mock for testing completion calls.
// Set CompleteFunc to control behavior; every request is recorded in Calls.
type MockCompletionClient struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, Responses are returned in order, then empty string and nil error.
	CompleteFunc func(ctx context.Context, req CompletionRequest) (string, error)

	// Responses are returned in call order when CompleteFunc is nil.
	Responses []string

	// Model is returned by DefaultModel. Defaults to "mock-model".
	Model string

	mu    sync.Mutex
	Calls []CompletionRequest
}

// NewMockCompletionClient creates a new mock with sensible defaults.
func NewMockCompletionClient() *MockCompletionClient {
	return &MockCompletionClient{Model: "mock-model"}
}

// Complete implements CompletionClient.
func (m *MockCompletionClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	m.mu.Lock()
	idx := len(m.Calls)
	m.Calls = append(m.Calls, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	if idx < len(m.Responses) {
		return m.Responses[idx], nil
	}
	return "", nil
}

// DefaultModel implements CompletionClient.
func (m *MockCompletionClient) DefaultModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// CallCount returns the number of Complete calls.
func (m *MockCompletionClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Models returns the model argument of every recorded call, in order.
func (m *MockCompletionClient) Models() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	models := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		models[i] = c.Model
	}
	return models
}

// Reset clears recorded calls.
func (m *MockCompletionClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

var _ CompletionClient = (*MockCompletionClient)(nil)
