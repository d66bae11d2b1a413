package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/protoforge/protoforge/pkg/models"
)

// RecordingClient wraps a CompletionClient and records every call.
// Recording is best-effort; a failing store never fails the completion.
type RecordingClient struct {
	inner    CompletionClient
	recorder CallRecorder
	provider string
	now      func() time.Time
}

// NewRecordingClient creates a new recording wrapper around inner.
func NewRecordingClient(inner CompletionClient, recorder CallRecorder, provider string) *RecordingClient {
	return &RecordingClient{
		inner:    inner,
		recorder: recorder,
		provider: provider,
		now:      time.Now,
	}
}

var _ CompletionClient = (*RecordingClient)(nil)

// Complete calls the inner client, inserting a pending record first and
// queueing the outcome afterwards.
func (c *RecordingClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.inner.DefaultModel()
	}

	tags := GetContext(ctx)
	call := &models.LLMCall{
		ID:           uuid.New(),
		ProjectID:    projectIDFrom(tags),
		Context:      tags,
		Provider:     c.provider,
		Model:        model,
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
		CreatedAt:    c.now().UTC(),
	}
	if req.Temperature != 0 {
		temperature := req.Temperature
		call.Temperature = &temperature
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		call.MaxTokens = &maxTokens
	}

	pendingSaved := c.recorder.SavePending(ctx, call) == nil

	start := c.now()
	text, err := c.inner.Complete(ctx, req)
	call.DurationMs = int(c.now().Sub(start).Milliseconds())

	if err != nil {
		call.Status = models.LLMCallStatusError
		call.ErrorType = string(ClassifyError(err).Type)
		call.ErrorMessage = err.Error()
	} else {
		call.Status = models.LLMCallStatusSuccess
		call.Response = text
	}

	c.recorder.RecordCompletion(call, pendingSaved)

	return text, err
}

// DefaultModel returns the inner client's model.
func (c *RecordingClient) DefaultModel() string {
	return c.inner.DefaultModel()
}

func projectIDFrom(tags map[string]any) string {
	v, ok := tags[ContextProjectID]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
