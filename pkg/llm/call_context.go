package llm

import (
	"context"
	"maps"
)

type contextKey string

const callContextKey contextKey = "llm_call_context"

// Keys commonly attached to a call context.
const (
	ContextProjectID = "project_id"
	ContextAgent     = "agent"
	ContextItemID    = "item_id"
	ContextItemType  = "item_type"
	ContextAttempt   = "attempt"
)

// WithContext returns a context carrying tags that are recorded with every
// completion made under it. Values are merged with any existing tags.
func WithContext(ctx context.Context, values map[string]any) context.Context {
	merged := GetContext(ctx)
	if merged == nil {
		merged = make(map[string]any, len(values))
	}
	maps.Copy(merged, values)
	return context.WithValue(ctx, callContextKey, merged)
}

// GetContext returns a copy of the call tags, or nil when none are set.
func GetContext(ctx context.Context) map[string]any {
	if c, ok := ctx.Value(callContextKey).(map[string]any); ok {
		return maps.Clone(c)
	}
	return nil
}

// WithItem tags calls made on behalf of a feedback item.
func WithItem(ctx context.Context, itemType, itemID string) context.Context {
	return WithContext(ctx, map[string]any{
		ContextItemType: itemType,
		ContextItemID:   itemID,
	})
}

// WithAttempt tags calls with the agent name and zero-based attempt index.
func WithAttempt(ctx context.Context, agent string, attempt int) context.Context {
	return WithContext(ctx, map[string]any{
		ContextAgent:   agent,
		ContextAttempt: attempt,
	})
}
