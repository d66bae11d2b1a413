package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetContext_Empty(t *testing.T) {
	assert.Nil(t, GetContext(context.Background()))
}

func TestWithContext_Merges(t *testing.T) {
	ctx := WithItem(context.Background(), "feature", "feature-1")
	ctx = WithAttempt(ctx, "features", 0)
	ctx = WithAttempt(ctx, "features", 2)

	got := GetContext(ctx)
	assert.Equal(t, map[string]any{
		ContextItemType: "feature",
		ContextItemID:   "feature-1",
		ContextAgent:    "features",
		ContextAttempt:  2,
	}, got)
}

func TestWithContext_ParentUnchanged(t *testing.T) {
	parent := WithContext(context.Background(), map[string]any{"a": 1})
	child := WithContext(parent, map[string]any{"b": 2})

	assert.Equal(t, map[string]any{"a": 1}, GetContext(parent))
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, GetContext(child))
}

func TestGetContext_ReturnsCopy(t *testing.T) {
	ctx := WithContext(context.Background(), map[string]any{"a": 1})

	got := GetContext(ctx)
	got["a"] = 99

	assert.Equal(t, 1, GetContext(ctx)["a"])
}
