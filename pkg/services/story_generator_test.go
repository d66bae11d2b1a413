package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/llm"
	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/retry"
)

func testFeatureRecords() []models.FeatureRecord {
	return []models.FeatureRecord{
		{ID: "f-1", Title: "User Accounts", Description: "Sign up and sign in"},
		{ID: "f-2", Title: "Product Catalog", Description: "Browse products"},
		{ID: "f-3", Title: "Checkout", Description: "Pay for an order"},
	}
}

func fastRetry() *retry.Config {
	return &retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestNormalizeFeatureRecords(t *testing.T) {
	raw := []map[string]any{
		{"id": "a", "title": "Alpha", "description": "first"},
		{"feature_id": 42, "name": "Beta", "desc": "second"},
		{"featureId": "c", "feature_title": "Gamma", "summary": "third"},
		{"key": "d", "featureTitle": "Delta", "details": "fourth"},
		{"feature": "Epsilon"},
		{"id": "a", "title": "Alpha Again"},
		{"id": 7.5, "title": "Zeta"},
		{"description": "no title, skipped"},
	}

	got := NormalizeFeatureRecords(raw)

	want := []models.FeatureRecord{
		{ID: "a", Title: "Alpha", Description: "first"},
		{ID: "42", Title: "Beta", Description: "second"},
		{ID: "c", Title: "Gamma", Description: "third"},
		{ID: "d", Title: "Delta", Description: "fourth"},
		{ID: "feature-4", Title: "Epsilon"},
		{ID: "a-5", Title: "Alpha Again"},
		{ID: "7.5", Title: "Zeta"},
	}
	assert.Equal(t, want, got)
}

func TestNormalizeFeatureRecords_SuffixedIDCollision(t *testing.T) {
	got := NormalizeFeatureRecords([]map[string]any{
		{"id": "a", "title": "First"},
		{"id": "a-2", "title": "Second"},
		{"id": "a", "title": "Third"},
		{"id": "a", "title": "Fourth"},
	})

	want := []models.FeatureRecord{
		{ID: "a", Title: "First"},
		{ID: "a-2", Title: "Second"},
		{ID: "a-3", Title: "Third"},
		{ID: "a-4", Title: "Fourth"},
	}
	assert.Equal(t, want, got)

	ids := make(map[string]bool, len(got))
	for _, r := range got {
		assert.False(t, ids[r.ID], "duplicate id %s", r.ID)
		ids[r.ID] = true
	}
}

func TestNormalizeFeatureRecords_KeyPrecedence(t *testing.T) {
	got := NormalizeFeatureRecords([]map[string]any{
		{"id": "primary", "feature_id": "secondary", "title": "Title", "name": "Name"},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "primary", got[0].ID)
	assert.Equal(t, "Title", got[0].Title)
}

func TestStoryGenerator_FillsUncoveredFeatureWithPlaceholder(t *testing.T) {
	client := llm.NewMockCompletionClient()
	client.Responses = []string{"```json\n" + `{"stories": [
		{"featureId": "f-1", "featureTitle": "User Accounts", "userStory": "As a visitor, I want to sign up", "acceptanceCriteria": ["Account created"]},
		{"featureId": "f-1", "featureTitle": "User Accounts", "userStory": "As a member, I want to sign in"},
		{"featureTitle": "product catalog", "userStory": "As a shopper, I want to browse products", "implementationNotes": "Paginate results"}
	]}` + "\n```"}

	gen := NewStoryGenerator(client, StoryGeneratorConfig{Model: "story-model"}, zap.NewNop())
	result, err := gen.Generate(context.Background(), StoryRequest{ProjectContext: "Shop", Features: testFeatureRecords()})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Placeholders)
	assert.Empty(t, result.Unmatched)
	assert.Equal(t, "story-model", result.Model)
	require.Len(t, result.Stories, 4)

	byFeature := map[string][]models.StorySpec{}
	for _, s := range result.Stories {
		byFeature[s.FeatureID] = append(byFeature[s.FeatureID], s)
	}
	assert.Len(t, byFeature["f-1"], 2)
	require.Len(t, byFeature["f-2"], 1)
	assert.Equal(t, "Product Catalog", byFeature["f-2"][0].FeatureTitle)
	assert.Equal(t, []string{"Paginate results"}, byFeature["f-2"][0].ImplementationNotes)

	require.Len(t, byFeature["f-3"], 1)
	placeholder := byFeature["f-3"][0]
	assert.True(t, placeholder.Placeholder)
	assert.Equal(t, "Checkout", placeholder.FeatureTitle)
	assert.Equal(t, PlaceholderStory(testFeatureRecords()[2]), placeholder)

	require.Len(t, client.Calls, 1)
	assert.Contains(t, client.Calls[0].UserPrompt, "f-3")
	assert.Equal(t, "story-model", client.Calls[0].Model)
}

func TestStoryGenerator_UnmatchedStoriesAreTagged(t *testing.T) {
	client := llm.NewMockCompletionClient()
	client.Responses = []string{`[
		{"featureId": "f-9", "featureTitle": "Loyalty Points", "userStory": "As a regular, I want points"},
		{"featureId": "f-2", "userStory": "As a shopper, I want filters"}
	]`}

	gen := NewStoryGenerator(client, StoryGeneratorConfig{}, zap.NewNop())
	result, err := gen.Generate(context.Background(), StoryRequest{Features: testFeatureRecords()})
	require.NoError(t, err)

	require.Len(t, result.Unmatched, 1)
	assert.Equal(t, "f-9", result.Unmatched[0].FeatureID)
	assert.Equal(t, 2, result.Placeholders)
	for _, s := range result.Stories {
		assert.NotEqual(t, "Loyalty Points", s.FeatureTitle)
	}
}

func TestStoryGenerator_UnparseableOutputYieldsPlaceholders(t *testing.T) {
	client := llm.NewMockCompletionClient()
	client.Responses = []string{"Sorry, I cannot help with that."}

	gen := NewStoryGenerator(client, StoryGeneratorConfig{}, zap.NewNop())
	features := testFeatureRecords()
	result, err := gen.Generate(context.Background(), StoryRequest{Features: features})
	require.NoError(t, err)

	require.Len(t, result.Stories, len(features))
	assert.Equal(t, len(features), result.Placeholders)
	for i, s := range result.Stories {
		assert.Equal(t, features[i].ID, s.FeatureID)
		assert.True(t, s.Placeholder)
	}
}

func TestStoryGenerator_EveryFeatureCovered(t *testing.T) {
	responses := []string{
		`{"stories": []}`,
		`{"stories": [{"featureId": "f-1", "userStory": "one"}]}`,
		`{"stories": [{"featureId": "f-1", "userStory": "one"}, {"featureId": "f-2", "userStory": "two"}, {"featureId": "f-3", "userStory": "three"}]}`,
		`{"items": [{"featureId": "f-2", "userStory": "wrong collection"}]}`,
		`{"stories": [{"featureId": "nope", "userStory": "stray"}, "not an object", {"featureId": "f-3"}]}`,
		`not json at all`,
	}

	for _, resp := range responses {
		client := llm.NewMockCompletionClient()
		client.Responses = []string{resp}
		gen := NewStoryGenerator(client, StoryGeneratorConfig{}, zap.NewNop())

		result, err := gen.Generate(context.Background(), StoryRequest{Features: testFeatureRecords()})
		require.NoError(t, err)

		covered := map[string]bool{}
		for _, s := range result.Stories {
			covered[s.FeatureID] = true
		}
		for _, f := range testFeatureRecords() {
			assert.True(t, covered[f.ID], "feature %s uncovered for response %q", f.ID, resp)
		}
	}
}

func TestStoryGenerator_RetriesTransientErrors(t *testing.T) {
	calls := 0
	client := llm.NewMockCompletionClient()
	client.CompleteFunc = func(context.Context, llm.CompletionRequest) (string, error) {
		calls++
		if calls == 1 {
			return "", llm.NewError(llm.ErrorTypeTransient, "provider overloaded", true, nil)
		}
		return `{"stories": [{"featureId": "f-1", "userStory": "As a user, I want it"}]}`, nil
	}

	gen := NewStoryGenerator(client, StoryGeneratorConfig{Retry: fastRetry()}, zap.NewNop())
	result, err := gen.Generate(context.Background(), StoryRequest{Features: testFeatureRecords()[:1]})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, result.Placeholders)
}

func TestStoryGenerator_PropagatesPermanentErrors(t *testing.T) {
	client := llm.NewMockCompletionClient()
	client.CompleteFunc = func(context.Context, llm.CompletionRequest) (string, error) {
		return "", llm.NewError(llm.ErrorTypeAuth, "authentication failed", false, nil)
	}

	gen := NewStoryGenerator(client, StoryGeneratorConfig{Retry: fastRetry()}, zap.NewNop())
	_, err := gen.Generate(context.Background(), StoryRequest{Features: testFeatureRecords()})
	require.Error(t, err)
	assert.True(t, llm.IsAuth(err))
	assert.Equal(t, 1, client.CallCount())
}

func TestStoryGenerator_NoFeatures(t *testing.T) {
	client := llm.NewMockCompletionClient()
	gen := NewStoryGenerator(client, StoryGeneratorConfig{}, zap.NewNop())

	result, err := gen.Generate(context.Background(), StoryRequest{})
	require.NoError(t, err)
	assert.Empty(t, result.Stories)
	assert.Equal(t, 0, client.CallCount())
}
