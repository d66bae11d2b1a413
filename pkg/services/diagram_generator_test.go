package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/llm"
	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/prompts"
	"github.com/protoforge/protoforge/pkg/retry"
)

func newTestDiagramGenerator(client llm.CompletionClient) DiagramGenerator {
	return NewDiagramGenerator(client, DiagramGeneratorConfig{
		Model:         "primary-model",
		FallbackModel: "fallback-model",
		MaxAttempts:   3,
		EscalateAt:    2,
	}, zap.NewNop())
}

func testDiagramRequest(t models.DiagramType) DiagramRequest {
	return DiagramRequest{
		Type:           t,
		ProjectContext: "Online shop",
		Features:       testFeatureRecords(),
		Stories:        []models.StorySpec{{FeatureTitle: "Checkout", UserStory: "As a buyer, I want to pay"}},
	}
}

func TestDiagramGenerator_AcceptsValidDiagram(t *testing.T) {
	client := llm.NewMockCompletionClient()
	client.Responses = []string{"```mermaid\ngraph TD\n  Web-->API\n  API-->DB\n```"}

	result, err := newTestDiagramGenerator(client).Generate(context.Background(), testDiagramRequest(models.DiagramTypeHLD))
	require.NoError(t, err)

	assert.Equal(t, "graph TD\n  Web-->API\n  API-->DB", result.Mermaid)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "primary-model", result.Model)
	assert.False(t, result.Degraded)

	call := client.Calls[0]
	assert.Equal(t, prompts.DiagramSystemPrompt, call.SystemPrompt)
	assert.Contains(t, call.UserPrompt, "Checkout")
	assert.Contains(t, call.UserPrompt, "As a buyer, I want to pay")
}

func TestDiagramGenerator_EscalatesOnThirdAttempt(t *testing.T) {
	client := llm.NewMockCompletionClient()
	client.Responses = []string{
		"graph TD\n  A-->B{",
		"graph TD\n  A-->B[",
		"graph TD\n  A-->B",
	}

	result, err := newTestDiagramGenerator(client).Generate(context.Background(), testDiagramRequest(models.DiagramTypeHLD))
	require.NoError(t, err)

	assert.Equal(t, []string{"primary-model", "primary-model", "fallback-model"}, client.Models())
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, "fallback-model", result.Model)

	repairPrompt := client.Calls[1].UserPrompt
	assert.Contains(t, repairPrompt, client.Calls[0].UserPrompt)
	assert.Contains(t, repairPrompt, "unbalanced {} brackets: 1 open, 0 close")
	assert.Contains(t, repairPrompt, "A-->B{")
	assert.Contains(t, repairPrompt, "The diagram must begin with `graph` or `flowchart`.")
}

func TestDiagramGenerator_FlowchartForLLDIsTerminal(t *testing.T) {
	client := llm.NewMockCompletionClient()
	client.CompleteFunc = func(context.Context, llm.CompletionRequest) (string, error) {
		return "graph TD\nA-->B", nil
	}

	_, err := newTestDiagramGenerator(client).Generate(context.Background(), testDiagramRequest(models.DiagramTypeLLD))
	require.Error(t, err)

	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "class_diagram_required", exhausted.Last.Code)
	assert.Equal(t, 3, client.CallCount())
}

func TestDiagramGenerator_DegradesOnRecoverableFailure(t *testing.T) {
	client := llm.NewMockCompletionClient()
	client.CompleteFunc = func(context.Context, llm.CompletionRequest) (string, error) {
		return "flowchart LR\n  A[Start-->B", nil
	}

	result, err := newTestDiagramGenerator(client).Generate(context.Background(), testDiagramRequest(models.DiagramTypeHLD))
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Equal(t, "flowchart LR\n  A[Start-->B", result.Mermaid)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, "fallback-model", result.Model)
}

func TestDiagramGenerator_DatabaseSkipsBracketCheck(t *testing.T) {
	client := llm.NewMockCompletionClient()
	client.Responses = []string{"erDiagram\n  USER {\n    string id\n"}

	result, err := newTestDiagramGenerator(client).Generate(context.Background(), testDiagramRequest(models.DiagramTypeDatabase))
	require.NoError(t, err)
	assert.False(t, result.Degraded)
	assert.Equal(t, 1, client.CallCount())
	assert.Contains(t, client.Calls[0].UserPrompt, "erDiagram")
}

func TestDiagramGenerator_AuthErrorAborts(t *testing.T) {
	client := llm.NewMockCompletionClient()
	client.CompleteFunc = func(context.Context, llm.CompletionRequest) (string, error) {
		return "", llm.NewError(llm.ErrorTypeAuth, "authentication failed", false, nil)
	}

	_, err := newTestDiagramGenerator(client).Generate(context.Background(), testDiagramRequest(models.DiagramTypeHLD))
	require.Error(t, err)
	assert.True(t, llm.IsAuth(err))
	assert.Equal(t, 1, client.CallCount())
}

func TestDiagramGenerator_FeedbackReachesPrompt(t *testing.T) {
	client := llm.NewMockCompletionClient()
	client.Responses = []string{"graph TD\n  A-->Cache"}

	req := testDiagramRequest("")
	req.Feedback = "add a cache layer"
	_, err := newTestDiagramGenerator(client).Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, client.Calls[0].UserPrompt, "add a cache layer")
	assert.Contains(t, client.Calls[0].UserPrompt, "# HLD Diagram")
}
