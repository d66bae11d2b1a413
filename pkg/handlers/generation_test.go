package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/apperrors"
	"github.com/protoforge/protoforge/pkg/llm"
	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/retry"
	"github.com/protoforge/protoforge/pkg/services"
)

func TestGenerationHandler_GenerateFeatures(t *testing.T) {
	projectID := uuid.New()
	svc := &mockGenerationService{
		GenerateFeaturesFunc: func(_ context.Context, pid uuid.UUID) ([]*models.Feature, error) {
			assert.Equal(t, projectID, pid)
			return []*models.Feature{
				{ID: uuid.New(), Title: "Login", OrderIndex: 0},
				{ID: uuid.New(), Title: "Search", OrderIndex: 1},
			}, nil
		},
	}
	h := NewGenerationHandler(svc, zap.NewNop())

	rec := serve(h, http.MethodPost, "/api/projects/"+projectID.String()+"/features/generate", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data FeatureListResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, "Search", resp.Data.Features[1].Title)
}

func TestGenerationHandler_GenerateFeatures_RepairExhausted(t *testing.T) {
	svc := &mockGenerationService{
		GenerateFeaturesFunc: func(context.Context, uuid.UUID) ([]*models.Feature, error) {
			return nil, fmt.Errorf("generate features: %w", retry.ErrRepairExhausted)
		},
	}
	h := NewGenerationHandler(svc, zap.NewNop())

	rec := serve(h, http.MethodPost, "/api/projects/"+uuid.NewString()+"/features/generate", "")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, services.CodeLLMFailure, decodeBody(t, rec)["code"])
}

func TestGenerationHandler_ListFeatures_Empty(t *testing.T) {
	svc := &mockGenerationService{
		ListFeaturesFunc: func(context.Context, uuid.UUID) ([]*models.Feature, error) {
			return nil, nil
		},
	}
	h := NewGenerationHandler(svc, zap.NewNop())

	rec := serve(h, http.MethodGet, "/api/projects/"+uuid.NewString()+"/features", "")

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, []any{}, data["features"])
}

func TestGenerationHandler_GenerateStories(t *testing.T) {
	svc := &mockGenerationService{
		GenerateStoriesFunc: func(context.Context, uuid.UUID) (*services.StoryGenerationResult, error) {
			return &services.StoryGenerationResult{
				Stories:      []*models.Story{{UserStory: "As a cook, I want..."}},
				Unmatched:    []models.StorySpec{{FeatureTitle: "Ghost"}},
				Placeholders: 1,
			}, nil
		},
	}
	h := NewGenerationHandler(svc, zap.NewNop())

	rec := serve(h, http.MethodPost, "/api/projects/"+uuid.NewString()+"/stories/generate", "")

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Len(t, data["stories"], 1)
	assert.Len(t, data["unmatched"], 1)
	assert.Equal(t, float64(1), data["placeholders"])
}

func TestGenerationHandler_ProviderErrorIsBadGateway(t *testing.T) {
	providerErr := llm.NewError(llm.ErrorTypeEndpoint, "circuit breaker open", false, llm.ErrCircuitOpen)
	svc := &mockGenerationService{
		GenerateStoriesFunc: func(context.Context, uuid.UUID) (*services.StoryGenerationResult, error) {
			return nil, fmt.Errorf("story generation failed: %w", providerErr)
		},
		GenerateDiagramFunc: func(context.Context, uuid.UUID, string) (*models.Diagram, error) {
			return nil, fmt.Errorf("diagram generation failed: %w", providerErr)
		},
	}
	h := NewGenerationHandler(svc, zap.NewNop())
	pid := uuid.NewString()

	for _, path := range []string{
		"/api/projects/" + pid + "/stories/generate",
		"/api/projects/" + pid + "/diagrams/generate",
	} {
		rec := serve(h, http.MethodPost, path, "")
		assert.Equal(t, http.StatusBadGateway, rec.Code, path)
		assert.Equal(t, services.CodeLLMFailure, decodeBody(t, rec)["code"], path)
	}
}

func TestGenerationHandler_GenerateStories_NoFeatures(t *testing.T) {
	svc := &mockGenerationService{
		GenerateStoriesFunc: func(context.Context, uuid.UUID) (*services.StoryGenerationResult, error) {
			return nil, fmt.Errorf("no features: %w", apperrors.ErrPrerequisitesMissing)
		},
	}
	h := NewGenerationHandler(svc, zap.NewNop())

	rec := serve(h, http.MethodPost, "/api/projects/"+uuid.NewString()+"/stories/generate", "")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGenerationHandler_GenerateDiagram(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType string
	}{
		{"explicit type", `{"diagram_type":"lld"}`, "lld"},
		{"empty object", `{}`, ""},
		{"empty body", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotType string
			svc := &mockGenerationService{
				GenerateDiagramFunc: func(_ context.Context, pid uuid.UUID, diagramType string) (*models.Diagram, error) {
					gotType = diagramType
					return &models.Diagram{ProjectID: pid, DiagramType: models.ParseDiagramType(diagramType), Valid: true}, nil
				},
			}
			h := NewGenerationHandler(svc, zap.NewNop())

			rec := serve(h, http.MethodPost, "/api/projects/"+uuid.NewString()+"/diagrams/generate", tt.body)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantType, gotType)
		})
	}
}

func TestGenerationHandler_GenerateDiagram_MissingPrerequisites(t *testing.T) {
	svc := &mockGenerationService{
		GenerateDiagramFunc: func(context.Context, uuid.UUID, string) (*models.Diagram, error) {
			return nil, fmt.Errorf("project has no stories: %w", apperrors.ErrPrerequisitesMissing)
		},
	}
	h := NewGenerationHandler(svc, zap.NewNop())

	rec := serve(h, http.MethodPost, "/api/projects/"+uuid.NewString()+"/diagrams/generate", `{"diagram_type":"hld"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "prerequisites_missing", decodeBody(t, rec)["code"])
}

func TestGenerationHandler_GetDiagram(t *testing.T) {
	tests := []struct {
		name       string
		pathType   string
		wantStatus int
		wantType   models.DiagramType
	}{
		{"hld", "hld", http.StatusOK, models.DiagramTypeHLD},
		{"database", "database", http.StatusOK, models.DiagramTypeDatabase},
		{"dbd alias", "dbd", http.StatusOK, models.DiagramTypeDatabase},
		{"unknown", "pie", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotType models.DiagramType
			svc := &mockGenerationService{
				GetDiagramFunc: func(_ context.Context, _ uuid.UUID, diagramType models.DiagramType) (*models.Diagram, error) {
					gotType = diagramType
					return &models.Diagram{DiagramType: diagramType}, nil
				},
			}
			h := NewGenerationHandler(svc, zap.NewNop())

			rec := serve(h, http.MethodGet, "/api/projects/"+uuid.NewString()+"/diagrams/"+tt.pathType, "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantType, gotType)
		})
	}
}
