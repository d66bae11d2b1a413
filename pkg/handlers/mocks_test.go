package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/services"
)

type mockFeedbackService struct {
	SubmitFunc             func(ctx context.Context, input services.SubmitFeedbackInput) (*models.FeedbackEntry, int, error)
	CountRegenerationsFunc func(ctx context.Context, itemID string, itemType models.ItemType) (int, error)
	RegenerateFunc         func(ctx context.Context, input services.RegenerateInput) (*services.RegenerateResult, error)
	HistoryFunc            func(ctx context.Context, itemID string, itemType models.ItemType, limit int) ([]*models.FeedbackEntry, error)
	VersionsFunc           func(ctx context.Context, feedbackID uuid.UUID) ([]*models.FeedbackVersion, error)
}

var _ services.FeedbackService = (*mockFeedbackService)(nil)

func (m *mockFeedbackService) Submit(ctx context.Context, input services.SubmitFeedbackInput) (*models.FeedbackEntry, int, error) {
	return m.SubmitFunc(ctx, input)
}

func (m *mockFeedbackService) CountRegenerations(ctx context.Context, itemID string, itemType models.ItemType) (int, error) {
	return m.CountRegenerationsFunc(ctx, itemID, itemType)
}

func (m *mockFeedbackService) Regenerate(ctx context.Context, input services.RegenerateInput) (*services.RegenerateResult, error) {
	return m.RegenerateFunc(ctx, input)
}

func (m *mockFeedbackService) History(ctx context.Context, itemID string, itemType models.ItemType, limit int) ([]*models.FeedbackEntry, error) {
	return m.HistoryFunc(ctx, itemID, itemType, limit)
}

func (m *mockFeedbackService) Versions(ctx context.Context, feedbackID uuid.UUID) ([]*models.FeedbackVersion, error) {
	return m.VersionsFunc(ctx, feedbackID)
}

// mockProjectService is a configurable mock for handler tests.
type mockProjectService struct {
	project  *models.Project
	projects []*models.Project
	err      error
	created  *services.CreateProjectInput
}

var _ services.ProjectService = (*mockProjectService)(nil)

func (m *mockProjectService) Create(ctx context.Context, input services.CreateProjectInput) (*models.Project, error) {
	m.created = &input
	if m.err != nil {
		return nil, m.err
	}
	return &models.Project{ID: uuid.New(), Name: input.Name, Description: input.Description}, nil
}

func (m *mockProjectService) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.project != nil {
		return m.project, nil
	}
	return &models.Project{ID: id, Name: "Test Project"}, nil
}

func (m *mockProjectService) List(ctx context.Context) ([]*models.Project, error) {
	return m.projects, m.err
}

type mockGenerationService struct {
	GenerateFeaturesFunc func(ctx context.Context, projectID uuid.UUID) ([]*models.Feature, error)
	ListFeaturesFunc     func(ctx context.Context, projectID uuid.UUID) ([]*models.Feature, error)
	GenerateStoriesFunc  func(ctx context.Context, projectID uuid.UUID) (*services.StoryGenerationResult, error)
	ListStoriesFunc      func(ctx context.Context, projectID uuid.UUID) ([]*models.Story, error)
	GenerateDiagramFunc  func(ctx context.Context, projectID uuid.UUID, diagramType string) (*models.Diagram, error)
	GetDiagramFunc       func(ctx context.Context, projectID uuid.UUID, diagramType models.DiagramType) (*models.Diagram, error)
}

var _ services.GenerationService = (*mockGenerationService)(nil)

func (m *mockGenerationService) GenerateFeatures(ctx context.Context, projectID uuid.UUID) ([]*models.Feature, error) {
	return m.GenerateFeaturesFunc(ctx, projectID)
}

func (m *mockGenerationService) ListFeatures(ctx context.Context, projectID uuid.UUID) ([]*models.Feature, error) {
	return m.ListFeaturesFunc(ctx, projectID)
}

func (m *mockGenerationService) GenerateStories(ctx context.Context, projectID uuid.UUID) (*services.StoryGenerationResult, error) {
	return m.GenerateStoriesFunc(ctx, projectID)
}

func (m *mockGenerationService) ListStories(ctx context.Context, projectID uuid.UUID) ([]*models.Story, error) {
	return m.ListStoriesFunc(ctx, projectID)
}

func (m *mockGenerationService) GenerateDiagram(ctx context.Context, projectID uuid.UUID, diagramType string) (*models.Diagram, error) {
	return m.GenerateDiagramFunc(ctx, projectID, diagramType)
}

func (m *mockGenerationService) GetDiagram(ctx context.Context, projectID uuid.UUID, diagramType models.DiagramType) (*models.Diagram, error) {
	return m.GetDiagramFunc(ctx, projectID, diagramType)
}

type mockVisualizationService struct {
	GetFunc func(ctx context.Context, projectID uuid.UUID, format models.VisualizationFormat) (*models.VisualizationAsset, error)
	PutFunc func(ctx context.Context, projectID uuid.UUID, format models.VisualizationFormat, content string) (*models.VisualizationAsset, error)
}

var _ services.VisualizationService = (*mockVisualizationService)(nil)

func (m *mockVisualizationService) Get(ctx context.Context, projectID uuid.UUID, format models.VisualizationFormat) (*models.VisualizationAsset, error) {
	return m.GetFunc(ctx, projectID, format)
}

func (m *mockVisualizationService) Put(ctx context.Context, projectID uuid.UUID, format models.VisualizationFormat, content string) (*models.VisualizationAsset, error) {
	return m.PutFunc(ctx, projectID, format, content)
}
