package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/apperrors"
	"github.com/protoforge/protoforge/pkg/models"
)

type memFeatureRepository struct {
	mu       sync.Mutex
	features map[uuid.UUID][]*models.Feature
	listErr  error
}

func (r *memFeatureRepository) ReplaceForProject(_ context.Context, projectID uuid.UUID, features []*models.Feature) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, f := range features {
		f.OrderIndex = i
	}
	r.features[projectID] = features
	return nil
}

func (r *memFeatureRepository) ListByProject(_ context.Context, projectID uuid.UUID) ([]*models.Feature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.features[projectID], nil
}

type memStoryRepository struct {
	mu      sync.Mutex
	stories map[uuid.UUID][]*models.Story
}

func (r *memStoryRepository) ReplaceForProject(_ context.Context, projectID uuid.UUID, stories []*models.Story) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stories[projectID] = stories
	return nil
}

func (r *memStoryRepository) ListByProject(_ context.Context, projectID uuid.UUID) ([]*models.Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stories[projectID], nil
}

type memDiagramRepository struct {
	diagrams map[string]*models.Diagram
	replaced int
}

func (r *memDiagramRepository) Replace(_ context.Context, d *models.Diagram) error {
	r.diagrams[d.ProjectID.String()+"/"+string(d.DiagramType)] = d
	r.replaced++
	return nil
}

func (r *memDiagramRepository) Get(_ context.Context, projectID uuid.UUID, dt models.DiagramType) (*models.Diagram, error) {
	d, ok := r.diagrams[projectID.String()+"/"+string(dt)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return d, nil
}

type generationFixture struct {
	svc       GenerationService
	projectID uuid.UUID
	features  *memFeatureRepository
	stories   *memStoryRepository
	diagrams  *memDiagramRepository
	featGen   *mockFeatureGenerator
	storyGen  *mockStoryGenerator
	diagGen   *mockDiagramGenerator
}

func newGenerationFixture(t *testing.T) *generationFixture {
	t.Helper()

	projectRepo := newCountingProjectRepository()
	projects, err := NewProjectService(projectRepo, 4, zap.NewNop())
	require.NoError(t, err)
	project, err := projects.Create(context.Background(), CreateProjectInput{Name: "Shop", Description: "Sell things online"})
	require.NoError(t, err)

	f := &generationFixture{
		projectID: project.ID,
		features:  &memFeatureRepository{features: map[uuid.UUID][]*models.Feature{}},
		stories:   &memStoryRepository{stories: map[uuid.UUID][]*models.Story{}},
		diagrams:  &memDiagramRepository{diagrams: map[string]*models.Diagram{}},
		featGen: &mockFeatureGenerator{
			GenerateSpecsFunc: func(context.Context, FeatureRequest) ([]models.FeatureSpec, error) {
				return []models.FeatureSpec{
					{Title: "Catalog", Description: "Browse products", AcceptanceCriteria: []string{"Products listed"}},
					{Title: "Checkout", Description: "Pay for orders"},
				}, nil
			},
		},
		storyGen: &mockStoryGenerator{
			GenerateFunc: func(_ context.Context, req StoryRequest) (*StoryResult, error) {
				return MatchStories(req.Features, []any{
					map[string]any{"featureTitle": "catalog", "userStory": "As a shopper, I want to browse"},
					map[string]any{"featureTitle": "Wishlist", "userStory": "As a shopper, I want to save items"},
				}), nil
			},
		},
		diagGen: &mockDiagramGenerator{
			GenerateFunc: func(_ context.Context, req DiagramRequest) (*DiagramResult, error) {
				return &DiagramResult{Mermaid: "graph TD\n  Web-->API", Model: "m", Attempts: 1}, nil
			},
		},
	}

	f.svc = NewGenerationService(GenerationDeps{
		Projects:     projects,
		FeatureRepo:  f.features,
		StoryRepo:    f.stories,
		DiagramRepo:  f.diagrams,
		Features:     f.featGen,
		Stories:      f.storyGen,
		Diagrams:     f.diagGen,
		FeatureCount: 5,
	}, zap.NewNop())
	return f
}

func TestGenerationService_FullPipeline(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()

	features, err := f.svc.GenerateFeatures(ctx, f.projectID)
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Equal(t, 0, features[0].OrderIndex)
	assert.Equal(t, 1, features[1].OrderIndex)
	assert.Equal(t, []string{}, features[1].AcceptanceCriteria)

	require.Len(t, f.featGen.requests, 1)
	assert.Equal(t, 5, f.featGen.requests[0].Count)
	assert.Contains(t, f.featGen.requests[0].ProjectContext, "Sell things online")

	stories, err := f.svc.GenerateStories(ctx, f.projectID)
	require.NoError(t, err)
	require.Len(t, stories.Stories, 2)
	assert.Equal(t, features[0].ID, stories.Stories[0].FeatureID)
	assert.False(t, stories.Stories[0].Placeholder)
	assert.Equal(t, features[1].ID, stories.Stories[1].FeatureID)
	assert.True(t, stories.Stories[1].Placeholder)
	assert.Equal(t, 1, stories.Placeholders)
	require.Len(t, stories.Unmatched, 1)
	assert.Equal(t, "Wishlist", stories.Unmatched[0].FeatureTitle)

	listed, err := f.svc.ListStories(ctx, f.projectID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	diagram, err := f.svc.GenerateDiagram(ctx, f.projectID, "lld")
	require.NoError(t, err)
	assert.Equal(t, models.DiagramTypeLLD, diagram.DiagramType)
	assert.True(t, diagram.Valid)

	require.Len(t, f.diagGen.requests, 1)
	req := f.diagGen.requests[0]
	assert.Len(t, req.Features, 2)
	assert.Len(t, req.Stories, 2)

	got, err := f.svc.GetDiagram(ctx, f.projectID, models.DiagramTypeLLD)
	require.NoError(t, err)
	assert.Equal(t, diagram.ID, got.ID)
}

func TestGenerationService_GenerateStories_RequiresFeatures(t *testing.T) {
	f := newGenerationFixture(t)

	_, err := f.svc.GenerateStories(context.Background(), f.projectID)
	assert.ErrorIs(t, err, apperrors.ErrPrerequisitesMissing)
	assert.Empty(t, f.storyGen.requests)
}

func TestGenerationService_GenerateDiagram_RequiresFeaturesAndStories(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()

	_, err := f.svc.GenerateDiagram(ctx, f.projectID, "hld")
	assert.ErrorIs(t, err, apperrors.ErrPrerequisitesMissing)

	_, err = f.svc.GenerateFeatures(ctx, f.projectID)
	require.NoError(t, err)

	_, err = f.svc.GenerateDiagram(ctx, f.projectID, "hld")
	assert.ErrorIs(t, err, apperrors.ErrPrerequisitesMissing)
	assert.Empty(t, f.diagGen.requests)
}

func TestGenerationService_GenerateDiagram_CoercesTypeAndReplaces(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()

	_, err := f.svc.GenerateFeatures(ctx, f.projectID)
	require.NoError(t, err)
	_, err = f.svc.GenerateStories(ctx, f.projectID)
	require.NoError(t, err)

	first, err := f.svc.GenerateDiagram(ctx, f.projectID, "sankey")
	require.NoError(t, err)
	assert.Equal(t, models.DiagramTypeHLD, first.DiagramType)

	second, err := f.svc.GenerateDiagram(ctx, f.projectID, "")
	require.NoError(t, err)
	assert.Equal(t, models.DiagramTypeHLD, second.DiagramType)

	current, err := f.svc.GetDiagram(ctx, f.projectID, models.DiagramTypeHLD)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)
	assert.Equal(t, 2, f.diagrams.replaced)
}

func TestGenerationService_GenerateDiagram_DegradedIsMarkedInvalid(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()
	f.diagGen.GenerateFunc = func(context.Context, DiagramRequest) (*DiagramResult, error) {
		return &DiagramResult{Mermaid: "graph TD\n  A-->B{", Attempts: 5, Degraded: true}, nil
	}

	_, err := f.svc.GenerateFeatures(ctx, f.projectID)
	require.NoError(t, err)
	_, err = f.svc.GenerateStories(ctx, f.projectID)
	require.NoError(t, err)

	d, err := f.svc.GenerateDiagram(ctx, f.projectID, "hld")
	require.NoError(t, err)
	assert.False(t, d.Valid)
	assert.Equal(t, 5, d.Attempts)
}

func TestGenerationService_LoadErrorPropagates(t *testing.T) {
	f := newGenerationFixture(t)
	loadErr := errors.New("connection reset")
	f.features.listErr = loadErr

	_, err := f.svc.GenerateDiagram(context.Background(), f.projectID, "hld")
	assert.ErrorIs(t, err, loadErr)
}

func TestGenerationService_UnknownProject(t *testing.T) {
	f := newGenerationFixture(t)

	_, err := f.svc.GenerateFeatures(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, f.featGen.requests)
}
