package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/protoforge/protoforge/pkg/apperrors"
	"github.com/protoforge/protoforge/pkg/llm"
	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/repositories"
)

// StoryGenerationResult is the outcome of generating a project's stories.
type StoryGenerationResult struct {
	Stories      []*models.Story    `json:"stories"`
	Unmatched    []models.StorySpec `json:"unmatched"`
	Placeholders int                `json:"placeholders"`
}

// GenerationService runs the feature, story and diagram agents for a project
// and persists what they produce.
type GenerationService interface {
	GenerateFeatures(ctx context.Context, projectID uuid.UUID) ([]*models.Feature, error)
	ListFeatures(ctx context.Context, projectID uuid.UUID) ([]*models.Feature, error)
	// GenerateStories requires persisted features and fails with
	// apperrors.ErrPrerequisitesMissing otherwise.
	GenerateStories(ctx context.Context, projectID uuid.UUID) (*StoryGenerationResult, error)
	ListStories(ctx context.Context, projectID uuid.UUID) ([]*models.Story, error)
	// GenerateDiagram requires persisted features and stories. Unknown diagram
	// types are generated as hld. The new diagram replaces any prior one of its type.
	GenerateDiagram(ctx context.Context, projectID uuid.UUID, diagramType string) (*models.Diagram, error)
	GetDiagram(ctx context.Context, projectID uuid.UUID, diagramType models.DiagramType) (*models.Diagram, error)
}

type generationService struct {
	projects    ProjectService
	featureRepo repositories.FeatureRepository
	storyRepo   repositories.StoryRepository
	diagramRepo repositories.DiagramRepository
	features    FeatureGenerator
	stories     StoryGenerator
	diagrams    DiagramGenerator
	// featureCount is passed to the feature generator; 0 asks for at least 8.
	featureCount int
	logger       *zap.Logger
}

// GenerationDeps groups the collaborators of the generation service.
type GenerationDeps struct {
	Projects     ProjectService
	FeatureRepo  repositories.FeatureRepository
	StoryRepo    repositories.StoryRepository
	DiagramRepo  repositories.DiagramRepository
	Features     FeatureGenerator
	Stories      StoryGenerator
	Diagrams     DiagramGenerator
	FeatureCount int
}

// NewGenerationService creates a generation service.
func NewGenerationService(deps GenerationDeps, logger *zap.Logger) GenerationService {
	return &generationService{
		projects:     deps.Projects,
		featureRepo:  deps.FeatureRepo,
		storyRepo:    deps.StoryRepo,
		diagramRepo:  deps.DiagramRepo,
		features:     deps.Features,
		stories:      deps.Stories,
		diagrams:     deps.Diagrams,
		featureCount: deps.FeatureCount,
		logger:       logger.Named("generation"),
	}
}

var _ GenerationService = (*generationService)(nil)

func (s *generationService) GenerateFeatures(ctx context.Context, projectID uuid.UUID) ([]*models.Feature, error) {
	ctx = withProject(ctx, projectID)
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	specs, err := s.features.GenerateSpecs(ctx, FeatureRequest{
		ProjectContext: project.Context(),
		Count:          s.featureCount,
	})
	if err != nil {
		return nil, err
	}

	features := make([]*models.Feature, len(specs))
	for i, spec := range specs {
		criteria := spec.AcceptanceCriteria
		if criteria == nil {
			criteria = []string{}
		}
		features[i] = &models.Feature{
			ID:                 uuid.New(),
			ProjectID:          projectID,
			Title:              spec.Title,
			Description:        spec.Description,
			AcceptanceCriteria: criteria,
			OrderIndex:         i,
		}
	}

	if err := s.featureRepo.ReplaceForProject(ctx, projectID, features); err != nil {
		return nil, err
	}

	s.logger.Info("Features generated",
		zap.String("project_id", projectID.String()),
		zap.Int("count", len(features)))
	return features, nil
}

func (s *generationService) ListFeatures(ctx context.Context, projectID uuid.UUID) ([]*models.Feature, error) {
	return s.featureRepo.ListByProject(ctx, projectID)
}

func (s *generationService) GenerateStories(ctx context.Context, projectID uuid.UUID) (*StoryGenerationResult, error) {
	ctx = withProject(ctx, projectID)
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	features, err := s.featureRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: generate features before stories", apperrors.ErrPrerequisitesMissing)
	}

	result, err := s.stories.Generate(ctx, StoryRequest{
		ProjectContext: project.Context(),
		Features:       FeatureRecordsFromFeatures(features),
	})
	if err != nil {
		return nil, err
	}

	stories := make([]*models.Story, 0, len(result.Stories))
	for _, spec := range result.Stories {
		featureID, err := uuid.Parse(spec.FeatureID)
		if err != nil {
			// Matched stories always carry a persisted feature id.
			return nil, fmt.Errorf("story references unknown feature %q: %w", spec.FeatureID, err)
		}
		stories = append(stories, &models.Story{
			ID:                  uuid.New(),
			ProjectID:           projectID,
			FeatureID:           featureID,
			FeatureTitle:        spec.FeatureTitle,
			UserStory:           spec.UserStory,
			AcceptanceCriteria:  nonNil(spec.AcceptanceCriteria),
			ImplementationNotes: nonNil(spec.ImplementationNotes),
			Placeholder:         spec.Placeholder,
		})
	}

	if err := s.storyRepo.ReplaceForProject(ctx, projectID, stories); err != nil {
		return nil, err
	}

	s.logger.Info("Stories generated",
		zap.String("project_id", projectID.String()),
		zap.Int("count", len(stories)),
		zap.Int("placeholders", result.Placeholders),
		zap.Int("unmatched", len(result.Unmatched)))

	return &StoryGenerationResult{
		Stories:      stories,
		Unmatched:    result.Unmatched,
		Placeholders: result.Placeholders,
	}, nil
}

func (s *generationService) ListStories(ctx context.Context, projectID uuid.UUID) ([]*models.Story, error) {
	return s.storyRepo.ListByProject(ctx, projectID)
}

func (s *generationService) GenerateDiagram(ctx context.Context, projectID uuid.UUID, diagramType string) (*models.Diagram, error) {
	ctx = withProject(ctx, projectID)
	dt := models.ParseDiagramType(diagramType)

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var (
		features []*models.Feature
		stories  []*models.Story
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		features, err = s.featureRepo.ListByProject(gctx, projectID)
		return err
	})
	g.Go(func() error {
		var err error
		stories, err = s.storyRepo.ListByProject(gctx, projectID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(features) == 0 || len(stories) == 0 {
		return nil, fmt.Errorf("%w: generate features and stories before diagrams", apperrors.ErrPrerequisitesMissing)
	}

	specs := make([]models.StorySpec, len(stories))
	for i, st := range stories {
		specs[i] = models.StorySpec{
			FeatureID:    st.FeatureID.String(),
			FeatureTitle: st.FeatureTitle,
			UserStory:    st.UserStory,
		}
	}

	result, err := s.diagrams.Generate(ctx, DiagramRequest{
		Type:           dt,
		ProjectContext: project.Context(),
		Features:       FeatureRecordsFromFeatures(features),
		Stories:        specs,
	})
	if err != nil {
		return nil, err
	}

	d := &models.Diagram{
		ID:            uuid.New(),
		ProjectID:     projectID,
		DiagramType:   dt,
		MermaidSource: result.Mermaid,
		Attempts:      result.Attempts,
		Model:         result.Model,
		Valid:         !result.Degraded,
	}
	if err := s.diagramRepo.Replace(ctx, d); err != nil {
		return nil, err
	}

	s.logger.Info("Diagram generated",
		zap.String("project_id", projectID.String()),
		zap.String("diagram_type", string(dt)),
		zap.Int("attempts", result.Attempts),
		zap.Bool("valid", d.Valid))
	return d, nil
}

func (s *generationService) GetDiagram(ctx context.Context, projectID uuid.UUID, diagramType models.DiagramType) (*models.Diagram, error) {
	return s.diagramRepo.Get(ctx, projectID, diagramType)
}

// withProject tags completion calls made under ctx with the project id.
func withProject(ctx context.Context, projectID uuid.UUID) context.Context {
	return llm.WithContext(ctx, map[string]any{llm.ContextProjectID: projectID.String()})
}
