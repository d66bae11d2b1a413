package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/apperrors"
	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/repositories"
)

// DefaultProjectCacheSize bounds the number of projects kept in memory.
const DefaultProjectCacheSize = 256

// CreateProjectInput is the input for ProjectService.Create.
type CreateProjectInput struct {
	Name        string
	Description string
}

// ProjectService defines the interface for project operations.
type ProjectService interface {
	Create(ctx context.Context, input CreateProjectInput) (*models.Project, error)
	// GetByID returns a project by its ID, or apperrors.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	List(ctx context.Context) ([]*models.Project, error)
}

type projectService struct {
	repo   repositories.ProjectRepository
	cache  *lru.Cache[uuid.UUID, models.Project]
	logger *zap.Logger
}

// NewProjectService creates a project service. Reads by id are served from an
// LRU cache of cacheSize entries; projects are immutable once created.
func NewProjectService(repo repositories.ProjectRepository, cacheSize int, logger *zap.Logger) (ProjectService, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultProjectCacheSize
	}
	cache, err := lru.New[uuid.UUID, models.Project](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create project cache: %w", err)
	}
	return &projectService{
		repo:   repo,
		cache:  cache,
		logger: logger.Named("projects"),
	}, nil
}

func (s *projectService) Create(ctx context.Context, input CreateProjectInput) (*models.Project, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", apperrors.ErrInvalidInput)
	}

	project := &models.Project{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
	}
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	s.cache.Add(project.ID, *project)

	s.logger.Info("Project created",
		zap.String("project_id", project.ID.String()),
		zap.String("name", project.Name))
	return project, nil
}

func (s *projectService) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	if p, ok := s.cache.Get(id); ok {
		return &p, nil
	}

	project, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, *project)
	return project, nil
}

func (s *projectService) List(ctx context.Context) ([]*models.Project, error) {
	return s.repo.List(ctx)
}

// Ensure projectService implements ProjectService at compile time.
var _ ProjectService = (*projectService)(nil)
