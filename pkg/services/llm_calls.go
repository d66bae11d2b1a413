package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/apperrors"
	"github.com/protoforge/protoforge/pkg/llm"
	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/repositories"
)

// DefaultLLMCallLimit is used when a listing does not ask for a limit.
const DefaultLLMCallLimit = 50

// LLMCallService exposes recorded completion calls for debugging generations.
type LLMCallService interface {
	// ListByProject returns the project's calls, newest first.
	ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]*models.LLMCall, error)
	// ListByItem returns the calls made while regenerating an item, oldest first.
	ListByItem(ctx context.Context, itemID string, limit int) ([]*models.LLMCall, error)
}

type llmCallService struct {
	repo     repositories.LLMCallRepository
	projects ProjectService
	logger   *zap.Logger
}

// NewLLMCallService creates a new LLMCallService.
func NewLLMCallService(repo repositories.LLMCallRepository, projects ProjectService, logger *zap.Logger) LLMCallService {
	return &llmCallService{
		repo:     repo,
		projects: projects,
		logger:   logger.Named("llm-calls"),
	}
}

var _ LLMCallService = (*llmCallService)(nil)

func (s *llmCallService) ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]*models.LLMCall, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListByProject(ctx, projectID.String(), defaultLimit(limit))
}

func (s *llmCallService) ListByItem(ctx context.Context, itemID string, limit int) ([]*models.LLMCall, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, fmt.Errorf("%w: item id is required", apperrors.ErrInvalidInput)
	}
	return s.repo.ListByContext(ctx, llm.ContextItemID, itemID, defaultLimit(limit))
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return DefaultLLMCallLimit
	}
	return limit
}
