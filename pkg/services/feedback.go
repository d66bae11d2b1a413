package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/protoforge/protoforge/pkg/apperrors"
	"github.com/protoforge/protoforge/pkg/llm"
	"github.com/protoforge/protoforge/pkg/logging"
	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/repositories"
)

// Regeneration failure codes returned to API clients.
const (
	CodeLLMFailure         = "LLM_FAILURE"
	CodeRegenerationFailed = "REGENERATION_FAILED"
)

// llmFailureMarkers identify provider failures in error text when the chain
// carries no *llm.Error.
var llmFailureMarkers = []string{"anthropic", "openai", "overloaded", "rate limit", "api key", "model"}

// RegenerationError reports a failed regeneration. The feedback entry is left
// unchanged when it is returned.
type RegenerationError struct {
	Code string
	Err  error
}

func (e *RegenerationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *RegenerationError) Unwrap() error {
	return e.Err
}

// classifyRegenerationError decides whether a dispatcher failure came from the model provider.
func classifyRegenerationError(err error) *RegenerationError {
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		return &RegenerationError{Code: CodeLLMFailure, Err: err}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range llmFailureMarkers {
		if strings.Contains(msg, marker) {
			return &RegenerationError{Code: CodeLLMFailure, Err: err}
		}
	}
	return &RegenerationError{Code: CodeRegenerationFailed, Err: err}
}

// SubmitFeedbackInput is the input for FeedbackService.Submit.
type SubmitFeedbackInput struct {
	ItemID          string
	ItemType        string
	ProjectID       string
	Feedback        string
	OriginalContent map[string]any
	ProjectContext  string
}

// RegenerateInput is the input for FeedbackService.Regenerate. An empty
// Feedback reuses the text stored on the latest entry.
type RegenerateInput struct {
	ItemID   string
	ItemType string
	Feedback string
}

// RegenerateResult is the outcome of a successful regeneration.
type RegenerateResult struct {
	Entry             *models.FeedbackEntry
	Content           map[string]any
	Version           int
	RegenerationCount int
}

// FeedbackService records feedback and regenerates items from it.
type FeedbackService interface {
	// Submit stores a new version 0 entry and returns it with the item's current regeneration count.
	Submit(ctx context.Context, input SubmitFeedbackInput) (*models.FeedbackEntry, int, error)
	CountRegenerations(ctx context.Context, itemID string, itemType models.ItemType) (int, error)
	Regenerate(ctx context.Context, input RegenerateInput) (*RegenerateResult, error)
	History(ctx context.Context, itemID string, itemType models.ItemType, limit int) ([]*models.FeedbackEntry, error)
	Versions(ctx context.Context, feedbackID uuid.UUID) ([]*models.FeedbackVersion, error)
}

type feedbackService struct {
	repo       repositories.FeedbackRepository
	dispatcher RegenerationDispatcher
	locks      *KeyedMutex
	now        func() time.Time
	logger     *zap.Logger
}

// NewFeedbackService creates a feedback service.
func NewFeedbackService(repo repositories.FeedbackRepository, dispatcher RegenerationDispatcher, logger *zap.Logger) FeedbackService {
	return &feedbackService{
		repo:       repo,
		dispatcher: dispatcher,
		locks:      NewKeyedMutex(),
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.Named("feedback"),
	}
}

var _ FeedbackService = (*feedbackService)(nil)

func (s *feedbackService) Submit(ctx context.Context, input SubmitFeedbackInput) (*models.FeedbackEntry, int, error) {
	itemType, err := models.ParseItemType(input.ItemType)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if strings.TrimSpace(input.ItemID) == "" {
		return nil, 0, fmt.Errorf("%w: itemId is required", apperrors.ErrInvalidInput)
	}
	if strings.TrimSpace(input.Feedback) == "" {
		return nil, 0, fmt.Errorf("%w: feedback is required", apperrors.ErrInvalidInput)
	}

	entry := &models.FeedbackEntry{
		ItemID:          input.ItemID,
		ItemType:        itemType,
		ProjectID:       input.ProjectID,
		FeedbackText:    input.Feedback,
		OriginalContent: input.OriginalContent,
		ProjectContext:  input.ProjectContext,
		Status:          models.FeedbackStatusSubmitted,
		Version:         0,
		CreatedAt:       s.now(),
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, 0, fmt.Errorf("failed to store feedback: %w", err)
	}

	count, err := s.repo.CountRegenerations(ctx, entry.ItemID, entry.ItemType)
	if err != nil {
		return nil, 0, err
	}

	s.logger.Info("Feedback submitted",
		zap.String("feedback_id", entry.ID.String()),
		zap.String("item_id", entry.ItemID),
		zap.String("item_type", string(entry.ItemType)))
	return entry, count, nil
}

func (s *feedbackService) CountRegenerations(ctx context.Context, itemID string, itemType models.ItemType) (int, error) {
	if !itemType.Valid() {
		return 0, fmt.Errorf("%w: invalid item type %q", apperrors.ErrInvalidInput, itemType)
	}
	return s.repo.CountRegenerations(ctx, itemID, itemType)
}

func (s *feedbackService) Regenerate(ctx context.Context, input RegenerateInput) (*RegenerateResult, error) {
	itemType, err := models.ParseItemType(input.ItemType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if strings.TrimSpace(input.ItemID) == "" {
		return nil, fmt.Errorf("%w: itemId is required", apperrors.ErrInvalidInput)
	}

	unlock, err := s.locks.Lock(ctx, string(itemType)+":"+input.ItemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	entry, err := s.repo.Latest(ctx, input.ItemID, itemType)
	if err != nil {
		return nil, err
	}

	feedback := input.Feedback
	if strings.TrimSpace(feedback) == "" {
		feedback = entry.FeedbackText
	}

	prior, err := s.repo.CountRegenerations(ctx, entry.ItemID, entry.ItemType)
	if err != nil {
		return nil, err
	}

	content, err := s.dispatcher.RegenerateContent(llm.WithItem(ctx, string(entry.ItemType), entry.ItemID), RegenerationRequest{
		ItemID:          entry.ItemID,
		ItemType:        entry.ItemType,
		Feedback:        feedback,
		OriginalContent: entry.OriginalContent,
		ProjectContext:  entry.ProjectContext,
	})
	if err != nil {
		regenErr := classifyRegenerationError(err)
		s.logger.Error("Regeneration failed",
			zap.String("feedback_id", entry.ID.String()),
			zap.String("item_id", entry.ItemID),
			zap.String("item_type", string(entry.ItemType)),
			zap.String("code", regenErr.Code),
			zap.String("error", logging.SanitizeError(err)))
		return nil, regenErr
	}

	regeneratedAt := s.now()
	updated := *entry
	updated.Status = models.FeedbackStatusRegenerated
	updated.Version = prior + 1
	updated.RegeneratedContent = content
	updated.RegeneratedAt = &regeneratedAt

	version, err := s.repo.MarkRegenerated(ctx, &updated)
	if err != nil {
		return nil, fmt.Errorf("failed to record regeneration: %w", err)
	}

	s.logger.Info("Item regenerated",
		zap.String("feedback_id", updated.ID.String()),
		zap.String("item_id", updated.ItemID),
		zap.String("item_type", string(updated.ItemType)),
		zap.Int("version", version.Version))

	return &RegenerateResult{
		Entry:             &updated,
		Content:           content,
		Version:           version.Version,
		RegenerationCount: prior + 1,
	}, nil
}

func (s *feedbackService) History(ctx context.Context, itemID string, itemType models.ItemType, limit int) ([]*models.FeedbackEntry, error) {
	if !itemType.Valid() {
		return nil, fmt.Errorf("%w: invalid item type %q", apperrors.ErrInvalidInput, itemType)
	}
	return s.repo.History(ctx, itemID, itemType, limit)
}

func (s *feedbackService) Versions(ctx context.Context, feedbackID uuid.UUID) ([]*models.FeedbackVersion, error) {
	if _, err := s.repo.GetByID(ctx, feedbackID); err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, feedbackID)
}
