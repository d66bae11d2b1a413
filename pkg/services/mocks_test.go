package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/protoforge/protoforge/pkg/apperrors"
	"github.com/protoforge/protoforge/pkg/models"
	"github.com/protoforge/protoforge/pkg/repositories"
)

type mockFeatureGenerator struct {
	GenerateFunc      func(ctx context.Context, req FeatureRequest) ([]string, error)
	GenerateSpecsFunc func(ctx context.Context, req FeatureRequest) ([]models.FeatureSpec, error)
	requests          []FeatureRequest
}

func (m *mockFeatureGenerator) Generate(ctx context.Context, req FeatureRequest) ([]string, error) {
	m.requests = append(m.requests, req)
	return m.GenerateFunc(ctx, req)
}

func (m *mockFeatureGenerator) GenerateSpecs(ctx context.Context, req FeatureRequest) ([]models.FeatureSpec, error) {
	m.requests = append(m.requests, req)
	return m.GenerateSpecsFunc(ctx, req)
}

type mockStoryGenerator struct {
	GenerateFunc func(ctx context.Context, req StoryRequest) (*StoryResult, error)
	requests     []StoryRequest
}

func (m *mockStoryGenerator) Generate(ctx context.Context, req StoryRequest) (*StoryResult, error) {
	m.requests = append(m.requests, req)
	return m.GenerateFunc(ctx, req)
}

type mockDiagramGenerator struct {
	GenerateFunc func(ctx context.Context, req DiagramRequest) (*DiagramResult, error)
	requests     []DiagramRequest
}

func (m *mockDiagramGenerator) Generate(ctx context.Context, req DiagramRequest) (*DiagramResult, error) {
	m.requests = append(m.requests, req)
	return m.GenerateFunc(ctx, req)
}

type mockDispatcher struct {
	RegenerateContentFunc func(ctx context.Context, req RegenerationRequest) (map[string]any, error)
}

func (m *mockDispatcher) RegenerateContent(ctx context.Context, req RegenerationRequest) (map[string]any, error) {
	return m.RegenerateContentFunc(ctx, req)
}

// memFeedbackRepository keeps feedback in memory with the same ordering and
// counting rules as the Postgres repository.
type memFeedbackRepository struct {
	mu       sync.Mutex
	entries  []*models.FeedbackEntry
	versions []*models.FeedbackVersion

	MarkRegeneratedErr error
}

func newMemFeedbackRepository() *memFeedbackRepository {
	return &memFeedbackRepository{}
}

func (m *memFeedbackRepository) Create(_ context.Context, entry *models.FeedbackEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	stored := *entry
	m.entries = append(m.entries, &stored)
	return nil
}

func (m *memFeedbackRepository) GetByID(_ context.Context, id uuid.UUID) (*models.FeedbackEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			c := *e
			return &c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *memFeedbackRepository) sorted(itemID string, itemType models.ItemType) []*models.FeedbackEntry {
	var out []*models.FeedbackEntry
	for _, e := range m.entries {
		if e.ItemID == itemID && e.ItemType == itemType {
			c := *e
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memFeedbackRepository) Latest(_ context.Context, itemID string, itemType models.ItemType) (*models.FeedbackEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.sorted(itemID, itemType)
	if len(entries) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return entries[0], nil
}

func (m *memFeedbackRepository) CountRegenerations(_ context.Context, itemID string, itemType models.ItemType) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, v := range m.versions {
		if v.ItemID == itemID && v.ItemType == itemType {
			count++
		}
	}
	return count, nil
}

func (m *memFeedbackRepository) History(_ context.Context, itemID string, itemType models.ItemType, limit int) ([]*models.FeedbackEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > repositories.MaxHistoryLimit {
		limit = repositories.MaxHistoryLimit
	}
	entries := m.sorted(itemID, itemType)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *memFeedbackRepository) MarkRegenerated(_ context.Context, entry *models.FeedbackEntry) (*models.FeedbackVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkRegeneratedErr != nil {
		return nil, m.MarkRegeneratedErr
	}
	if entry.Status != models.FeedbackStatusRegenerated {
		return nil, apperrors.ErrInvalidInput
	}
	for _, v := range m.versions {
		if v.ItemID == entry.ItemID && v.ItemType == entry.ItemType && v.Version == entry.Version {
			return nil, apperrors.ErrConflict
		}
	}
	for i, e := range m.entries {
		if e.ID != entry.ID {
			continue
		}
		updated := *entry
		m.entries[i] = &updated

		v := &models.FeedbackVersion{
			ID:         uuid.New(),
			FeedbackID: entry.ID,
			ItemID:     entry.ItemID,
			ItemType:   entry.ItemType,
			Version:    entry.Version,
			Content:    entry.RegeneratedContent,
			CreatedAt:  *entry.RegeneratedAt,
		}
		m.versions = append(m.versions, v)
		return v, nil
	}
	return nil, apperrors.ErrNotFound
}

func (m *memFeedbackRepository) ListVersions(_ context.Context, feedbackID uuid.UUID) ([]*models.FeedbackVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.FeedbackVersion
	for _, v := range m.versions {
		if v.FeedbackID == feedbackID {
			out = append(out, v)
		}
	}
	return out, nil
}

var _ repositories.FeedbackRepository = (*memFeedbackRepository)(nil)

// tickingClock returns a clock that advances one second per call.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}
