package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/protoforge/protoforge/pkg/database"
	"github.com/protoforge/protoforge/pkg/models"
)

// StoryRepository stores generated user stories.
type StoryRepository interface {
	ReplaceForProject(ctx context.Context, projectID uuid.UUID, stories []*models.Story) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Story, error)
}

type storyRepository struct {
	q database.Querier
}

// NewStoryRepository creates a story repository backed by q.
func NewStoryRepository(q database.Querier) StoryRepository {
	return &storyRepository{q: q}
}

func (r *storyRepository) ReplaceForProject(ctx context.Context, projectID uuid.UUID, stories []*models.Story) error {
	now := time.Now().UTC()
	for _, s := range stories {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.ProjectID = projectID
		s.CreatedAt = now
		if s.AcceptanceCriteria == nil {
			s.AcceptanceCriteria = []string{}
		}
		if s.ImplementationNotes == nil {
			s.ImplementationNotes = []string{}
		}
	}

	return database.WithTx(ctx, r.q, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM stories WHERE project_id = $1`, projectID); err != nil {
			return fmt.Errorf("failed to delete stories: %w", err)
		}
		for _, s := range stories {
			var featureID *uuid.UUID
			if s.FeatureID != uuid.Nil {
				featureID = &s.FeatureID
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO stories (id, project_id, feature_id, feature_title, user_story,
				                     acceptance_criteria, implementation_notes, placeholder, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				s.ID, s.ProjectID, featureID, s.FeatureTitle, s.UserStory,
				s.AcceptanceCriteria, s.ImplementationNotes, s.Placeholder, s.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert story for %q: %w", s.FeatureTitle, err)
			}
		}
		return nil
	})
}

func (r *storyRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Story, error) {
	rows, err := r.q.Query(ctx, `
		SELECT s.id, s.project_id, s.feature_id, s.feature_title, s.user_story,
		       s.acceptance_criteria, s.implementation_notes, s.placeholder, s.created_at
		FROM stories s
		LEFT JOIN features f ON f.id = s.feature_id
		WHERE s.project_id = $1
		ORDER BY f.order_index ASC NULLS LAST, s.created_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	stories := make([]*models.Story, 0)
	for rows.Next() {
		var (
			s         models.Story
			featureID *uuid.UUID
		)
		err := rows.Scan(&s.ID, &s.ProjectID, &featureID, &s.FeatureTitle, &s.UserStory,
			&s.AcceptanceCriteria, &s.ImplementationNotes, &s.Placeholder, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}
		if featureID != nil {
			s.FeatureID = *featureID
		}
		stories = append(stories, &s)
	}
	return stories, rows.Err()
}

var _ StoryRepository = (*storyRepository)(nil)
