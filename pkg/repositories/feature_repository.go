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

// FeatureRepository stores generated features.
type FeatureRepository interface {
	// ReplaceForProject deletes the project's features and inserts the given
	// ones in order, assigning order_index from slice position.
	ReplaceForProject(ctx context.Context, projectID uuid.UUID, features []*models.Feature) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Feature, error)
}

type featureRepository struct {
	q database.Querier
}

// NewFeatureRepository creates a feature repository backed by q.
func NewFeatureRepository(q database.Querier) FeatureRepository {
	return &featureRepository{q: q}
}

func (r *featureRepository) ReplaceForProject(ctx context.Context, projectID uuid.UUID, features []*models.Feature) error {
	now := time.Now().UTC()
	for i, f := range features {
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		f.ProjectID = projectID
		f.OrderIndex = i
		f.CreatedAt = now
		if f.AcceptanceCriteria == nil {
			f.AcceptanceCriteria = []string{}
		}
	}

	return database.WithTx(ctx, r.q, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM features WHERE project_id = $1`, projectID); err != nil {
			return fmt.Errorf("failed to delete features: %w", err)
		}
		for _, f := range features {
			_, err := tx.Exec(ctx, `
				INSERT INTO features (id, project_id, title, description, acceptance_criteria, order_index, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				f.ID, f.ProjectID, f.Title, f.Description, f.AcceptanceCriteria, f.OrderIndex, f.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert feature %q: %w", f.Title, err)
			}
		}
		return nil
	})
}

func (r *featureRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Feature, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, project_id, title, description, acceptance_criteria, order_index, created_at
		FROM features
		WHERE project_id = $1
		ORDER BY order_index ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	defer rows.Close()

	features := make([]*models.Feature, 0)
	for rows.Next() {
		var f models.Feature
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Title, &f.Description, &f.AcceptanceCriteria, &f.OrderIndex, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feature: %w", err)
		}
		features = append(features, &f)
	}
	return features, rows.Err()
}

var _ FeatureRepository = (*featureRepository)(nil)
