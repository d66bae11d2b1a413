package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/protoforge/protoforge/pkg/apperrors"
	"github.com/protoforge/protoforge/pkg/database"
	"github.com/protoforge/protoforge/pkg/models"
)

// DiagramRepository stores the current diagram for each (project, type).
type DiagramRepository interface {
	// Replace deletes every prior diagram of the same project and type and
	// inserts d, in one transaction.
	Replace(ctx context.Context, d *models.Diagram) error
	Get(ctx context.Context, projectID uuid.UUID, diagramType models.DiagramType) (*models.Diagram, error)
}

type diagramRepository struct {
	q  database.Querier
	sb sq.StatementBuilderType
}

// NewDiagramRepository creates a diagram repository backed by q.
func NewDiagramRepository(q database.Querier) DiagramRepository {
	return &diagramRepository{q: q, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

var diagramColumns = []string{"id", "project_id", "diagram_type", "mermaid_source", "attempts", "model", "valid", "created_at"}

func (r *diagramRepository) Replace(ctx context.Context, d *models.Diagram) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now().UTC()

	del, delArgs, err := r.sb.Delete("diagrams").
		Where(sq.Eq{"project_id": d.ProjectID}).
		Where(sq.Eq{"diagram_type": string(d.DiagramType)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build diagram delete: %w", err)
	}

	ins, insArgs, err := r.sb.Insert("diagrams").
		Columns(diagramColumns...).
		Values(d.ID, d.ProjectID, string(d.DiagramType), d.MermaidSource, d.Attempts, d.Model, d.Valid, d.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build diagram insert: %w", err)
	}

	return database.WithTx(ctx, r.q, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, del, delArgs...); err != nil {
			return fmt.Errorf("failed to delete previous diagrams: %w", err)
		}
		if _, err := tx.Exec(ctx, ins, insArgs...); err != nil {
			return fmt.Errorf("failed to insert diagram: %w", err)
		}
		return nil
	})
}

func (r *diagramRepository) Get(ctx context.Context, projectID uuid.UUID, diagramType models.DiagramType) (*models.Diagram, error) {
	query, args, err := r.sb.Select(diagramColumns...).
		From("diagrams").
		Where(sq.Eq{"project_id": projectID}).
		Where(sq.Eq{"diagram_type": string(diagramType)}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build diagram query: %w", err)
	}

	var (
		d     models.Diagram
		dtype string
	)
	err = r.q.QueryRow(ctx, query, args...).Scan(&d.ID, &d.ProjectID, &dtype, &d.MermaidSource, &d.Attempts, &d.Model, &d.Valid, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get diagram: %w", err)
	}
	d.DiagramType = models.DiagramType(dtype)
	return &d, nil
}

var _ DiagramRepository = (*diagramRepository)(nil)
