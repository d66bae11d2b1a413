package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/protoforge/protoforge/pkg/apperrors"
	"github.com/protoforge/protoforge/pkg/database"
	"github.com/protoforge/protoforge/pkg/models"
)

// MaxHistoryLimit caps how many feedback entries a history query returns.
const MaxHistoryLimit = 50

// FeedbackRepository stores feedback entries and their version snapshots.
type FeedbackRepository interface {
	Create(ctx context.Context, entry *models.FeedbackEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.FeedbackEntry, error)
	// Latest returns the most recent entry for the item, or apperrors.ErrNotFound.
	Latest(ctx context.Context, itemID string, itemType models.ItemType) (*models.FeedbackEntry, error)
	// CountRegenerations counts successful regenerations of the item, one per
	// appended version snapshot.
	CountRegenerations(ctx context.Context, itemID string, itemType models.ItemType) (int, error)
	// History returns entries newest first. limit is clamped to (0, MaxHistoryLimit].
	History(ctx context.Context, itemID string, itemType models.ItemType, limit int) ([]*models.FeedbackEntry, error)
	// MarkRegenerated updates the entry and appends a version snapshot atomically.
	MarkRegenerated(ctx context.Context, entry *models.FeedbackEntry) (*models.FeedbackVersion, error)
	ListVersions(ctx context.Context, feedbackID uuid.UUID) ([]*models.FeedbackVersion, error)
}

type feedbackRepository struct {
	q  database.Querier
	sb sq.StatementBuilderType
}

// NewFeedbackRepository creates a feedback repository backed by q.
func NewFeedbackRepository(q database.Querier) FeedbackRepository {
	return &feedbackRepository{
		q:  q,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

var feedbackColumns = []string{
	"id", "item_id", "item_type", "project_id", "feedback_text", "original_content",
	"project_context", "status", "version", "created_at", "regenerated_at", "regenerated_content",
}

var versionColumns = []string{"id", "feedback_id", "item_id", "item_type", "version", "content", "created_at"}

func (r *feedbackRepository) Create(ctx context.Context, entry *models.FeedbackEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Status == "" {
		entry.Status = models.FeedbackStatusSubmitted
	}

	var original any
	if entry.OriginalContent != nil {
		original = entry.OriginalContent
	}

	query, args, err := r.sb.Insert("feedback_history").
		Columns("id", "item_id", "item_type", "project_id", "feedback_text",
			"original_content", "project_context", "status", "version", "created_at").
		Values(entry.ID, entry.ItemID, string(entry.ItemType), entry.ProjectID, entry.FeedbackText,
			original, entry.ProjectContext, string(entry.Status), entry.Version, entry.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build feedback insert: %w", err)
	}

	if _, err := r.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

func (r *feedbackRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FeedbackEntry, error) {
	query, args, err := r.sb.Select(feedbackColumns...).
		From("feedback_history").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build feedback query: %w", err)
	}

	entry, err := scanFeedback(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return entry, nil
}

func (r *feedbackRepository) itemQuery(itemID string, itemType models.ItemType) sq.SelectBuilder {
	return r.sb.Select(feedbackColumns...).
		From("feedback_history").
		Where(sq.Eq{"item_id": itemID}).
		Where(sq.Eq{"item_type": string(itemType)}).
		OrderBy("created_at DESC")
}

func (r *feedbackRepository) Latest(ctx context.Context, itemID string, itemType models.ItemType) (*models.FeedbackEntry, error) {
	query, args, err := r.itemQuery(itemID, itemType).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build feedback query: %w", err)
	}

	entry, err := scanFeedback(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest feedback: %w", err)
	}
	return entry, nil
}

func (r *feedbackRepository) CountRegenerations(ctx context.Context, itemID string, itemType models.ItemType) (int, error) {
	query, args, err := r.sb.Select("COUNT(*)").
		From("feedback_versions").
		Where(sq.Eq{"item_id": itemID}).
		Where(sq.Eq{"item_type": string(itemType)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var count int
	if err := r.q.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count regenerations: %w", err)
	}
	return count, nil
}

func (r *feedbackRepository) History(ctx context.Context, itemID string, itemType models.ItemType, limit int) ([]*models.FeedbackEntry, error) {
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	query, args, err := r.itemQuery(itemID, itemType).Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build history query: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback history: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.FeedbackEntry, 0)
	for rows.Next() {
		entry, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback history: %w", err)
	}
	return entries, nil
}

func (r *feedbackRepository) MarkRegenerated(ctx context.Context, entry *models.FeedbackEntry) (*models.FeedbackVersion, error) {
	if entry.Status != models.FeedbackStatusRegenerated {
		return nil, fmt.Errorf("%w: entry status must be %q, got %q",
			apperrors.ErrInvalidInput, models.FeedbackStatusRegenerated, entry.Status)
	}
	regeneratedAt := time.Now().UTC()
	if entry.RegeneratedAt != nil {
		regeneratedAt = *entry.RegeneratedAt
	}

	version := &models.FeedbackVersion{
		ID:         uuid.New(),
		FeedbackID: entry.ID,
		ItemID:     entry.ItemID,
		ItemType:   entry.ItemType,
		Version:    entry.Version,
		Content:    entry.RegeneratedContent,
		CreatedAt:  regeneratedAt,
	}

	update, updateArgs, err := r.sb.Update("feedback_history").
		Set("status", string(entry.Status)).
		Set("version", entry.Version).
		Set("regenerated_content", entry.RegeneratedContent).
		Set("regenerated_at", regeneratedAt).
		Where(sq.Eq{"id": entry.ID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build feedback update: %w", err)
	}

	insert, insertArgs, err := r.sb.Insert("feedback_versions").
		Columns(versionColumns...).
		Values(version.ID, version.FeedbackID, version.ItemID, string(version.ItemType),
			version.Version, version.Content, version.CreatedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build version insert: %w", err)
	}

	err = database.WithTx(ctx, r.q, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, update, updateArgs...)
		if err != nil {
			return fmt.Errorf("failed to update feedback: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperrors.ErrNotFound
		}
		if _, err := tx.Exec(ctx, insert, insertArgs...); err != nil {
			// Unique (item_id, item_type, version): another writer got there first
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("version %d of %s %s already exists: %w",
					version.Version, version.ItemType, version.ItemID, apperrors.ErrConflict)
			}
			return fmt.Errorf("failed to append feedback version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

func (r *feedbackRepository) ListVersions(ctx context.Context, feedbackID uuid.UUID) ([]*models.FeedbackVersion, error) {
	query, args, err := r.sb.Select(versionColumns...).
		From("feedback_versions").
		Where(sq.Eq{"feedback_id": feedbackID}).
		OrderBy("version ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build versions query: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback versions: %w", err)
	}
	defer rows.Close()

	versions := make([]*models.FeedbackVersion, 0)
	for rows.Next() {
		var (
			v        models.FeedbackVersion
			itemType string
			content  []byte
		)
		if err := rows.Scan(&v.ID, &v.FeedbackID, &v.ItemID, &itemType, &v.Version, &content, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback version: %w", err)
		}
		v.ItemType = models.ItemType(itemType)
		if err := v.Content.Scan(content); err != nil {
			return nil, fmt.Errorf("failed to decode version content: %w", err)
		}
		versions = append(versions, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback versions: %w", err)
	}
	return versions, nil
}

func scanFeedback(row pgx.Row) (*models.FeedbackEntry, error) {
	var (
		e           models.FeedbackEntry
		itemType    string
		status      string
		original    []byte
		regenerated []byte
	)
	err := row.Scan(
		&e.ID, &e.ItemID, &itemType, &e.ProjectID, &e.FeedbackText, &original,
		&e.ProjectContext, &status, &e.Version, &e.CreatedAt, &e.RegeneratedAt, &regenerated,
	)
	if err != nil {
		return nil, err
	}

	e.ItemType = models.ItemType(itemType)
	e.Status = models.FeedbackStatus(status)
	if err := e.OriginalContent.Scan(original); err != nil {
		return nil, fmt.Errorf("failed to decode original content: %w", err)
	}
	if err := e.RegeneratedContent.Scan(regenerated); err != nil {
		return nil, fmt.Errorf("failed to decode regenerated content: %w", err)
	}
	return &e, nil
}

var _ FeedbackRepository = (*feedbackRepository)(nil)
