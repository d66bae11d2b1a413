package repositories

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/protoforge/protoforge/pkg/apperrors"
	"github.com/protoforge/protoforge/pkg/database"
	"github.com/protoforge/protoforge/pkg/models"
)

// MaxLLMCallLimit caps how many calls a listing returns.
const MaxLLMCallLimit = 200

// LLMCallRepository provides data access for recorded completion calls.
type LLMCallRepository interface {
	Save(ctx context.Context, call *models.LLMCall) error
	// Update writes the response fields of a previously saved call.
	Update(ctx context.Context, call *models.LLMCall) error
	// ListByProject returns calls newest first.
	ListByProject(ctx context.Context, projectID string, limit int) ([]*models.LLMCall, error)
	// ListByContext returns calls whose context has key = value, oldest first.
	// Example: ListByContext(ctx, "item_id", "feature-3", 50)
	ListByContext(ctx context.Context, key, value string, limit int) ([]*models.LLMCall, error)
}

type llmCallRepository struct {
	q  database.Querier
	sb sq.StatementBuilderType
}

// NewLLMCallRepository creates a new LLMCallRepository.
func NewLLMCallRepository(q database.Querier) LLMCallRepository {
	return &llmCallRepository{q: q, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

var _ LLMCallRepository = (*llmCallRepository)(nil)

var llmCallColumns = []string{
	"id", "project_id", "context", "provider", "model", "system_prompt", "user_prompt",
	"temperature", "max_tokens", "response", "duration_ms", "status", "error_type",
	"error_message", "created_at",
}

func (r *llmCallRepository) Save(ctx context.Context, call *models.LLMCall) error {
	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}

	query, args, err := r.sb.Insert("llm_calls").
		Columns(llmCallColumns...).
		Values(call.ID, call.ProjectID, call.Context, call.Provider, call.Model,
			call.SystemPrompt, call.UserPrompt, call.Temperature, call.MaxTokens,
			call.Response, call.DurationMs, call.Status, nullString(call.ErrorType),
			nullString(call.ErrorMessage), call.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build llm call insert: %w", err)
	}

	if _, err := r.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save llm call: %w", err)
	}
	return nil
}

func (r *llmCallRepository) Update(ctx context.Context, call *models.LLMCall) error {
	query, args, err := r.sb.Update("llm_calls").
		Set("response", call.Response).
		Set("duration_ms", call.DurationMs).
		Set("status", call.Status).
		Set("error_type", nullString(call.ErrorType)).
		Set("error_message", nullString(call.ErrorMessage)).
		Where(sq.Eq{"id": call.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build llm call update: %w", err)
	}

	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update llm call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("llm call %s: %w", call.ID, apperrors.ErrNotFound)
	}
	return nil
}

func (r *llmCallRepository) ListByProject(ctx context.Context, projectID string, limit int) ([]*models.LLMCall, error) {
	query, args, err := r.sb.Select(llmCallColumns...).
		From("llm_calls").
		Where(sq.Eq{"project_id": projectID}).
		OrderBy("created_at DESC").
		Limit(uint64(clampLLMCallLimit(limit))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build llm call query: %w", err)
	}
	return r.list(ctx, query, args)
}

func (r *llmCallRepository) ListByContext(ctx context.Context, key, value string, limit int) ([]*models.LLMCall, error) {
	query, args, err := r.sb.Select(llmCallColumns...).
		From("llm_calls").
		Where(sq.Expr("context->>? = ?", key, value)).
		OrderBy("created_at ASC").
		Limit(uint64(clampLLMCallLimit(limit))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build llm call query: %w", err)
	}
	return r.list(ctx, query, args)
}

func (r *llmCallRepository) list(ctx context.Context, query string, args []any) ([]*models.LLMCall, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query llm calls: %w", err)
	}
	defer rows.Close()

	var calls []*models.LLMCall
	for rows.Next() {
		call, err := scanLLMCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating llm calls: %w", err)
	}
	return calls, nil
}

func scanLLMCall(row pgx.Row) (*models.LLMCall, error) {
	var call models.LLMCall
	var contextJSON []byte
	var errorType, errorMessage *string

	err := row.Scan(
		&call.ID, &call.ProjectID, &contextJSON, &call.Provider, &call.Model,
		&call.SystemPrompt, &call.UserPrompt, &call.Temperature, &call.MaxTokens,
		&call.Response, &call.DurationMs, &call.Status, &errorType,
		&errorMessage, &call.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan llm call: %w", err)
	}

	if errorType != nil {
		call.ErrorType = *errorType
	}
	if errorMessage != nil {
		call.ErrorMessage = *errorMessage
	}
	if err := call.Context.Scan(contextJSON); err != nil {
		return nil, fmt.Errorf("failed to decode llm call context: %w", err)
	}
	return &call, nil
}

func clampLLMCallLimit(limit int) int {
	if limit <= 0 || limit > MaxLLMCallLimit {
		return MaxLLMCallLimit
	}
	return limit
}

// nullString maps "" to SQL NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
