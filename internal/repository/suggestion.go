package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schemaflow/schemaflow/constants"
	"github.com/schemaflow/schemaflow/internal/common"
	"github.com/schemaflow/schemaflow/internal/entity"
)

// SuggestionRepository persists schema-suggestion jobs. They run through
// the same claim/retry machinery as processing jobs but keep their own
// table because the payload and lifecycle differ.
type SuggestionRepository interface {
	Create(ctx context.Context, s *entity.SchemaSuggestion) error
	Get(ctx context.Context, id uuid.UUID) (*entity.SchemaSuggestion, error)
	ClaimNext(ctx context.Context) (*entity.SchemaSuggestion, error)
	FinishSuccess(ctx context.Context, id uuid.UUID, name, description string, schemaDef json.RawMessage) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, errMsg string, notBefore time.Time) error
	FinishFailure(ctx context.Context, id uuid.UUID, errMsg string) error

	// RequeueStale mirrors JobRepository.RequeueStale for suggestion rows
	// orphaned in processing by a crash.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int, error)
}

type suggestionRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewSuggestionRepository(pool *pgxpool.Pool, log *slog.Logger) SuggestionRepository {
	return &suggestionRepo{pool: pool, log: log}
}

const suggestionColumns = `id, document_id, status, suggested_name, suggested_description,
	suggested_schema, llm_provider, llm_model, error_message, retry_count, max_retries,
	not_before, created_at, updated_at, completed_at`

func scanSuggestion(row pgx.Row) (*entity.SchemaSuggestion, error) {
	var s entity.SchemaSuggestion
	var name, desc, errMsg *string
	var schemaDef []byte
	err := row.Scan(&s.ID, &s.DocumentID, &s.Status, &name, &desc,
		&schemaDef, &s.LLMProvider, &s.LLMModel, &errMsg, &s.RetryCount, &s.MaxRetries,
		&s.NotBefore, &s.CreatedAt, &s.UpdatedAt, &s.CompletedAt)
	if err != nil {
		return nil, err
	}
	s.SuggestedSchema = json.RawMessage(schemaDef)
	if name != nil {
		s.SuggestedName = *name
	}
	if desc != nil {
		s.SuggestedDescription = *desc
	}
	if errMsg != nil {
		s.ErrorMessage = *errMsg
	}
	return &s, nil
}

func (r *suggestionRepo) Create(ctx context.Context, s *entity.SchemaSuggestion) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = constants.JobStatusPending
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO schema_suggestions (id, document_id, status, llm_provider, llm_model, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		s.ID, s.DocumentID, s.Status, s.LLMProvider, s.LLMModel, s.MaxRetries,
	).Scan(&s.CreatedAt)
	if err != nil {
		r.log.Error("suggestion create failed", "document_id", s.DocumentID, "error", err)
		return dbError("create suggestion", err)
	}
	r.log.Info("suggestion created", "suggestion_id", s.ID, "document_id", s.DocumentID)
	return nil
}

func (r *suggestionRepo) Get(ctx context.Context, id uuid.UUID) (*entity.SchemaSuggestion, error) {
	s, err := scanSuggestion(r.pool.QueryRow(ctx,
		`SELECT `+suggestionColumns+` FROM schema_suggestions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, dbError("get suggestion", err)
	}
	return s, nil
}

func (r *suggestionRepo) ClaimNext(ctx context.Context) (*entity.SchemaSuggestion, error) {
	s, err := scanSuggestion(r.pool.QueryRow(ctx, `
		UPDATE schema_suggestions
		SET status = 'processing', not_before = NULL, updated_at = now()
		WHERE id = (
			SELECT id FROM schema_suggestions
			WHERE (status = 'pending' OR (status = 'retrying' AND (not_before IS NULL OR not_before <= now())))
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND status IN ('pending', 'retrying')
		RETURNING `+suggestionColumns))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, dbError("claim suggestion", err)
	}
	r.log.Info("suggestion claimed", "suggestion_id", s.ID)
	return s, nil
}

func (r *suggestionRepo) FinishSuccess(ctx context.Context, id uuid.UUID, name, description string, schemaDef json.RawMessage) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schema_suggestions
		SET status = 'completed', suggested_name = $2, suggested_description = $3,
		    suggested_schema = $4, error_message = NULL, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'processing'`,
		id, name, description, []byte(schemaDef))
	if err != nil {
		return dbError("finish suggestion", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrConflict
	}
	r.log.Info("suggestion completed", "suggestion_id", id, "name", name)
	return nil
}

func (r *suggestionRepo) ScheduleRetry(ctx context.Context, id uuid.UUID, errMsg string, notBefore time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schema_suggestions
		SET status = 'retrying', retry_count = retry_count + 1,
		    error_message = $2, not_before = $3, updated_at = now()
		WHERE id = $1 AND status = 'processing'`,
		id, errMsg, notBefore)
	if err != nil {
		return dbError("schedule suggestion retry", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrConflict
	}
	return nil
}

func (r *suggestionRepo) FinishFailure(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schema_suggestions
		SET status = 'failed', error_message = $2, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'processing'`,
		id, errMsg)
	if err != nil {
		return dbError("fail suggestion", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrConflict
	}
	r.log.Warn("suggestion failed", "suggestion_id", id, "error", errMsg)
	return nil
}

func (r *suggestionRepo) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schema_suggestions
		SET status = 'retrying', not_before = NULL, updated_at = now()
		WHERE status = 'processing' AND updated_at < now() - $1::interval`,
		olderThan)
	if err != nil {
		return 0, dbError("requeue stale suggestions", err)
	}
	n := int(tag.RowsAffected())
	if n > 0 {
		r.log.Warn("stale suggestions requeued", "count", n, "older_than", olderThan)
	}
	return n, nil
}
