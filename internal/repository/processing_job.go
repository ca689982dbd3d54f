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

// JobRepository persists processing jobs and owns every status
// transition. State changes are guarded by status predicates in SQL so a
// stale caller cannot resurrect a terminal job.
type JobRepository interface {
	Create(ctx context.Context, job *entity.ProcessingJob) error
	Get(ctx context.Context, id uuid.UUID) (*entity.ProcessingJob, error)
	List(ctx context.Context, status constants.JobStatus, limit, offset int) ([]entity.ProcessingJob, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]entity.ProcessingJob, error)

	// ClaimNext atomically moves the oldest runnable job to processing and
	// returns it. A job is runnable when pending, or retrying with its
	// backoff deadline passed. Returns ErrNotFound when the queue is empty.
	ClaimNext(ctx context.Context) (*entity.ProcessingJob, error)

	// MarkChunked records the chunk plan before the first chunk runs.
	MarkChunked(ctx context.Context, id uuid.UUID, totalChunks int) error

	// SaveProgress writes the processed-chunk counter and the accumulated
	// partial result in one statement, so a crash never leaves them apart.
	SaveProgress(ctx context.Context, id uuid.UUID, processedChunks int, chunkResults json.RawMessage) error

	FinishSuccess(ctx context.Context, id uuid.UUID, result json.RawMessage) error

	// ScheduleRetry moves a processing job to retrying with the next wakeup
	// time; the claim query ignores it until notBefore passes.
	ScheduleRetry(ctx context.Context, id uuid.UUID, errMsg, errKind string, notBefore time.Time) error

	FinishFailure(ctx context.Context, id uuid.UUID, errMsg, errKind string) error

	// RequestCancel flags an active job; the processor observes the flag
	// between chunks. Returns ErrConflict if the job is already terminal.
	RequestCancel(ctx context.Context, id uuid.UUID) error
	CancelRequested(ctx context.Context, id uuid.UUID) (bool, error)

	// ResetForRetry is the manual retry: a failed job goes back to pending
	// with a zeroed retry budget and cleared progress.
	ResetForRetry(ctx context.Context, id uuid.UUID) error

	// RequeueStale returns processing jobs whose last write is older than
	// olderThan to the retry queue. Recovers rows orphaned by a worker
	// crash, where no outcome write ever landed.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int, error)

	CountByStatus(ctx context.Context) (map[constants.JobStatus]int, error)
}

type jobRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewJobRepository(pool *pgxpool.Pool, log *slog.Logger) JobRepository {
	return &jobRepo{pool: pool, log: log}
}

const jobColumns = `id, document_id, schema_id, status, result_data, error_message, error_kind,
	retry_count, max_retries, is_chunked, total_chunks, processed_chunks, chunk_results,
	cancel_requested, not_before, created_at, updated_at, completed_at`

func scanJob(row pgx.Row) (*entity.ProcessingJob, error) {
	var j entity.ProcessingJob
	var result, chunkResults []byte
	var errMsg, errKind *string
	err := row.Scan(&j.ID, &j.DocumentID, &j.SchemaID, &j.Status, &result, &errMsg, &errKind,
		&j.RetryCount, &j.MaxRetries, &j.IsChunked, &j.TotalChunks, &j.ProcessedChunks, &chunkResults,
		&j.CancelRequested, &j.NotBefore, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	j.ResultData = json.RawMessage(result)
	j.ChunkResults = json.RawMessage(chunkResults)
	if errMsg != nil {
		j.ErrorMessage = *errMsg
	}
	if errKind != nil {
		j.ErrorKind = *errKind
	}
	return &j, nil
}

func (r *jobRepo) Create(ctx context.Context, job *entity.ProcessingJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = constants.JobStatusPending
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO processing_jobs (id, document_id, schema_id, status, max_retries)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		job.ID, job.DocumentID, job.SchemaID, job.Status, job.MaxRetries,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		r.log.Error("job create failed", "document_id", job.DocumentID, "error", err)
		return dbError("create job", err)
	}
	r.log.Info("job created", "job_id", job.ID, "document_id", job.DocumentID, "schema_id", job.SchemaID)
	return nil
}

func (r *jobRepo) Get(ctx context.Context, id uuid.UUID) (*entity.ProcessingJob, error) {
	j, err := scanJob(r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, dbError("get job", err)
	}
	return j, nil
}

func (r *jobRepo) List(ctx context.Context, status constants.JobStatus, limit, offset int) ([]entity.ProcessingJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + jobColumns + ` FROM processing_jobs `
	args := []any{limit, offset}
	if status != "" {
		query += `WHERE status = $3 `
		args = append(args, status)
	}
	query += `ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, dbError("list jobs", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (r *jobRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]entity.ProcessingJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM processing_jobs
		WHERE document_id = $1
		ORDER BY created_at DESC`, documentID)
	if err != nil {
		return nil, dbError("list jobs by document", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]entity.ProcessingJob, error) {
	var out []entity.ProcessingJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, dbError("scan job", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (r *jobRepo) ClaimNext(ctx context.Context) (*entity.ProcessingJob, error) {
	// FOR UPDATE SKIP LOCKED keeps concurrent workers from fighting over
	// the same row; the outer status predicate makes the claim a CAS.
	j, err := scanJob(r.pool.QueryRow(ctx, `
		UPDATE processing_jobs
		SET status = 'processing', not_before = NULL, updated_at = now()
		WHERE id = (
			SELECT id FROM processing_jobs
			WHERE (status = 'pending' OR (status = 'retrying' AND (not_before IS NULL OR not_before <= now())))
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND status IN ('pending', 'retrying')
		RETURNING `+jobColumns))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, dbError("claim job", err)
	}
	r.log.Info("job claimed", "job_id", j.ID, "retry_count", j.RetryCount)
	return j, nil
}

func (r *jobRepo) MarkChunked(ctx context.Context, id uuid.UUID, totalChunks int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET is_chunked = TRUE, total_chunks = $2, updated_at = now()
		WHERE id = $1 AND status = 'processing'`,
		id, totalChunks)
	if err != nil {
		return dbError("mark chunked", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrConflict
	}
	return nil
}

func (r *jobRepo) SaveProgress(ctx context.Context, id uuid.UUID, processedChunks int, chunkResults json.RawMessage) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET processed_chunks = $2, chunk_results = $3, updated_at = now()
		WHERE id = $1 AND status = 'processing'`,
		id, processedChunks, []byte(chunkResults))
	if err != nil {
		return dbError("save progress", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrConflict
	}
	return nil
}

func (r *jobRepo) FinishSuccess(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET status = 'completed', result_data = $2, error_message = NULL, error_kind = NULL,
		    completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'processing'`,
		id, []byte(result))
	if err != nil {
		return dbError("finish job", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrConflict
	}
	r.log.Info("job completed", "job_id", id)
	return nil
}

func (r *jobRepo) ScheduleRetry(ctx context.Context, id uuid.UUID, errMsg, errKind string, notBefore time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET status = 'retrying', retry_count = retry_count + 1,
		    error_message = $2, error_kind = $3, not_before = $4, updated_at = now()
		WHERE id = $1 AND status = 'processing'`,
		id, errMsg, errKind, notBefore)
	if err != nil {
		return dbError("schedule retry", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrConflict
	}
	r.log.Warn("job retry scheduled", "job_id", id, "not_before", notBefore, "error", errMsg)
	return nil
}

func (r *jobRepo) FinishFailure(ctx context.Context, id uuid.UUID, errMsg, errKind string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET status = 'failed', error_message = $2, error_kind = $3,
		    completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'processing'`,
		id, errMsg, errKind)
	if err != nil {
		return dbError("fail job", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrConflict
	}
	r.log.Warn("job failed", "job_id", id, "error_kind", errKind, "error", errMsg)
	return nil
}

func (r *jobRepo) RequestCancel(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET cancel_requested = TRUE, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing', 'retrying')`,
		id)
	if err != nil {
		return dbError("request cancel", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrConflict
	}
	r.log.Info("job cancel requested", "job_id", id)
	return nil
}

func (r *jobRepo) CancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var flag bool
	err := r.pool.QueryRow(ctx,
		`SELECT cancel_requested FROM processing_jobs WHERE id = $1`, id,
	).Scan(&flag)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, common.ErrNotFound
	}
	if err != nil {
		return false, dbError("read cancel flag", err)
	}
	return flag, nil
}

func (r *jobRepo) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET status = 'pending', retry_count = 0, error_message = NULL, error_kind = NULL,
		    processed_chunks = 0, chunk_results = NULL, cancel_requested = FALSE,
		    not_before = NULL, completed_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'failed'`,
		id)
	if err != nil {
		return dbError("reset job", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrConflict
	}
	r.log.Info("job reset for manual retry", "job_id", id)
	return nil
}

func (r *jobRepo) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET status = 'retrying', not_before = NULL, updated_at = now()
		WHERE status = 'processing' AND updated_at < now() - $1::interval`,
		olderThan)
	if err != nil {
		return 0, dbError("requeue stale jobs", err)
	}
	n := int(tag.RowsAffected())
	if n > 0 {
		r.log.Warn("stale jobs requeued", "count", n, "older_than", olderThan)
	}
	return n, nil
}

func (r *jobRepo) CountByStatus(ctx context.Context) (map[constants.JobStatus]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, count(*) FROM processing_jobs GROUP BY status`)
	if err != nil {
		return nil, dbError("count jobs", err)
	}
	defer rows.Close()

	out := make(map[constants.JobStatus]int)
	for rows.Next() {
		var status constants.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, dbError("scan job count", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}
