package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schemaflow/schemaflow/internal/common"
	"github.com/schemaflow/schemaflow/internal/entity"
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	// GetText returns only the raw text, avoiding a full row fetch for
	// large documents.
	GetText(ctx context.Context, id uuid.UUID) (string, error)
	List(ctx context.Context, limit, offset int) ([]entity.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type documentRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewDocumentRepository(pool *pgxpool.Pool, log *slog.Logger) DocumentRepository {
	return &documentRepo{pool: pool, log: log}
}

func (r *documentRepo) Create(ctx context.Context, doc *entity.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO documents (id, title, raw_text, file_type)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		doc.ID, doc.Title, doc.RawText, doc.FileType,
	).Scan(&doc.CreatedAt)
	if err != nil {
		r.log.Error("document create failed", "title", doc.Title, "error", err)
		return dbError("create document", err)
	}
	r.log.Info("document created", "document_id", doc.ID, "chars", len(doc.RawText))
	return nil
}

func (r *documentRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	var doc entity.Document
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, raw_text, file_type, created_at
		FROM documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.Title, &doc.RawText, &doc.FileType, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, dbError("get document", err)
	}
	return &doc, nil
}

func (r *documentRepo) GetText(ctx context.Context, id uuid.UUID) (string, error) {
	var text string
	err := r.pool.QueryRow(ctx,
		`SELECT raw_text FROM documents WHERE id = $1`, id,
	).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", common.ErrNotFound
	}
	if err != nil {
		return "", dbError("get document text", err)
	}
	return text, nil
}

func (r *documentRepo) List(ctx context.Context, limit, offset int) ([]entity.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, '' AS raw_text, file_type, created_at
		FROM documents
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, dbError("list documents", err)
	}
	defer rows.Close()

	var out []entity.Document
	for rows.Next() {
		var doc entity.Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.RawText, &doc.FileType, &doc.CreatedAt); err != nil {
			return nil, dbError("scan document", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (r *documentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return dbError("delete document", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	r.log.Info("document deleted", "document_id", id)
	return nil
}
