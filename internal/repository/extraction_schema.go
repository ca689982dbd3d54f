package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schemaflow/schemaflow/internal/common"
	"github.com/schemaflow/schemaflow/internal/entity"
)

type SchemaRepository interface {
	Create(ctx context.Context, s *entity.ExtractionSchema) error
	Get(ctx context.Context, id uuid.UUID) (*entity.ExtractionSchema, error)
	List(ctx context.Context, limit, offset int) ([]entity.ExtractionSchema, error)
	Update(ctx context.Context, s *entity.ExtractionSchema) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type schemaRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewSchemaRepository(pool *pgxpool.Pool, log *slog.Logger) SchemaRepository {
	return &schemaRepo{pool: pool, log: log}
}

const schemaColumns = `id, name, description, definition, llm_provider, llm_model, created_at, updated_at`

func scanSchema(row pgx.Row) (*entity.ExtractionSchema, error) {
	var s entity.ExtractionSchema
	var def []byte
	err := row.Scan(&s.ID, &s.Name, &s.Description, &def,
		&s.LLMProvider, &s.LLMModel, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Definition = json.RawMessage(def)
	return &s, nil
}

func (r *schemaRepo) Create(ctx context.Context, s *entity.ExtractionSchema) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO extraction_schemas (id, name, description, definition, llm_provider, llm_model)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		s.ID, s.Name, s.Description, []byte(s.Definition), s.LLMProvider, s.LLMModel,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		r.log.Error("schema create failed", "name", s.Name, "error", err)
		return dbError("create schema", err)
	}
	r.log.Info("schema created", "schema_id", s.ID, "name", s.Name)
	return nil
}

func (r *schemaRepo) Get(ctx context.Context, id uuid.UUID) (*entity.ExtractionSchema, error) {
	s, err := scanSchema(r.pool.QueryRow(ctx,
		`SELECT `+schemaColumns+` FROM extraction_schemas WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, dbError("get schema", err)
	}
	return s, nil
}

func (r *schemaRepo) List(ctx context.Context, limit, offset int) ([]entity.ExtractionSchema, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+schemaColumns+` FROM extraction_schemas
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, dbError("list schemas", err)
	}
	defer rows.Close()

	var out []entity.ExtractionSchema
	for rows.Next() {
		s, err := scanSchema(rows)
		if err != nil {
			return nil, dbError("scan schema", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *schemaRepo) Update(ctx context.Context, s *entity.ExtractionSchema) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE extraction_schemas
		SET name = $2, description = $3, definition = $4,
		    llm_provider = $5, llm_model = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		s.ID, s.Name, s.Description, []byte(s.Definition), s.LLMProvider, s.LLMModel,
	).Scan(&s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return common.ErrNotFound
	}
	if err != nil {
		return dbError("update schema", err)
	}
	r.log.Info("schema updated", "schema_id", s.ID)
	return nil
}

func (r *schemaRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM extraction_schemas WHERE id = $1`, id)
	if err != nil {
		return dbError("delete schema", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	r.log.Info("schema deleted", "schema_id", id)
	return nil
}
