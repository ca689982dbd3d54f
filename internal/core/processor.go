package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/schemaflow/schemaflow/internal/chunker"
	"github.com/schemaflow/schemaflow/internal/entity"
	"github.com/schemaflow/schemaflow/internal/extractor"
	"github.com/schemaflow/schemaflow/internal/llm"
	"github.com/schemaflow/schemaflow/internal/merger"
	"github.com/schemaflow/schemaflow/internal/repository"
	"github.com/schemaflow/schemaflow/internal/schema"
)

// ErrCancelled marks an attempt stopped by a user cancel request.
var ErrCancelled = errors.New("cancelled by user")

// Processor executes one claimed job end to end: compile the schema,
// chunk the document, extract chunk by chunk with merged progress saved
// after each one, and drive the job to its next status.
type Processor struct {
	jobs     repository.JobRepository
	docs     repository.DocumentRepository
	schemas  repository.SchemaRepository
	registry *llm.Registry
	cfg      ProcessorConfig
	log      *slog.Logger
}

type ProcessorConfig struct {
	ChunkThreshold   int
	ChunkSize        int
	ChunkOverlap     int
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration
	DefaultProvider  string
	DefaultModel     string
	Temperature      float32
	CallTimeout      time.Duration
}

func NewProcessor(
	jobs repository.JobRepository,
	docs repository.DocumentRepository,
	schemas repository.SchemaRepository,
	registry *llm.Registry,
	cfg ProcessorConfig,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{jobs: jobs, docs: docs, schemas: schemas, registry: registry, cfg: cfg, log: logger}
}

// Process runs one attempt of a claimed (processing) job and records the
// outcome: completed, retrying with a backoff deadline, or failed. The
// returned error mirrors what was recorded and is nil on success.
func (p *Processor) Process(ctx context.Context, job *entity.ProcessingJob) error {
	p.log.Info("job.process.start",
		"job_id", job.ID,
		"retry_count", job.RetryCount,
		"resumed_chunks", job.ProcessedChunks,
	)

	err := p.run(ctx, job)
	if err == nil {
		return nil
	}

	// Outcome writes must land even when the attempt's context is already
	// done (call timeout, shutdown); otherwise the job is stranded in
	// processing.
	record := context.WithoutCancel(ctx)

	if errors.Is(err, ErrCancelled) {
		if ferr := p.jobs.FinishFailure(record, job.ID, ErrCancelled.Error(), "cancelled"); ferr != nil {
			p.log.Error("job.cancel.record_failed", "job_id", job.ID, "error", ferr)
		}
		return err
	}

	kind := ErrorKindOf(err)
	if Transient(err) && job.RetryCount < job.MaxRetries {
		delay := Backoff(job.RetryCount, p.cfg.RetryBackoffBase, p.cfg.RetryBackoffCap)
		notBefore := time.Now().Add(delay)
		if rerr := p.jobs.ScheduleRetry(record, job.ID, err.Error(), kind, notBefore); rerr != nil {
			p.log.Error("job.retry.record_failed", "job_id", job.ID, "error", rerr)
		}
		return err
	}

	if ferr := p.jobs.FinishFailure(record, job.ID, err.Error(), kind); ferr != nil {
		p.log.Error("job.fail.record_failed", "job_id", job.ID, "error", ferr)
	}
	return err
}

func (p *Processor) run(ctx context.Context, job *entity.ProcessingJob) error {
	xs, err := p.schemas.Get(ctx, job.SchemaID)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	def, err := schema.ParseDefinition(xs.Definition)
	if err != nil {
		return err
	}
	// Chunks are extracted and validated against the partial form (null for
	// not-found fields); required-ness is enforced on the merged record only.
	target, err := schema.CompilePartial(def)
	if err != nil {
		return err
	}
	finalSchema, err := schema.Compile(def)
	if err != nil {
		return err
	}

	text, err := p.docs.GetText(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	model := p.modelFor(xs)
	caller, err := p.registry.Caller(model.Provider)
	if err != nil {
		return llm.NewCallError(llm.KindAuth, "provider not configured", err)
	}
	ext := extractor.New(caller, p.log)

	chunks := []chunker.Chunk{{Index: 0, EndOffset: len(text), Text: text}}
	if chunker.ShouldChunk(text, p.cfg.ChunkThreshold) {
		chunks, err = chunker.Split(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
		if err != nil {
			return err
		}
		if err := p.jobs.MarkChunked(ctx, job.ID, len(chunks)); err != nil {
			return err
		}
	}

	// A retried chunked job resumes from its saved progress instead of
	// re-extracting chunks that already succeeded.
	acc := map[string]any{}
	start := 0
	if job.IsChunked && job.ProcessedChunks > 0 && len(job.ChunkResults) > 0 {
		if uerr := json.Unmarshal(job.ChunkResults, &acc); uerr == nil {
			start = job.ProcessedChunks
		} else {
			acc = map[string]any{}
		}
	}
	if start >= len(chunks) {
		start = 0
		acc = map[string]any{}
	}

	for i := start; i < len(chunks); i++ {
		if cancelled, cerr := p.jobs.CancelRequested(ctx, job.ID); cerr == nil && cancelled {
			return ErrCancelled
		}

		var accumulated []byte
		if i > 0 {
			accumulated, _ = json.Marshal(acc)
		}
		payload, err := ext.Extract(ctx, extractor.Request{
			Schema:      target,
			SchemaName:  xs.Name,
			SchemaDesc:  xs.Description,
			ChunkText:   chunks[i].Text,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
			Accumulated: accumulated,
			Model:       model,
		})
		if err != nil {
			return err
		}

		var obj map[string]any
		if uerr := json.Unmarshal(payload, &obj); uerr != nil {
			return &merger.MergeError{ChunkIndex: i, Message: "chunk payload is not a JSON object", Cause: uerr}
		}
		acc = merger.Merge(acc, obj)

		if len(chunks) > 1 {
			progress, merr := json.Marshal(acc)
			if merr != nil {
				return &merger.MergeError{ChunkIndex: i, Message: "encode progress", Cause: merr}
			}
			if serr := p.jobs.SaveProgress(ctx, job.ID, i+1, progress); serr != nil {
				return serr
			}
		}
		p.log.Info("job.chunk.done", "job_id", job.ID, "chunk", i+1, "total", len(chunks))
	}

	result, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if verr := llm.ValidateJSONAgainstSchema(finalSchema, result); verr != nil {
		return llm.NewCallError(llm.KindMalformedOutput, "merged result is missing required fields", verr)
	}
	if err := p.jobs.FinishSuccess(context.WithoutCancel(ctx), job.ID, result); err != nil {
		return err
	}
	p.log.Info("job.process.done", "job_id", job.ID, "chunks", len(chunks))
	return nil
}

func (p *Processor) modelFor(xs *entity.ExtractionSchema) llm.ModelConfig {
	m := llm.ModelConfig{
		Provider:    xs.LLMProvider,
		Model:       xs.LLMModel,
		Temperature: p.cfg.Temperature,
		Timeout:     p.cfg.CallTimeout,
	}
	if m.Provider == "" {
		m.Provider = p.cfg.DefaultProvider
	}
	if m.Model == "" {
		m.Model = p.cfg.DefaultModel
	}
	return m
}
