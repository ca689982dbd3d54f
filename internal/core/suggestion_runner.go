package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/schemaflow/schemaflow/internal/entity"
	"github.com/schemaflow/schemaflow/internal/llm"
	"github.com/schemaflow/schemaflow/internal/repository"
	"github.com/schemaflow/schemaflow/internal/suggest"
)

// SuggestionRunner drains the schema-suggestion queue. Suggestions share
// the jobs' retry and backoff policy but have no chunk progress to carry.
type SuggestionRunner struct {
	suggestions repository.SuggestionRepository
	docs        repository.DocumentRepository
	registry    *llm.Registry
	cfg         ProcessorConfig
	log         *slog.Logger
}

func NewSuggestionRunner(
	suggestions repository.SuggestionRepository,
	docs repository.DocumentRepository,
	registry *llm.Registry,
	cfg ProcessorConfig,
	logger *slog.Logger,
) *SuggestionRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &SuggestionRunner{suggestions: suggestions, docs: docs, registry: registry, cfg: cfg, log: logger}
}

func (r *SuggestionRunner) Name() string { return "suggestion" }

func (r *SuggestionRunner) RunNext(ctx context.Context) error {
	s, err := r.suggestions.ClaimNext(ctx)
	if err != nil {
		return err
	}
	return r.process(ctx, s)
}

func (r *SuggestionRunner) process(ctx context.Context, s *entity.SchemaSuggestion) error {
	prop, err := r.run(ctx, s)

	// Outcome writes survive an expired attempt context, as in Processor.
	record := context.WithoutCancel(ctx)

	if err == nil {
		def, merr := json.Marshal(prop.Definition)
		if merr != nil {
			err = fmt.Errorf("encode suggested definition: %w", merr)
		} else {
			return r.suggestions.FinishSuccess(record, s.ID, prop.Name, prop.Description, def)
		}
	}

	if Transient(err) && s.RetryCount < s.MaxRetries {
		delay := Backoff(s.RetryCount, r.cfg.RetryBackoffBase, r.cfg.RetryBackoffCap)
		if rerr := r.suggestions.ScheduleRetry(record, s.ID, err.Error(), time.Now().Add(delay)); rerr != nil {
			r.log.Error("suggestion.retry.record_failed", "suggestion_id", s.ID, "error", rerr)
		}
		return err
	}
	if ferr := r.suggestions.FinishFailure(record, s.ID, err.Error()); ferr != nil {
		r.log.Error("suggestion.fail.record_failed", "suggestion_id", s.ID, "error", ferr)
	}
	return err
}

func (r *SuggestionRunner) run(ctx context.Context, s *entity.SchemaSuggestion) (suggest.Proposal, error) {
	text, err := r.docs.GetText(ctx, s.DocumentID)
	if err != nil {
		return suggest.Proposal{}, fmt.Errorf("load document: %w", err)
	}

	provider := s.LLMProvider
	if provider == "" {
		provider = r.cfg.DefaultProvider
	}
	model := s.LLMModel
	if model == "" {
		model = r.cfg.DefaultModel
	}
	caller, err := r.registry.Caller(provider)
	if err != nil {
		return suggest.Proposal{}, llm.NewCallError(llm.KindAuth, "provider not configured", err)
	}

	sug := suggest.New(caller, r.log)
	return sug.Suggest(ctx, text, llm.ModelConfig{
		Provider:    provider,
		Model:       model,
		Temperature: r.cfg.Temperature,
		Timeout:     r.cfg.CallTimeout,
	})
}

var _ runner = (*SuggestionRunner)(nil)
