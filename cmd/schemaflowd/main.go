package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/schemaflow/schemaflow/internal/common"
	"github.com/schemaflow/schemaflow/internal/core"
	"github.com/schemaflow/schemaflow/internal/llm"
	"github.com/schemaflow/schemaflow/internal/llm/google"
	"github.com/schemaflow/schemaflow/internal/llm/openai"
	"github.com/schemaflow/schemaflow/internal/repository"
	"github.com/schemaflow/schemaflow/internal/server"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, log)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, log)

	if err := repository.HealthCheck(ctx, pool, 3*time.Second, log); err != nil {
		log.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	docs := repository.NewDocumentRepository(pool, log)
	schemas := repository.NewSchemaRepository(pool, log)
	jobs := repository.NewJobRepository(pool, log)
	suggestions := repository.NewSuggestionRepository(pool, log)

	registry := llm.NewRegistry()
	if cfg.LLM.OpenAIAPIKey != "" {
		client := openai.NewClient(openai.Config{
			APIKey:  cfg.LLM.OpenAIAPIKey,
			BaseURL: cfg.LLM.OpenAIBaseURL,
			Timeout: cfg.LLM.CallTimeout,
		}, log.With("provider", "openai"))
		registry.Register("openai", client, "gpt-4o", "gpt-4o-mini", "gpt-4.1")
	}
	if cfg.LLM.GoogleAPIKey != "" {
		client, err := google.NewClient(ctx, cfg.LLM.GoogleAPIKey, log.With("provider", "google"))
		if err != nil {
			log.Error("gemini client init failed", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		registry.Register("google", client, "gemini-2.0-flash", "gemini-1.5-pro")
	}

	procCfg := core.ProcessorConfig{
		ChunkThreshold:   cfg.Pipeline.ChunkThreshold,
		ChunkSize:        cfg.Pipeline.ChunkSize,
		ChunkOverlap:     cfg.Pipeline.ChunkOverlap,
		RetryBackoffBase: cfg.Pipeline.RetryBackoffBase,
		RetryBackoffCap:  cfg.Pipeline.RetryBackoffCap,
		DefaultProvider:  cfg.LLM.DefaultProvider,
		DefaultModel:     cfg.LLM.DefaultModel,
		Temperature:      cfg.LLM.Temperature,
		CallTimeout:      cfg.LLM.CallTimeout,
	}

	processor := core.NewProcessor(jobs, docs, schemas, registry, procCfg, log.With("component", "processor"))
	workers := core.NewPool(core.PoolConfig{
		Workers:      cfg.Worker.Workers,
		PollInterval: cfg.Worker.PollInterval,
		JobTimeout:   cfg.Worker.JobTimeout,
	}, log.With("component", "pool"),
		core.NewJobRunner(jobs, processor),
		core.NewSuggestionRunner(suggestions, docs, registry, procCfg, log.With("component", "suggestions")),
	)
	workers.Start(ctx)

	reaper := core.NewReaper(core.ReaperConfig{
		StaleAfter: cfg.Worker.StaleAfter,
		Interval:   cfg.Worker.SweepInterval,
	}, log.With("component", "reaper"), jobs, suggestions)
	reaper.Start(ctx)

	api := server.New(docs, schemas, jobs, suggestions, registry, pool, procCfg, cfg.Pipeline.MaxRetries, log.With("component", "http"))
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http serving", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	workers.Wait()
	reaper.Wait()
	log.Info("stopped")
}
