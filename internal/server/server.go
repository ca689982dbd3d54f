// Package server exposes the HTTP API: uploads, schema CRUD, job polling
// and control, suggestions, and the provider and preset catalogs.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schemaflow/schemaflow/internal/common"
	"github.com/schemaflow/schemaflow/internal/core"
	"github.com/schemaflow/schemaflow/internal/llm"
	"github.com/schemaflow/schemaflow/internal/repository"
)

type Server struct {
	docs        repository.DocumentRepository
	schemas     repository.SchemaRepository
	jobs        repository.JobRepository
	suggestions repository.SuggestionRepository
	registry    *llm.Registry
	pool        *pgxpool.Pool
	cfg         core.ProcessorConfig
	maxRetries  int
	log         *slog.Logger
}

func New(
	docs repository.DocumentRepository,
	schemas repository.SchemaRepository,
	jobs repository.JobRepository,
	suggestions repository.SuggestionRepository,
	registry *llm.Registry,
	pool *pgxpool.Pool,
	cfg core.ProcessorConfig,
	maxRetries int,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		docs:        docs,
		schemas:     schemas,
		jobs:        jobs,
		suggestions: suggestions,
		registry:    registry,
		pool:        pool,
		cfg:         cfg,
		maxRetries:  maxRetries,
		log:         logger,
	}
}

// Router builds the gin engine with every route mounted under /api.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api")
	{
		api.GET("/providers", s.handleListProviders)
		api.GET("/presets", s.handleListPresets)
		api.GET("/stats", s.handleStats)

		api.POST("/documents", s.handleUploadDocuments)
		api.GET("/documents", s.handleListDocuments)
		api.GET("/documents/:id", s.handleGetDocument)
		api.GET("/documents/:id/text", s.handleDocumentText)
		api.DELETE("/documents/:id", s.handleDeleteDocument)

		api.POST("/schemas", s.handleCreateSchema)
		api.GET("/schemas", s.handleListSchemas)
		api.GET("/schemas/:id", s.handleGetSchema)
		api.PUT("/schemas/:id", s.handleUpdateSchema)
		api.DELETE("/schemas/:id", s.handleDeleteSchema)

		api.POST("/jobs", s.handleCreateJobs)
		api.GET("/jobs", s.handleListJobs)
		api.GET("/jobs/:id", s.handleGetJob)
		api.GET("/jobs/:id/status", s.handleJobStatus)
		api.GET("/jobs/:id/result", s.handleJobResult)
		api.POST("/jobs/:id/retry", s.handleRetryJob)
		api.POST("/jobs/:id/cancel", s.handleCancelJob)

		api.POST("/suggestions", s.handleCreateSuggestion)
		api.POST("/suggestions/upload", s.handleUploadAndSuggest)
		api.GET("/suggestions/:id", s.handleGetSuggestion)
		api.POST("/suggestions/:id/approve", s.handleApproveSuggestion)
	}
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.log.Info("http.request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
		)
	}
}

// pathID parses the :id path parameter; on failure the 400 response has
// already been written.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps store and validation errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, common.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflicting state"})
	case errors.Is(err, common.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		var aerr *common.AppError
		if errors.As(err, &aerr) && aerr.Code != "DATABASE_ERROR" {
			c.JSON(http.StatusBadRequest, gin.H{"error": aerr.Message, "code": aerr.Code})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
