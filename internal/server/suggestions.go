package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/schemaflow/schemaflow/constants"
	"github.com/schemaflow/schemaflow/internal/entity"
	"github.com/schemaflow/schemaflow/internal/ingest"
)

type createSuggestionRequest struct {
	DocumentID  uuid.UUID `json:"document_id" binding:"required"`
	LLMProvider string    `json:"llm_provider"`
	LLMModel    string    `json:"llm_model"`
}

func (s *Server) handleCreateSuggestion(c *gin.Context) {
	var req createSuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := s.docs.Get(c.Request.Context(), req.DocumentID); err != nil {
		writeError(c, err)
		return
	}
	sug := entity.SchemaSuggestion{
		DocumentID:  req.DocumentID,
		LLMProvider: req.LLMProvider,
		LLMModel:    req.LLMModel,
		MaxRetries:  s.maxRetries,
	}
	if err := s.suggestions.Create(c.Request.Context(), &sug); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sug)
}

// handleUploadAndSuggest stores a single uploaded file and immediately
// enqueues a suggestion for it.
func (s *Server) handleUploadAndSuggest(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open file"})
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, ingest.MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}

	text, format, err := ingest.ExtractText(fh.Filename, content)
	if err != nil {
		writeError(c, err)
		return
	}
	doc := entity.Document{Title: fh.Filename, RawText: text, FileType: string(format)}
	if err := s.docs.Create(c.Request.Context(), &doc); err != nil {
		writeError(c, err)
		return
	}

	sug := entity.SchemaSuggestion{
		DocumentID:  doc.ID,
		LLMProvider: c.PostForm("llm_provider"),
		LLMModel:    c.PostForm("llm_model"),
		MaxRetries:  s.maxRetries,
	}
	if err := s.suggestions.Create(c.Request.Context(), &sug); err != nil {
		writeError(c, err)
		return
	}
	doc.RawText = ""
	c.JSON(http.StatusAccepted, gin.H{"document": doc, "suggestion": sug})
}

func (s *Server) handleGetSuggestion(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	sug, err := s.suggestions.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sug)
}

type approveSuggestionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// StartJob enqueues an extraction of the originating document with
	// the approved schema.
	StartJob bool `json:"start_job"`
}

// handleApproveSuggestion materializes a completed suggestion into a real
// schema, optionally overriding name and description.
func (s *Server) handleApproveSuggestion(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req approveSuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sug, err := s.suggestions.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if sug.Status != constants.JobStatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "suggestion is not completed"})
		return
	}

	normalized, err := validateDefinition(sug.SuggestedSchema)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "stored suggestion is invalid: " + err.Error()})
		return
	}

	name := req.Name
	if name == "" {
		name = sug.SuggestedName
	}
	description := req.Description
	if description == "" {
		description = sug.SuggestedDescription
	}

	xs := entity.ExtractionSchema{
		Name:        name,
		Description: description,
		Definition:  normalized,
		LLMProvider: sug.LLMProvider,
		LLMModel:    sug.LLMModel,
	}
	if err := s.schemas.Create(c.Request.Context(), &xs); err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{"schema": xs}
	if req.StartJob {
		job := entity.ProcessingJob{
			DocumentID: sug.DocumentID,
			SchemaID:   xs.ID,
			MaxRetries: s.maxRetries,
		}
		if err := s.jobs.Create(c.Request.Context(), &job); err != nil {
			writeError(c, err)
			return
		}
		resp["job"] = job
	}
	c.JSON(http.StatusCreated, resp)
}
