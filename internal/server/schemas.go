package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/schemaflow/schemaflow/internal/entity"
	"github.com/schemaflow/schemaflow/internal/schema"
)

type schemaRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Definition  json.RawMessage `json:"schema_definition" binding:"required"`
	LLMProvider string          `json:"llm_provider"`
	LLMModel    string          `json:"llm_model"`
}

// validateDefinition parses, validates, and normalizes (ids assigned) a
// submitted definition. Structural problems are fatal here, before any
// job can reference the schema.
func validateDefinition(raw json.RawMessage) (json.RawMessage, error) {
	def, err := schema.ParseDefinition(raw)
	if err != nil {
		return nil, err
	}
	def.Fields = schema.EnsureIDs(def.Fields)
	if _, err := schema.Compile(def); err != nil {
		return nil, err
	}
	return json.Marshal(def)
}

func (s *Server) handleCreateSchema(c *gin.Context) {
	var req schemaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	normalized, err := validateDefinition(req.Definition)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	xs := entity.ExtractionSchema{
		Name:        req.Name,
		Description: req.Description,
		Definition:  normalized,
		LLMProvider: req.LLMProvider,
		LLMModel:    req.LLMModel,
	}
	if err := s.schemas.Create(c.Request.Context(), &xs); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, xs)
}

func (s *Server) handleListSchemas(c *gin.Context) {
	limit, offset := pagination(c)
	list, err := s.schemas.List(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schemas": list})
}

func (s *Server) handleGetSchema(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	xs, err := s.schemas.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, xs)
}

func (s *Server) handleUpdateSchema(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req schemaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	normalized, err := validateDefinition(req.Definition)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	xs := entity.ExtractionSchema{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Definition:  normalized,
		LLMProvider: req.LLMProvider,
		LLMModel:    req.LLMModel,
	}
	if err := s.schemas.Update(c.Request.Context(), &xs); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, xs)
}

func (s *Server) handleDeleteSchema(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.schemas.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListPresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": schema.Presets()})
}
