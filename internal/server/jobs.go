package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/schemaflow/schemaflow/constants"
	"github.com/schemaflow/schemaflow/internal/entity"
	"github.com/schemaflow/schemaflow/internal/export"
)

type createJobsRequest struct {
	DocumentIDs []uuid.UUID `json:"document_ids" binding:"required,min=1"`
	SchemaID    uuid.UUID   `json:"schema_id" binding:"required"`
}

// handleCreateJobs enqueues one pending job per document; workers pick
// them up from the queue.
func (s *Server) handleCreateJobs(c *gin.Context) {
	var req createJobsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := s.schemas.Get(c.Request.Context(), req.SchemaID); err != nil {
		writeError(c, err)
		return
	}

	var jobs []entity.ProcessingJob
	for _, docID := range req.DocumentIDs {
		if _, err := s.docs.Get(c.Request.Context(), docID); err != nil {
			writeError(c, err)
			return
		}
		job := entity.ProcessingJob{
			DocumentID: docID,
			SchemaID:   req.SchemaID,
			MaxRetries: s.maxRetries,
		}
		if err := s.jobs.Create(c.Request.Context(), &job); err != nil {
			writeError(c, err)
			return
		}
		jobs = append(jobs, job)
	}
	c.JSON(http.StatusCreated, gin.H{"jobs": jobs})
}

func (s *Server) handleListJobs(c *gin.Context) {
	limit, offset := pagination(c)
	status := constants.JobStatus(c.Query("status"))

	if docParam := c.Query("document_id"); docParam != "" {
		docID, err := uuid.Parse(docParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document_id"})
			return
		}
		jobs, err := s.jobs.ListByDocument(c.Request.Context(), docID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": jobs})
		return
	}

	jobs, err := s.jobs.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) handleGetJob(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	job, err := s.jobs.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// handleJobStatus is the lightweight polling endpoint: status plus chunk
// progress, without the result payload.
func (s *Server) handleJobStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	job, err := s.jobs.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{
		"id":               job.ID,
		"status":           job.Status,
		"retry_count":      job.RetryCount,
		"is_chunked":       job.IsChunked,
		"total_chunks":     job.TotalChunks,
		"processed_chunks": job.ProcessedChunks,
		"cancel_requested": job.CancelRequested,
	}
	if job.ErrorMessage != "" {
		resp["error_message"] = job.ErrorMessage
		resp["error_kind"] = job.ErrorKind
	}
	if job.IsChunked && job.TotalChunks > 0 {
		resp["progress"] = float64(job.ProcessedChunks) / float64(job.TotalChunks)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleJobResult(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	job, err := s.jobs.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	doc, err := s.docs.Get(c.Request.Context(), job.DocumentID)
	title := "document"
	if err == nil {
		title = doc.Title
	}

	att, err := export.JobResult(job, title)
	if err != nil {
		writeError(c, err)
		return
	}
	if c.Query("download") == "true" {
		c.Header("Content-Disposition", `attachment; filename="`+att.Filename+`"`)
	}
	c.Data(http.StatusOK, att.ContentType, att.Body)
}

// handleRetryJob is the manual retry: only failed jobs are eligible, and
// the retry budget starts over.
func (s *Server) handleRetryJob(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.jobs.ResetForRetry(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": constants.JobStatusPending})
}

func (s *Server) handleCancelJob(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.jobs.RequestCancel(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "cancel_requested": true})
}
