package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/schemaflow/schemaflow/internal/entity"
	"github.com/schemaflow/schemaflow/internal/export"
	"github.com/schemaflow/schemaflow/internal/ingest"
)

// handleUploadDocuments accepts one or more files in the "files"
// multipart field and stores each as a document.
func (s *Server) handleUploadDocuments(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	var created []entity.Document
	var failures []gin.H
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			failures = append(failures, gin.H{"filename": fh.Filename, "error": "cannot open file"})
			continue
		}
		content, err := io.ReadAll(io.LimitReader(f, ingest.MaxUploadBytes+1))
		f.Close()
		if err != nil {
			failures = append(failures, gin.H{"filename": fh.Filename, "error": "cannot read file"})
			continue
		}

		text, format, err := ingest.ExtractText(fh.Filename, content)
		if err != nil {
			failures = append(failures, gin.H{"filename": fh.Filename, "error": err.Error()})
			continue
		}

		doc := entity.Document{Title: fh.Filename, RawText: text, FileType: string(format)}
		if err := s.docs.Create(c.Request.Context(), &doc); err != nil {
			failures = append(failures, gin.H{"filename": fh.Filename, "error": "store failed"})
			continue
		}
		doc.RawText = ""
		created = append(created, doc)
	}

	status := http.StatusCreated
	if len(created) == 0 {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"documents": created, "failures": failures})
}

func (s *Server) handleListDocuments(c *gin.Context) {
	limit, offset := pagination(c)
	docs, err := s.docs.List(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (s *Server) handleGetDocument(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	doc, err := s.docs.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         doc.ID,
		"title":      doc.Title,
		"file_type":  doc.FileType,
		"chars":      len(doc.RawText),
		"created_at": doc.CreatedAt,
	})
}

func (s *Server) handleDocumentText(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	doc, err := s.docs.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	att := export.DocumentText(doc)
	c.Header("Content-Disposition", `attachment; filename="`+att.Filename+`"`)
	c.Data(http.StatusOK, att.ContentType, att.Body)
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.docs.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, offset = 50, 0
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 {
		limit = n
	}
	if n, err := strconv.Atoi(c.Query("offset")); err == nil && n > 0 {
		offset = n
	}
	return limit, offset
}
