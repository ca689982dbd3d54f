package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/schemaflow/schemaflow/internal/repository"
)

// recentJobsLimit caps the recent-jobs list on the stats payload.
const recentJobsLimit = 10

func (s *Server) handleHealth(c *gin.Context) {
	if err := repository.HealthCheck(c.Request.Context(), s.pool, 2*time.Second, s.log); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": s.registry.List()})
}

func (s *Server) handleStats(c *gin.Context) {
	counts, err := s.jobs.CountByStatus(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	recent, err := s.jobs.List(c.Request.Context(), "", recentJobsLimit, 0)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": counts, "total": total, "recent": recent})
}
