package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health is the probe response body.
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

// GetLiveness handles GET /health/live.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, Health{Status: healthOK})
}

// GetReadiness handles GET /health/ready.
func (s *Server) GetReadiness(c *gin.Context) {
	checks := make(map[string]string)
	allHealthy := true

	switch {
	case s.db == nil:
		checks["database"] = "skipped"
	case s.db.Ping(c.Request.Context()) != nil:
		checks["database"] = "error"
		allHealthy = false
	default:
		checks["database"] = "ok"
	}

	status := healthOK
	httpStatus := http.StatusOK
	if !allHealthy {
		status = healthDegraded
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, Health{
		Status: status,
		Checks: checks,
	})
}
