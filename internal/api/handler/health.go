package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/assetlens/internal/service"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	analyzer Analyzer
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(analyzer Analyzer) *HealthHandler {
	return &HealthHandler{analyzer: analyzer}
}

// Health reports the availability flags cached at startup. It never probes.
func (h *HealthHandler) Health(c *gin.Context) {
	report := h.analyzer.Health()
	status := "ok"
	if report.ImageDescription != service.StatusReady || report.VectorSearch != service.StatusReady {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"services": report,
	})
}
