package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/assetlens/internal/domain"
)

// AnalysisHandler serves the image endpoints.
type AnalysisHandler struct {
	analyzer  Analyzer
	maxUpload int64
}

// NewAnalysisHandler creates a new analysis handler.
// Parameters:
//   - analyzer: pipeline service.
//   - maxUpload: upload limit in bytes; zero disables the limit.
//
// Returns:
//   - *AnalysisHandler: initialized handler.
func NewAnalysisHandler(analyzer Analyzer, maxUpload int64) *AnalysisHandler {
	return &AnalysisHandler{analyzer: analyzer, maxUpload: maxUpload}
}

// Analyze handles POST /api/analyze.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	data, err := readUpload(c, h.maxUpload)
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := h.analyzer.Analyze(c.Request.Context(), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ModerateResponse is the body of POST /api/moderate.
type ModerateResponse struct {
	IsSafe  bool           `json:"is_safe"`
	Message string         `json:"message"`
	Details domain.Verdict `json:"details"`
}

// Moderate handles POST /api/moderate.
func (h *AnalysisHandler) Moderate(c *gin.Context) {
	data, err := readUpload(c, h.maxUpload)
	if err != nil {
		respondError(c, err)
		return
	}
	verdict, err := h.analyzer.Moderate(c.Request.Context(), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ModerateResponse{
		IsSafe:  verdict.IsSafe,
		Message: verdict.Message,
		Details: verdict,
	})
}

// Describe handles POST /api/describe. An unavailable provider is a 503.
func (h *AnalysisHandler) Describe(c *gin.Context) {
	data, err := readUpload(c, h.maxUpload)
	if err != nil {
		respondError(c, err)
		return
	}
	desc, err := h.analyzer.Describe(c.Request.Context(), data)
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": desc.Text})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, desc)
}
