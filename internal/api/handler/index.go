package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/assetlens/internal/domain"
	"github.com/timmy/assetlens/internal/service"
)

// IndexHandler serves search and index maintenance.
type IndexHandler struct {
	analyzer Analyzer
}

// NewIndexHandler creates a new index handler.
func NewIndexHandler(analyzer Analyzer) *IndexHandler {
	return &IndexHandler{analyzer: analyzer}
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query     string `json:"query"`
	Limit     int    `json:"limit"`
	Workspace string `json:"workspace"`
}

// SearchHit is one entry of the search response.
type SearchHit struct {
	AssetID     string  `json:"asset_id"`
	Score       float32 `json:"score"`
	Description string  `json:"description"`
	Workspace   string  `json:"workspace,omitempty"`
	Name        string  `json:"name,omitempty"`
}

// Search handles POST /api/search.
func (h *IndexHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	results, err := h.analyzer.Search(c.Request.Context(), &service.SearchRequest{
		Query:     req.Query,
		Limit:     req.Limit,
		Workspace: req.Workspace,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{
			AssetID:     r.AssetID,
			Score:       r.Score,
			Description: r.Description,
			Workspace:   r.Workspace(),
			Name:        r.Name(),
		})
	}
	c.JSON(http.StatusOK, hits)
}

// IndexRequest is the body of POST /api/index.
type IndexRequest struct {
	AssetID     string            `json:"asset_id"`
	Description string            `json:"description"`
	Workspace   string            `json:"workspace"`
	Name        string            `json:"name"`
	Metadata    map[string]string `json:"metadata"`
}

// Index handles POST /api/index.
func (h *IndexHandler) Index(c *gin.Context) {
	var req IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	result, err := h.analyzer.Index(c.Request.Context(), &service.IndexRequest{
		AssetID:     req.AssetID,
		Description: req.Description,
		Workspace:   req.Workspace,
		Name:        req.Name,
		Metadata:    domain.Metadata(req.Metadata),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"asset_id":  result.AssetID,
		"record_id": result.RecordID,
	})
}

// assetIDParam reads the catch-all asset id, which may span several segments.
func assetIDParam(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("asset_id"), "/")
}

// Delete handles DELETE /api/index/*asset_id.
func (h *IndexHandler) Delete(c *gin.Context) {
	assetID := assetIDParam(c)
	if err := h.analyzer.DeleteAsset(c.Request.Context(), assetID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "asset_id": assetID})
}

// Records handles GET /api/index/*asset_id.
func (h *IndexHandler) Records(c *gin.Context) {
	assetID := assetIDParam(c)
	records, err := h.analyzer.ListAssetRecords(c.Request.Context(), assetID)
	if err != nil {
		respondError(c, err)
		return
	}
	if records == nil {
		records = []domain.AssetEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"asset_id": assetID, "records": records})
}
