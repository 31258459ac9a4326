package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/assetlens/internal/api/middleware"
	"github.com/timmy/assetlens/internal/domain"
	"github.com/timmy/assetlens/internal/service"
)

// Analyzer is the pipeline surface the handlers serve. *service.AnalysisService
// implements it.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte) (*service.AnalysisResult, error)
	Moderate(ctx context.Context, data []byte) (domain.Verdict, error)
	Describe(ctx context.Context, data []byte) (domain.Description, error)
	Search(ctx context.Context, req *service.SearchRequest) ([]domain.SearchResult, error)
	Index(ctx context.Context, req *service.IndexRequest) (*service.IndexResult, error)
	DeleteAsset(ctx context.Context, assetID string) error
	ListAssetRecords(ctx context.Context, assetID string) ([]domain.AssetEntry, error)
	Health() service.HealthReport
}

var errUploadTooLarge = errors.New("uploaded file is too large")

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, errUploadTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrDecode), errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrProviderUnavailable), errors.Is(err, domain.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": msg} with the mapped status. Server-side
// failures are logged with the request logger.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		middleware.GetLogger(c).WithError(err).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// readUpload returns the bytes of the multipart "file" field.
func readUpload(c *gin.Context, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 {
		// Leave room for the multipart framing around the file itself.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1<<20)
	}
	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errUploadTooLarge
		}
		return nil, fmt.Errorf("%w: multipart field \"file\" is required", domain.ErrInvalidRequest)
	}
	if maxBytes > 0 && header.Size > maxBytes {
		return nil, errUploadTooLarge
	}

	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}
