package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/assetlens/internal/domain"
	"github.com/timmy/assetlens/internal/imaging"
)

const classifierJPEGQuality = 90

// HTTPClassifierConfig configures the classifier sidecar client.
type HTTPClassifierConfig struct {
	Endpoint     string
	Timeout      time.Duration
	MaxDimension int
}

// HTTPClassifier calls a NudeNet-style detection sidecar over HTTP.
// The sidecar accepts a multipart "file" upload on POST /detect.
type HTTPClassifier struct {
	client   *resty.Client
	endpoint string
	maxDim   int
}

// NewHTTPClassifier creates a classifier client.
func NewHTTPClassifier(cfg *HTTPClassifierConfig) *HTTPClassifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)

	return &HTTPClassifier{
		client:   client,
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/") + "/detect",
		maxDim:   cfg.MaxDimension,
	}
}

type classifierResponse struct {
	Detections []struct {
		Class string    `json:"class"`
		Score float64   `json:"score"`
		Box   []float64 `json:"box"` // x, y, width, height
	} `json:"detections"`
	Error string `json:"error,omitempty"`
}

// Classify uploads img and returns detections in the order the sidecar reported
// them. Boxes are mapped back to img's coordinate space.
func (c *HTTPClassifier) Classify(ctx context.Context, img image.Image) ([]domain.Detection, error) {
	fitted := imaging.Fit(img, c.maxDim)
	data, err := imaging.EncodeJPEG(fitted, classifierJPEGQuality)
	if err != nil {
		return nil, err
	}
	scale := float64(img.Bounds().Dx()) / float64(fitted.Bounds().Dx())

	var resp classifierResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetFileReader("file", "image.jpg", bytes.NewReader(data)).
		SetResult(&resp).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to call classifier: %v", domain.ErrTransientProvider, err)
	}
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		return nil, fmt.Errorf("%w: classifier returned HTTP %d: %s",
			domain.ErrTransientProvider, httpResp.StatusCode(), string(httpResp.Body()))
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: classifier error: %s", domain.ErrTransientProvider, resp.Error)
	}

	detections := make([]domain.Detection, 0, len(resp.Detections))
	for _, d := range resp.Detections {
		det := domain.Detection{Label: d.Class, Confidence: d.Score}
		if len(d.Box) == 4 {
			det.Region = &domain.Region{
				X:      int(d.Box[0] * scale),
				Y:      int(d.Box[1] * scale),
				Width:  int(d.Box[2] * scale),
				Height: int(d.Box[3] * scale),
			}
		}
		detections = append(detections, det)
	}
	return detections, nil
}
