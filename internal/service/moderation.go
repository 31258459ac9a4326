package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/timmy/assetlens/internal/domain"
	"github.com/timmy/assetlens/internal/logger"
)

// Classifier reports labelled regions found in an image, in detection order.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) ([]domain.Detection, error)
}

const (
	// SafeMessage is the verdict message when nothing crosses the threshold.
	SafeMessage = "Image is safe for upload"

	unsafeMessagePrefix = "Image contains inappropriate content: "
	failOpenFormat      = "Moderation check failed: %s. Defaulting to safe."
)

// ModerationConfig holds the safety policy.
type ModerationConfig struct {
	Threshold    float64
	UnsafeLabels []string
	Logger       *logger.Logger
}

// ModerationService turns classifier detections into a moderation verdict.
//
// It fails open: when the classifier errors, the image is reported safe with
// the error attached, so an outage never blocks uploads.
type ModerationService struct {
	classifier Classifier
	threshold  float64
	unsafe     map[string]struct{}
	logger     *logger.Logger
}

// NewModerationService creates a moderation service.
// Parameters:
//   - classifier: detection backend; nil makes every check fail open.
//   - cfg: threshold and unsafe label set.
//
// Returns:
//   - *ModerationService: ready to use.
func NewModerationService(classifier Classifier, cfg *ModerationConfig) *ModerationService {
	unsafe := make(map[string]struct{}, len(cfg.UnsafeLabels))
	for _, label := range dedupeStrings(cfg.UnsafeLabels) {
		unsafe[label] = struct{}{}
	}
	return &ModerationService{
		classifier: classifier,
		threshold:  cfg.Threshold,
		unsafe:     unsafe,
		logger:     cfg.Logger,
	}
}

// Threshold returns the configured confidence threshold.
func (s *ModerationService) Threshold() float64 {
	return s.threshold
}

func (s *ModerationService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Check classifies img and applies the safety policy. It never returns an error.
func (s *ModerationService) Check(ctx context.Context, img image.Image) domain.Verdict {
	start := time.Now()

	detections, err := s.classify(ctx, img)
	if err != nil {
		s.log(ctx).WithError(err).Warn("Content classifier failed, defaulting to safe")
		return domain.Verdict{
			IsSafe:     true,
			Message:    fmt.Sprintf(failOpenFormat, err.Error()),
			Detections: []domain.Detection{},
			Scores:     map[string]float64{},
			Error:      err.Error(),
		}
	}

	verdict := s.Evaluate(detections)
	logger.With(logger.Fields{
		logger.FieldStage:      "moderate",
		logger.FieldCount:      len(detections),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Debug(ctx, "Moderation verdict: safe=%v", verdict.IsSafe)
	return verdict
}

// Evaluate applies the policy to raw detections. A detection is triggering
// when its label is unsafe and its confidence is strictly above the threshold.
func (s *ModerationService) Evaluate(detections []domain.Detection) domain.Verdict {
	scores := make(map[string]float64, len(detections))
	triggering := make([]domain.Detection, 0)
	for _, d := range detections {
		if prev, ok := scores[d.Label]; !ok || d.Confidence > prev {
			scores[d.Label] = d.Confidence
		}
		if _, unsafe := s.unsafe[d.Label]; unsafe && d.Confidence > s.threshold {
			triggering = append(triggering, d)
		}
	}

	verdict := domain.Verdict{
		IsSafe:     len(triggering) == 0,
		Message:    SafeMessage,
		Detections: triggering,
		Scores:     scores,
	}
	if !verdict.IsSafe {
		verdict.Message = unsafeMessagePrefix + strings.Join(dedupeStrings(verdict.Labels()), ", ")
	}
	return verdict
}

// classify shields Check from classifier panics as well as errors.
func (s *ModerationService) classify(ctx context.Context, img image.Image) (detections []domain.Detection, err error) {
	if s.classifier == nil {
		return nil, errors.New("no content classifier configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("content classifier panic: %v", r)
		}
	}()
	return s.classifier.Classify(ctx, img)
}
