package service

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/timmy/assetlens/internal/config"
	"github.com/timmy/assetlens/internal/domain"
)

func newModeration(c Classifier) *ModerationService {
	return NewModerationService(c, &ModerationConfig{
		Threshold:    0.6,
		UnsafeLabels: config.DefaultUnsafeLabels,
	})
}

func blankImage(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestModerationThreshold(t *testing.T) {
	tests := []struct {
		name       string
		detections []domain.Detection
		wantSafe   bool
		wantLabels []string
	}{
		{"unsafe label above threshold", []domain.Detection{{Label: "EXPOSED_BREAST_F", Confidence: 0.9}}, false, []string{"EXPOSED_BREAST_F"}},
		{"unsafe label below threshold", []domain.Detection{{Label: "EXPOSED_BREAST_F", Confidence: 0.3}}, true, nil},
		{"exactly at threshold is safe", []domain.Detection{{Label: "EXPOSED_BREAST_F", Confidence: 0.6}}, true, nil},
		{"safe label with high score", []domain.Detection{{Label: "FACE_F", Confidence: 0.99}}, true, nil},
		{"no detections", nil, true, nil},
		{
			"labels keep classifier order",
			[]domain.Detection{
				{Label: "EXPOSED_BUTTOCKS", Confidence: 0.8},
				{Label: "FACE_M", Confidence: 0.9},
				{Label: "EXPOSED_ANUS", Confidence: 0.7},
			},
			false,
			[]string{"EXPOSED_BUTTOCKS", "EXPOSED_ANUS"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newModeration(&fakeClassifier{detections: tt.detections})
			v := svc.Check(context.Background(), blankImage(4, 4))

			if v.IsSafe != tt.wantSafe {
				t.Fatalf("expected safe=%v, got %v (%s)", tt.wantSafe, v.IsSafe, v.Message)
			}
			if tt.wantSafe {
				if v.Message != SafeMessage {
					t.Errorf("expected safe message, got %q", v.Message)
				}
				return
			}
			want := "Image contains inappropriate content: " + strings.Join(tt.wantLabels, ", ")
			if v.Message != want {
				t.Errorf("expected message %q, got %q", want, v.Message)
			}
			if len(v.Detections) != len(tt.wantLabels) {
				t.Errorf("expected %d triggering detections, got %d", len(tt.wantLabels), len(v.Detections))
			}
		})
	}
}

func TestModerationKeepsMaxScorePerLabel(t *testing.T) {
	svc := newModeration(&fakeClassifier{detections: []domain.Detection{
		{Label: "FACE_F", Confidence: 0.4},
		{Label: "FACE_F", Confidence: 0.7},
		{Label: "EXPOSED_FEET", Confidence: 0.2},
	}})
	v := svc.Check(context.Background(), blankImage(4, 4))
	if v.Scores["FACE_F"] != 0.7 || v.Scores["EXPOSED_FEET"] != 0.2 {
		t.Errorf("unexpected scores %v", v.Scores)
	}
}

func TestModerationFailsOpen(t *testing.T) {
	tests := []struct {
		name       string
		classifier Classifier
	}{
		{"classifier error", &fakeClassifier{err: errors.New("connection refused")}},
		{"classifier panic", &fakeClassifier{panicWith: "model not loaded"}},
		{"no classifier", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newModeration(tt.classifier).Check(context.Background(), blankImage(4, 4))
			if !v.IsSafe {
				t.Fatal("expected fail-open verdict to be safe")
			}
			if v.Error == "" {
				t.Error("expected the error to be annotated on the verdict")
			}
			if !strings.HasPrefix(v.Message, "Moderation check failed: ") || !strings.HasSuffix(v.Message, "Defaulting to safe.") {
				t.Errorf("unexpected fail-open message %q", v.Message)
			}
		})
	}
}

func TestHTTPClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		cfg, _, err := image.DecodeConfig(file)
		if err != nil || cfg.Width != 1024 || cfg.Height != 512 {
			http.Error(w, "unexpected upload", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"detections": []map[string]any{
				{"class": "EXPOSED_BREAST_F", "score": 0.91, "box": []float64{10, 20, 30, 40}},
				{"class": "FACE_F", "score": 0.5, "box": []float64{1, 1, 2, 2}},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPClassifier(&HTTPClassifierConfig{Endpoint: srv.URL, MaxDimension: 1024})
	img := image.NewRGBA(image.Rect(0, 0, 2048, 1024))
	img.Set(0, 0, color.White)

	detections, err := c.Classify(context.Background(), img)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if len(detections) != 2 || detections[0].Label != "EXPOSED_BREAST_F" {
		t.Fatalf("unexpected detections %+v", detections)
	}
	want := domain.Region{X: 20, Y: 40, Width: 60, Height: 80}
	if detections[0].Region == nil || *detections[0].Region != want {
		t.Errorf("expected box scaled to %+v, got %+v", want, detections[0].Region)
	}
}

func TestHTTPClassifierErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(&HTTPClassifierConfig{Endpoint: srv.URL})
	_, err := c.Classify(context.Background(), blankImage(8, 8))
	if !errors.Is(err, domain.ErrTransientProvider) {
		t.Fatalf("expected ErrTransientProvider, got %v", err)
	}

	v := newModeration(c).Check(context.Background(), blankImage(8, 8))
	if !v.IsSafe || v.Error == "" {
		t.Errorf("expected fail-open verdict with error, got %+v", v)
	}
}
