package service

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/timmy/assetlens/internal/domain"
	"github.com/timmy/assetlens/internal/source/localdir"
)

// redIsUnsafe flags images whose top-left pixel is red.
func redIsUnsafe(img image.Image) []domain.Detection {
	r, g, b, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	if r > 0xf000 && g < 0x1000 && b < 0x1000 {
		return []domain.Detection{{Label: "EXPOSED_BUTTOCKS", Confidence: 0.95}}
	}
	return nil
}

func writeImages(t *testing.T, dir string, files map[string]color.Color) {
	t.Helper()
	for name, c := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, pngBytes(t, 8, 8, c), 0o644); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}
}

func TestIngestFromSource(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, map[string]color.Color{
		"beach.png":       color.RGBA{0, 0, 255, 255},
		"albums/lake.png": color.RGBA{0, 128, 255, 255},
		"flagged.png":     color.RGBA{255, 0, 0, 255},
	})
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write notes: %v", err)
	}

	f := newAnalysisFixture(t)
	f.classifier.classify = redIsUnsafe
	jobs := &fakeJobs{}
	svc := NewIngestService(f.svc, f.ledger, jobs, nil, &IngestConfig{Workers: 2, BatchSize: 2})
	src := localdir.NewAdapter(dir, "holiday")

	stats, err := svc.IngestFromSource(context.Background(), src, 100, nil)
	if err != nil {
		t.Fatalf("IngestFromSource returned error: %v", err)
	}
	if stats.TotalItems != 3 || stats.Indexed != 2 || stats.Unsafe != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if f.index.Len() != 2 {
		t.Errorf("expected 2 indexed records, got %d", f.index.Len())
	}
	entries, _ := f.ledger.ListByAssetID(context.Background(), "albums/lake.png")
	if len(entries) != 1 || entries[0].Workspace != "holiday" || entries[0].Metadata["format"] != "png" {
		t.Errorf("unexpected ledger entries %+v", entries)
	}

	if len(jobs.created) != 1 || len(jobs.saved) != 1 {
		t.Fatalf("expected one job created and saved, got %d and %d", len(jobs.created), len(jobs.saved))
	}
	job := jobs.saved[0]
	if job.Status != domain.JobStatusCompleted || job.Indexed != 2 || job.Unsafe != 1 || job.CompletedAt == nil {
		t.Errorf("unexpected job %+v", job)
	}

	again, err := svc.IngestFromSource(context.Background(), localdir.NewAdapter(dir, "holiday"), 100, nil)
	if err != nil {
		t.Fatalf("second IngestFromSource returned error: %v", err)
	}
	if again.Skipped != 2 || again.Indexed != 0 || again.Unsafe != 1 {
		t.Errorf("expected known assets to be skipped, got %+v", again)
	}

	forced, err := svc.IngestFromSource(context.Background(), localdir.NewAdapter(dir, "holiday"), 100, &IngestOptions{Force: true})
	if err != nil {
		t.Fatalf("forced IngestFromSource returned error: %v", err)
	}
	if forced.Indexed != 2 || f.index.Len() != 2 {
		t.Errorf("expected forced run to replace records, got %+v with %d records", forced, f.index.Len())
	}
}

func TestIngestRespectsLimit(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, map[string]color.Color{
		"a.png": color.White, "b.png": color.White, "c.png": color.White,
	})
	f := newAnalysisFixture(t)
	svc := NewIngestService(f.svc, nil, nil, nil, &IngestConfig{Workers: 1, BatchSize: 10})

	stats, err := svc.IngestFromSource(context.Background(), localdir.NewAdapter(dir, ""), 2, nil)
	if err != nil {
		t.Fatalf("IngestFromSource returned error: %v", err)
	}
	if stats.TotalItems != 2 || stats.Indexed != 2 {
		t.Errorf("expected 2 items, got %+v", stats)
	}
}

func TestIngestZeroLimitIngestsAll(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, map[string]color.Color{
		"a.png": color.White, "b.png": color.White, "c.png": color.White,
	})
	f := newAnalysisFixture(t)
	svc := NewIngestService(f.svc, nil, nil, nil, &IngestConfig{Workers: 2, BatchSize: 2})

	stats, err := svc.IngestFromSource(context.Background(), localdir.NewAdapter(dir, ""), 0, nil)
	if err != nil {
		t.Fatalf("IngestFromSource returned error: %v", err)
	}
	if stats.TotalItems != 3 || stats.Indexed != 3 || f.index.Len() != 3 {
		t.Errorf("expected all 3 items indexed, got %+v with %d records", stats, f.index.Len())
	}
}

func TestIngestRequiresSearchPath(t *testing.T) {
	f := newAnalysisFixture(t, func(cfg *AnalysisConfig) {
		cfg.Availability.Index = false
	})
	svc := NewIngestService(f.svc, nil, nil, nil, &IngestConfig{})
	if _, err := svc.IngestFromSource(context.Background(), localdir.NewAdapter(t.TempDir(), ""), 10, nil); err == nil {
		t.Fatal("expected an error when the index is unavailable")
	}
}
