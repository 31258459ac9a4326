package staging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAdapterFetchBatch(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "batch1")
	if err := os.MkdirAll(filepath.Join(root, ImagesDir), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"one.jpg", "two.png"} {
		if err := os.WriteFile(filepath.Join(root, ImagesDir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}
	manifest := strings.Join([]string{
		`{"id":"b-2","filename":"two.png","workspace":"design","metadata":{"campaign":"spring"}}`,
		`{"id":"a-1","filename":"one.jpg","workspace":"design","name":"Hero shot"}`,
		`not json`,
		`{"id":"c-3","filename":"missing.jpg"}`,
		``,
	}, "\n")
	if err := os.WriteFile(filepath.Join(root, ManifestFileName), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	a := NewAdapter(base, "batch1")
	if a.GetSourceID() != "staging:batch1" {
		t.Errorf("unexpected source id %q", a.GetSourceID())
	}

	first, next, err := a.FetchBatch(context.Background(), "", 1)
	if err != nil {
		t.Fatalf("FetchBatch returned error: %v", err)
	}
	if len(first) != 1 || first[0].AssetID != "a-1" || next != "1" {
		t.Fatalf("unexpected first page %+v next=%q", first, next)
	}
	if first[0].Name != "Hero shot" || first[0].Format != "jpg" {
		t.Errorf("unexpected item %+v", first[0])
	}

	second, next, err := a.FetchBatch(context.Background(), next, 10)
	if err != nil {
		t.Fatalf("FetchBatch returned error: %v", err)
	}
	if len(second) != 1 || next != "" {
		t.Fatalf("unexpected second page %+v next=%q", second, next)
	}
	if second[0].Name != "two.png" || second[0].Metadata["campaign"] != "spring" {
		t.Errorf("expected filename as name and metadata copied, got %+v", second[0])
	}
}

func TestAdapterMissingManifest(t *testing.T) {
	a := NewAdapter(t.TempDir(), "nothing")
	if _, _, err := a.FetchBatch(context.Background(), "", 10); err == nil {
		t.Fatal("expected an error for a missing manifest")
	}
}
