package localdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestAdapterWalksImages(t *testing.T) {
	root := t.TempDir()
	files := []string{"b.JPG", "a/c.webp", ".cache/skip.png", "readme.md"}
	for _, f := range files {
		path := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	a := NewAdapter(root, "team")
	items, next, err := a.FetchBatch(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("FetchBatch returned error: %v", err)
	}
	if next != "" {
		t.Errorf("expected no next cursor, got %q", next)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 images, got %+v", items)
	}
	if items[0].AssetID != "a/c.webp" || items[0].Format != "webp" || items[0].Name != "c.webp" {
		t.Errorf("unexpected first item %+v", items[0])
	}
	if items[1].AssetID != "b.JPG" || items[1].Format != "jpg" || items[1].Workspace != "team" {
		t.Errorf("unexpected second item %+v", items[1])
	}
}

func TestAdapterMissingRoot(t *testing.T) {
	a := NewAdapter(filepath.Join(t.TempDir(), "absent"), "")
	if _, _, err := a.FetchBatch(context.Background(), "", 10); err == nil {
		t.Fatal("expected an error for a missing root")
	}
}
