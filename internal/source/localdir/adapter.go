// Package localdir ingests every image file below a directory.
package localdir

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/timmy/assetlens/internal/source"
)

var imageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true,
	"webp": true, "bmp": true, "tif": true, "tiff": true,
}

// Adapter walks root once and serves the image files in path order.
// The asset id is the slash-separated path relative to root.
type Adapter struct {
	root      string
	workspace string
	items     []source.Item
	loaded    bool
}

// NewAdapter creates an adapter for root. Every item gets the given workspace.
func NewAdapter(root, workspace string) *Adapter {
	return &Adapter{root: root, workspace: workspace}
}

// GetSourceID returns "localdir:" plus the root path.
func (a *Adapter) GetSourceID() string {
	return "localdir:" + a.root
}

// GetDisplayName returns a human-readable name for this source.
func (a *Adapter) GetDisplayName() string {
	return fmt.Sprintf("Local directory (%s)", a.root)
}

// FetchBatch returns the next image files.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.Item, string, error) {
	if !a.loaded {
		if err := a.walk(ctx); err != nil {
			return nil, "", err
		}
		a.loaded = true
	}
	return source.Page(a.items, cursor, limit)
}

func (a *Adapter) walk(ctx context.Context) error {
	a.items = []source.Item{}
	err := filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != a.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(d.Name())), ".")
		if !imageExtensions[ext] {
			return nil
		}
		rel, err := filepath.Rel(a.root, path)
		if err != nil {
			return err
		}
		a.items = append(a.items, source.Item{
			AssetID:   filepath.ToSlash(rel),
			LocalPath: path,
			Format:    ext,
			Workspace: a.workspace,
			Name:      d.Name(),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", a.root, err)
	}

	sort.Slice(a.items, func(i, j int) bool {
		return a.items[i].AssetID < a.items[j].AssetID
	})
	return nil
}
