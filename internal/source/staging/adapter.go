package staging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/timmy/assetlens/internal/logger"
	"github.com/timmy/assetlens/internal/source"
)

const (
	// ManifestFileName is the JSONL manifest file name in staging sources.
	ManifestFileName = "manifest.jsonl"
	// ImagesDir is the directory name for staged images.
	ImagesDir = "images"
)

// ManifestItem represents a line in the manifest.jsonl file.
type ManifestItem struct {
	ID        string            `json:"id"`
	Filename  string            `json:"filename"`
	Workspace string            `json:"workspace"`
	Name      string            `json:"name"`
	Format    string            `json:"format"`
	Metadata  map[string]string `json:"metadata"`
}

// Adapter implements the Source interface for a staging directory laid out as
// <base>/<id>/manifest.jsonl plus <base>/<id>/images/.
type Adapter struct {
	basePath string
	sourceID string
	items    []source.Item
	loaded   bool
}

// NewAdapter creates a new staging adapter.
// Parameters:
//   - basePath: base path to the staging directory.
//   - sourceID: identifier for the staging source.
//
// Returns:
//   - *Adapter: initialized staging adapter.
func NewAdapter(basePath, sourceID string) *Adapter {
	return &Adapter{
		basePath: basePath,
		sourceID: sourceID,
	}
}

// GetSourceID returns the source identifier with a "staging:" prefix.
func (a *Adapter) GetSourceID() string {
	return "staging:" + a.sourceID
}

// GetDisplayName returns a human-readable name for this source.
func (a *Adapter) GetDisplayName() string {
	return fmt.Sprintf("Staging (%s)", a.sourceID)
}

// FetchBatch returns the next manifest items. The manifest is read on first use.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.Item, string, error) {
	if !a.loaded {
		if err := a.loadItems(ctx); err != nil {
			return nil, "", fmt.Errorf("failed to load staging items: %w", err)
		}
		a.loaded = true
	}
	return source.Page(a.items, cursor, limit)
}

// loadItems reads the manifest, skipping malformed lines and missing images.
func (a *Adapter) loadItems(ctx context.Context) error {
	stagingPath := filepath.Join(a.basePath, a.sourceID)
	manifestPath := filepath.Join(stagingPath, ManifestFileName)
	imagesPath := filepath.Join(stagingPath, ImagesDir)

	file, err := os.Open(manifestPath)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	a.items = []source.Item{}
	skipped := 0

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var item ManifestItem
		if err := json.Unmarshal([]byte(line), &item); err != nil || item.ID == "" || item.Filename == "" {
			skipped++
			continue
		}

		localPath := filepath.Join(imagesPath, item.Filename)
		if _, err := os.Stat(localPath); err != nil {
			skipped++
			continue
		}

		format := item.Format
		if format == "" {
			format = strings.TrimPrefix(strings.ToLower(filepath.Ext(item.Filename)), ".")
		}
		name := item.Name
		if name == "" {
			name = item.Filename
		}

		a.items = append(a.items, source.Item{
			AssetID:   item.ID,
			LocalPath: localPath,
			Format:    format,
			Workspace: item.Workspace,
			Name:      name,
			Metadata:  item.Metadata,
		})
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading manifest: %w", err)
	}
	if skipped > 0 {
		logger.CtxWarn(ctx, "Skipped %d manifest lines in %s", skipped, manifestPath)
	}

	sort.Slice(a.items, func(i, j int) bool {
		return a.items[i].AssetID < a.items[j].AssetID
	})
	return nil
}
