package source

import (
	"context"
	"fmt"
	"strconv"
)

// Item is one image offered by a source for bulk ingest.
type Item struct {
	AssetID   string            // Stable asset id used for indexing
	LocalPath string            // Image file on disk
	Format    string            // File extension without dot (jpg, png, ...)
	Workspace string            // Workspace metadata
	Name      string            // Display name metadata
	Metadata  map[string]string // Extra metadata copied into the index payload
}

// Source defines the interface for bulk ingest image sources.
type Source interface {
	// GetSourceID returns the unique identifier for this source.
	// Parameters: none.
	// Returns:
	//   - string: stable source identifier.
	GetSourceID() string

	// GetDisplayName returns a human-readable name for this source.
	// Parameters: none.
	// Returns:
	//   - string: display-friendly source name.
	GetDisplayName() string

	// FetchBatch fetches a batch of items starting from the given cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: pagination cursor or empty for first page.
	//   - limit: maximum number of items to fetch.
	// Returns:
	//   - items: batch of items.
	//   - nextCursor: cursor for the next batch or empty if done.
	//   - err: non-nil if fetching fails.
	FetchBatch(ctx context.Context, cursor string, limit int) (items []Item, nextCursor string, err error)
}

// Page slices items by an index cursor, as used by the file-backed sources.
func Page(items []Item, cursor string, limit int) ([]Item, string, error) {
	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil || start < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}
	if start >= len(items) || limit <= 0 {
		return []Item{}, "", nil
	}

	end := min(start+limit, len(items))
	next := ""
	if end < len(items) {
		next = strconv.Itoa(end)
	}
	return items[start:end], next, nil
}
