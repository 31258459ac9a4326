package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/timmy/assetlens/internal/domain"
)

const defaultArchivePrefix = "moderation"

// VerdictArchive writes unsafe moderation verdicts as JSON objects keyed by
// day: <prefix>/YYYY/MM/DD/<id>.json.
type VerdictArchive struct {
	store  ObjectStorage
	prefix string
}

// NewVerdictArchive creates an archive on store. An empty prefix means "moderation".
func NewVerdictArchive(store ObjectStorage, prefix string) *VerdictArchive {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = defaultArchivePrefix
	}
	return &VerdictArchive{store: store, prefix: prefix}
}

// Key returns the object key for audit.
func (a *VerdictArchive) Key(audit *domain.ModerationAudit) string {
	t := audit.CheckedAt.UTC()
	return path.Join(a.prefix, t.Format("2006/01/02"), audit.ID+".json")
}

// Archive stores audit.
func (a *VerdictArchive) Archive(ctx context.Context, audit *domain.ModerationAudit) error {
	if audit.ID == "" {
		return fmt.Errorf("%w: audit id is required", domain.ErrInvalidRequest)
	}
	data, err := json.Marshal(audit)
	if err != nil {
		return fmt.Errorf("failed to encode audit: %w", err)
	}
	return a.store.Upload(ctx, a.Key(audit), bytes.NewReader(data), int64(len(data)), "application/json")
}

// Load reads back the audit stored under key.
func (a *VerdictArchive) Load(ctx context.Context, key string) (*domain.ModerationAudit, error) {
	body, err := a.store.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit %s: %w", key, err)
	}
	var audit domain.ModerationAudit
	if err := json.Unmarshal(data, &audit); err != nil {
		return nil, fmt.Errorf("failed to decode audit %s: %w", key, err)
	}
	return &audit, nil
}
