package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/timmy/assetlens/internal/config"
	"github.com/timmy/assetlens/internal/domain"
)

func newTestLedger(t *testing.T) *AssetRepository {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "ledger.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("InitDB returned error: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewAssetRepository(db)
}

func TestAssetRepositoryRecordListDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestLedger(t)

	base := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	entries := []domain.AssetEntry{
		{RecordID: "r1", AssetID: "a", Workspace: "ws1", CreatedAt: base},
		{RecordID: "r2", AssetID: "a", Workspace: "ws1", CreatedAt: base.Add(time.Minute)},
		{RecordID: "r3", AssetID: "b", Workspace: "ws2", Metadata: domain.Metadata{"k": "v"}, CreatedAt: base},
	}
	for i := range entries {
		if err := repo.Record(ctx, &entries[i]); err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}

	got, err := repo.ListByAssetID(ctx, "a")
	if err != nil {
		t.Fatalf("ListByAssetID returned error: %v", err)
	}
	if len(got) != 2 || got[0].RecordID != "r2" {
		t.Fatalf("expected [r2 r1] newest first, got %+v", got)
	}

	counts, err := repo.CountByWorkspace(ctx)
	if err != nil {
		t.Fatalf("CountByWorkspace returned error: %v", err)
	}
	if counts["ws1"] != 2 || counts["ws2"] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}

	n, err := repo.DeleteByAssetID(ctx, "a", "r2")
	if err != nil {
		t.Fatalf("DeleteByAssetID returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row deleted, got %d", n)
	}

	b, err := repo.ListByAssetID(ctx, "b")
	if err != nil {
		t.Fatalf("ListByAssetID returned error: %v", err)
	}
	if len(b) != 1 || b[0].Metadata["k"] != "v" {
		t.Errorf("expected metadata to round trip, got %+v", b)
	}
}
