package repository

import (
	"context"
	"fmt"

	"github.com/timmy/assetlens/internal/domain"
	"gorm.io/gorm"
)

// AssetRepository is the relational ledger of indexed records. The vector
// index stays the source of truth for search; the ledger answers "what was
// indexed for this asset" without scanning vectors.
type AssetRepository struct {
	db *gorm.DB
}

// NewAssetRepository creates a new AssetRepository.
func NewAssetRepository(db *gorm.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// Record inserts one ledger row.
func (r *AssetRepository) Record(ctx context.Context, entry *domain.AssetEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record asset %s: %w", entry.AssetID, err)
	}
	return nil
}

// ListByAssetID returns every row for assetID, newest first.
func (r *AssetRepository) ListByAssetID(ctx context.Context, assetID string) ([]domain.AssetEntry, error) {
	var entries []domain.AssetEntry
	err := r.db.WithContext(ctx).
		Where("asset_id = ?", assetID).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list records for asset %s: %w", assetID, err)
	}
	return entries, nil
}

// DeleteByAssetID removes the rows for assetID except the keep record ids.
func (r *AssetRepository) DeleteByAssetID(ctx context.Context, assetID string, keep ...string) (int64, error) {
	q := r.db.WithContext(ctx).Where("asset_id = ?", assetID)
	if len(keep) > 0 {
		q = q.Where("record_id NOT IN ?", keep)
	}
	res := q.Delete(&domain.AssetEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete records for asset %s: %w", assetID, res.Error)
	}
	return res.RowsAffected, nil
}

// CountByWorkspace returns the number of ledger rows per workspace.
func (r *AssetRepository) CountByWorkspace(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Workspace string
		Count     int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.AssetEntry{}).
		Select("workspace, COUNT(*) AS count").
		Group("workspace").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Workspace] = row.Count
	}
	return counts, nil
}

// JobRepository persists bulk ingest job progress.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts job.
func (r *JobRepository) Create(ctx context.Context, job *domain.IngestJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create ingest job: %w", err)
	}
	return nil
}

// Save writes every field of job.
func (r *JobRepository) Save(ctx context.Context, job *domain.IngestJob) error {
	if err := r.db.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("failed to save ingest job %s: %w", job.ID, err)
	}
	return nil
}

// Get loads a job by id.
func (r *JobRepository) Get(ctx context.Context, id string) (*domain.IngestJob, error) {
	var job domain.IngestJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to load ingest job %s: %w", id, err)
	}
	return &job, nil
}
