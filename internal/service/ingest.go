package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/assetlens/internal/domain"
	"github.com/timmy/assetlens/internal/logger"
	"github.com/timmy/assetlens/internal/source"
)

// JobStore persists ingest job progress.
type JobStore interface {
	Create(ctx context.Context, job *domain.IngestJob) error
	Save(ctx context.Context, job *domain.IngestJob) error
}

// IngestService runs the analysis cascade over every image of a source and
// indexes the safe, described ones.
type IngestService struct {
	analysis  *AnalysisService
	ledger    AssetLedger
	jobs      JobStore
	logger    *logger.Logger
	workers   int
	batchSize int
}

// IngestConfig holds configuration for the ingest service
type IngestConfig struct {
	Workers   int
	BatchSize int
}

// NewIngestService creates a new ingest service.
// ledger and jobs are optional; without a ledger nothing is skipped as already indexed.
func NewIngestService(
	analysis *AnalysisService,
	ledger AssetLedger,
	jobs JobStore,
	log *logger.Logger,
	cfg *IngestConfig,
) *IngestService {
	return &IngestService{
		analysis:  analysis,
		ledger:    ledger,
		jobs:      jobs,
		logger:    log,
		workers:   max(cfg.Workers, 1),
		batchSize: max(cfg.BatchSize, 1),
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *IngestService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// IngestStats holds statistics for an ingestion run
type IngestStats struct {
	JobID       string
	TotalItems  int64
	Indexed     int64
	Skipped     int64
	Unsafe      int64
	Undescribed int64
	Failed      int64
	StartTime   time.Time
	EndTime     time.Time
}

// IngestOptions holds options for ingestion
type IngestOptions struct {
	Force bool // re-index assets the ledger already knows
}

type outcome int

const (
	outcomeIndexed outcome = iota
	outcomeSkipped
	outcomeUnsafe
	outcomeUndescribed
	outcomeFailed
)

type processResult struct {
	assetID string
	outcome outcome
	err     error
}

// IngestFromSource fetches up to limit items from src and processes them on
// the worker pool. A limit <= 0 ingests everything. Item failures are counted,
// not returned.
func (s *IngestService) IngestFromSource(ctx context.Context, src source.Source, limit int, opts *IngestOptions) (*IngestStats, error) {
	if opts == nil {
		opts = &IngestOptions{}
	}
	avail := s.analysis.Availability()
	if !avail.Embedding || !avail.Index {
		return nil, fmt.Errorf("ingest needs embedding and vector index: %w", domain.ErrProviderUnavailable)
	}

	stats := &IngestStats{
		JobID:     uuid.New().String(),
		StartTime: time.Now(),
	}
	ctx = logger.SetJobID(ctx, stats.JobID)
	job := s.startJob(ctx, stats, src)

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldSource: src.GetSourceID(),
		"limit":            limit,
		"force":            opts.Force,
	}).Info("Starting ingestion")

	itemsChan := make(chan source.Item, s.workers*2)
	resultsChan := make(chan *processResult, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, itemsChan, resultsChan, opts)
		}()
	}

	var errLog []string
	done := make(chan struct{})
	go func() {
		for result := range resultsChan {
			switch result.outcome {
			case outcomeIndexed:
				atomic.AddInt64(&stats.Indexed, 1)
			case outcomeSkipped:
				atomic.AddInt64(&stats.Skipped, 1)
			case outcomeUnsafe:
				atomic.AddInt64(&stats.Unsafe, 1)
			case outcomeUndescribed:
				atomic.AddInt64(&stats.Undescribed, 1)
			case outcomeFailed:
				atomic.AddInt64(&stats.Failed, 1)
				errLog = append(errLog, fmt.Sprintf("%s: %v", result.assetID, result.err))
				s.log(ctx).WithField(logger.FieldAssetID, result.assetID).
					WithError(result.err).Error("Failed to process item")
			}
		}
		close(done)
	}()

	fetchErr := s.feed(ctx, src, limit, stats, itemsChan)

	close(itemsChan)
	wg.Wait()
	close(resultsChan)
	<-done

	stats.EndTime = time.Now()
	s.finishJob(ctx, job, stats, fetchErr, errLog)

	logger.With(logger.Fields{
		logger.FieldCount:      stats.TotalItems,
		logger.FieldDurationMs: stats.EndTime.Sub(stats.StartTime).Milliseconds(),
		"indexed":              stats.Indexed,
		"skipped":              stats.Skipped,
		"unsafe":               stats.Unsafe,
		"undescribed":          stats.Undescribed,
		"failed":               stats.Failed,
	}).Info(ctx, "Ingestion completed")

	if fetchErr != nil {
		return stats, fetchErr
	}
	return stats, nil
}

// feed pages through src and hands items to the workers.
func (s *IngestService) feed(ctx context.Context, src source.Source, limit int, stats *IngestStats, items chan<- source.Item) error {
	cursor := ""
	fetched := 0
	for ctx.Err() == nil {
		size := s.batchSize
		if limit > 0 {
			remaining := limit - fetched
			if remaining <= 0 {
				return nil
			}
			size = min(size, remaining)
		}

		batch, next, err := src.FetchBatch(ctx, cursor, size)
		if err != nil {
			return fmt.Errorf("failed to fetch batch: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		atomic.AddInt64(&stats.TotalItems, int64(len(batch)))
		fetched += len(batch)

		for _, item := range batch {
			select {
			case items <- item:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if next == "" {
			return nil
		}
		cursor = next
	}
	return ctx.Err()
}

func (s *IngestService) worker(ctx context.Context, items <-chan source.Item, results chan<- *processResult, opts *IngestOptions) {
	for item := range items {
		if ctx.Err() != nil {
			return
		}
		outcome, err := s.processItem(ctx, &item, opts)
		results <- &processResult{assetID: item.AssetID, outcome: outcome, err: err}
	}
}

func (s *IngestService) processItem(ctx context.Context, item *source.Item, opts *IngestOptions) (outcome, error) {
	if strings.TrimSpace(item.AssetID) == "" {
		return outcomeFailed, fmt.Errorf("%w: item has no asset id", domain.ErrInvalidRequest)
	}
	ctx = logger.SetAssetID(ctx, item.AssetID)

	if !opts.Force && s.ledger != nil {
		existing, err := s.ledger.ListByAssetID(ctx, item.AssetID)
		if err != nil {
			return outcomeFailed, fmt.Errorf("failed to check existence: %w", err)
		}
		if len(existing) > 0 {
			return outcomeSkipped, nil
		}
	}

	data, err := os.ReadFile(item.LocalPath)
	if err != nil {
		return outcomeFailed, fmt.Errorf("failed to read image: %w", err)
	}

	result, err := s.analysis.Analyze(ctx, data)
	if err != nil {
		return outcomeFailed, err
	}
	if !result.IsSafe {
		logger.CtxInfo(ctx, "Skipping unsafe image: %s", result.Moderation.Message)
		return outcomeUnsafe, nil
	}
	if result.Description == nil {
		return outcomeUndescribed, nil
	}

	metadata := domain.Metadata{"format": item.Format}
	for k, v := range item.Metadata {
		metadata[k] = v
	}
	_, err = s.analysis.Index(ctx, &IndexRequest{
		AssetID:     item.AssetID,
		Description: *result.Description,
		Workspace:   item.Workspace,
		Name:        item.Name,
		Metadata:    metadata,
		Vector:      result.Embedding,
	})
	if err != nil {
		return outcomeFailed, err
	}
	return outcomeIndexed, nil
}

func (s *IngestService) startJob(ctx context.Context, stats *IngestStats, src source.Source) *domain.IngestJob {
	if s.jobs == nil {
		return nil
	}
	job := &domain.IngestJob{
		ID:        stats.JobID,
		Source:    src.GetSourceID(),
		Status:    domain.JobStatusRunning,
		StartedAt: stats.StartTime,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to record ingest job")
		return nil
	}
	return job
}

// maxErrorLogLines bounds the per-item errors kept on the job row.
const maxErrorLogLines = 50

func (s *IngestService) finishJob(ctx context.Context, job *domain.IngestJob, stats *IngestStats, fetchErr error, errLog []string) {
	if job == nil {
		return
	}
	completed := stats.EndTime
	job.CompletedAt = &completed
	job.Total = int(stats.TotalItems)
	job.Indexed = int(stats.Indexed)
	job.Unsafe = int(stats.Unsafe)
	job.Undescribed = int(stats.Undescribed)
	job.Failed = int(stats.Failed)
	job.Status = domain.JobStatusCompleted

	if len(errLog) > maxErrorLogLines {
		errLog = append(errLog[:maxErrorLogLines], fmt.Sprintf("... %d more", len(errLog)-maxErrorLogLines))
	}
	if fetchErr != nil {
		job.Status = domain.JobStatusFailed
		errLog = append([]string{fetchErr.Error()}, errLog...)
	}
	job.ErrorLog = strings.Join(errLog, "\n")

	// The run context may already be cancelled; the final state is still written.
	saveCtx := context.WithoutCancel(ctx)
	if err := s.jobs.Save(saveCtx, job); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to save ingest job")
	}
}
