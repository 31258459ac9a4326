package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/assetlens/internal/domain"
	"github.com/timmy/assetlens/internal/imaging"
	"github.com/timmy/assetlens/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Search limits.
const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// VectorIndex stores asset vectors and ranks them by cosine similarity.
// Every method fails with domain.ErrIndexUnavailable when the index was
// never initialized.
type VectorIndex interface {
	Ready() bool
	Dimension() int
	Upsert(ctx context.Context, rec *domain.AssetRecord) error
	Search(ctx context.Context, vector []float32, k int, filter *domain.SearchFilter) ([]domain.SearchResult, error)
	DeleteAsset(ctx context.Context, assetID string, keep ...string) error
	Close() error
}

// AssetLedger keeps a relational record of what was indexed.
type AssetLedger interface {
	Record(ctx context.Context, entry *domain.AssetEntry) error
	ListByAssetID(ctx context.Context, assetID string) ([]domain.AssetEntry, error)
	DeleteByAssetID(ctx context.Context, assetID string, keep ...string) (int64, error)
}

// AuditSink archives unsafe moderation verdicts.
type AuditSink interface {
	Archive(ctx context.Context, audit *domain.ModerationAudit) error
}

// Availability holds the provider flags computed once at startup.
type Availability struct {
	Description bool
	Embedding   bool
	Index       bool
}

// StartupProbes are the checks ProbeAvailability runs. A nil probe reports false.
type StartupProbes struct {
	Description func(ctx context.Context) bool
	Embedding   func(ctx context.Context) bool
	Index       func(ctx context.Context) bool
}

// ProbeAvailability runs the probes concurrently and returns their results.
// Probes never fail the startup; they resolve to false instead.
func ProbeAvailability(ctx context.Context, probes StartupProbes) Availability {
	var avail Availability
	g, gctx := errgroup.WithContext(ctx)
	run := func(probe func(context.Context) bool, dst *bool) {
		g.Go(func() error {
			if probe != nil {
				*dst = probe(gctx)
			}
			return nil
		})
	}
	run(probes.Description, &avail.Description)
	run(probes.Embedding, &avail.Embedding)
	run(probes.Index, &avail.Index)
	_ = g.Wait()
	return avail
}

// AnalysisConfig wires the orchestrator.
type AnalysisConfig struct {
	Moderation   *ModerationService
	Describer    Describer
	Embedder     Embedder
	Index        VectorIndex
	Ledger       AssetLedger // optional
	Audit        AuditSink   // optional
	Availability Availability

	// ReplaceOnReindex removes older records of an asset after a successful upsert.
	ReplaceOnReindex bool
	Collection       string
	Logger           *logger.Logger
}

// AnalysisService runs the moderation, description and embedding cascade and
// the standalone index and search paths.
type AnalysisService struct {
	moderation *ModerationService
	describer  Describer
	embedder   Embedder
	index      VectorIndex
	ledger     AssetLedger
	audit      AuditSink
	avail      Availability
	replace    bool
	collection string
	logger     *logger.Logger
}

// NewAnalysisService creates the orchestrator.
// Parameters:
//   - cfg: providers, index and the cached availability flags.
//
// Returns:
//   - *AnalysisService: ready to serve requests concurrently.
func NewAnalysisService(cfg *AnalysisConfig) *AnalysisService {
	return &AnalysisService{
		moderation: cfg.Moderation,
		describer:  cfg.Describer,
		embedder:   cfg.Embedder,
		index:      cfg.Index,
		ledger:     cfg.Ledger,
		audit:      cfg.Audit,
		avail:      cfg.Availability,
		replace:    cfg.ReplaceOnReindex,
		collection: cfg.Collection,
		logger:     cfg.Logger,
	}
}

func (s *AnalysisService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Availability returns the cached provider flags.
func (s *AnalysisService) Availability() Availability {
	return s.avail
}

// AnalysisResult is the outcome of Analyze. Description and Embedding are nil
// when the image is unsafe or no usable description was produced.
type AnalysisResult struct {
	IsSafe           bool           `json:"is_safe"`
	Description      *string        `json:"description"`
	DescriptionError string         `json:"description_error,omitempty"`
	Embedding        []float32      `json:"embedding"`
	Moderation       domain.Verdict `json:"moderation_details"`
}

// Analyze decodes data once and runs MODERATE, then DESCRIBE and EMBED for
// safe images. An unsafe verdict ends the cascade. A missing or sentinel
// description skips embedding without failing; embedding errors propagate.
func (s *AnalysisService) Analyze(ctx context.Context, data []byte) (*AnalysisResult, error) {
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, err
	}

	verdict := s.moderate(ctx, img, data)
	result := &AnalysisResult{IsSafe: verdict.IsSafe, Moderation: verdict}
	if !verdict.IsSafe {
		return result, nil
	}

	if !s.avail.Description {
		result.DescriptionError = unavailableDescription(s.describer.Provider()).Text
		return result, nil
	}
	desc := s.describer.Describe(ctx, img.Pixels)
	if !desc.Usable() {
		result.DescriptionError = desc.Text
		logger.CtxWarn(ctx, "Description unusable, skipping embedding: provider=%s status=%s", desc.Provider, desc.Status)
		return result, nil
	}
	text := desc.Text
	result.Description = &text

	if !s.avail.Embedding {
		return result, nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed description: %w", err)
	}
	result.Embedding = vec
	return result, nil
}

// Moderate decodes data and returns the safety verdict.
func (s *AnalysisService) Moderate(ctx context.Context, data []byte) (domain.Verdict, error) {
	img, err := imaging.Decode(data)
	if err != nil {
		return domain.Verdict{}, err
	}
	return s.moderate(ctx, img, data), nil
}

func (s *AnalysisService) moderate(ctx context.Context, img *imaging.Image, data []byte) domain.Verdict {
	verdict := s.moderation.Check(ctx, img.Pixels)
	if !verdict.IsSafe {
		s.archive(ctx, img, data, verdict)
	}
	return verdict
}

// archive is best effort: a failed write is logged and never changes the verdict.
func (s *AnalysisService) archive(ctx context.Context, img *imaging.Image, data []byte, verdict domain.Verdict) {
	if s.audit == nil {
		return
	}
	sum := sha256.Sum256(data)
	audit := &domain.ModerationAudit{
		ID:          uuid.New().String(),
		ImageSHA256: hex.EncodeToString(sum[:]),
		Format:      img.Format,
		Width:       img.Width(),
		Height:      img.Height(),
		Threshold:   s.moderation.Threshold(),
		Verdict:     verdict,
		CheckedAt:   time.Now().UTC(),
	}
	if err := s.audit.Archive(ctx, audit); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to archive moderation verdict")
	}
}

// Describe decodes data and describes it with the configured provider.
// It fails with domain.ErrProviderUnavailable when the provider was not
// available at startup. Provider errors come back as a sentinel Description.
func (s *AnalysisService) Describe(ctx context.Context, data []byte) (domain.Description, error) {
	img, err := imaging.Decode(data)
	if err != nil {
		return domain.Description{}, err
	}
	if !s.avail.Description {
		return unavailableDescription(s.describer.Provider()),
			fmt.Errorf("%s description provider: %w", s.describer.Provider(), domain.ErrProviderUnavailable)
	}
	return s.describer.Describe(ctx, img.Pixels), nil
}

// IndexRequest is the input of Index.
type IndexRequest struct {
	AssetID     string
	Description string
	Workspace   string
	Name        string
	Metadata    domain.Metadata // extra keys; workspace and name win on conflict

	// Vector is a precomputed embedding of Description, as produced by
	// Analyze. When nil the description is embedded here.
	Vector []float32
}

// IndexResult identifies the stored record.
type IndexResult struct {
	AssetID  string `json:"asset_id"`
	RecordID string `json:"record_id"`
	Replaced bool   `json:"replaced"`
}

// Index embeds a known description and upserts it without moderation.
// Every call stores a record under a fresh id. When re-index replacement is
// on, older records of the same asset are removed after the upsert succeeds.
func (s *AnalysisService) Index(ctx context.Context, req *IndexRequest) (*IndexResult, error) {
	assetID := strings.TrimSpace(req.AssetID)
	description := strings.TrimSpace(req.Description)
	if assetID == "" {
		return nil, fmt.Errorf("%w: asset_id is required", domain.ErrInvalidRequest)
	}
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", domain.ErrInvalidRequest)
	}
	if err := s.requireSearchPath(); err != nil {
		return nil, err
	}

	ctx = logger.SetAssetID(ctx, assetID)
	start := time.Now()

	vec := req.Vector
	if vec == nil {
		var err error
		vec, err = s.embedder.Embed(ctx, description)
		if err != nil {
			return nil, fmt.Errorf("failed to embed description: %w", err)
		}
	}

	metadata := make(domain.Metadata, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata[domain.MetaWorkspace] = req.Workspace
	metadata[domain.MetaName] = req.Name

	rec := &domain.AssetRecord{
		RecordID:    uuid.New().String(),
		AssetID:     assetID,
		Vector:      vec,
		Description: description,
		Metadata:    metadata,
		IndexedAt:   time.Now().UTC(),
	}
	if err := s.index.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to upsert asset %s: %w", assetID, err)
	}

	result := &IndexResult{AssetID: assetID, RecordID: rec.RecordID}
	if s.replace {
		if err := s.index.DeleteAsset(ctx, assetID, rec.RecordID); err != nil {
			return nil, fmt.Errorf("failed to remove previous records of asset %s: %w", assetID, err)
		}
		result.Replaced = true
	}
	s.recordLedger(ctx, rec)

	logger.With(logger.Fields{
		logger.FieldStage:      "index",
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(ctx, "Indexed asset record %s", rec.RecordID)
	return result, nil
}

func (s *AnalysisService) recordLedger(ctx context.Context, rec *domain.AssetRecord) {
	if s.ledger == nil {
		return
	}
	entry := &domain.AssetEntry{
		RecordID:       rec.RecordID,
		AssetID:        rec.AssetID,
		Workspace:      rec.Metadata[domain.MetaWorkspace],
		Name:           rec.Metadata[domain.MetaName],
		Description:    rec.Description,
		Metadata:       rec.Metadata,
		Collection:     s.collection,
		EmbeddingModel: s.embedder.Model(),
		CreatedAt:      rec.IndexedAt,
	}
	if err := s.ledger.Record(ctx, entry); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to write asset ledger entry")
		return
	}
	if s.replace {
		if _, err := s.ledger.DeleteByAssetID(ctx, rec.AssetID, rec.RecordID); err != nil {
			s.log(ctx).WithError(err).Warn("Failed to prune asset ledger entries")
		}
	}
}

// SearchRequest is the input of Search.
type SearchRequest struct {
	Query     string
	Limit     int
	Workspace string
}

// Search embeds the whitespace-normalized query and returns up to Limit
// records, most similar first.
// Limit defaults to DefaultSearchLimit and is clamped to [1, MaxSearchLimit].
func (s *AnalysisService) Search(ctx context.Context, req *SearchRequest) ([]domain.SearchResult, error) {
	query := normalizeWhitespace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidRequest)
	}
	if err := s.requireSearchPath(); err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	limit = min(limit, MaxSearchLimit)

	start := time.Now()
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.index.Search(ctx, vec, limit, &domain.SearchFilter{Workspace: req.Workspace})
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	logger.With(logger.Fields{
		logger.FieldStage:      "search",
		logger.FieldCount:      len(results),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(ctx, "Search completed: limit=%d", limit)
	return results, nil
}

// DeleteAsset removes every record of assetID from the index and the ledger.
func (s *AnalysisService) DeleteAsset(ctx context.Context, assetID string) error {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return fmt.Errorf("%w: asset_id is required", domain.ErrInvalidRequest)
	}
	if !s.avail.Index || s.index == nil {
		return domain.ErrIndexUnavailable
	}
	if err := s.index.DeleteAsset(ctx, assetID); err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", assetID, err)
	}
	if s.ledger != nil {
		if _, err := s.ledger.DeleteByAssetID(ctx, assetID); err != nil {
			s.log(ctx).WithError(err).WithField(logger.FieldAssetID, assetID).Warn("Failed to delete asset ledger entries")
		}
	}
	return nil
}

// ListAssetRecords returns the ledger rows of assetID, newest first.
func (s *AnalysisService) ListAssetRecords(ctx context.Context, assetID string) ([]domain.AssetEntry, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return nil, fmt.Errorf("%w: asset_id is required", domain.ErrInvalidRequest)
	}
	if s.ledger == nil {
		return nil, fmt.Errorf("asset ledger disabled: %w", domain.ErrProviderUnavailable)
	}
	return s.ledger.ListByAssetID(ctx, assetID)
}

func (s *AnalysisService) requireSearchPath() error {
	if !s.avail.Embedding || s.embedder == nil {
		provider := "embedding"
		if s.embedder != nil {
			provider = s.embedder.Provider()
		}
		return errEmbedderUnavailable(provider)
	}
	if !s.avail.Index || s.index == nil {
		return domain.ErrIndexUnavailable
	}
	return nil
}

// Service readiness values reported by Health.
const (
	StatusReady       = "ready"
	StatusUnavailable = "unavailable"
)

// HealthReport is built from the cached availability flags only.
type HealthReport struct {
	ContentModeration string `json:"content_moderation"`
	ImageDescription  string `json:"image_description"`
	VectorSearch      string `json:"vector_search"`
}

// Health reports the cached flags. Moderation is always ready since it fails open.
func (s *AnalysisService) Health() HealthReport {
	return HealthReport{
		ContentModeration: StatusReady,
		ImageDescription:  readiness(s.avail.Description),
		VectorSearch:      readiness(s.avail.Embedding && s.avail.Index),
	}
}

func readiness(ok bool) string {
	if ok {
		return StatusReady
	}
	return StatusUnavailable
}
