// Package app builds the pipeline from configuration. Both binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/assetlens/internal/config"
	"github.com/timmy/assetlens/internal/logger"
	"github.com/timmy/assetlens/internal/repository"
	"github.com/timmy/assetlens/internal/service"
	"github.com/timmy/assetlens/internal/storage"
)

// App holds the wired services and the resources they own.
type App struct {
	Config   *config.Config
	Analysis *service.AnalysisService
	Ingest   *service.IngestService

	// Optional components; nil when disabled in config.
	Assets  *repository.AssetRepository
	Jobs    *repository.JobRepository
	Archive *storage.VerdictArchive

	closers []func() error
}

// Build wires every component described by cfg. Provider availability is
// probed here, once, and cached on the analysis service.
// Parameters:
//   - ctx: bounds the startup probes.
//   - cfg: resolved configuration.
//   - log: base logger.
//
// Returns:
//   - *App: wired application; call Close when done.
//   - error: non-nil when a configured component cannot be constructed.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	moderation := service.NewModerationService(
		service.NewHTTPClassifier(&service.HTTPClassifierConfig{
			Endpoint:     cfg.Moderation.Classifier.Endpoint,
			Timeout:      cfg.Moderation.Classifier.Timeout,
			MaxDimension: cfg.Moderation.Classifier.MaxDimension,
		}),
		&service.ModerationConfig{
			Threshold:    cfg.Moderation.Threshold,
			UnsafeLabels: cfg.Moderation.UnsafeLabels,
			Logger:       log,
		},
	)

	cache := a.buildCache(ctx, log)

	index, probeIndex, err := a.buildIndex(cfg, log)
	if err != nil {
		return nil, err
	}

	var (
		describer service.Describer
		embedder  service.Embedder
		embedErr  error
	)
	avail := service.ProbeAvailability(ctx, service.StartupProbes{
		Description: func(ctx context.Context) bool {
			describer = service.NewDescriber(ctx, &cfg.Description, log)
			return describer.Available()
		},
		Embedding: func(ctx context.Context) bool {
			embedder, embedErr = service.NewEmbedder(ctx, &cfg.Embedding, cache, log)
			return embedErr == nil && embedder.Available()
		},
		Index: probeIndex,
	})
	if embedErr != nil {
		return nil, embedErr
	}

	analysisCfg := &service.AnalysisConfig{
		Moderation:       moderation,
		Describer:        describer,
		Embedder:         embedder,
		Index:            index,
		Availability:     avail,
		ReplaceOnReindex: cfg.Vector.ReplaceOnReindex,
		Collection:       cfg.Vector.Collection,
		Logger:           log,
	}

	if cfg.Database.Enabled {
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
		a.Assets = repository.NewAssetRepository(db)
		a.Jobs = repository.NewJobRepository(db)
		analysisCfg.Ledger = a.Assets
	}

	if cfg.Storage.Enabled {
		store, err := storage.NewStorage(ctx, &cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			log.WithError(err).Warn("Failed to ensure audit bucket, archiving may fail")
		}
		a.Archive = storage.NewVerdictArchive(store, cfg.Storage.Prefix)
		analysisCfg.Audit = a.Archive
	}

	a.Analysis = service.NewAnalysisService(analysisCfg)

	ingestCfg := &service.IngestConfig{
		Workers:   cfg.Ingest.Workers,
		BatchSize: cfg.Ingest.BatchSize,
	}
	if a.Jobs != nil {
		a.Ingest = service.NewIngestService(a.Analysis, a.Assets, a.Jobs, log, ingestCfg)
	} else {
		a.Ingest = service.NewIngestService(a.Analysis, nil, nil, log, ingestCfg)
	}

	log.WithFields(logger.Fields{
		"description":   avail.Description,
		"embedding":     avail.Embedding,
		"vector_index":  avail.Index,
		"ledger":        cfg.Database.Enabled,
		"audit_archive": cfg.Storage.Enabled,
	}).Info("Pipeline initialized")

	ok = true
	return a, nil
}

// Close releases every owned resource.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) buildCache(ctx context.Context, log *logger.Logger) service.EmbeddingCache {
	if !a.Config.Embedding.Cache.Enabled {
		return nil
	}
	client := repository.NewRedisClient(&a.Config.Redis)
	cache, err := repository.NewRedisEmbeddingCache(ctx, client)
	if err != nil {
		log.WithError(err).Warn("Embedding cache disabled")
		_ = client.Close()
		return nil
	}
	a.closers = append(a.closers, cache.Close)
	return cache
}

// buildIndex selects the vector backend and returns it with its startup probe.
// A failed probe leaves the index unavailable instead of aborting startup.
func (a *App) buildIndex(cfg *config.Config, log *logger.Logger) (service.VectorIndex, func(context.Context) bool, error) {
	if cfg.Vector.Backend == config.VectorBackendMemory {
		index := repository.NewMemoryIndex(cfg.Embedding.Dimensions)
		return index, func(context.Context) bool { return index.Ready() }, nil
	}

	host, port, useTLS, err := cfg.Qdrant.Endpoint()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Qdrant.UsesRESTPort() {
		log.WithFields(logger.Fields{
			"host": host,
			"port": port,
		}).Warn("Qdrant endpoint names the REST port 6333, dialing gRPC port 6334 instead")
	}
	index, err := repository.NewQdrantIndex(&repository.QdrantConnectionConfig{
		Host:            host,
		Port:            port,
		Collection:      cfg.Vector.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          useTLS,
		VectorDimension: cfg.Embedding.Dimensions,
		Timeout:         cfg.Qdrant.Timeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize qdrant: %w", err)
	}
	a.closers = append(a.closers, index.Close)

	probe := func(ctx context.Context) bool {
		if err := index.EnsureCollection(ctx); err != nil {
			log.WithError(err).WithField("collection", index.Collection()).
				Warn("Vector index unavailable, indexing and search disabled")
			return false
		}
		return true
	}
	return index, probe, nil
}
