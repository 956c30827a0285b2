package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cdcr/internal/config"
	"github.com/kailas-cloud/cdcr/internal/db"
	"github.com/kailas-cloud/cdcr/internal/db/memory"
	dbRedis "github.com/kailas-cloud/cdcr/internal/db/redis"
	"github.com/kailas-cloud/cdcr/internal/detect/heuristic"
	"github.com/kailas-cloud/cdcr/internal/domain/similarity"
	logpkg "github.com/kailas-cloud/cdcr/internal/logger"
	"github.com/kailas-cloud/cdcr/internal/metrics"
	batchrepo "github.com/kailas-cloud/cdcr/internal/repository/batch"
	"github.com/kailas-cloud/cdcr/internal/repository/embcache"
	filerepo "github.com/kailas-cloud/cdcr/internal/repository/file"
	chiTransport "github.com/kailas-cloud/cdcr/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/cdcr/internal/transport/openai"
	batchuc "github.com/kailas-cloud/cdcr/internal/usecase/batch"
	fileuc "github.com/kailas-cloud/cdcr/internal/usecase/file"
	healthuc "github.com/kailas-cloud/cdcr/internal/usecase/health"
	queryuc "github.com/kailas-cloud/cdcr/internal/usecase/query"
	"github.com/kailas-cloud/cdcr/internal/vectorize"
	"github.com/kailas-cloud/cdcr/internal/vectorize/tfidf"
	"github.com/kailas-cloud/cdcr/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting cdcr API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("detector", cfg.Detection.Provider),
		zap.String("vectorizer", cfg.Embedding.Provider),
	)

	store, err := newStore(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	metrics.RegisterPipelineMetrics()
	metrics.RegisterEmbeddingMetrics()

	metric, err := similarity.ParseMetric(cfg.Clustering.Metric)
	if err != nil {
		logger.Fatal("Invalid clustering metric", zap.Error(err))
	}

	health := healthuc.New(store)

	detector, detectorHealth := buildDetector(cfg.Detection, logger)
	if detectorHealth != nil {
		health = health.WithProvider("detection", detectorHealth)
	}
	vectorizer, vectorizerHealth := buildVectorizer(cfg.Embedding, cfg.Storage.KeyPrefix, store, logger)
	if vectorizerHealth != nil {
		health = health.WithProvider("embedding", vectorizerHealth)
	}

	batchTTL := time.Duration(cfg.Storage.BatchTTLHours) * time.Hour
	batches := batchrepo.New(store, cfg.Storage.KeyPrefix, batchTTL)
	switch {
	case cfg.HotCacheEnabled():
		batches = batches.WithHotCache(time.Duration(cfg.Storage.HotCacheTTLSec) * time.Second)
	case cfg.Storage.HotCacheTTLSec > 0:
		logger.Warn("Hot batch cache disabled: database is shared and storage.single_writer is not set",
			zap.String("db_driver", cfg.Database.Driver),
		)
	}
	files := filerepo.New(store, cfg.Storage.KeyPrefix, batchTTL)

	batchSvc := batchuc.New(batches, files, detector, vectorizer).
		WithMetric(metric).
		WithCutoff(cfg.Clustering.Cutoff).
		WithMaxDocuments(cfg.Clustering.MaxDocuments).
		WithMaxMentions(cfg.Clustering.MaxMentions).
		WithDetectionWorkers(cfg.Detection.Workers).
		WithDistanceWorkers(cfg.Clustering.DistanceWorkers)
	querySvc := queryuc.New(batches)
	fileSvc := fileuc.New(batches, files)

	server := chiTransport.NewServer(batchSvc, querySvc, fileSvc, health, logger).
		WithMaxUploadBytes(cfg.HTTP.MaxUploadBytes)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      chiTransport.NewRouter(server, logger, cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func newStore(cfg config.DatabaseConfig) (db.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.NewStore(), nil
	case "redis", "valkey":
		return dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// buildDetector returns the mention detector and, for remote providers, its health checker.
// The checker is a nil interface (not a typed nil pointer) when there is nothing to check.
func buildDetector(cfg config.DetectionConfig, logger *zap.Logger) (batchuc.Detector, healthuc.ProviderChecker) {
	if cfg.Provider != "openai" {
		return heuristic.New(cfg.MaxMentionsPerDocument), nil
	}
	d := openaiTransport.NewDetector(&openaiTransport.Config{
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
		Provider: "openai",
		Logger:   logger,
	}, cfg.MaxMentionsPerDocument)
	return d, d
}

// buildVectorizer assembles the embedding chain: OpenAI -> Cached -> chunked Vectorizer.
func buildVectorizer(
	cfg config.EmbeddingConfig,
	keyPrefix string,
	store db.Store,
	logger *zap.Logger,
) (batchuc.Vectorizer, healthuc.ProviderChecker) {
	if cfg.Provider != "openai" {
		return tfidf.New(), nil
	}

	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})
	if cfg.CacheTTLSec <= 0 {
		return vectorize.NewEmbedder(base, cfg.ChunkSize, logger), base
	}

	cached := embcache.New(base, store, embcache.Options{
		Prefix: keyPrefix,
		Model:  cfg.Model,
		TTL:    time.Duration(cfg.CacheTTLSec) * time.Second,
	}, metrics.EmbeddingCacheTotal, logger)
	return vectorize.NewEmbedder(cached, cfg.ChunkSize, logger), cached
}
