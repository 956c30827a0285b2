package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/cdcr/internal/domain"
	dombatch "github.com/kailas-cloud/cdcr/internal/domain/batch"
	"github.com/kailas-cloud/cdcr/internal/domain/cluster"
	"github.com/kailas-cloud/cdcr/internal/domain/document"
	"github.com/kailas-cloud/cdcr/internal/domain/mention"
	"github.com/kailas-cloud/cdcr/internal/domain/similarity"
	"github.com/kailas-cloud/cdcr/internal/logger"
	"github.com/kailas-cloud/cdcr/internal/metrics"
)

// Defaults for the batch limits.
const (
	DefaultMaxDocuments     = 1000
	DefaultMaxMentions      = 5000
	DefaultDetectionWorkers = 4
)

// DocumentInput is one document of an ingest request.
type DocumentInput struct {
	Filename string
	Segments []string
	Metadata document.Metadata
	// Mentions supplied by the caller. nil runs the detector; an empty slice means
	// the document has no mentions.
	Mentions []mention.Input
}

// IngestRequest describes a new batch.
type IngestRequest struct {
	Documents []DocumentInput
	// Files are the uploaded originals, stored alongside the batch.
	Files []document.File
	// Cluster computes the clustering right away.
	Cluster bool
	// Cutoff overrides the configured cutoff when non-nil.
	Cutoff *float64
}

// Service runs the ingestion and clustering pipeline.
type Service struct {
	repo       Repository
	files      FileStore
	detector   Detector
	vectorizer Vectorizer

	metric          similarity.Metric
	cutoff          float64
	maxDocuments    int
	maxMentions     int
	detectWorkers   int
	distanceWorkers int

	now   func() time.Time
	newID func() string
}

// New creates a batch service with cosine distance and the reference cutoff.
func New(repo Repository, files FileStore, detector Detector, vectorizer Vectorizer) *Service {
	return &Service{
		repo:          repo,
		files:         files,
		detector:      detector,
		vectorizer:    vectorizer,
		metric:        similarity.Cosine,
		cutoff:        cluster.DefaultCutoff,
		maxDocuments:  DefaultMaxDocuments,
		maxMentions:   DefaultMaxMentions,
		detectWorkers: DefaultDetectionWorkers,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// WithMetric configures the distance metric.
func (s *Service) WithMetric(m similarity.Metric) *Service {
	s.metric = m
	return s
}

// WithCutoff configures the default merge cutoff.
func (s *Service) WithCutoff(cutoff float64) *Service {
	s.cutoff = cutoff
	return s
}

// WithMaxDocuments configures the maximum number of documents per batch.
func (s *Service) WithMaxDocuments(n int) *Service {
	if n > 0 {
		s.maxDocuments = n
	}
	return s
}

// WithMaxMentions configures the maximum number of mentions per batch.
func (s *Service) WithMaxMentions(n int) *Service {
	if n > 0 {
		s.maxMentions = n
	}
	return s
}

// WithDetectionWorkers configures how many documents are detected concurrently.
func (s *Service) WithDetectionWorkers(n int) *Service {
	if n > 0 {
		s.detectWorkers = n
	}
	return s
}

// WithDistanceWorkers configures distance matrix parallelism (<= 0 means GOMAXPROCS).
func (s *Service) WithDistanceWorkers(n int) *Service {
	s.distanceWorkers = n
	return s
}

// Ingest validates the documents, detects and vectorizes their mentions and stores a new batch.
// Nothing is stored when any step fails.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*dombatch.Batch, error) {
	cfg, err := s.clusterConfig(req.Cutoff)
	if err != nil {
		return nil, err
	}

	docs, err := s.buildDocuments(req.Documents)
	if err != nil {
		return nil, err
	}
	if err := validateFiles(req.Files, docs); err != nil {
		return nil, err
	}

	inputs, err := s.collectMentions(ctx, req.Documents, docs)
	if err != nil {
		return nil, err
	}

	if err := s.vectorize(ctx, inputs); err != nil {
		return nil, err
	}

	store, err := mention.NewStore(inputs)
	if err != nil {
		return nil, err
	}

	b, err := dombatch.New(s.newID(), s.now().UTC(), docs, store)
	if err != nil {
		return nil, fmt.Errorf("new batch: %w", err)
	}
	ctx = logger.WithFields(ctx, zap.String("batch_id", b.ID()))

	if req.Cluster {
		b, err = s.cluster(ctx, b, cfg)
		if err != nil {
			return nil, err
		}
	}

	for _, f := range req.Files {
		if err := s.files.Save(ctx, b.ID(), f); err != nil {
			s.discardFiles(ctx, b.ID())
			return nil, fmt.Errorf("save file %s: %w", f.Name, err)
		}
	}
	if err := s.repo.Save(ctx, b); err != nil {
		if len(req.Files) > 0 {
			s.discardFiles(ctx, b.ID())
		}
		return nil, fmt.Errorf("save batch: %w", err)
	}

	logger.FromContext(ctx).Info("Batch ingested",
		zap.Int("documents", len(docs)),
		zap.Int("mentions", store.Len()),
		zap.String("state", string(b.State())),
	)
	return b, nil
}

// Cluster recomputes the clustering of a stored batch, replacing its partition and index.
func (s *Service) Cluster(ctx context.Context, id string, cutoff *float64) (*dombatch.Batch, error) {
	cfg, err := s.clusterConfig(cutoff)
	if err != nil {
		return nil, err
	}

	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}

	ctx = logger.WithFields(ctx, zap.String("batch_id", id))
	next, err := s.cluster(ctx, b, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("save batch: %w", err)
	}
	return next, nil
}

// Get returns a stored batch.
func (s *Service) Get(ctx context.Context, id string) (*dombatch.Batch, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

// Delete removes a batch and its uploaded files.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	if err := s.files.DeleteBatch(ctx, id); err != nil {
		return fmt.Errorf("delete batch files: %w", err)
	}
	return nil
}

func (s *Service) clusterConfig(cutoff *float64) (cluster.Config, error) {
	cfg := cluster.Config{Cutoff: s.cutoff}
	if cutoff != nil {
		cfg.Cutoff = *cutoff
	}
	if err := cfg.Validate(); err != nil {
		return cluster.Config{}, err
	}
	return cfg, nil
}

func (s *Service) buildDocuments(in []DocumentInput) ([]document.Document, error) {
	if len(in) == 0 {
		return nil, domain.NewValidation("documents", "at least one document is required")
	}
	if len(in) > s.maxDocuments {
		return nil, domain.NewValidation("documents", "batch has %d documents, limit is %d", len(in), s.maxDocuments)
	}

	docs := make([]document.Document, len(in))
	seen := make(map[string]bool, len(in))
	for i, d := range in {
		doc, err := document.New(d.Filename, d.Segments, d.Metadata)
		if err != nil {
			var ve *domain.ValidationError
			if errors.As(err, &ve) {
				return nil, &domain.ValidationError{
					Field: fmt.Sprintf("documents[%d].%s", i, ve.Field), Reason: ve.Reason, Err: ve.Err,
				}
			}
			return nil, fmt.Errorf("documents[%d]: %w", i, err)
		}
		if seen[d.Filename] {
			return nil, domain.NewValidation(fmt.Sprintf("documents[%d].filename", i), "duplicate filename %q", d.Filename)
		}
		seen[d.Filename] = true
		docs[i] = doc
	}
	return docs, nil
}

func validateFiles(files []document.File, docs []document.Document) error {
	known := make(map[string]bool, len(docs))
	for i := range docs {
		known[docs[i].Filename()] = true
	}
	for i, f := range files {
		if !known[f.Name] {
			return domain.NewValidation(fmt.Sprintf("files[%d]", i), "%q is not a document of the batch", f.Name)
		}
		if len(f.Data) > document.MaxFileSize {
			return domain.NewValidation(fmt.Sprintf("files[%d]", i), "too large (max %d bytes)", document.MaxFileSize)
		}
	}
	return nil
}

// collectMentions gathers supplied mentions and runs detection for the remaining documents.
// Results are kept by document index so the canonical order never depends on completion order.
func (s *Service) collectMentions(
	ctx context.Context, in []DocumentInput, docs []document.Document,
) ([]mention.DocumentMentions, error) {
	out := make([]mention.DocumentMentions, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.detectWorkers)
	for i := range docs {
		out[i].Document = docs[i].Filename()
		if in[i].Mentions != nil {
			out[i].Mentions = in[i].Mentions
			continue
		}
		g.Go(func() error {
			found, err := s.detect(gctx, docs[i])
			if err != nil {
				return err
			}
			out[i].Mentions = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for i := range out {
		total += len(out[i].Mentions)
	}
	if total > s.maxMentions {
		return nil, domain.NewValidation("mentions", "batch has %d mentions, limit is %d", total, s.maxMentions)
	}
	return out, nil
}

func (s *Service) detect(ctx context.Context, doc document.Document) ([]mention.Input, error) {
	start := time.Now()
	found, err := s.detector.Detect(ctx, doc)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DetectionDuration.WithLabelValues(s.detector.Name(), status).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("detect mentions in %s: %w", doc.Filename(), err)
	}
	return found, nil
}

// vectorize fills in mention vectors. Vectors are either supplied for every mention or for none.
func (s *Service) vectorize(ctx context.Context, docs []mention.DocumentMentions) error {
	var total, supplied int
	for _, d := range docs {
		for _, m := range d.Mentions {
			total++
			if len(m.Vector) > 0 {
				supplied++
			}
		}
	}
	if total == 0 || supplied == total {
		return nil
	}
	if supplied > 0 {
		return domain.NewValidation("mentions", "vectors supplied for %d of %d mentions, need all or none", supplied, total)
	}

	texts := make([]string, 0, total)
	for _, d := range docs {
		for _, m := range d.Mentions {
			texts = append(texts, m.Text)
		}
	}

	vecs, err := s.vectorizer.Vectorize(ctx, texts)
	if err != nil {
		return fmt.Errorf("vectorize mentions: %w", err)
	}
	if len(vecs) != total {
		return fmt.Errorf("vectorizer returned %d vectors for %d mentions", len(vecs), total)
	}

	k := 0
	for di := range docs {
		withVec := make([]mention.Input, len(docs[di].Mentions))
		for mi, m := range docs[di].Mentions {
			m.Vector = vecs[k]
			withVec[mi] = m
			k++
		}
		docs[di].Mentions = withVec
	}
	return nil
}

func (s *Service) cluster(ctx context.Context, b *dombatch.Batch, cfg cluster.Config) (*dombatch.Batch, error) {
	start := time.Now()
	store := b.Mentions()

	m, err := similarity.Compute(ctx, store.Vectors(), s.metric, s.distanceWorkers)
	if err != nil {
		return nil, fmt.Errorf("distance matrix: %w", err)
	}
	a, err := cluster.Agglomerate(m, cfg)
	if err != nil {
		return nil, fmt.Errorf("agglomerate: %w", err)
	}
	idx, err := cluster.BuildIndex(store, a)
	if err != nil {
		return nil, fmt.Errorf("build cluster index: %w", err)
	}

	elapsed := time.Since(start)
	metrics.ClusteringDuration.WithLabelValues(string(s.metric)).Observe(elapsed.Seconds())
	metrics.BatchMentions.Observe(float64(store.Len()))
	metrics.BatchClusters.Observe(float64(idx.Len()))

	logger.FromContext(ctx).Info("Batch clustered",
		zap.Int("mentions", store.Len()),
		zap.Int("clusters", idx.Len()),
		zap.Float64("cutoff", cfg.Cutoff),
		zap.Duration("duration", elapsed),
	)
	return b.WithClustering(cfg, s.metric, idx, s.now().UTC()), nil
}

func (s *Service) discardFiles(ctx context.Context, id string) {
	if err := s.files.DeleteBatch(ctx, id); err != nil {
		logger.FromContext(ctx).Warn("Failed to discard batch files",
			zap.Error(err),
		)
	}
}
