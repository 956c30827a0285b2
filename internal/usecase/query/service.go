package query

import (
	"context"
	"fmt"

	dombatch "github.com/kailas-cloud/cdcr/internal/domain/batch"
	"github.com/kailas-cloud/cdcr/internal/domain/filter"
	"github.com/kailas-cloud/cdcr/internal/metrics"
)

// FilterResult is a filter answer plus whether the batch had nothing to cluster.
type FilterResult struct {
	filter.Result
	// Degenerate is set when the batch was clustered over zero mentions.
	Degenerate bool
}

// ClustersView is the clustering of a batch as seen by clients.
type ClustersView struct {
	// Clusters maps the cluster label to its member strings.
	Clusters map[string][]string
	// FileMentions maps every document to its mention strings in position order.
	FileMentions map[string][]string
	Count        int
	Degenerate   bool
}

// Service answers read-only queries against the latest clustering of a batch.
type Service struct {
	batches BatchReader
}

// New creates a query service.
func New(batches BatchReader) *Service {
	return &Service{batches: batches}
}

// Filter returns the clusters touched by documents whose field matches value.
// Field names are validated before the batch is loaded.
func (s *Service) Filter(ctx context.Context, batchID, field, value string) (FilterResult, error) {
	q, err := filter.NewQuery(field, value)
	if err != nil {
		metrics.FilterQueriesTotal.WithLabelValues("invalid", "error").Inc()
		return FilterResult{}, err
	}
	fieldLabel := string(q.Field())

	b, err := s.batches.Get(ctx, batchID)
	if err != nil {
		metrics.FilterQueriesTotal.WithLabelValues(fieldLabel, "error").Inc()
		return FilterResult{}, fmt.Errorf("get batch: %w", err)
	}

	if b.State() == dombatch.StateEmpty {
		metrics.FilterQueriesTotal.WithLabelValues(fieldLabel, "degenerate").Inc()
		return FilterResult{
			Result:     filter.Result{Mentions: []string{}, Files: emptyFiles(q, b)},
			Degenerate: true,
		}, nil
	}

	idx, err := b.Index()
	if err != nil {
		metrics.FilterQueriesTotal.WithLabelValues(fieldLabel, "error").Inc()
		return FilterResult{}, err
	}

	res := filter.Run(q, idx, b.Metadata())
	status := "ok"
	if res.Count == 0 {
		status = "no_match"
	}
	metrics.FilterQueriesTotal.WithLabelValues(fieldLabel, status).Inc()
	return FilterResult{Result: res}, nil
}

// Clusters returns the full clustering view of a batch.
func (s *Service) Clusters(ctx context.Context, batchID string) (ClustersView, error) {
	b, err := s.batches.Get(ctx, batchID)
	if err != nil {
		return ClustersView{}, fmt.Errorf("get batch: %w", err)
	}

	idx, err := b.Index()
	if err != nil {
		return ClustersView{}, err
	}

	return ClustersView{
		Clusters:     idx.Clusters(),
		FileMentions: b.Mentions().FileMentions(),
		Count:        idx.Len(),
		Degenerate:   b.State() == dombatch.StateEmpty,
	}, nil
}

// emptyFiles lists the matching documents of a batch without mentions.
func emptyFiles(q filter.Query, b *dombatch.Batch) map[string][]string {
	files := make(map[string][]string)
	for name, meta := range b.Metadata() {
		if q.Matches(meta) {
			files[name] = []string{}
		}
	}
	return files
}

