// Package batch defines the upload batch aggregate: documents, mentions and the
// clustering computed over them.
package batch

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/cdcr/internal/domain"
	"github.com/kailas-cloud/cdcr/internal/domain/cluster"
	"github.com/kailas-cloud/cdcr/internal/domain/document"
	"github.com/kailas-cloud/cdcr/internal/domain/mention"
	"github.com/kailas-cloud/cdcr/internal/domain/similarity"
)

// State is the clustering state of a batch.
type State string

const (
	// StatePending means mentions are stored but no clustering has been computed.
	StatePending State = "pending"
	// StateClustered means a clustering over at least one mention exists.
	StateClustered State = "clustered"
	// StateEmpty means clustering ran over zero mentions and trivially produced no clusters.
	StateEmpty State = "empty"
)

// Batch is an immutable snapshot. Reclustering produces a new snapshot.
type Batch struct {
	id          string
	createdAt   time.Time
	documents   []document.Document
	store       *mention.Store
	state       State
	cutoff      float64
	metric      similarity.Metric
	index       *cluster.Index
	clusteredAt time.Time
}

// New creates a pending batch. The mention store must list the same documents in the same order.
func New(id string, createdAt time.Time, docs []document.Document, store *mention.Store) (*Batch, error) {
	if id == "" {
		return nil, fmt.Errorf("batch ID is required")
	}
	names := store.Documents()
	if len(names) != len(docs) {
		return nil, fmt.Errorf("mention store has %d documents, batch has %d: %w",
			len(names), len(docs), domain.ErrValidation)
	}
	for i := range docs {
		if docs[i].Filename() != names[i] {
			return nil, fmt.Errorf("document %d is %q in batch but %q in mention store: %w",
				i, docs[i].Filename(), names[i], domain.ErrValidation)
		}
	}

	return &Batch{
		id:        id,
		createdAt: createdAt,
		documents: docs,
		store:     store,
		state:     StatePending,
	}, nil
}

// WithClustering returns a clustered snapshot of b. The previous snapshot is left untouched.
func (b *Batch) WithClustering(cfg cluster.Config, metric similarity.Metric, idx *cluster.Index, at time.Time) *Batch {
	next := *b
	next.cutoff = cfg.Cutoff
	next.metric = metric
	next.index = idx
	next.clusteredAt = at
	next.state = StateClustered
	if idx.Len() == 0 {
		next.state = StateEmpty
	}
	return &next
}

// ID returns the batch identifier.
func (b *Batch) ID() string { return b.id }

// CreatedAt returns the ingestion time.
func (b *Batch) CreatedAt() time.Time { return b.createdAt }

// ClusteredAt returns the time of the latest clustering, zero when pending.
func (b *Batch) ClusteredAt() time.Time { return b.clusteredAt }

// State returns the clustering state.
func (b *Batch) State() State { return b.state }

// Cutoff returns the cutoff of the latest clustering.
func (b *Batch) Cutoff() float64 { return b.cutoff }

// Metric returns the distance metric of the latest clustering.
func (b *Batch) Metric() similarity.Metric { return b.metric }

// Documents returns the documents in ingestion order.
func (b *Batch) Documents() []document.Document { return b.documents }

// Mentions returns the mention store.
func (b *Batch) Mentions() *mention.Store { return b.store }

// Document returns the document with the given filename.
func (b *Batch) Document(name string) (document.Document, bool) {
	for _, d := range b.documents {
		if d.Filename() == name {
			return d, true
		}
	}
	return document.Document{}, false
}

// Filenames returns document filenames in ingestion order.
func (b *Batch) Filenames() []string {
	out := make([]string, len(b.documents))
	for i := range b.documents {
		out[i] = b.documents[i].Filename()
	}
	return out
}

// Metadata maps filenames to document metadata.
func (b *Batch) Metadata() map[string]document.Metadata {
	out := make(map[string]document.Metadata, len(b.documents))
	for i := range b.documents {
		out[b.documents[i].Filename()] = b.documents[i].Metadata()
	}
	return out
}

// Index returns the cluster index, or an error naming the batch when no clustering exists.
func (b *Batch) Index() (*cluster.Index, error) {
	if b.state == StatePending || b.index == nil {
		return nil, &domain.ValidationError{
			Field:  "batch",
			Reason: fmt.Sprintf("batch %q has no clustering yet", b.id),
			Err:    domain.ErrNotClustered,
		}
	}
	return b.index, nil
}
