package batch

import (
	"context"

	dombatch "github.com/kailas-cloud/cdcr/internal/domain/batch"
	"github.com/kailas-cloud/cdcr/internal/domain/document"
	"github.com/kailas-cloud/cdcr/internal/domain/mention"
)

// Detector finds entity mentions in a document, in position order.
type Detector interface {
	Name() string
	Detect(ctx context.Context, doc document.Document) ([]mention.Input, error)
}

// Vectorizer turns every mention text of a batch into a vector, in input order.
type Vectorizer interface {
	Vectorize(ctx context.Context, texts []string) ([][]float32, error)
}

// Repository persists batch snapshots.
type Repository interface {
	Save(ctx context.Context, b *dombatch.Batch) error
	Get(ctx context.Context, id string) (*dombatch.Batch, error)
	Delete(ctx context.Context, id string) error
}

// FileStore keeps the uploaded originals of a batch.
type FileStore interface {
	Save(ctx context.Context, batchID string, f document.File) error
	DeleteBatch(ctx context.Context, batchID string) error
}
