package file

import (
	"context"

	dombatch "github.com/kailas-cloud/cdcr/internal/domain/batch"
	"github.com/kailas-cloud/cdcr/internal/domain/document"
)

// BatchReader loads batch snapshots.
type BatchReader interface {
	Get(ctx context.Context, id string) (*dombatch.Batch, error)
}

// Store reads and writes uploaded originals.
type Store interface {
	Save(ctx context.Context, batchID string, f document.File) error
	Open(ctx context.Context, batchID, name string) (document.File, error)
}
