package query

import (
	"context"

	dombatch "github.com/kailas-cloud/cdcr/internal/domain/batch"
)

// BatchReader loads batch snapshots.
type BatchReader interface {
	Get(ctx context.Context, id string) (*dombatch.Batch, error)
}
