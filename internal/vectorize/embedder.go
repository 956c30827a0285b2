// Package vectorize turns mention strings into vectors through an embedding provider.
package vectorize

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cdcr/internal/domain"
)

// Embedder adapts a domain.Embedder to the batch vectorizer contract.
// Providers with a native batch endpoint are called once per chunk.
type Embedder struct {
	embedder  domain.Embedder
	chunkSize int
	logger    *zap.Logger
}

// DefaultChunkSize is the number of texts sent per batch request.
const DefaultChunkSize = 256

// NewEmbedder wraps e. chunkSize <= 0 selects DefaultChunkSize.
func NewEmbedder(e domain.Embedder, chunkSize int, logger *zap.Logger) *Embedder {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Embedder{embedder: e, chunkSize: chunkSize, logger: logger}
}

// Vectorize embeds texts in order.
func (v *Embedder) Vectorize(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	usage := domain.UsageFromContext(ctx)
	start := time.Now()
	var totalTokens int

	for offset := 0; offset < len(texts); offset += v.chunkSize {
		end := min(offset+v.chunkSize, len(texts))
		chunk := texts[offset:end]

		var (
			res domain.BatchEmbeddingResult
			err error
		)
		if be, ok := v.embedder.(domain.BatchEmbedder); ok {
			res, err = be.BatchEmbed(ctx, chunk)
		} else {
			res, err = domain.BatchFallback(ctx, v.embedder, chunk)
		}
		if err != nil {
			v.logger.Error("Mention embedding failed",
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			return nil, fmt.Errorf("embed mentions [%d:%d]: %w", offset, end, err)
		}
		if len(res.Embeddings) != len(chunk) {
			return nil, fmt.Errorf("embed mentions [%d:%d]: got %d vectors: %w",
				offset, end, len(res.Embeddings), domain.ErrEmbeddingProviderError)
		}

		usage.AddTokens(res.TotalTokens)
		totalTokens += res.TotalTokens
		out = append(out, res.Embeddings...)
	}

	v.logger.Debug("Mention embedding completed",
		zap.Int("mentions", len(texts)),
		zap.Int("total_tokens", totalTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}
