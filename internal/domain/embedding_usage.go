package domain

import "context"

type usageKey struct{}

// EmbeddingUsage counts provider tokens spent embedding the mentions of one ingest request.
// The create and upload handlers attach it to the request context, vectorize.Embedder adds
// each chunk's tokens, and the handler reports the total in X-Embedding-Tokens.
// Chunks are embedded sequentially, so no locking is needed.
type EmbeddingUsage struct {
	TotalTokens int
	Used        bool // a provider was called; local TF-IDF vectorizing never sets it
}

// NewContextWithUsage attaches a fresh counter to ctx.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext returns the counter attached to ctx, or nil.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(usageKey{}).(*EmbeddingUsage)
	return u
}

// AddTokens is a no-op on a nil counter.
func (u *EmbeddingUsage) AddTokens(n int) {
	if u == nil {
		return
	}
	u.TotalTokens += n
	u.Used = true
}
