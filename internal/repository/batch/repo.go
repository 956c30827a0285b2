package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kailas-cloud/cdcr/internal/db"
	"github.com/kailas-cloud/cdcr/internal/domain"
	dombatch "github.com/kailas-cloud/cdcr/internal/domain/batch"
)

// store is the consumer interface for batches (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Repo implements usecase/batch.Repository.
// Decoded batches are kept in a per-process hot cache so queries skip decoding and
// index rebuilds. Every write carries a revision from a process-wide counter and a
// cache entry is only ever replaced by one with a higher revision, so a slow Get
// cannot put back a snapshot that a later Save or Delete superseded. The hot cache
// must only be enabled when this process is the sole writer of the store.
type Repo struct {
	store  store
	prefix string
	ttl    time.Duration
	hot    *cache.Cache

	mu       sync.Mutex
	revision uint64
	now      func() time.Time
}

// hotEntry is a cached batch; a nil batch marks a deletion.
type hotEntry struct {
	batch    *dombatch.Batch
	revision uint64
}

// New creates a batch repository. ttl <= 0 keeps batches until deleted.
func New(s store, prefix string, ttl time.Duration) *Repo {
	return &Repo{store: s, prefix: prefix, ttl: ttl, now: time.Now}
}

// WithHotCache enables the decoded-batch cache. ttl <= 0 disables it.
func (r *Repo) WithHotCache(ttl time.Duration) *Repo {
	if ttl > 0 {
		if r.ttl > 0 {
			ttl = min(ttl, r.ttl)
		}
		r.hot = cache.New(ttl, 2*ttl)
	}
	return r
}

// Save stores the snapshot, replacing any previous one with the same ID.
func (r *Repo) Save(ctx context.Context, b *dombatch.Batch) error {
	rev := r.nextRevision()
	data, err := marshalBatch(b, rev)
	if err != nil {
		return err
	}
	if err := r.store.SetWithTTL(ctx, r.key(b.ID()), data, r.ttl); err != nil {
		return fmt.Errorf("set batch %s: %w", b.ID(), err)
	}
	r.remember(b.ID(), hotEntry{batch: b, revision: rev})
	return nil
}

// Get loads a batch and rebuilds its cluster index.
func (r *Repo) Get(ctx context.Context, id string) (*dombatch.Batch, error) {
	if r.hot != nil {
		if v, ok := r.hot.Get(id); ok {
			if e := v.(hotEntry); e.batch != nil {
				return e.batch, nil
			}
		}
	}

	data, err := r.store.Get(ctx, r.key(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.NewNotFound("batch", id)
		}
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}

	b, rev, err := unmarshalBatch(data)
	if err != nil {
		return nil, err
	}
	r.remember(id, hotEntry{batch: b, revision: rev})
	return b, nil
}

// Delete removes a batch.
func (r *Repo) Delete(ctx context.Context, id string) error {
	key := r.key(id)
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check batch %s: %w", id, err)
	}
	if !exists {
		r.remember(id, hotEntry{revision: r.nextRevision()})
		return domain.NewNotFound("batch", id)
	}
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del batch %s: %w", id, err)
	}
	r.remember(id, hotEntry{revision: r.nextRevision()})
	return nil
}

// nextRevision is strictly increasing within the process and, being seeded from the
// wall clock, above the revisions written before a restart.
func (r *Repo) nextRevision() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	rev := uint64(r.now().UnixNano())
	if rev <= r.revision {
		rev = r.revision + 1
	}
	r.revision = rev
	return rev
}

// remember caches e unless the cache already holds a newer revision of id.
func (r *Repo) remember(id string, e hotEntry) {
	if r.hot == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.hot.Get(id); ok && v.(hotEntry).revision >= e.revision {
		return
	}
	r.hot.SetDefault(id, e)
}

// Key pattern: {prefix}batch:{id}
func (r *Repo) key(id string) string {
	return r.prefix + "batch:" + id
}
