package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/cdcr/internal/domain"
	"github.com/kailas-cloud/cdcr/internal/domain/document"
)

// store is the consumer interface for uploaded originals (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo implements usecase/file.Repository. Each original is one hash.
type Repo struct {
	store  store
	prefix string
	ttl    time.Duration
}

// New creates a file repository. ttl should match the batch TTL so originals expire with their batch.
func New(s store, prefix string, ttl time.Duration) *Repo {
	return &Repo{store: s, prefix: prefix, ttl: ttl}
}

// Save stores an original under its batch.
func (r *Repo) Save(ctx context.Context, batchID string, f document.File) error {
	key := r.key(batchID, f.Name)
	if err := r.store.HSet(ctx, key, map[string]string{
		"name":         f.Name,
		"content_type": f.ContentType,
		"size":         strconv.Itoa(len(f.Data)),
		"data":         string(f.Data),
	}); err != nil {
		return fmt.Errorf("hset file %s/%s: %w", batchID, f.Name, err)
	}
	if r.ttl > 0 {
		if err := r.store.Expire(ctx, key, r.ttl); err != nil {
			return fmt.Errorf("expire file %s/%s: %w", batchID, f.Name, err)
		}
	}
	return nil
}

// Open returns a stored original.
func (r *Repo) Open(ctx context.Context, batchID, name string) (document.File, error) {
	m, err := r.store.HGetAll(ctx, r.key(batchID, name))
	if err != nil {
		return document.File{}, fmt.Errorf("hgetall file %s/%s: %w", batchID, name, err)
	}
	if len(m) == 0 {
		return document.File{}, domain.NewNotFound("file", name)
	}

	data := []byte(m["data"])
	if size, err := strconv.Atoi(m["size"]); err == nil && size != len(data) {
		return document.File{}, fmt.Errorf("file %s/%s: stored size %d, read %d bytes", batchID, name, size, len(data))
	}
	return document.File{Name: m["name"], ContentType: m["content_type"], Data: data}, nil
}

// DeleteBatch removes every original stored under batchID.
func (r *Repo) DeleteBatch(ctx context.Context, batchID string) error {
	keys, err := r.store.Scan(ctx, r.prefix+"file:"+batchID+":*")
	if err != nil {
		return fmt.Errorf("scan files of %s: %w", batchID, err)
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("del files of %s: %w", batchID, err)
	}
	return nil
}

// Key pattern: {prefix}file:{batch}:{sha256(name)}. Hashing keeps arbitrary filenames out of
// the key space and away from glob metacharacters.
func (r *Repo) key(batchID, name string) string {
	h := sha256.Sum256([]byte(name))
	return r.prefix + "file:" + batchID + ":" + hex.EncodeToString(h[:])
}
