// Package memory implements db.Store in process on top of go-cache.
// It backs local development and tests; data does not survive a restart.
package memory

import (
	"context"
	"maps"
	"path"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kailas-cloud/cdcr/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

const cleanupInterval = time.Minute

// Store keeps byte values and hashes in a go-cache instance.
type Store struct {
	mu    sync.Mutex // serializes read-modify-write on hashes and TTL updates
	cache *cache.Cache
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{cache: cache.New(cache.NoExpiration, cleanupInterval)}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close drops all data.
func (s *Store) Close() { s.cache.Flush() }

// WaitForReady returns immediately.
func (s *Store) WaitForReady(context.Context, time.Duration) error { return nil }

// Get retrieves a value by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, &db.Error{Op: db.OpGet, Err: errWrongType}
	}
	return append([]byte(nil), b...), nil
}

// Set stores a value without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores a value with an expiration. A non-positive ttl stores without expiry.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.cache.Set(key, append([]byte(nil), value...), expiration(ttl))
	return nil
}

// HSet merges fields into the hash at key, keeping its remaining TTL.
func (s *Store) HSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := make(map[string]string, len(fields))
	ttl := cache.NoExpiration
	if v, exp, ok := s.cache.GetWithExpiration(key); ok {
		old, isHash := v.(map[string]string)
		if !isHash {
			return &db.Error{Op: db.OpHSet, Err: errWrongType}
		}
		maps.Copy(h, old)
		if !exp.IsZero() {
			ttl = max(time.Until(exp), time.Millisecond)
		}
	}
	maps.Copy(h, fields)
	s.cache.Set(key, h, ttl)
	return nil
}

// HGetAll returns all fields of a hash. A missing key yields an empty map.
func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return map[string]string{}, nil
	}
	h, ok := v.(map[string]string)
	if !ok {
		return nil, &db.Error{Op: db.OpHGetAll, Err: errWrongType}
	}
	return maps.Clone(h), nil
}

// Expire sets a TTL on an existing key.
func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.cache.Get(key); ok {
		s.cache.Set(key, v, expiration(ttl))
	}
	return nil
}

// Del deletes keys. Missing keys are ignored.
func (s *Store) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.cache.Delete(k)
	}
	return nil
}

// Exists checks if a key exists.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.cache.Get(key)
	return ok, nil
}

// Scan returns unexpired keys matching a glob pattern.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	var keys []string
	for k := range s.cache.Items() {
		ok, err := path.Match(pattern, k)
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		if ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return cache.NoExpiration
	}
	return ttl
}
