package memory

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/kailas-cloud/cdcr/internal/db"
)

func TestKV_RoundTrip(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	value := []byte("payload")
	if err := s.Set(ctx, "k", value); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value[0] = 'X'

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Get() = %q, caller mutation leaked", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := NewStore()
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestSetWithTTL_Expires(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.SetWithTTL(ctx, "k", []byte("v"), 20*time.Millisecond)
	if ok, _ := s.Exists(ctx, "k"); !ok {
		t.Fatal("expected key to exist before expiry")
	}

	time.Sleep(40 * time.Millisecond)
	if ok, _ := s.Exists(ctx, "k"); ok {
		t.Error("expected key to expire")
	}
}

func TestHash_MergeAndClone(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.HSet(ctx, "h", map[string]string{"a": "1"})
	_ = s.HSet(ctx, "h", map[string]string{"b": "2"})

	got, err := s.HGetAll(ctx, "h")
	if err != nil {
		t.Fatalf("HGetAll: %v", err)
	}
	if got["a"] != "1" || got["b"] != "2" {
		t.Errorf("HGetAll() = %v", got)
	}

	got["a"] = "mutated"
	again, _ := s.HGetAll(ctx, "h")
	if again["a"] != "1" {
		t.Error("returned map aliases stored hash")
	}
}

func TestHGetAll_Missing(t *testing.T) {
	s := NewStore()
	got, err := s.HGetAll(context.Background(), "nope")
	if err != nil || len(got) != 0 {
		t.Errorf("HGetAll(missing) = %v, %v", got, err)
	}
}

func TestWrongType(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("v"))
	if err := s.HSet(ctx, "k", map[string]string{"f": "v"}); err == nil {
		t.Error("HSet on string key should fail")
	}
	_ = s.HSet(ctx, "h", map[string]string{"f": "v"})
	if _, err := s.Get(ctx, "h"); err == nil {
		t.Error("Get on hash key should fail")
	}
}

func TestExpire(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.HSet(ctx, "h", map[string]string{"f": "v"})
	_ = s.Expire(ctx, "h", 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	if ok, _ := s.Exists(ctx, "h"); ok {
		t.Error("expected hash to expire")
	}
}

func TestDelAndScan(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.Set(ctx, "cdcr:file:b1:x", []byte("1"))
	_ = s.Set(ctx, "cdcr:file:b1:y", []byte("2"))
	_ = s.Set(ctx, "cdcr:file:b2:z", []byte("3"))

	keys, err := s.Scan(ctx, "cdcr:file:b1:*")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "cdcr:file:b1:x" || keys[1] != "cdcr:file:b1:y" {
		t.Errorf("Scan() = %v", keys)
	}

	if err := s.Del(ctx, keys...); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if ok, _ := s.Exists(ctx, "cdcr:file:b1:x"); ok {
		t.Error("expected key deleted")
	}
	if ok, _ := s.Exists(ctx, "cdcr:file:b2:z"); !ok {
		t.Error("unrelated key deleted")
	}
}

func TestPingAndReady(t *testing.T) {
	s := NewStore()
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := s.WaitForReady(context.Background(), time.Second); err != nil {
		t.Errorf("WaitForReady: %v", err)
	}
}
