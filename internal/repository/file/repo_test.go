package file

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/cdcr/internal/db/memory"
	"github.com/kailas-cloud/cdcr/internal/domain"
	"github.com/kailas-cloud/cdcr/internal/domain/document"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetErr    error
	expireTTLs []time.Duration
	scanned    []string
	deleted    []string
}

func (m *mockStore) HSet(context.Context, string, map[string]string) error { return m.hsetErr }

func (m *mockStore) HGetAll(context.Context, string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (m *mockStore) Expire(_ context.Context, _ string, ttl time.Duration) error {
	m.expireTTLs = append(m.expireTTLs, ttl)
	return nil
}

func (m *mockStore) Del(_ context.Context, keys ...string) error {
	m.deleted = append(m.deleted, keys...)
	return nil
}

func (m *mockStore) Scan(_ context.Context, pattern string) ([]string, error) {
	m.scanned = append(m.scanned, pattern)
	return []string{"k1", "k2"}, nil
}

func TestRepo_SaveOpen(t *testing.T) {
	repo := New(memory.NewStore(), "cdcr:", time.Hour)
	ctx := context.Background()
	data := []byte("Barack Obama\x00binary tail")

	if err := repo.Save(ctx, "b1", document.File{Name: "a b*.txt", ContentType: "text/plain", Data: data}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.Open(ctx, "b1", "a b*.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got.Name != "a b*.txt" || got.ContentType != "text/plain" || !bytes.Equal(got.Data, data) {
		t.Errorf("Open() = %+v", got)
	}
}

func TestRepo_OpenNotFound(t *testing.T) {
	repo := New(memory.NewStore(), "cdcr:", 0)

	_, err := repo.Open(context.Background(), "b1", "missing.txt")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRepo_DeleteBatch(t *testing.T) {
	repo := New(memory.NewStore(), "cdcr:", 0)
	ctx := context.Background()

	_ = repo.Save(ctx, "b1", document.File{Name: "a.txt", Data: []byte("a")})
	_ = repo.Save(ctx, "b1", document.File{Name: "b.txt", Data: []byte("b")})
	_ = repo.Save(ctx, "b2", document.File{Name: "a.txt", Data: []byte("other")})

	if err := repo.DeleteBatch(ctx, "b1"); err != nil {
		t.Fatalf("DeleteBatch: %v", err)
	}
	if _, err := repo.Open(ctx, "b1", "a.txt"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("b1/a.txt should be gone, got %v", err)
	}
	if f, err := repo.Open(ctx, "b2", "a.txt"); err != nil || string(f.Data) != "other" {
		t.Errorf("b2/a.txt = %+v, %v", f, err)
	}
}

func TestRepo_SaveSetsTTL(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms, "cdcr:", 30*time.Minute)

	if err := repo.Save(context.Background(), "b1", document.File{Name: "a.txt"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(ms.expireTTLs) != 1 || ms.expireTTLs[0] != 30*time.Minute {
		t.Errorf("Expire calls = %v", ms.expireTTLs)
	}
}

func TestRepo_SaveError(t *testing.T) {
	ms := &mockStore{hsetErr: errors.New("oom")}
	repo := New(ms, "cdcr:", time.Minute)

	if err := repo.Save(context.Background(), "b1", document.File{Name: "a.txt"}); err == nil {
		t.Fatal("expected error")
	}
	if len(ms.expireTTLs) != 0 {
		t.Error("Expire must not run after a failed HSet")
	}
}

func TestRepo_DeleteBatchPattern(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms, "cdcr:", 0)

	if err := repo.DeleteBatch(context.Background(), "b1"); err != nil {
		t.Fatalf("DeleteBatch: %v", err)
	}
	if len(ms.scanned) != 1 || ms.scanned[0] != "cdcr:file:b1:*" {
		t.Errorf("Scan patterns = %v", ms.scanned)
	}
	if strings.Join(ms.deleted, ",") != "k1,k2" {
		t.Errorf("deleted = %v", ms.deleted)
	}
}
