package batch

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/cdcr/internal/db"
	"github.com/kailas-cloud/cdcr/internal/db/memory"
	"github.com/kailas-cloud/cdcr/internal/domain"
	dombatch "github.com/kailas-cloud/cdcr/internal/domain/batch"
	"github.com/kailas-cloud/cdcr/internal/domain/cluster"
	"github.com/kailas-cloud/cdcr/internal/domain/document"
	"github.com/kailas-cloud/cdcr/internal/domain/mention"
	"github.com/kailas-cloud/cdcr/internal/domain/similarity"
)

// mockStore implements the consumer interface for error-path tests.
type mockStore struct {
	getErr    error
	setErr    error
	existsErr error
	setKeys   []string
	setTTLs   []time.Duration
}

func (m *mockStore) Get(context.Context, string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) SetWithTTL(_ context.Context, key string, _ []byte, ttl time.Duration) error {
	m.setKeys = append(m.setKeys, key)
	m.setTTLs = append(m.setTTLs, ttl)
	return m.setErr
}

func (m *mockStore) Del(context.Context, ...string) error { return nil }

func (m *mockStore) Exists(context.Context, string) (bool, error) { return false, m.existsErr }

func testBatch(t *testing.T) *dombatch.Batch {
	t.Helper()
	docA, _ := document.New("a.txt", []string{"Barack Obama met the President."}, document.Metadata{
		Author: "Smith", Keywords: []string{"politics"},
	})
	docB, _ := document.New("b.txt", []string{"Obama spoke."}, document.Metadata{Author: "Jones"})
	docC, _ := document.New("c.txt", nil, document.Metadata{Title: "Empty"})

	store, err := mention.NewStore([]mention.DocumentMentions{
		{Document: "a.txt", Mentions: []mention.Input{
			{Text: "Barack Obama", Label: "ENTITY", Vector: []float32{1, 0.1}},
			{Text: "President", Label: "ENTITY", Vector: []float32{0.8, 0.3}},
		}},
		{Document: "b.txt", Mentions: []mention.Input{
			{Text: "Obama", Label: "ENTITY", Vector: []float32{1, 0}},
		}},
		{Document: "c.txt"},
	})
	if err != nil {
		t.Fatalf("mention.NewStore: %v", err)
	}

	b, err := dombatch.New("b-1", time.UnixMilli(1700000000000), []document.Document{docA, docB, docC}, store)
	if err != nil {
		t.Fatalf("batch.New: %v", err)
	}
	return b
}

func clustered(t *testing.T, b *dombatch.Batch) *dombatch.Batch {
	t.Helper()
	m, err := similarity.Compute(context.Background(), b.Mentions().Vectors(), similarity.Cosine, 1)
	if err != nil {
		t.Fatalf("similarity.Compute: %v", err)
	}
	a, err := cluster.Agglomerate(m, cluster.DefaultConfig())
	if err != nil {
		t.Fatalf("cluster.Agglomerate: %v", err)
	}
	idx, err := cluster.BuildIndex(b.Mentions(), a)
	if err != nil {
		t.Fatalf("cluster.BuildIndex: %v", err)
	}
	return b.WithClustering(cluster.DefaultConfig(), similarity.Cosine, idx, time.UnixMilli(1700000001000))
}

func TestRepo_RoundTripClustered(t *testing.T) {
	repo := New(memory.NewStore(), "cdcr:", time.Hour)
	ctx := context.Background()
	want := clustered(t, testBatch(t))

	if err := repo.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := repo.Get(ctx, "b-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got.State() != dombatch.StateClustered || got.Cutoff() != cluster.DefaultCutoff || got.Metric() != similarity.Cosine {
		t.Errorf("state=%q cutoff=%v metric=%q", got.State(), got.Cutoff(), got.Metric())
	}
	if !got.CreatedAt().Equal(want.CreatedAt()) {
		t.Errorf("CreatedAt() = %v, want %v", got.CreatedAt(), want.CreatedAt())
	}
	if !reflect.DeepEqual(got.Metadata(), want.Metadata()) {
		t.Errorf("Metadata() = %v, want %v", got.Metadata(), want.Metadata())
	}

	gotIdx, _ := got.Index()
	wantIdx, _ := want.Index()
	if !reflect.DeepEqual(gotIdx.Clusters(), wantIdx.Clusters()) {
		t.Errorf("Clusters() = %v, want %v", gotIdx.Clusters(), wantIdx.Clusters())
	}
	if !reflect.DeepEqual(gotIdx.Assignment().Merges(), wantIdx.Assignment().Merges()) {
		t.Errorf("Merges() = %v, want %v", gotIdx.Assignment().Merges(), wantIdx.Assignment().Merges())
	}
	if !reflect.DeepEqual(got.Mentions().Vectors(), want.Mentions().Vectors()) {
		t.Error("vectors changed across round trip")
	}
}

func TestRepo_RoundTripPending(t *testing.T) {
	repo := New(memory.NewStore(), "cdcr:", 0)
	ctx := context.Background()

	if err := repo.Save(ctx, testBatch(t)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := repo.Get(ctx, "b-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State() != dombatch.StatePending {
		t.Errorf("State() = %q, want pending", got.State())
	}
	if got.Mentions().Len() != 3 {
		t.Errorf("Mentions().Len() = %d", got.Mentions().Len())
	}
}

func TestRepo_HotCacheReturnsSameSnapshot(t *testing.T) {
	repo := New(memory.NewStore(), "cdcr:", time.Hour).WithHotCache(time.Minute)
	ctx := context.Background()
	b := testBatch(t)

	_ = repo.Save(ctx, b)
	got, err := repo.Get(ctx, "b-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != b {
		t.Error("expected hot cache hit to return the saved snapshot")
	}

	if err := repo.Delete(ctx, "b-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, "b-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestRepo_GetNotFound(t *testing.T) {
	repo := New(&mockStore{}, "cdcr:", 0)

	_, err := repo.Get(context.Background(), "missing")
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "batch" || nf.Name != "missing" {
		t.Fatalf("expected batch NotFoundError, got %v", err)
	}
}

func TestRepo_GetStoreError(t *testing.T) {
	repo := New(&mockStore{getErr: errors.New("connection reset")}, "cdcr:", 0)

	_, err := repo.Get(context.Background(), "b-1")
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestRepo_SaveUsesPrefixAndTTL(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms, "test:", 2*time.Hour)

	if err := repo.Save(context.Background(), testBatch(t)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(ms.setKeys) != 1 || ms.setKeys[0] != "test:batch:b-1" || ms.setTTLs[0] != 2*time.Hour {
		t.Errorf("SetWithTTL calls: keys=%v ttls=%v", ms.setKeys, ms.setTTLs)
	}
}

func TestRepo_DeleteNotFound(t *testing.T) {
	repo := New(&mockStore{}, "cdcr:", 0)

	if err := repo.Delete(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// pausingStore blocks the next Get after it has read the value, until released.
type pausingStore struct {
	*memory.Store
	read    chan struct{}
	release chan struct{}
}

func newPausingStore() *pausingStore {
	return &pausingStore{Store: memory.NewStore(), read: make(chan struct{}), release: make(chan struct{})}
}

func (s *pausingStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.Store.Get(ctx, key)
	if s.read != nil {
		close(s.read)
		s.read = nil
		<-s.release
	}
	return data, err
}

// slowGet starts a Get that has read the stored bytes and waits for release.
func slowGet(repo *Repo, s *pausingStore) <-chan error {
	read := s.read
	done := make(chan error, 1)
	go func() {
		_, err := repo.Get(context.Background(), "b-1")
		done <- err
	}()
	<-read
	return done
}

func TestRepo_SlowGetKeepsNewerSave(t *testing.T) {
	s := newPausingStore()
	ctx := context.Background()
	if err := New(s.Store, "cdcr:", time.Hour).Save(ctx, testBatch(t)); err != nil {
		t.Fatalf("seed Save: %v", err)
	}
	repo := New(s, "cdcr:", time.Hour).WithHotCache(time.Minute)

	done := slowGet(repo, s)
	if err := repo.Save(ctx, clustered(t, testBatch(t))); err != nil {
		t.Fatalf("Save: %v", err)
	}
	close(s.release)
	if err := <-done; err != nil {
		t.Fatalf("slow Get: %v", err)
	}

	got, err := repo.Get(ctx, "b-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State() != dombatch.StateClustered {
		t.Errorf("State() = %q after reclustering, want clustered", got.State())
	}
}

func TestRepo_SlowGetKeepsDelete(t *testing.T) {
	s := newPausingStore()
	ctx := context.Background()
	if err := New(s.Store, "cdcr:", time.Hour).Save(ctx, clustered(t, testBatch(t))); err != nil {
		t.Fatalf("seed Save: %v", err)
	}
	repo := New(s, "cdcr:", time.Hour).WithHotCache(time.Minute)

	done := slowGet(repo, s)
	if err := repo.Delete(ctx, "b-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	close(s.release)
	<-done

	if _, err := repo.Get(ctx, "b-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestRepo_RevisionsIncrease(t *testing.T) {
	repo := New(&mockStore{}, "cdcr:", 0)
	fixed := time.Unix(1700000000, 0)
	repo.now = func() time.Time { return fixed }

	first := repo.nextRevision()
	second := repo.nextRevision()
	if second <= first {
		t.Errorf("revisions %d then %d, want strictly increasing", first, second)
	}
}

func TestMarshalBatch_SparseVectors(t *testing.T) {
	vec := make([]float32, 12)
	vec[7] = 1
	doc, _ := document.New("a.txt", []string{"Paris"}, document.Metadata{})
	store, err := mention.NewStore([]mention.DocumentMentions{
		{Document: "a.txt", Mentions: []mention.Input{
			{Text: "Paris", Vector: vec},
			{Text: "France", Vector: []float32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}},
		}},
	})
	if err != nil {
		t.Fatalf("mention.NewStore: %v", err)
	}
	b, err := dombatch.New("b-2", time.UnixMilli(1700000000000), []document.Document{doc}, store)
	if err != nil {
		t.Fatalf("batch.New: %v", err)
	}

	data, err := marshalBatch(b, 1)
	if err != nil {
		t.Fatalf("marshalBatch: %v", err)
	}
	if !strings.Contains(string(data), `"idx":[7]`) {
		t.Errorf("expected sparse encoding for the one-hot vector: %s", data)
	}

	got, rev, err := unmarshalBatch(data)
	if err != nil {
		t.Fatalf("unmarshalBatch: %v", err)
	}
	if rev != 1 {
		t.Errorf("revision = %d, want 1", rev)
	}
	if !reflect.DeepEqual(got.Mentions().Vectors(), b.Mentions().Vectors()) {
		t.Errorf("vectors = %v, want %v", got.Mentions().Vectors(), b.Mentions().Vectors())
	}
}

func TestUnmarshalBatch_DenseVersionOne(t *testing.T) {
	data := []byte(`{"v":1,"id":"b-1","created_at":1700000000000,"state":"pending",` +
		`"documents":[{"filename":"a.txt","mentions":[{"text":"Obama","segment":0,"vector":[1,0]}]}]}`)

	got, _, err := unmarshalBatch(data)
	if err != nil {
		t.Fatalf("unmarshalBatch: %v", err)
	}
	if v := got.Mentions().At(0).Vector; len(v) != 2 || v[0] != 1 {
		t.Errorf("vector = %v, want [1 0]", v)
	}
}

func TestUnmarshalBatch_BadSparseIndex(t *testing.T) {
	data := []byte(`{"v":2,"id":"b-1","created_at":1,"state":"pending","dim":2,` +
		`"documents":[{"filename":"a.txt","mentions":[{"text":"Obama","segment":0,"idx":[5],"val":[1]}]}]}`)

	if _, _, err := unmarshalBatch(data); err == nil {
		t.Fatal("expected error for out-of-range sparse index")
	}
}
