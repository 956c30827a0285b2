// Package mention holds the per-batch arena of entity mentions and their vectors.
//
// The position of a mention in the store is its canonical index: documents in ingestion
// order, then mentions in their order within the document. Distance matrices, cluster
// assignments and the cluster index all address mentions by this index.
package mention

import (
	"fmt"
	"math"
	"strings"

	"github.com/kailas-cloud/cdcr/internal/domain"
)

// Input is one externally detected mention of a document, optionally vectorized.
type Input struct {
	Text    string
	Label   string // entity type reported by the detector, may be empty
	Segment int    // index of the source text segment
	Vector  []float32
}

// DocumentMentions groups the detected mentions of one document.
type DocumentMentions struct {
	Document string
	Mentions []Input
}

// Mention is an immutable mention record addressed by its canonical index.
type Mention struct {
	Index    int
	Text     string
	Label    string
	Document string
	Position int // ordinal within Document
	Segment  int
	Vector   []float32
}

// Store is the mention arena of one batch.
type Store struct {
	mentions []Mention
	dim      int
	docs     []string
	byDoc    map[string][]int
}

// NewStore validates all inputs and assigns canonical indices.
// Rejects empty text, empty vectors, non-finite components and dimensionality mismatches;
// the error names the offending mention.
func NewStore(docs []DocumentMentions) (*Store, error) {
	s := &Store{
		docs:  make([]string, 0, len(docs)),
		byDoc: make(map[string][]int, len(docs)),
	}

	for di, d := range docs {
		if d.Document == "" {
			return nil, domain.NewValidation(fmt.Sprintf("documents[%d].filename", di), "is required")
		}
		if _, dup := s.byDoc[d.Document]; dup {
			return nil, domain.NewValidation(fmt.Sprintf("documents[%d].filename", di), "duplicate filename %q", d.Document)
		}
		s.docs = append(s.docs, d.Document)
		s.byDoc[d.Document] = make([]int, 0, len(d.Mentions))

		for mi, in := range d.Mentions {
			field := fmt.Sprintf("documents[%d].mentions[%d]", di, mi)
			if strings.TrimSpace(in.Text) == "" {
				return nil, domain.NewValidation(field+".text", "is empty")
			}
			if err := s.checkVector(field+".vector", in.Vector); err != nil {
				return nil, err
			}

			idx := len(s.mentions)
			s.mentions = append(s.mentions, Mention{
				Index:    idx,
				Text:     in.Text,
				Label:    in.Label,
				Document: d.Document,
				Position: mi,
				Segment:  in.Segment,
				Vector:   append([]float32(nil), in.Vector...),
			})
			s.byDoc[d.Document] = append(s.byDoc[d.Document], idx)
		}
	}

	return s, nil
}

func (s *Store) checkVector(field string, v []float32) error {
	if len(v) == 0 {
		return domain.NewValidation(field, "is empty")
	}
	if s.dim == 0 {
		s.dim = len(v)
	} else if len(v) != s.dim {
		return &domain.ValidationError{
			Field:  field,
			Reason: fmt.Sprintf("dimension %d, want %d", len(v), s.dim),
			Err:    domain.ErrVectorDimMismatch,
		}
	}
	for i, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return domain.NewValidation(field, "component %d is not finite", i)
		}
	}
	return nil
}

// Len returns the number of mentions.
func (s *Store) Len() int { return len(s.mentions) }

// Dim returns the shared vector dimensionality, 0 for an empty store.
func (s *Store) Dim() int { return s.dim }

// At returns the mention with canonical index i.
func (s *Store) At(i int) Mention { return s.mentions[i] }

// All returns every mention in canonical order. The slice must not be modified.
func (s *Store) All() []Mention { return s.mentions }

// Vectors returns the mention vectors in canonical order.
func (s *Store) Vectors() [][]float32 {
	out := make([][]float32, len(s.mentions))
	for i := range s.mentions {
		out[i] = s.mentions[i].Vector
	}
	return out
}

// Texts returns the mention strings in canonical order.
func (s *Store) Texts() []string {
	out := make([]string, len(s.mentions))
	for i := range s.mentions {
		out[i] = s.mentions[i].Text
	}
	return out
}

// Documents returns document names in ingestion order, including documents without mentions.
func (s *Store) Documents() []string { return s.docs }

// ByDocument returns the canonical indices of the mentions detected in document name.
func (s *Store) ByDocument(name string) []int { return s.byDoc[name] }

// FileMentions maps every document to its mention strings in position order.
func (s *Store) FileMentions() map[string][]string {
	out := make(map[string][]string, len(s.docs))
	for _, name := range s.docs {
		idxs := s.byDoc[name]
		texts := make([]string, len(idxs))
		for i, idx := range idxs {
			texts[i] = s.mentions[idx].Text
		}
		out[name] = texts
	}
	return out
}
