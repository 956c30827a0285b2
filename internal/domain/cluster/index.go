package cluster

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/kailas-cloud/cdcr/internal/domain"
	"github.com/kailas-cloud/cdcr/internal/domain/mention"
)

// Entry is the read-only view of one cluster.
type Entry struct {
	Label int
	// MentionIndices are canonical mention indices, ascending.
	MentionIndices []int
	// Mentions are the member strings in MentionIndices order.
	Mentions []string
	// Documents maps every contributing document to its member strings, in position order.
	Documents map[string][]string
}

// Index is built once per clustering run and never modified afterwards.
type Index struct {
	store      *mention.Store
	assignment Assignment
	entries    []Entry
	byDocument map[string][]int
}

// BuildIndex derives the cluster index from a finished assignment.
func BuildIndex(store *mention.Store, a Assignment) (*Index, error) {
	if a.Len() != store.Len() {
		return nil, fmt.Errorf("assignment covers %d mentions, store has %d: %w",
			a.Len(), store.Len(), domain.ErrValidation)
	}

	entries := make([]Entry, a.Count())
	for l := range entries {
		entries[l] = Entry{Label: l, Documents: make(map[string][]string)}
	}

	byDocument := make(map[string][]int)
	for _, m := range store.All() {
		l := a.Label(m.Index)
		e := &entries[l]
		e.MentionIndices = append(e.MentionIndices, m.Index)
		e.Mentions = append(e.Mentions, m.Text)
		if _, seen := e.Documents[m.Document]; !seen {
			byDocument[m.Document] = append(byDocument[m.Document], l)
		}
		e.Documents[m.Document] = append(e.Documents[m.Document], m.Text)
	}

	return &Index{store: store, assignment: a, entries: entries, byDocument: byDocument}, nil
}

// Len returns the number of clusters.
func (x *Index) Len() int { return len(x.entries) }

// Entries returns every cluster in label order. The slice must not be modified.
func (x *Index) Entries() []Entry { return x.entries }

// Entry returns the cluster with label l.
func (x *Index) Entry(l int) (Entry, bool) {
	if l < 0 || l >= len(x.entries) {
		return Entry{}, false
	}
	return x.entries[l], true
}

// Store returns the mention store the index was built from.
func (x *Index) Store() *mention.Store { return x.store }

// Assignment returns the underlying label assignment.
func (x *Index) Assignment() Assignment { return x.assignment }

// LabelsForDocument returns the labels of clusters containing a mention from doc, ascending.
func (x *Index) LabelsForDocument(doc string) []int {
	labels := append([]int(nil), x.byDocument[doc]...)
	sort.Ints(labels)
	return labels
}

// Clusters returns the clustering result boundary view: label (as a string) to member strings.
func (x *Index) Clusters() map[string][]string {
	out := make(map[string][]string, len(x.entries))
	for _, e := range x.entries {
		out[strconv.Itoa(e.Label)] = e.Mentions
	}
	return out
}
