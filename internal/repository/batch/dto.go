package batch

import (
	"encoding/json"
	"fmt"
	"time"

	dombatch "github.com/kailas-cloud/cdcr/internal/domain/batch"
	"github.com/kailas-cloud/cdcr/internal/domain/cluster"
	"github.com/kailas-cloud/cdcr/internal/domain/document"
	"github.com/kailas-cloud/cdcr/internal/domain/mention"
	"github.com/kailas-cloud/cdcr/internal/domain/similarity"
)

// snapshotVersion guards against decoding rows written by an incompatible layout.
// Version 1 rows (dense vectors only, no revision) still decode.
const snapshotVersion = 2

// batchRow is the JSON snapshot stored per batch. The cluster index is derived data and
// is rebuilt from labels on load.
type batchRow struct {
	Version     int           `json:"v"`
	Revision    uint64        `json:"rev,omitempty"`
	ID          string        `json:"id"`
	CreatedAt   int64         `json:"created_at"`
	State       string        `json:"state"`
	Cutoff      float64       `json:"cutoff,omitempty"`
	Metric      string        `json:"metric,omitempty"`
	ClusteredAt int64         `json:"clustered_at,omitempty"`
	Dim         int           `json:"dim,omitempty"`
	Documents   []documentRow `json:"documents"`
	Labels      []int         `json:"labels,omitempty"`
	Merges      []mergeRow    `json:"merges,omitempty"`
}

type documentRow struct {
	Filename string       `json:"filename"`
	Segments []string     `json:"segments,omitempty"`
	Author   string       `json:"author,omitempty"`
	Title    string       `json:"title,omitempty"`
	Keywords []string     `json:"keywords,omitempty"`
	Mentions []mentionRow `json:"mentions,omitempty"`
}

// mentionRow holds the vector densely, or as (Indices, Values) pairs when fewer than a
// third of the components are non-zero, which is the common case for TF-IDF.
type mentionRow struct {
	Text    string    `json:"text"`
	Label   string    `json:"label,omitempty"`
	Segment int       `json:"segment"`
	Vector  []float32 `json:"vector,omitempty"`
	Indices []int32   `json:"idx,omitempty"`
	Values  []float32 `json:"val,omitempty"`
}

func encodeVector(v []float32) mentionRow {
	nnz := 0
	for _, x := range v {
		if x != 0 {
			nnz++
		}
	}
	if nnz*3 >= len(v) {
		return mentionRow{Vector: v}
	}
	row := mentionRow{Indices: make([]int32, 0, nnz), Values: make([]float32, 0, nnz)}
	for i, x := range v {
		if x != 0 {
			row.Indices = append(row.Indices, int32(i))
			row.Values = append(row.Values, x)
		}
	}
	return row
}

func (mr mentionRow) vector(dim int) ([]float32, error) {
	if mr.Vector != nil {
		return mr.Vector, nil
	}
	if len(mr.Indices) != len(mr.Values) {
		return nil, fmt.Errorf("sparse vector of %q: %d indices, %d values", mr.Text, len(mr.Indices), len(mr.Values))
	}
	v := make([]float32, dim)
	for k, i := range mr.Indices {
		if i < 0 || int(i) >= dim {
			return nil, fmt.Errorf("sparse vector of %q: index %d out of range [0,%d)", mr.Text, i, dim)
		}
		v[i] = mr.Values[k]
	}
	return v, nil
}

type mergeRow struct {
	A        int     `json:"a"`
	B        int     `json:"b"`
	Distance float64 `json:"d"`
	Size     int     `json:"n"`
}

func marshalBatch(b *dombatch.Batch, revision uint64) ([]byte, error) {
	store := b.Mentions()
	row := batchRow{
		Version:   snapshotVersion,
		Revision:  revision,
		Dim:       store.Dim(),
		ID:        b.ID(),
		CreatedAt: b.CreatedAt().UnixMilli(),
		State:     string(b.State()),
		Documents: make([]documentRow, 0, len(b.Documents())),
	}

	for _, d := range b.Documents() {
		meta := d.Metadata()
		dr := documentRow{
			Filename: d.Filename(),
			Segments: d.Segments(),
			Author:   meta.Author,
			Title:    meta.Title,
			Keywords: meta.Keywords,
		}
		for _, i := range store.ByDocument(d.Filename()) {
			m := store.At(i)
			mr := encodeVector(m.Vector)
			mr.Text, mr.Label, mr.Segment = m.Text, m.Label, m.Segment
			dr.Mentions = append(dr.Mentions, mr)
		}
		row.Documents = append(row.Documents, dr)
	}

	if b.State() != dombatch.StatePending {
		idx, err := b.Index()
		if err != nil {
			return nil, err
		}
		a := idx.Assignment()
		row.Cutoff = b.Cutoff()
		row.Metric = string(b.Metric())
		row.ClusteredAt = b.ClusteredAt().UnixMilli()
		row.Labels = a.Labels()
		for _, m := range a.Merges() {
			row.Merges = append(row.Merges, mergeRow{A: m.A, B: m.B, Distance: m.Distance, Size: m.Size})
		}
	}

	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("marshal batch %s: %w", b.ID(), err)
	}
	return data, nil
}

func unmarshalBatch(data []byte) (*dombatch.Batch, uint64, error) {
	var row batchRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, 0, fmt.Errorf("unmarshal batch: %w", err)
	}
	if row.Version < 1 || row.Version > snapshotVersion {
		return nil, 0, fmt.Errorf("unsupported batch snapshot version %d", row.Version)
	}
	b, err := row.batch()
	if err != nil {
		return nil, 0, err
	}
	return b, row.Revision, nil
}

func (row *batchRow) batch() (*dombatch.Batch, error) {
	docs := make([]document.Document, len(row.Documents))
	inputs := make([]mention.DocumentMentions, len(row.Documents))
	for i, dr := range row.Documents {
		docs[i] = document.Reconstruct(dr.Filename, dr.Segments, document.Metadata{
			Author: dr.Author, Title: dr.Title, Keywords: dr.Keywords,
		})
		dm := mention.DocumentMentions{Document: dr.Filename}
		for _, mr := range dr.Mentions {
			vec, err := mr.vector(row.Dim)
			if err != nil {
				return nil, fmt.Errorf("rebuild batch %s: %w", row.ID, err)
			}
			dm.Mentions = append(dm.Mentions, mention.Input{
				Text: mr.Text, Label: mr.Label, Segment: mr.Segment, Vector: vec,
			})
		}
		inputs[i] = dm
	}

	store, err := mention.NewStore(inputs)
	if err != nil {
		return nil, fmt.Errorf("rebuild mentions of batch %s: %w", row.ID, err)
	}
	b, err := dombatch.New(row.ID, time.UnixMilli(row.CreatedAt), docs, store)
	if err != nil {
		return nil, fmt.Errorf("rebuild batch %s: %w", row.ID, err)
	}

	if dombatch.State(row.State) == dombatch.StatePending {
		return b, nil
	}

	a, err := cluster.NewAssignment(row.Labels)
	if err != nil {
		return nil, fmt.Errorf("rebuild assignment of batch %s: %w", row.ID, err)
	}
	merges := make([]cluster.Merge, len(row.Merges))
	for i, m := range row.Merges {
		merges[i] = cluster.Merge{A: m.A, B: m.B, Distance: m.Distance, Size: m.Size}
	}
	idx, err := cluster.BuildIndex(store, a.WithMerges(merges))
	if err != nil {
		return nil, fmt.Errorf("rebuild index of batch %s: %w", row.ID, err)
	}

	return b.WithClustering(
		cluster.Config{Cutoff: row.Cutoff},
		similarity.Metric(row.Metric),
		idx,
		time.UnixMilli(row.ClusteredAt),
	), nil
}
