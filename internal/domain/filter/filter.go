// Package filter answers metadata filter queries against a finished cluster index.
//
// Matching policy: the target and each metadata value are trimmed of surrounding
// whitespace and compared case-insensitively as whole values (never substrings).
// Multi-valued fields (keywords) match when any single value matches.
package filter

import (
	"sort"
	"strings"

	"github.com/kailas-cloud/cdcr/internal/domain"
	"github.com/kailas-cloud/cdcr/internal/domain/cluster"
	"github.com/kailas-cloud/cdcr/internal/domain/document"
)

// MaxValueLength is the maximum length of a filter value.
const MaxValueLength = 1024

// Field is a filterable metadata field.
type Field string

// Supported fields.
const (
	Author   Field = "author"
	Title    Field = "title"
	Keywords Field = "keywords"
)

// accessors is the closed table of filterable fields. New metadata fields are added here.
var accessors = map[Field]func(document.Metadata) []string{
	Author:   func(m document.Metadata) []string { return single(m.Author) },
	Title:    func(m document.Metadata) []string { return single(m.Title) },
	Keywords: func(m document.Metadata) []string { return m.Keywords },
}

func single(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

// Fields returns the supported field names, sorted.
func Fields() []Field {
	out := make([]Field, 0, len(accessors))
	for f := range accessors {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseField validates a field name.
func ParseField(name string) (Field, error) {
	f := Field(name)
	if _, ok := accessors[f]; !ok {
		return "", domain.NewValidation("field", "unknown filter field %q (supported: %s)", name, joinFields())
	}
	return f, nil
}

func joinFields() string {
	fields := Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// Query is a validated filter request.
type Query struct {
	field Field
	value string
}

// NewQuery validates and creates a Query.
func NewQuery(field, value string) (Query, error) {
	f, err := ParseField(field)
	if err != nil {
		return Query{}, err
	}
	v := strings.TrimSpace(value)
	if v == "" {
		return Query{}, domain.NewValidation("value", "is required")
	}
	if len(v) > MaxValueLength {
		return Query{}, domain.NewValidation("value", "too long (max %d)", MaxValueLength)
	}
	return Query{field: f, value: v}, nil
}

// Field returns the queried field.
func (q Query) Field() Field { return q.field }

// Value returns the normalized target value.
func (q Query) Value() string { return q.value }

// Matches reports whether meta satisfies the query.
func (q Query) Matches(meta document.Metadata) bool {
	for _, v := range accessors[q.field](meta) {
		if strings.EqualFold(strings.TrimSpace(v), q.value) {
			return true
		}
	}
	return false
}

// Result is the request-scoped answer to a filter query.
type Result struct {
	// Mentions lists, cluster by cluster in label order, the members drawn from matching files.
	Mentions []string
	// Files maps every matching file to its returned mentions in position order.
	// A matching file without mentions maps to an empty list.
	Files map[string][]string
	// Count is len(Mentions), which equals the total over Files.
	Count int
}

// Run evaluates q against idx. meta supplies document metadata by filename.
//
// A cluster contributes when it contains at least one mention from a matching file;
// only that cluster's mentions from matching files are returned.
func Run(q Query, idx *cluster.Index, meta map[string]document.Metadata) Result {
	store := idx.Store()

	matching := make(map[string]bool)
	files := make(map[string][]string)
	for _, name := range store.Documents() {
		m, ok := meta[name]
		if ok && q.Matches(m) {
			matching[name] = true
			files[name] = []string{}
		}
	}

	res := Result{Mentions: []string{}, Files: files}
	if len(matching) == 0 {
		return res
	}

	perFile := make(map[string][]int, len(matching))
	for _, e := range idx.Entries() {
		for _, i := range e.MentionIndices {
			m := store.At(i)
			if !matching[m.Document] {
				continue
			}
			res.Mentions = append(res.Mentions, m.Text)
			perFile[m.Document] = append(perFile[m.Document], i)
		}
	}

	for name, idxs := range perFile {
		sort.Ints(idxs)
		texts := make([]string, len(idxs))
		for k, i := range idxs {
			texts[k] = store.At(i).Text
		}
		files[name] = texts
	}
	res.Count = len(res.Mentions)
	return res
}
