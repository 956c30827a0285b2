package document

import (
	"strings"

	"github.com/kailas-cloud/cdcr/internal/domain"
)

// MaxFilenameLength is the maximum filename length in bytes.
const MaxFilenameLength = 255

// MaxTextSize is the maximum total text size of one document in bytes.
const MaxTextSize = 4 << 20 // 4MB

// Metadata holds the extracted descriptive fields of a document. Every field is optional.
type Metadata struct {
	Author   string
	Title    string
	Keywords []string
}

// Document is an ingested document (immutable value object).
type Document struct {
	filename string
	segments []string
	metadata Metadata
}

// New validates and creates a Document.
// Filename: non-empty, max 255 bytes, no path separators. Segments may be empty.
func New(filename string, segments []string, meta Metadata) (Document, error) {
	if err := ValidateFilename(filename); err != nil {
		return Document{}, err
	}
	size := 0
	for _, s := range segments {
		size += len(s)
	}
	if size > MaxTextSize {
		return Document{}, domain.NewValidation("text", "too large (max %d bytes)", MaxTextSize)
	}

	return Document{
		filename: filename,
		segments: append([]string(nil), segments...),
		metadata: meta.clone(),
	}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(filename string, segments []string, meta Metadata) Document {
	return Document{filename: filename, segments: segments, metadata: meta}
}

// ValidateFilename checks that name can identify a document within a batch.
func ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return domain.NewValidation("filename", "is required")
	}
	if len(name) > MaxFilenameLength {
		return domain.NewValidation("filename", "too long (max %d)", MaxFilenameLength)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return domain.NewValidation("filename", "%q must not contain path separators", name)
	}
	return nil
}

// Filename returns the document identifier.
func (d *Document) Filename() string { return d.filename }

// Segments returns the ordered raw text segments (e.g. pages).
func (d *Document) Segments() []string { return d.segments }

// Metadata returns the extracted metadata fields.
func (d *Document) Metadata() Metadata { return d.metadata }

// Text joins all segments with blank lines.
func (d *Document) Text() string { return strings.Join(d.segments, "\n\n") }

// ParseKeywords splits a raw keywords field on commas and semicolons, dropping empty entries.
func ParseKeywords(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (m Metadata) clone() Metadata {
	c := m
	if m.Keywords != nil {
		c.Keywords = append([]string(nil), m.Keywords...)
	}
	return c
}
