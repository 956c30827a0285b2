package file

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/cdcr/internal/domain"
	"github.com/kailas-cloud/cdcr/internal/domain/document"
)

// TextContentType is served for documents that were ingested as JSON text.
const TextContentType = "text/plain; charset=utf-8"

// Service is the read-access boundary for the files of a batch.
type Service struct {
	batches BatchReader
	files   Store
}

// New creates a file service.
func New(batches BatchReader, files Store) *Service {
	return &Service{batches: batches, files: files}
}

// Save attaches an original to a document of an existing batch, replacing any previous one.
func (s *Service) Save(ctx context.Context, batchID string, f document.File) error {
	if err := document.ValidateFilename(f.Name); err != nil {
		return err
	}
	if len(f.Data) > document.MaxFileSize {
		return domain.NewValidation("file", "too large (max %d bytes)", document.MaxFileSize)
	}
	if _, err := s.document(ctx, batchID, f.Name); err != nil {
		return err
	}
	if err := s.files.Save(ctx, batchID, f); err != nil {
		return fmt.Errorf("save file: %w", err)
	}
	return nil
}

// Open returns the original bytes of a document. Documents without a stored original
// are served as their plain text.
func (s *Service) Open(ctx context.Context, batchID, filename string) (document.File, error) {
	if err := document.ValidateFilename(filename); err != nil {
		return document.File{}, err
	}
	doc, err := s.document(ctx, batchID, filename)
	if err != nil {
		return document.File{}, err
	}

	f, err := s.files.Open(ctx, batchID, filename)
	if errors.Is(err, domain.ErrNotFound) {
		return document.File{Name: filename, ContentType: TextContentType, Data: []byte(doc.Text())}, nil
	}
	if err != nil {
		return document.File{}, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *Service) document(ctx context.Context, batchID, filename string) (document.Document, error) {
	b, err := s.batches.Get(ctx, batchID)
	if err != nil {
		return document.Document{}, fmt.Errorf("get batch: %w", err)
	}
	doc, ok := b.Document(filename)
	if !ok {
		return document.Document{}, domain.NewNotFound("file", filename)
	}
	return doc, nil
}
