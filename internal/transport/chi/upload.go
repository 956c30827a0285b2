package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/cdcr/internal/domain"
	"github.com/kailas-cloud/cdcr/internal/domain/document"
	"github.com/kailas-cloud/cdcr/internal/transport/api"
	batchuc "github.com/kailas-cloud/cdcr/internal/usecase/batch"
)

const multipartMemory = 32 << 20

// UploadBatch handles POST /api/v1/upload.
func (s *Server) UploadBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.handleDomainError(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, api.ErrorResponseCodeBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req, err := uploadRequest(r.MultipartForm)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	b, err := s.batches.Ingest(ctx, req)
	setEmbeddingHeaders(w, usage)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	paths := make([]string, len(req.Files))
	for i, f := range req.Files {
		paths[i] = "/api/v1/batches/" + b.ID() + "/files/" + url.PathEscape(f.Name)
	}

	resp := api.UploadResponse{
		BatchID:      b.ID(),
		FilePaths:    paths,
		Clusters:     map[string][]string{},
		FileMentions: b.Mentions().FileMentions(),
	}
	if idx, err := b.Index(); err == nil {
		resp.Clusters = idx.Clusters()
	}
	writeJSON(w, http.StatusCreated, resp)
}

// uploadRequest reads the "files" parts plus the optional "metadata", "cutoff" and "cluster" fields.
func uploadRequest(form *multipart.Form) (batchuc.IngestRequest, error) {
	headers := form.File["files"]
	if len(headers) == 0 {
		return batchuc.IngestRequest{}, domain.NewValidation("files", "at least one file is required")
	}

	meta := map[string]api.Metadata{}
	if raw := formValue(form, "metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return batchuc.IngestRequest{}, domain.NewValidation("metadata", "must be a JSON object keyed by filename: %v", err)
		}
	}

	req := batchuc.IngestRequest{
		Documents: make([]batchuc.DocumentInput, 0, len(headers)),
		Files:     make([]document.File, 0, len(headers)),
		Cluster:   true,
	}

	if raw := formValue(form, "cutoff"); raw != "" {
		cutoff, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return batchuc.IngestRequest{}, domain.NewValidation("cutoff", "must be a number, got %q", raw)
		}
		req.Cutoff = &cutoff
	}
	if raw := formValue(form, "cluster"); raw != "" {
		cluster, err := strconv.ParseBool(raw)
		if err != nil {
			return batchuc.IngestRequest{}, domain.NewValidation("cluster", "must be a boolean, got %q", raw)
		}
		req.Cluster = cluster
	}

	for i, fh := range headers {
		f, err := readPart(fh)
		if err != nil {
			return batchuc.IngestRequest{}, fmt.Errorf("files[%d]: %w", i, err)
		}
		var m *api.Metadata
		if v, ok := meta[f.Name]; ok {
			m = &v
		}
		req.Files = append(req.Files, f)
		req.Documents = append(req.Documents, batchuc.DocumentInput{
			Filename: f.Name,
			Segments: []string{string(f.Data)},
			Metadata: metadataFromAPI(m),
		})
	}
	return req, nil
}

func readPart(fh *multipart.FileHeader) (document.File, error) {
	name := path.Base(strings.ReplaceAll(fh.Filename, `\`, "/"))
	if fh.Size > document.MaxFileSize {
		return document.File{}, domain.NewValidation("files", "%q is too large (max %d bytes)", name, document.MaxFileSize)
	}

	part, err := fh.Open()
	if err != nil {
		return document.File{}, fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = part.Close() }()

	data, err := io.ReadAll(io.LimitReader(part, document.MaxFileSize+1))
	if err != nil {
		return document.File{}, fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) > document.MaxFileSize {
		return document.File{}, domain.NewValidation("files", "%q is too large (max %d bytes)", name, document.MaxFileSize)
	}
	if !utf8.Valid(data) {
		return document.File{}, domain.NewValidation("files", "%q is not UTF-8 text", name)
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "text/plain; charset=utf-8"
	}
	return document.File{Name: name, ContentType: contentType, Data: data}, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}
