package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cdcr/internal/domain"
	dombatch "github.com/kailas-cloud/cdcr/internal/domain/batch"
	"github.com/kailas-cloud/cdcr/internal/domain/document"
	"github.com/kailas-cloud/cdcr/internal/logger"
	"github.com/kailas-cloud/cdcr/internal/transport/api"
	batchuc "github.com/kailas-cloud/cdcr/internal/usecase/batch"
	fileuc "github.com/kailas-cloud/cdcr/internal/usecase/file"
	healthuc "github.com/kailas-cloud/cdcr/internal/usecase/health"
	queryuc "github.com/kailas-cloud/cdcr/internal/usecase/query"
)

// DefaultMaxUploadBytes bounds a multipart upload request.
const DefaultMaxUploadBytes = 64 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server implements api.ServerInterface.
type Server struct {
	batches        *batchuc.Service
	queries        *queryuc.Service
	files          *fileuc.Service
	health         *healthuc.Service
	logger         *zap.Logger
	maxUploadBytes int64
	errorHandlers  []errorHandler
}

var _ api.ServerInterface = (*Server)(nil)

// NewServer creates an HTTP API server.
func NewServer(
	batches *batchuc.Service,
	queries *queryuc.Service,
	files *fileuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		batches:        batches,
		queries:        queries,
		files:          files,
		health:         health,
		logger:         logger,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	s.errorHandlers = []errorHandler{
		validationHandler,
		notFoundHandler,
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, api.ErrorResponseCodeValidationFailed),
		sentinelHandler(domain.ErrDetectionProviderError,
			http.StatusBadGateway, api.ErrorResponseCodeDetectionProviderError),
		sentinelHandler(domain.ErrEmbeddingProviderError,
			http.StatusBadGateway, api.ErrorResponseCodeEmbeddingProviderError),
		tooLargeHandler,
	}
	return s
}

// WithMaxUploadBytes configures the multipart upload limit.
func (s *Server) WithMaxUploadBytes(n int64) *Server {
	if n > 0 {
		s.maxUploadBytes = n
	}
	return s
}

// CreateBatch handles POST /api/v1/batches.
func (s *Server) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req api.CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, api.ErrorResponseCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	docs, err := documentsFromAPI(req.Documents)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	b, err := s.batches.Ingest(ctx, batchuc.IngestRequest{
		Documents: docs,
		Cluster:   derefBool(req.Cluster, true),
		Cutoff:    req.Cutoff,
	})
	setEmbeddingHeaders(w, usage)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, batchToAPI(b, true))
}

// GetBatch handles GET /api/v1/batches/{batch}.
func (s *Server) GetBatch(w http.ResponseWriter, r *http.Request, batch api.BatchID) {
	b, err := s.batches.Get(r.Context(), batch)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batchToAPI(b, false))
}

// DeleteBatch handles DELETE /api/v1/batches/{batch}.
func (s *Server) DeleteBatch(w http.ResponseWriter, r *http.Request, batch api.BatchID) {
	if err := s.batches.Delete(r.Context(), batch); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClusterBatch handles POST /api/v1/batches/{batch}/cluster.
func (s *Server) ClusterBatch(w http.ResponseWriter, r *http.Request, batch api.BatchID) {
	var req api.ClusterBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, api.ErrorResponseCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	b, err := s.batches.Cluster(r.Context(), batch, req.Cutoff)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batchToAPI(b, true))
}

// ListClusters handles GET /api/v1/batches/{batch}/clusters.
func (s *Server) ListClusters(w http.ResponseWriter, r *http.Request, batch api.BatchID) {
	view, err := s.queries.Clusters(r.Context(), batch)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ClustersResponse{
		Clusters:     view.Clusters,
		FileMentions: view.FileMentions,
		ClusterCount: view.Count,
		Degenerate:   view.Degenerate,
	})
}

// FilterMentions handles GET /api/v1/batches/{batch}/filter.
func (s *Server) FilterMentions(
	w http.ResponseWriter,
	r *http.Request,
	batch api.BatchID,
	params api.FilterMentionsParams,
) {
	res, err := s.queries.Filter(r.Context(), batch, params.Field, params.Value)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FilterResponse{
		Mentions:   res.Mentions,
		Files:      res.Files,
		Count:      res.Count,
		Degenerate: res.Degenerate,
	})
}

// GetFile handles GET /api/v1/batches/{batch}/files/{filename}.
func (s *Server) GetFile(w http.ResponseWriter, r *http.Request, batch api.BatchID, filename api.Filename) {
	f, err := s.files.Open(r.Context(), batch, filename)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}

// PutFile handles PUT /api/v1/batches/{batch}/files/{filename}.
func (s *Server) PutFile(w http.ResponseWriter, r *http.Request, batch api.BatchID, filename api.Filename) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, document.MaxFileSize))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	err = s.files.Save(r.Context(), batch, document.File{
		Name:        filename,
		ContentType: r.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, api.HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// ParamErrorHandler renders parameter binding failures.
func ParamErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	var required *api.RequiredParamError
	if errors.As(err, &required) {
		writeFieldError(w, http.StatusBadRequest, api.ErrorResponseCodeValidationFailed, err.Error(), required.ParamName)
		return
	}
	var invalid *api.InvalidParamFormatError
	if errors.As(err, &invalid) {
		writeFieldError(w, http.StatusBadRequest, api.ErrorResponseCodeBadRequest, err.Error(), invalid.ParamName)
		return
	}
	writeError(w, http.StatusBadRequest, api.ErrorResponseCodeBadRequest, "invalid request")
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code api.ErrorResponseCode, message string) {
	writeJSON(w, status, api.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeFieldError(w http.ResponseWriter, status int, code api.ErrorResponseCode, message, field string) {
	writeJSON(w, status, api.ErrorResponse{
		Code:    code,
		Message: message,
		Field:   &field,
	})
}

// validationHandler reports the offending field of a ValidationError.
func validationHandler(w http.ResponseWriter, err error) bool {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	code := api.ErrorResponseCodeValidationFailed
	if errors.Is(err, domain.ErrNotClustered) {
		code = api.ErrorResponseCodeBatchNotClustered
	}
	if ve.Field == "" {
		writeError(w, http.StatusBadRequest, code, ve.Error())
		return true
	}
	writeFieldError(w, http.StatusBadRequest, code, ve.Error(), ve.Field)
	return true
}

func notFoundHandler(w http.ResponseWriter, err error) bool {
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		return false
	}
	writeError(w, http.StatusNotFound, api.ErrorResponseCodeNotFound, nf.Error())
	return true
}

func tooLargeHandler(w http.ResponseWriter, err error) bool {
	var mbe *http.MaxBytesError
	if !errors.As(err, &mbe) {
		return false
	}
	writeError(w, http.StatusRequestEntityTooLarge, api.ErrorResponseCodePayloadTooLarge, mbe.Error())
	return true
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// Only the sentinel text reaches the client.
func sentinelHandler(sentinel error, status int, code api.ErrorResponseCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("unhandled error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, api.ErrorResponseCodeInternalError, "internal error")
}

func batchToAPI(b *dombatch.Batch, withClusters bool) api.BatchResponse {
	files := b.Filenames()
	resp := api.BatchResponse{
		ID:            b.ID(),
		State:         string(b.State()),
		CreatedAt:     b.CreatedAt(),
		Files:         files,
		DocumentCount: len(files),
		MentionCount:  b.Mentions().Len(),
	}

	idx, err := b.Index()
	if err != nil {
		return resp
	}
	clusteredAt := b.ClusteredAt()
	cutoff := b.Cutoff()
	metric := string(b.Metric())
	count := idx.Len()
	resp.ClusteredAt = &clusteredAt
	resp.Cutoff = &cutoff
	resp.Metric = &metric
	resp.ClusterCount = &count
	if withClusters {
		clusters := idx.Clusters()
		resp.Clusters = &clusters
	}
	return resp
}

func derefBool(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
