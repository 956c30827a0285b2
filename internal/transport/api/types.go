// Package api defines the HTTP contract of the cdcr service: request and response bodies,
// the ServerInterface implemented by the chi transport and the route wiring that binds
// path and query parameters before calling it.
package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/cdcr/internal/domain/document"
)

// ErrorResponseCode is a machine-readable error code.
type ErrorResponseCode string

// Error codes.
const (
	ErrorResponseCodeBadRequest             ErrorResponseCode = "bad_request"
	ErrorResponseCodeValidationFailed       ErrorResponseCode = "validation_failed"
	ErrorResponseCodeBatchNotClustered      ErrorResponseCode = "batch_not_clustered"
	ErrorResponseCodeNotFound               ErrorResponseCode = "not_found"
	ErrorResponseCodeUnauthorized           ErrorResponseCode = "unauthorized"
	ErrorResponseCodePayloadTooLarge        ErrorResponseCode = "payload_too_large"
	ErrorResponseCodeDetectionProviderError ErrorResponseCode = "detection_provider_error"
	ErrorResponseCodeEmbeddingProviderError ErrorResponseCode = "embedding_provider_error"
	ErrorResponseCodeInternalError          ErrorResponseCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorResponseCode `json:"code"`
	Message string            `json:"message"`
	Field   *string           `json:"field,omitempty"`
}

// BatchID is the {batch} path parameter.
type BatchID = string

// Filename is the {filename} path parameter.
type Filename = string

// Keywords accepts either a JSON list or a comma/semicolon separated string.
type Keywords []string

// UnmarshalJSON implements json.Unmarshaler.
func (k *Keywords) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*k = list
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("keywords must be a string or a list of strings")
	}
	*k = document.ParseKeywords(raw)
	return nil
}

// Metadata holds the filterable descriptive fields of a document.
type Metadata struct {
	Author   *string  `json:"author,omitempty"`
	Title    *string  `json:"title,omitempty"`
	Keywords Keywords `json:"keywords,omitempty"`
}

// MentionInput is a caller-supplied mention.
type MentionInput struct {
	Text    string     `json:"text"`
	Label   *string    `json:"label,omitempty"`
	Segment *int       `json:"segment,omitempty"`
	Vector  *[]float32 `json:"vector,omitempty"`
}

// DocumentInput is one document of a batch. Either Segments or Text carries the content.
// Omitting Mentions runs mention detection.
type DocumentInput struct {
	Filename string          `json:"filename"`
	Segments *[]string       `json:"segments,omitempty"`
	Text     *string         `json:"text,omitempty"`
	Metadata *Metadata       `json:"metadata,omitempty"`
	Mentions *[]MentionInput `json:"mentions,omitempty"`
}

// CreateBatchRequest is the body of POST /api/v1/batches.
type CreateBatchRequest struct {
	Documents []DocumentInput `json:"documents"`
	Cluster   *bool           `json:"cluster,omitempty"`
	Cutoff    *float64        `json:"cutoff,omitempty"`
}

// ClusterBatchRequest is the optional body of POST /api/v1/batches/{batch}/cluster.
type ClusterBatchRequest struct {
	Cutoff *float64 `json:"cutoff,omitempty"`
}

// BatchResponse summarizes a batch.
type BatchResponse struct {
	ID            string               `json:"id"`
	State         string               `json:"state"`
	CreatedAt     time.Time            `json:"created_at"`
	ClusteredAt   *time.Time           `json:"clustered_at,omitempty"`
	Cutoff        *float64             `json:"cutoff,omitempty"`
	Metric        *string              `json:"metric,omitempty"`
	Files         []string             `json:"files"`
	DocumentCount int                  `json:"document_count"`
	MentionCount  int                  `json:"mention_count"`
	ClusterCount  *int                 `json:"cluster_count,omitempty"`
	Clusters      *map[string][]string `json:"clusters,omitempty"`
}

// UploadResponse is the body of POST /api/v1/upload.
type UploadResponse struct {
	BatchID      string              `json:"batch_id"`
	FilePaths    []string            `json:"file_paths"`
	Clusters     map[string][]string `json:"clusters"`
	FileMentions map[string][]string `json:"file_mentions"`
}

// ClustersResponse is the body of GET /api/v1/batches/{batch}/clusters.
type ClustersResponse struct {
	Clusters     map[string][]string `json:"clusters"`
	FileMentions map[string][]string `json:"file_mentions"`
	ClusterCount int                 `json:"cluster_count"`
	Degenerate   bool                `json:"degenerate"`
}

// FilterResponse is the body of GET /api/v1/batches/{batch}/filter.
type FilterResponse struct {
	Mentions   []string            `json:"mentions"`
	Files      map[string][]string `json:"files"`
	Count      int                 `json:"count"`
	Degenerate bool                `json:"degenerate"`
}

// FilterMentionsParams are the query parameters of the filter endpoint.
type FilterMentionsParams struct {
	Field string `form:"field" json:"field"`
	Value string `form:"value" json:"value"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
