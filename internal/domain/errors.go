package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals invalid input. Nothing is stored when it is returned.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals a missing batch or file.
	ErrNotFound = errors.New("not found")
	// ErrVectorDimMismatch signals mention vectors of different dimensionality within one batch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrNotClustered signals a query against a batch whose clustering has not been computed.
	ErrNotClustered = errors.New("batch not clustered")
	// ErrDetectionProviderError signals a mention detection provider failure.
	ErrDetectionProviderError = errors.New("detection provider error")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// ValidationError names the input that failed validation.
type ValidationError struct {
	Field  string
	Reason string
	// Err is an optional more specific sentinel (e.g. ErrVectorDimMismatch).
	Err error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Field, e.Reason)
}

// Unwrap exposes both ErrValidation and the optional specific sentinel.
func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// NewValidation creates a ValidationError for field.
func NewValidation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError names the missing resource.
type NotFoundError struct {
	Kind string // "batch", "file"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q %s", e.Kind, e.Name, ErrNotFound.Error())
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFound creates a NotFoundError.
func NewNotFound(kind, name string) error {
	return &NotFoundError{Kind: kind, Name: name}
}
