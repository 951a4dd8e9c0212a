// Package errors provides standardized error handling for the indexing
// pipeline.
package errors

import (
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout             ErrorCode = "QUERY_TIMEOUT"

	ErrCodeElasticsearchConnectionFailed ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"
	ErrCodeIndexWriteFailed              ErrorCode = "INDEX_WRITE_FAILED"
	ErrCodeIndexMappingFailed            ErrorCode = "INDEX_MAPPING_FAILED"
	ErrCodeIndexDeleteFailed             ErrorCode = "INDEX_DELETE_FAILED"

	ErrCodeResourceNotFound   ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeInvalidEvent       ErrorCode = "INVALID_EVENT"
	ErrCodeCoordinateInvalid  ErrorCode = "COORDINATE_INVALID"
	ErrCodeExtractionDegraded ErrorCode = "EXTRACTION_DEGRADED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(query string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("query: %s, error: %s", query, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewIndexWriteFailedError creates a retryable index write error carrying
// the failing resource id.
func NewIndexWriteFailedError(resourceID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeIndexWriteFailed,
		Message:   "Search index write error",
		Details:   err.Error(),
		Retryable: true,
		Metadata:  map[string]interface{}{"resourceId": resourceID},
		Timestamp: time.Now().UTC(),
	}
}

// NewResourceNotFoundError creates a non-retryable lookup error for a
// resource id that resolves to nothing. The enclosing task is dropped.
func NewResourceNotFoundError(resourceID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResourceNotFound,
		Message:   "Resource id does not resolve to a form response",
		Details:   fmt.Sprintf("resourceId: %s", resourceID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidEventError creates a non-retryable error for an event payload
// that failed schema validation.
func NewInvalidEventError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidEvent,
		Message:   "Malformed resource event",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
