// Package errors provides standardized error handling for the chat API.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrCodeExtractionFailed    ErrorCode = "EXTRACTION_FAILED"
	ErrCodeInvalidProfileValue ErrorCode = "INVALID_PROFILE_VALUE"

	ErrCodeRetrievalEmpty  ErrorCode = "RETRIEVAL_EMPTY"
	ErrCodeRetrievalFailed ErrorCode = "RETRIEVAL_FAILED"

	ErrCodeUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeTurnCancelled   ErrorCode = "TURN_CANCELLED"

	ErrCodeTelemetryEmitFailed ErrorCode = "TELEMETRY_EMIT_FAILED"
	ErrCodeKnowledgeLoadFailed ErrorCode = "KNOWLEDGE_LOAD_FAILED"

	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	ErrCodeInternal    ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key to the error's metadata and returns the error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: IsRetryableErrorCode(code),
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func detailsOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 2. Error Constructors
// ==========================

// NewInvalidRequestError creates a non-retryable request shape error.
func NewInvalidRequestError(details string) *StandardError {
	return newError(ErrCodeInvalidRequest, "Request failed validation", details, nil)
}

// NewExtractionFailedError reports that the profile extractor could not run.
func NewExtractionFailedError(err error) *StandardError {
	return newError(ErrCodeExtractionFailed, "Profile extraction failed", detailsOf(err), err)
}

// NewInvalidProfileValueError reports a value outside its field's domain.
func NewInvalidProfileValueError(field, value string) *StandardError {
	return newError(ErrCodeInvalidProfileValue, "Profile value rejected",
		fmt.Sprintf("field: %s, value: %q", field, value), nil).
		WithMetadata("field", field)
}

// NewRetrievalEmptyError is returned when no chunk matches the query.
func NewRetrievalEmptyError(details string) *StandardError {
	return newError(ErrCodeRetrievalEmpty, "No knowledge matched the query", details, nil)
}

// NewRetrievalFailedError creates a retryable knowledge backend error.
func NewRetrievalFailedError(backend string, err error) *StandardError {
	return newError(ErrCodeRetrievalFailed, "Knowledge retrieval failed",
		fmt.Sprintf("backend: %s, error: %s", backend, detailsOf(err)), err).
		WithMetadata("backend", backend)
}

// NewUpstreamTimeoutError creates a retryable deadline error.
func NewUpstreamTimeoutError(stage string, err error) *StandardError {
	return newError(ErrCodeUpstreamTimeout, "Turn exceeded its deadline",
		fmt.Sprintf("stage: %s", stage), err).
		WithMetadata("stage", stage)
}

// NewTurnCancelledError reports that the caller went away mid-turn.
func NewTurnCancelledError(stage string, err error) *StandardError {
	return newError(ErrCodeTurnCancelled, "Turn cancelled by caller",
		fmt.Sprintf("stage: %s", stage), err).
		WithMetadata("stage", stage)
}

// NewTelemetryEmitFailedError is logged, never returned to a caller.
func NewTelemetryEmitFailedError(err error) *StandardError {
	return newError(ErrCodeTelemetryEmitFailed, "Telemetry delivery failed", detailsOf(err), err)
}

// NewKnowledgeLoadFailedError reports a corpus that could not be loaded or validated.
func NewKnowledgeLoadFailedError(source string, err error) *StandardError {
	return newError(ErrCodeKnowledgeLoadFailed, "Knowledge corpus load failed",
		fmt.Sprintf("source: %s, error: %s", source, detailsOf(err)), err).
		WithMetadata("source", source)
}

func NewRateLimitedError() *StandardError {
	return newError(ErrCodeRateLimited, "Too many requests", "", nil)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", detailsOf(err), err)
}

// ==========================
// 3. Utility Functions
// ==========================

// GetRetryCount returns how many times a client may reasonably retry.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeRetrievalFailed:
		return 3

	case ErrCodeUpstreamTimeout,
		ErrCodeRateLimited:
		return 2

	case ErrCodeTelemetryEmitFailed:
		return 1

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "RETRIEVAL") || strings.Contains(codeStr, "KNOWLEDGE"):
		return "KNOWLEDGE"
	case strings.Contains(codeStr, "PROFILE") || strings.Contains(codeStr, "EXTRACTION"):
		return "PROFILE"
	case strings.Contains(codeStr, "TIMEOUT") || strings.Contains(codeStr, "CANCELLED"):
		return "DEADLINE"
	case strings.Contains(codeStr, "TELEMETRY"):
		return "TELEMETRY"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "RATE"):
		return "CLIENT"
	default:
		return "OTHER"
	}
}

// HTTPStatus maps an error code to the status the chat API answers with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidRequest, ErrCodeInvalidProfileValue:
		return http.StatusBadRequest
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeRetrievalFailed, ErrCodeKnowledgeLoadFailed:
		return http.StatusServiceUnavailable
	case ErrCodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeTurnCancelled:
		return 499
	case ErrCodeRetrievalEmpty:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// AsStandardError finds a StandardError in err's chain, or wraps err as INTERNAL_ERROR.
func AsStandardError(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// CodeOf returns the error code carried by err, or the empty code.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}
