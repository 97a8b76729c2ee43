// internal/common/errors/handler.go
package errors

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorHandler writes failed requests as JSON error bodies.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// ErrorResponse is the body of every non-2xx chat API response.
type ErrorResponse struct {
	RequestID string         `json:"request_id,omitempty"`
	Error     *StandardError `json:"error"`
}

// WriteError normalizes err, logs it and writes the response.
func (h *ErrorHandler) WriteError(w http.ResponseWriter, requestID string, err error) *StandardError {
	stdErr := h.normalizeError(err)
	status := HTTPStatus(stdErr.Code)

	h.logError(requestID, status, stdErr)

	w.Header().Set("Content-Type", "application/json")
	if stdErr.Retryable {
		w.Header().Set("Retry-After", strconv.Itoa(GetRetryCount(stdErr.Code)))
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{RequestID: requestID, Error: stdErr})
	return stdErr
}

// normalizeError ensures we always have a StandardError
func (h *ErrorHandler) normalizeError(err error) *StandardError {
	if err == nil {
		return NewInternalError(nil)
	}
	return AsStandardError(err)
}

func (h *ErrorHandler) logError(requestID string, status int, stdErr *StandardError) {
	if h.logger == nil {
		return
	}
	h.logger.Error("Request failed", map[string]interface{}{
		"requestId":     requestID,
		"status":        status,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"retries":       GetRetryCount(stdErr.Code),
		"errorCategory": GetErrorCategory(stdErr.Code),
	})
}
