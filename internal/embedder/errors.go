package embedder

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common errors
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrEmptyText           = errors.New("text cannot be empty")
	ErrBatchTooLarge       = errors.New("batch size exceeds limit")
	ErrProviderFailed      = errors.New("embedding provider failed")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrEmptyResponse       = errors.New("embedding response contains no data")
	ErrEmptyEmbedding      = errors.New("embedding vector is empty")
)

// Failure kinds carried by APIError
var (
	ErrRateLimited       = errors.New("rate limited")
	ErrServerError       = errors.New("server error")
	ErrRequestRejected   = errors.New("request rejected")
	ErrMalformedResponse = errors.New("malformed response")
)

// APIError describes a failed embedding service call. Kind classifies
// the failure and is reachable through errors.Is.
type APIError struct {
	StatusCode int
	Kind       error
	Body       string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("embedding api: %v (status %d)", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("embedding api: %v (status %d): %s", e.Kind, e.StatusCode, e.Body)
}

// Unwrap returns the failure kind sentinel
func (e *APIError) Unwrap() error {
	return e.Kind
}

// Retryable reports whether the failure class is transient
func (e *APIError) Retryable() bool {
	return errors.Is(e.Kind, ErrRateLimited) || errors.Is(e.Kind, ErrServerError)
}

// InputTooLong reports whether the service rejected the request because
// an input exceeded its length limit. Such failures are worth a
// truncation retry; other rejections are not.
func (e *APIError) InputTooLong() bool {
	if e.StatusCode == http.StatusRequestEntityTooLarge {
		return true
	}
	if e.StatusCode != http.StatusBadRequest {
		return false
	}
	body := strings.ToLower(e.Body)
	return strings.Contains(body, "too long") ||
		strings.Contains(body, "maximum context") ||
		strings.Contains(body, "token") ||
		strings.Contains(body, "length")
}

// newAPIError classifies an HTTP failure by status code
func newAPIError(statusCode int, body string) *APIError {
	kind := ErrRequestRejected
	switch {
	case statusCode == http.StatusTooManyRequests:
		kind = ErrRateLimited
	case statusCode >= 500:
		kind = ErrServerError
	}
	return &APIError{StatusCode: statusCode, Kind: kind, Body: clipBody(body)}
}

// clipBody caps stored response bodies at a readable length
func clipBody(body string) string {
	const maxBody = 512
	if len(body) <= maxBody {
		return body
	}
	return body[:maxBody] + "..."
}
