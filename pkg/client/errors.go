package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the fetch client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrFetchCancelled is returned when the context is cancelled before a
	// fetch could complete.
	ErrFetchCancelled = errors.New("fetch cancelled")
)

// ErrorClass represents a classification of fetch errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors (unknown SKU, auth
	// failure). Retrying cannot succeed.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors and request timeouts.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses from the vendor.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport-level errors (connection
	// refused, DNS failure, client-side timeout).
	ErrorClassNetwork ErrorClass = "network"
)

// APIError represents a vendor HTTP error with status context.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vendor error (status %d) on %s: %s: %v",
			e.StatusCode, e.Endpoint, e.Message, e.Err)
	}
	return fmt.Sprintf("vendor error (status %d) on %s: %s",
		e.StatusCode, e.Endpoint, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Classify categorizes a fetch error for retry decisions and observability.
// Any error that is not an *APIError is treated as a transport failure.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return ErrorClassNetwork
	}

	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case apiErr.StatusCode == http.StatusRequestTimeout:
		return ErrorClassServer
	case apiErr.StatusCode >= 500:
		return ErrorClassServer
	default:
		// 4xx, and 2xx responses whose payload was unusable: retrying
		// cannot fix either.
		return ErrorClassClient
	}
}

// shouldRetry determines if an error class is worth retrying.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassClient:
		// 4xx errors cannot succeed on retry
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
