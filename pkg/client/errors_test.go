package client

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil error", nil, ""},
		{"400 bad request", &APIError{StatusCode: 400}, ErrorClassClient},
		{"401 unauthorized", &APIError{StatusCode: 401}, ErrorClassClient},
		{"404 not found", &APIError{StatusCode: 404}, ErrorClassClient},
		{"408 request timeout", &APIError{StatusCode: 408}, ErrorClassServer},
		{"429 too many requests", &APIError{StatusCode: 429}, ErrorClassRateLimit},
		{"500 internal", &APIError{StatusCode: 500}, ErrorClassServer},
		{"503 unavailable", &APIError{StatusCode: 503}, ErrorClassServer},
		{"wrapped api error", fmt.Errorf("fetch: %w", &APIError{StatusCode: 502}), ErrorClassServer},
		{"plain error", errors.New("connection refused"), ErrorClassNetwork},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, ErrorClassNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  bool
	}{
		{ErrorClassClient, false},
		{ErrorClassServer, true},
		{ErrorClassRateLimit, true},
		{ErrorClassNetwork, true},
		{"", false},
	}

	for _, tt := range tests {
		if got := shouldRetry(tt.class); got != tt.want {
			t.Errorf("shouldRetry(%q) = %v, want %v", tt.class, got, tt.want)
		}
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{
		StatusCode: 503,
		Endpoint:   "/api/v1/realtimepricing",
		Message:    "Service Unavailable",
	}

	msg := err.Error()
	if !strings.Contains(msg, "503") {
		t.Errorf("Error() = %q, want status code included", msg)
	}
	if !strings.Contains(msg, "/api/v1/realtimepricing") {
		t.Errorf("Error() = %q, want endpoint included", msg)
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("decode payload")
	err := &APIError{StatusCode: 200, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}

	var apiErr *APIError
	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.As(wrapped, &apiErr) {
		t.Error("errors.As should find *APIError through wrapping")
	}
}
