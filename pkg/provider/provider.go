// Package provider holds types shared by every capability provider package
// (stt, translate, tts).
//
// Vendor tiers report HTTP-level failures as [*APIError] so that the
// resilience layer can classify them without importing vendor SDKs.
package provider

import (
	"fmt"
	"net/http"
)

// APIError is returned by provider implementations when the remote service
// answers with a non-success HTTP status.
type APIError struct {
	// Provider is the short provider name (e.g., "openai", "deepgram").
	Provider string

	// StatusCode is the HTTP status code returned by the service.
	StatusCode int

	// Body is a truncated copy of the response body, for logging only.
	Body string

	// Err is the underlying SDK error, if any.
	Err error
}

// Error implements error.
func (e *APIError) Error() string {
	msg := e.Body
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, msg)
}

// Unwrap returns the underlying SDK error.
func (e *APIError) Unwrap() error { return e.Err }

// HTTPStatus returns the HTTP status code of the failed call.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// maxBodyLen caps the amount of response body kept in an [APIError].
const maxBodyLen = 512

// NewAPIError builds an [APIError] from a raw response body, truncating the
// body to a log-friendly length.
func NewAPIError(providerName string, status int, body []byte) *APIError {
	b := string(body)
	if len(b) > maxBodyLen {
		b = b[:maxBodyLen] + "…"
	}
	return &APIError{Provider: providerName, StatusCode: status, Body: b}
}
