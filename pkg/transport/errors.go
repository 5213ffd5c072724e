package transport

import (
	"fmt"
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/TLS/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// ClassifyStatus categorizes a non-success HTTP status.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// TransportError reports a request that did not complete.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("A HTTP error occurred: %s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatusError reports a completed request with a non-success status.
type HTTPStatusError struct {
	StatusCode int
	Body       []byte
}

// NewHTTPStatusError builds the error for resp.
func NewHTTPStatusError(resp *Response) *HTTPStatusError {
	return &HTTPStatusError{StatusCode: resp.StatusCode, Body: resp.Body}
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("Server returned HTTP status %d", e.StatusCode)
	}
	return fmt.Sprintf("Server returned HTTP status %d: %s", e.StatusCode, e.Body)
}

// Class returns the error class of the status.
func (e *HTTPStatusError) Class() ErrorClass {
	return ClassifyStatus(e.StatusCode)
}
