package transport

import (
	"fmt"
	"net/http"
)

// RequestError is a completed exchange with a non-2xx status. Message holds
// the raw response body text.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return e.Message
}

// Temporary reports whether the status suggests a retry may succeed.
// The executor itself never retries.
func (e *RequestError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// TransportError is a failure with no usable response: DNS, connection,
// TLS, a body that broke mid-read, or the caller's context ending.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
