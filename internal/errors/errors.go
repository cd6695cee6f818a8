// Package errors defines the error kinds surfaced by the FeatherStore client.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ConnError reports a transport-level failure (DNS, TLS handshake,
// connection reset) for which no HTTP response was obtained.
type ConnError struct {
	// Op is the high-level operation that failed (e.g. "PUT /a.txt").
	Op string
	// Host is the endpoint host the client was talking to.
	Host string
	// Err is the underlying transport error.
	Err error
}

// Error implements the error interface for ConnError.
func (e *ConnError) Error() string {
	return fmt.Sprintf("connection error: %s to %s: %v", e.Op, e.Host, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *ConnError) Unwrap() error { return e.Err }

// StatusError reports an HTTP response with an unexpected status code.
// Authentication failures are not distinguished from other API errors: the
// server's status, reason, and body are carried as-is.
type StatusError struct {
	// Method is the HTTP method of the failed request.
	Method string
	// Path is the request path.
	Path string
	// Status is the HTTP status code received.
	Status int
	// Body is the (possibly truncated) response body, useful for the
	// XML error payloads S3-compatible servers return.
	Body string
}

// Error implements the error interface for StatusError.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// IsNotFound reports whether err is a StatusError with HTTP status 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return stderrors.As(err, &se) && se.Status == 404
}

// ProtocolError reports an XML response missing an element the protocol
// requires, e.g. an absent Location after multipart completion.
type ProtocolError struct {
	// Element is the name of the missing XML element.
	Element string
}

// Error implements the error interface for ProtocolError.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: response missing %s element", e.Element)
}

// Sentinel errors for local (non-HTTP) failure conditions.
var (
	// ErrClosed is returned by operations on a closed remote file.
	ErrClosed = stderrors.New("remote file is closed")

	// ErrNegativeOffset is returned by seeks that would place the
	// cursor before the start of the file.
	ErrNegativeOffset = stderrors.New("seek before start of file")

	// ErrUploadState is returned when a multipart operation is issued
	// out of sequence (e.g. a part upload after completion).
	ErrUploadState = stderrors.New("multipart upload is not active")
)
