package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorKind is the failure taxonomy of a single page request.
type ErrorKind string

const (
	// KindTransport covers connection failures and request timeouts.
	KindTransport ErrorKind = "transport"

	// KindHTTP covers non-2xx upstream status codes.
	KindHTTP ErrorKind = "http"

	// KindMalformed covers bodies that cannot be decoded as the expected JSON.
	KindMalformed ErrorKind = "malformed"

	// KindUnclassified covers any other request-level failure.
	KindUnclassified ErrorKind = "unclassified"
)

// SearchError is a failed page request with its classification.
type SearchError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	// Snippet holds the start of an undecodable body.
	Snippet string
	Err     error
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	msg := fmt.Sprintf("search %s error", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SearchError) Unwrap() error {
	return e.Err
}

// Classification is the retry decision for an error.
type Classification int

const (
	// Fatal errors abort the current bbox on first occurrence.
	Fatal Classification = iota

	// Retryable errors are retried up to the policy's attempt limit.
	Retryable
)

func (c Classification) String() string {
	if c == Retryable {
		return "retryable"
	}
	return "fatal"
}

// Classify maps an error onto the retry taxonomy.
// Transport and HTTP status errors are retryable; everything else is fatal.
func Classify(err error) Classification {
	var se *SearchError
	if !errors.As(err, &se) {
		return Fatal
	}
	switch se.Kind {
	case KindTransport, KindHTTP:
		return Retryable
	default:
		return Fatal
	}
}

// KindOf returns the ErrorKind of err, or KindUnclassified.
func KindOf(err error) ErrorKind {
	var se *SearchError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnclassified
}

// classifyTransportError wraps a failure returned by http.Client.Do.
// Cancellation of the caller's context is never a transport error.
func classifyTransportError(ctx context.Context, err error) *SearchError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &SearchError{Kind: KindUnclassified, Message: "request cancelled", Err: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &SearchError{Kind: KindTransport, Message: "request timeout", Err: err}
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &opErr), errors.As(err, &dnsErr):
		return &SearchError{Kind: KindTransport, Message: "connection failed", Err: err}
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED):
		return &SearchError{Kind: KindTransport, Message: "connection dropped", Err: err}
	}

	return &SearchError{Kind: KindUnclassified, Message: "request failed", Err: err}
}
