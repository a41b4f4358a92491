package client

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationFailed is returned once the retry budget is spent.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrRequestTimeout is returned when no response arrives in time.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrConnectionClosed is returned for requests pending when the
	// connection dropped.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrClientClosed is returned after Close.
	ErrClientClosed = errors.New("client closed")
)

// ValidationError reports a bad argument, detected before anything is sent.
type ValidationError struct {
	Field  string
	Reason string
}

// Error ...
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
