package rpc

import "fmt"

// PeerError is an error reported by the broker, either in an "error" frame or
// inside a result.
type PeerError struct {
	Method  string
	Message string
}

// Error ...
func (e *PeerError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("peer error: %s", e.Message)
	}
	return fmt.Sprintf("peer error (%s): %s", e.Method, e.Message)
}
