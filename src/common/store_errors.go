package common

import "fmt"

// StoreErrType enumerates the failure modes of a key/value backend.
type StoreErrType uint32

const (
	// KeyNotFound means no value is stored under the key.
	KeyNotFound StoreErrType = iota
	// Corrupt means a value exists but cannot be decoded.
	Corrupt
	// Closed means the backend was closed.
	Closed
	// Io wraps an underlying filesystem or database error.
	Io
)

// StoreErr is the error returned by storage backends.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
	cause    error
}

// NewStoreErr ...
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// WrapStoreErr returns an Io StoreErr carrying cause.
func WrapStoreErr(dataType string, key string, cause error) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  Io,
		key:      key,
		cause:    cause,
	}
}

// Error ...
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case Corrupt:
		m = "Corrupt"
	case Closed:
		m = "Closed"
	case Io:
		m = "IO"
	}

	if e.cause != nil {
		return fmt.Sprintf("%s, %s, %s: %v", e.dataType, e.key, m, e.cause)
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// Unwrap returns the underlying cause, if any.
func (e StoreErr) Unwrap() error {
	return e.cause
}

// IsStore checks that an error is of type StoreErr and that it's code matches
// the provided StoreErr code.
func IsStore(err error, t StoreErrType) bool {
	storeErr, ok := err.(StoreErr)
	return ok && storeErr.errType == t
}
