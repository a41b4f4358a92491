// Package storage provides the small key/value abstraction the client
// persists its credentials and application sessions in.
//
// Four backends are available: an in-memory map, a directory of plain files,
// a directory of files sealed under a passphrase, and a Badger database.
// Missing keys are reported with a common.StoreErr of type KeyNotFound.
package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Storage is a string-keyed byte store.
type Storage interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	// Keys returns the stored keys starting with prefix, sorted.
	Keys(prefix string) ([]string, error)
	Close() error
}

// Backend names accepted by New.
const (
	InmemBackend     = "inmem"
	FileBackend      = "file"
	EncryptedBackend = "encrypted"
	BadgerBackend    = "badger"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string
	Dir        string
	Passphrase string
}

// New opens the backend described by opts. File based backends create Dir if
// needed.
func New(opts Options) (Storage, error) {
	switch strings.ToLower(opts.Backend) {
	case "", InmemBackend:
		return NewInmemStorage(), nil
	case FileBackend:
		return NewFileStorage(filepath.Join(opts.Dir, "store"))
	case EncryptedBackend:
		if opts.Passphrase == "" {
			return nil, fmt.Errorf("encrypted storage requires a passphrase")
		}
		return NewEncryptedFileStorage(filepath.Join(opts.Dir, "vault"), opts.Passphrase, DefaultScryptParams())
	case BadgerBackend:
		return NewBadgerStorage(filepath.Join(opts.Dir, "badger_db"))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
