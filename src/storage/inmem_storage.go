package storage

import (
	"sort"
	"strings"
	"sync"

	"github.com/linecrypto/clearnode/src/common"
)

// InmemStorage keeps values for the lifetime of the process.
type InmemStorage struct {
	mu     sync.RWMutex
	values map[string][]byte
	closed bool
}

// NewInmemStorage ...
func NewInmemStorage() *InmemStorage {
	return &InmemStorage{
		values: make(map[string][]byte),
	}
}

// Get implements Storage.
func (s *InmemStorage) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, common.NewStoreErr("InmemStorage", common.Closed, key)
	}

	v, ok := s.values[key]
	if !ok {
		return nil, common.NewStoreErr("InmemStorage", common.KeyNotFound, key)
	}

	res := make([]byte, len(v))
	copy(res, v)

	return res, nil
}

// Set implements Storage.
func (s *InmemStorage) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return common.NewStoreErr("InmemStorage", common.Closed, key)
	}

	v := make([]byte, len(value))
	copy(v, value)
	s.values[key] = v

	return nil
}

// Delete implements Storage. Deleting a missing key is not an error.
func (s *InmemStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return common.NewStoreErr("InmemStorage", common.Closed, key)
	}

	delete(s.values, key)

	return nil
}

// Keys implements Storage.
func (s *InmemStorage) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, common.NewStoreErr("InmemStorage", common.Closed, prefix)
	}

	res := []string{}
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			res = append(res, k)
		}
	}
	sort.Strings(res)

	return res, nil
}

// Close implements Storage.
func (s *InmemStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
