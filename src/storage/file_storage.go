package storage

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/linecrypto/clearnode/src/common"
	"github.com/linecrypto/clearnode/src/crypto/keys"
)

const fileExt = ".dat"

// FileStorage writes one file per key under a directory. Files are created
// with user-only permissions and refused on read if anyone else can access
// them.
type FileStorage struct {
	mu  sync.Mutex
	dir string
}

// NewFileStorage creates dir if needed.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, common.WrapStoreErr("FileStorage", dir, err)
	}
	return &FileStorage{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (s *FileStorage) Dir() string {
	return s.dir
}

func (s *FileStorage) path(key string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+fileExt)
}

// Get implements Storage.
func (s *FileStorage) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.path(key)

	if err := keys.CheckUserOnly(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.NewStoreErr("FileStorage", common.KeyNotFound, key)
		}
		return nil, common.WrapStoreErr("FileStorage", key, err)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, common.WrapStoreErr("FileStorage", key, err)
	}

	return data, nil
}

// Set implements Storage. The value is written to a temporary file and
// renamed into place.
func (s *FileStorage) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.path(key)
	tmp := p + ".tmp"

	if err := os.WriteFile(tmp, value, 0600); err != nil {
		return common.WrapStoreErr("FileStorage", key, err)
	}

	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return common.WrapStoreErr("FileStorage", key, err)
	}

	return nil
}

// Delete implements Storage.
func (s *FileStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return common.WrapStoreErr("FileStorage", key, err)
	}

	return nil
}

// Keys implements Storage.
func (s *FileStorage) Keys(prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, common.WrapStoreErr("FileStorage", prefix, err)
	}

	res := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}

		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}

		if k := string(raw); strings.HasPrefix(k, prefix) {
			res = append(res, k)
		}
	}
	sort.Strings(res)

	return res, nil
}

// Close implements Storage.
func (s *FileStorage) Close() error {
	return nil
}
