package storage

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/linecrypto/clearnode/src/common"
)

const headerFile = "vault.json"

// EncryptedFileStorage is a FileStorage whose values are sealed with
// chacha20poly1305 under a key derived from a passphrase with scrypt. The key
// is derived once, when the vault is opened.
type EncryptedFileStorage struct {
	files *FileStorage
	key   []byte
}

// NewEncryptedFileStorage opens the vault in dir, creating it on first use.
// It returns ErrWrongPassphrase if the vault exists and passphrase does not
// open it.
func NewEncryptedFileStorage(dir string, passphrase string, params ScryptParams) (*EncryptedFileStorage, error) {
	files, err := NewFileStorage(dir)
	if err != nil {
		return nil, err
	}

	hp := filepath.Join(dir, headerFile)

	data, err := os.ReadFile(hp)
	switch {
	case err == nil:
		var h vaultHeader
		if err := json.Unmarshal(data, &h); err != nil {
			return nil, common.NewStoreErr("EncryptedFileStorage", common.Corrupt, headerFile)
		}
		key, err := deriveKey(passphrase, h.Salt, h.Params)
		if err != nil {
			return nil, err
		}
		if err := h.verify(key); err != nil {
			return nil, err
		}
		return &EncryptedFileStorage{files: files, key: key}, nil

	case errors.Is(err, os.ErrNotExist):
		salt := make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
		key, err := deriveKey(passphrase, salt, params)
		if err != nil {
			return nil, err
		}
		h, err := newHeader(key, salt, params)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(h)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(hp, raw, 0600); err != nil {
			return nil, common.WrapStoreErr("EncryptedFileStorage", headerFile, err)
		}
		return &EncryptedFileStorage{files: files, key: key}, nil

	default:
		return nil, common.WrapStoreErr("EncryptedFileStorage", headerFile, err)
	}
}

// Get implements Storage.
func (s *EncryptedFileStorage) Get(key string) ([]byte, error) {
	blob, err := s.files.Get(key)
	if err != nil {
		return nil, err
	}

	pt, err := open(s.key, blob, []byte(key))
	if err != nil {
		return nil, common.NewStoreErr("EncryptedFileStorage", common.Corrupt, key)
	}

	return pt, nil
}

// Set implements Storage.
func (s *EncryptedFileStorage) Set(key string, value []byte) error {
	blob, err := seal(s.key, value, []byte(key))
	if err != nil {
		return common.WrapStoreErr("EncryptedFileStorage", key, err)
	}
	return s.files.Set(key, blob)
}

// Delete implements Storage.
func (s *EncryptedFileStorage) Delete(key string) error {
	return s.files.Delete(key)
}

// Keys implements Storage. Key names are not encrypted.
func (s *EncryptedFileStorage) Keys(prefix string) ([]string, error) {
	return s.files.Keys(prefix)
}

// Close implements Storage. It wipes the derived key.
func (s *EncryptedFileStorage) Close() error {
	for i := range s.key {
		s.key[i] = 0
	}
	return s.files.Close()
}
