package storage

import (
	"errors"
	"os"
	"sort"

	"github.com/dgraph-io/badger"
	"github.com/linecrypto/clearnode/src/common"
)

// BadgerStorage persists values in a Badger database.
type BadgerStorage struct {
	db   *badger.DB
	path string
}

// NewBadgerStorage opens, or creates, the database in path.
func NewBadgerStorage(path string) (*BadgerStorage, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, common.WrapStoreErr("BadgerStorage", path, err)
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, common.WrapStoreErr("BadgerStorage", path, err)
	}

	return &BadgerStorage{
		db:   handle,
		path: path,
	}, nil
}

// Get implements Storage.
func (s *BadgerStorage) Get(key string) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, mapError(err, key)
	}

	return value, nil
}

// Set implements Storage.
func (s *BadgerStorage) Set(key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	return mapError(err, key)
}

// Delete implements Storage.
func (s *BadgerStorage) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return mapError(err, key)
}

// Keys implements Storage.
func (s *BadgerStorage) Keys(prefix string) ([]string, error) {
	res := []string{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			res = append(res, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})

	if err != nil {
		return nil, mapError(err, prefix)
	}

	sort.Strings(res)

	return res, nil
}

// Close implements Storage.
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

func mapError(err error, key string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return common.NewStoreErr("BadgerStorage", common.KeyNotFound, key)
	}
	return common.WrapStoreErr("BadgerStorage", key, err)
}
