package storage

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/linecrypto/clearnode/src/common"
)

func fastParams() ScryptParams {
	return ScryptParams{N: 1 << 4, R: 8, P: 1}
}

func backends(t *testing.T) map[string]Storage {
	t.Helper()

	files, err := NewFileStorage(filepath.Join(t.TempDir(), "files"))
	if err != nil {
		t.Fatal(err)
	}

	enc, err := NewEncryptedFileStorage(filepath.Join(t.TempDir(), "vault"), "correct horse", fastParams())
	if err != nil {
		t.Fatal(err)
	}

	bdg, err := NewBadgerStorage(filepath.Join(t.TempDir(), "badger"))
	if err != nil {
		t.Fatal(err)
	}

	res := map[string]Storage{
		"inmem":     NewInmemStorage(),
		"file":      files,
		"encrypted": enc,
		"badger":    bdg,
	}

	t.Cleanup(func() {
		for _, s := range res {
			s.Close()
		}
	})

	return res
}

func TestStorageBackends(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get("missing"); !common.IsStore(err, common.KeyNotFound) {
				t.Fatalf("expected KeyNotFound, got %v", err)
			}

			if err := s.Set("clearnode_jwt", []byte("tok1")); err != nil {
				t.Fatal(err)
			}
			if err := s.Set("app_session/b", []byte(`{"id":"b"}`)); err != nil {
				t.Fatal(err)
			}
			if err := s.Set("app_session/a", []byte(`{"id":"a"}`)); err != nil {
				t.Fatal(err)
			}

			v, err := s.Get("clearnode_jwt")
			if err != nil {
				t.Fatal(err)
			}
			if string(v) != "tok1" {
				t.Fatalf("got %q", v)
			}

			ks, err := s.Keys("app_session/")
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(ks, []string{"app_session/a", "app_session/b"}) {
				t.Fatalf("unexpected keys %v", ks)
			}

			if err := s.Delete("clearnode_jwt"); err != nil {
				t.Fatal(err)
			}
			if err := s.Delete("clearnode_jwt"); err != nil {
				t.Fatalf("second delete should not fail: %v", err)
			}
			if _, err := s.Get("clearnode_jwt"); !common.IsStore(err, common.KeyNotFound) {
				t.Fatalf("expected KeyNotFound after delete, got %v", err)
			}
		})
	}
}

func TestEncryptedStorageWrongPassphrase(t *testing.T) {
	dir := t.TempDir()

	s, err := NewEncryptedFileStorage(dir, "right", fastParams())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set("k", []byte("secret")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := NewEncryptedFileStorage(dir, "wrong", fastParams()); err != ErrWrongPassphrase {
		t.Fatalf("expected ErrWrongPassphrase, got %v", err)
	}

	s, err = NewEncryptedFileStorage(dir, "right", fastParams())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	v, err := s.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "secret" {
		t.Fatalf("got %q", v)
	}
}

func TestFileStorageRejectsOpenPermissions(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Set("k", []byte("v")); err != nil {
		t.Fatal(err)
	}

	if err := os.Chmod(s.path("k"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get("k"); err == nil || common.IsStore(err, common.KeyNotFound) {
		t.Fatalf("expected a permissions error, got %v", err)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	dir := t.TempDir()

	if _, err := New(Options{Backend: "nope"}); err == nil {
		t.Fatalf("unknown backend should fail")
	}
	if _, err := New(Options{Backend: EncryptedBackend, Dir: dir}); err == nil {
		t.Fatalf("encrypted backend without passphrase should fail")
	}

	s, err := New(Options{Backend: FileBackend, Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*FileStorage); !ok {
		t.Fatalf("expected *FileStorage, got %T", s)
	}
}
