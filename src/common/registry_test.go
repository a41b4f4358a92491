package common

import (
	"testing"
)

func TestRegistryOrderAndRemove(t *testing.T) {
	r := NewRegistry[func() string]()

	a := r.Add(func() string { return "a" })
	r.Add(func() string { return "b" })
	c := r.Add(func() string { return "c" })

	if a == 0 || c == 0 || a == c {
		t.Fatalf("tokens should be unique and non-zero: %d %d", a, c)
	}

	if !r.Remove(a) {
		t.Fatalf("first removal should succeed")
	}
	if r.Remove(a) {
		t.Fatalf("second removal should be a no-op")
	}

	got := ""
	for _, f := range r.Snapshot() {
		got += f()
	}
	if got != "bc" {
		t.Fatalf("expected bc, got %s", got)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", r.Len())
	}
}

func TestSafeCallRecovers(t *testing.T) {
	logger := NewTestEntry(t, "test")

	err := SafeCall(logger, "boom", func() { panic("kaboom") })
	if err == nil {
		t.Fatalf("expected an error from a panicking function")
	}

	ran := false
	if err := SafeCall(logger, "ok", func() { ran = true }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatalf("function did not run")
	}
}

func TestMarshalCanonicalSortsKeys(t *testing.T) {
	v := []interface{}{
		uint64(7),
		"get_channels",
		[]interface{}{map[string]interface{}{"zeta": 1, "alpha": "<x>"}},
		int64(1700000000),
	}

	b, err := MarshalCanonical(v)
	if err != nil {
		t.Fatal(err)
	}

	want := `[7,"get_channels",[{"alpha":"<x>","zeta":1}],1700000000]`
	if string(b) != want {
		t.Fatalf("got %s, want %s", b, want)
	}
}
