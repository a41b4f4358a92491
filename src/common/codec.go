package common

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

func canonicalHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.HTMLCharsAsIs = true
	return jh
}

// MarshalCanonical encodes v as JSON with map keys sorted, so that the same
// value always produces the same bytes. Signatures are computed over these
// bytes.
func MarshalCanonical(v interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, canonicalHandle())

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// UnmarshalCanonical decodes data produced by MarshalCanonical into v.
func UnmarshalCanonical(data []byte, v interface{}) error {
	b := bytes.NewBuffer(data)
	dec := codec.NewDecoder(b, canonicalHandle())

	return dec.Decode(v)
}
