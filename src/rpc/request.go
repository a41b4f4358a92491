package rpc

import (
	"bytes"
	"fmt"
	"time"

	"github.com/linecrypto/clearnode/src/common"
	"github.com/linecrypto/clearnode/src/crypto/keys"
)

// Request is an outbound RPC call.
type Request struct {
	ID     uint64
	Method Method
	// Params is the method payload, sent as a one-element array. Nil params
	// are sent as an empty array.
	Params interface{}
	// Timestamp in unix seconds.
	Timestamp int64
}

// NewRequest ...
func NewRequest(id uint64, method Method, params interface{}, now time.Time) *Request {
	return &Request{
		ID:        id,
		Method:    method,
		Params:    params,
		Timestamp: now.Unix(),
	}
}

// Payload returns the canonical encoding of the req array. This is the byte
// string covered by signatures.
func (r *Request) Payload() ([]byte, error) {
	params := []interface{}{}
	if r.Params != nil {
		params = append(params, r.Params)
	}

	payload, err := common.MarshalCanonical([]interface{}{
		r.ID,
		r.Method.String(),
		params,
		r.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", r.Method, err)
	}

	return payload, nil
}

// Sign frames the request with one signature per signer. Without signers the
// frame carries an empty signature list.
func (r *Request) Sign(signers ...keys.Signer) ([]byte, error) {
	payload, err := r.Payload()
	if err != nil {
		return nil, err
	}

	sigs := make([][]byte, 0, len(signers))
	for _, s := range signers {
		sig, err := s.SignPayload(payload)
		if err != nil {
			return nil, fmt.Errorf("signing %s request: %w", r.Method, err)
		}
		sigs = append(sigs, sig)
	}

	return Frame(payload, sigs)
}

// Frame wraps an encoded req array and its signatures into an envelope. The
// payload bytes are embedded unchanged.
func Frame(payload []byte, sigs [][]byte) ([]byte, error) {
	encoded := make([]string, 0, len(sigs))
	for _, s := range sigs {
		encoded = append(encoded, keys.EncodeSignature(s))
	}

	sigList, err := common.MarshalCanonical(encoded)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(payload) + len(sigList) + 16)
	buf.WriteString(`{"req":`)
	buf.Write(payload)
	buf.WriteString(`,"sig":`)
	buf.Write(sigList)
	buf.WriteString(`}`)

	return buf.Bytes(), nil
}
