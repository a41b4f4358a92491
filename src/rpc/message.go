package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	bcrypto "github.com/linecrypto/clearnode/src/crypto"
	"github.com/linecrypto/clearnode/src/crypto/keys"
)

// ErrMalformedFrame is returned for frames that are not a recognisable
// envelope.
var ErrMalformedFrame = errors.New("malformed frame")

// Message is a decoded frame.
type Message struct {
	// HasID is false for frames without a request id (flat pushes).
	HasID bool
	ID    uint64

	Method Method
	// Name is the method name as received, kept for Unknown methods.
	Name string

	// Params with a one-element array unwrapped. Nil when absent.
	Params json.RawMessage

	Timestamp int64

	// Payload is the raw req/res array, exactly as received.
	Payload    json.RawMessage
	Signatures []string

	// Request is set when the frame carried "req" rather than "res".
	Request bool
}

type rawFrame struct {
	Req    json.RawMessage `json:"req"`
	Res    json.RawMessage `json:"res"`
	Sig    []string        `json:"sig"`
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// ParseMessage decodes one text frame.
func ParseMessage(data []byte) (*Message, error) {
	var f rawFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch {
	case !isNull(f.Res):
		return parseEnvelope(f.Res, f.Sig, false)
	case !isNull(f.Req):
		return parseEnvelope(f.Req, f.Sig, true)
	case f.Method != "":
		m := &Message{
			Method: ParseMethod(f.Method),
			Name:   f.Method,
			Params: unwrapParams(f.Params),
		}
		if !isNull(f.ID) {
			id, err := parseID(f.ID)
			if err != nil {
				return nil, err
			}
			m.ID, m.HasID = id, true
		}
		return m, nil
	}

	return nil, fmt.Errorf("%w: no res, req or method", ErrMalformedFrame)
}

func parseEnvelope(payload json.RawMessage, sigs []string, request bool) (*Message, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(payload, &parts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: envelope has %d elements", ErrMalformedFrame, len(parts))
	}

	var name string
	if err := json.Unmarshal(parts[1], &name); err != nil {
		return nil, fmt.Errorf("%w: method: %v", ErrMalformedFrame, err)
	}

	m := &Message{
		Method:     ParseMethod(name),
		Name:       name,
		Payload:    payload,
		Signatures: sigs,
		Request:    request,
	}

	if !isNull(parts[0]) {
		id, err := parseID(parts[0])
		if err != nil {
			return nil, err
		}
		m.ID, m.HasID = id, true
	}

	if len(parts) > 2 {
		m.Params = unwrapParams(parts[2])
	}

	if len(parts) > 3 && !isNull(parts[3]) {
		var ts json.Number
		if err := json.Unmarshal(parts[3], &ts); err == nil {
			m.Timestamp, _ = ts.Int64()
		}
	}

	return m, nil
}

// RecoverSigners returns the addresses that signed the payload.
func (m *Message) RecoverSigners() ([]string, error) {
	if len(m.Payload) == 0 {
		return nil, fmt.Errorf("message has no signed payload")
	}

	digest := bcrypto.Keccak256(m.Payload)

	res := make([]string, 0, len(m.Signatures))
	for _, s := range m.Signatures {
		sig, err := keys.DecodeSignature(s)
		if err != nil {
			return nil, err
		}
		addr, err := keys.RecoverAddress(digest, sig)
		if err != nil {
			return nil, err
		}
		res = append(res, addr)
	}

	return res, nil
}

func parseID(raw json.RawMessage) (uint64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if id, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return id, nil
		}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if id, err := strconv.ParseUint(s, 10, 64); err == nil {
			return id, nil
		}
	}

	return 0, fmt.Errorf("%w: bad request id %s", ErrMalformedFrame, string(raw))
}

func unwrapParams(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return nil
	}
	if raw[0] != '[' {
		return raw
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return raw
	}

	switch len(items) {
	case 0:
		return nil
	case 1:
		return unwrapParams(items[0])
	}

	return raw
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
