package keys

import (
	"crypto/ecdsa"

	bcrypto "github.com/linecrypto/clearnode/src/crypto"
)

// Signer produces recoverable signatures on behalf of an address.
type Signer interface {
	// Address is the EIP-55 address whose key produces the signatures.
	Address() string
	// SignPayload signs keccak256(payload).
	SignPayload(payload []byte) ([]byte, error)
	// SignDigest signs a precomputed 32 byte digest.
	SignDigest(digest []byte) ([]byte, error)
}

// ECDSASigner is a Signer backed by an in-memory private key.
type ECDSASigner struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewECDSASigner ...
func NewECDSASigner(key *ecdsa.PrivateKey) *ECDSASigner {
	return &ECDSASigner{
		key:     key,
		address: KeyAddress(key),
	}
}

// Address implements Signer.
func (s *ECDSASigner) Address() string {
	return s.address
}

// SignPayload implements Signer.
func (s *ECDSASigner) SignPayload(payload []byte) ([]byte, error) {
	return SignDigest(s.key, bcrypto.Keccak256(payload))
}

// SignDigest implements Signer.
func (s *ECDSASigner) SignDigest(digest []byte) ([]byte, error) {
	return SignDigest(s.key, digest)
}

// PrivateKey exposes the underlying key.
func (s *ECDSASigner) PrivateKey() *ecdsa.PrivateKey {
	return s.key
}
