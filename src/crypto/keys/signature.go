package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcec"
)

// SignatureLength is the size of a recoverable signature: R, S and V.
const SignatureLength = 65

// SignDigest signs a 32 byte digest and returns [R || S || V] with V in
// {27, 28}. The signature is deterministic (RFC6979) and low-S.
func SignDigest(priv *ecdsa.PrivateKey, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest should be 32 bytes, got %d", len(digest))
	}
	if priv == nil {
		return nil, fmt.Errorf("nil private key")
	}

	// btcec yields [V || R || S] with V = 27 + recovery id for uncompressed
	// keys.
	compact, err := btcec.SignCompact(btcec.S256(), (*btcec.PrivateKey)(priv), digest, false)
	if err != nil {
		return nil, err
	}

	sig := make([]byte, SignatureLength)
	copy(sig, compact[1:])
	sig[64] = compact[0]

	return sig, nil
}

// RecoverPublicKey returns the public key that produced sig over digest. V may
// be given as 0/1 or 27/28.
func RecoverPublicKey(digest, sig []byte) (*ecdsa.PublicKey, error) {
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("signature should be %d bytes, got %d", SignatureLength, len(sig))
	}

	v := sig[64]
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		return nil, fmt.Errorf("invalid signature recovery byte %d", sig[64])
	}

	s := new(big.Int).SetBytes(sig[32:64])
	if s.Cmp(secp256k1halfN) > 0 {
		return nil, fmt.Errorf("signature S value is not canonical")
	}

	compact := make([]byte, SignatureLength)
	compact[0] = v
	copy(compact[1:], sig[:64])

	pub, _, err := btcec.RecoverCompact(btcec.S256(), compact, digest)
	if err != nil {
		return nil, err
	}

	return pub.ToECDSA(), nil
}

// RecoverAddress is RecoverPublicKey followed by PublicKeyToAddress.
func RecoverAddress(digest, sig []byte) (string, error) {
	pub, err := RecoverPublicKey(digest, sig)
	if err != nil {
		return "", err
	}
	return PublicKeyToAddress(pub), nil
}

// VerifyAddress reports whether sig over digest was produced by the key
// behind address.
func VerifyAddress(address string, digest, sig []byte) bool {
	signer, err := RecoverAddress(digest, sig)
	if err != nil {
		return false
	}
	return SameAddress(signer, address)
}

// EncodeSignature returns the 0x-prefixed hex form used on the wire.
func EncodeSignature(sig []byte) string {
	return "0x" + hex.EncodeToString(sig)
}

// DecodeSignature parses a signature as produced by EncodeSignature.
func DecodeSignature(sig string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil {
		return nil, err
	}
	if len(raw) != SignatureLength {
		return nil, fmt.Errorf("wrong signature length: got %d, want %d", len(raw), SignatureLength)
	}
	return raw, nil
}
