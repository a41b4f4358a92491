package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"
	"fmt"
	"strings"

	bcrypto "github.com/linecrypto/clearnode/src/crypto"
)

// AddressLength is the number of bytes in an Ethereum address.
const AddressLength = 20

// ToPublicKey is a wrapper around elliptic.Unmarshal which calls Curve() to
// determine which elliptic.Curve to use. The argument pub is expected to be the
// uncompressed form of a point on the curve, as returned by FromPublicKey.
func ToPublicKey(pub []byte) *ecdsa.PublicKey {
	if len(pub) == 0 {
		return nil
	}
	x, y := elliptic.Unmarshal(Curve(), pub)
	if x == nil {
		return nil
	}
	return &ecdsa.PublicKey{Curve: Curve(), X: x, Y: y}
}

// FromPublicKey is a wrapper around elliptic.Marshal. It outputs the point in
// uncompressed form.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(Curve(), pub.X, pub.Y)
}

// PublicKeyToAddress derives the EIP-55 checksummed Ethereum address of pub:
// the last 20 bytes of the keccak256 of the uncompressed point without its
// 0x04 prefix.
func PublicKeyToAddress(pub *ecdsa.PublicKey) string {
	raw := FromPublicKey(pub)
	if raw == nil {
		return ""
	}
	hash := bcrypto.Keccak256(raw[1:])
	return checksum(hash[len(hash)-AddressLength:])
}

// KeyAddress is PublicKeyToAddress for the public half of priv.
func KeyAddress(priv *ecdsa.PrivateKey) string {
	if priv == nil {
		return ""
	}
	return PublicKeyToAddress(&priv.PublicKey)
}

// ParseAddress decodes a 0x-prefixed, 40 hex digit address. Mixed-case input
// must carry a valid EIP-55 checksum; all-lower and all-upper input is
// accepted as is.
func ParseAddress(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("address %q lacks 0x prefix", s)
	}

	body := s[2:]
	if len(body) != 2*AddressLength {
		return nil, fmt.Errorf("address %q should have %d hex digits", s, 2*AddressLength)
	}

	raw, err := hex.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("address %q: %v", s, err)
	}

	lower := strings.ToLower(body)
	upper := strings.ToUpper(body)
	if body != lower && body != upper && checksum(raw) != "0x"+body {
		return nil, fmt.Errorf("address %q has an invalid checksum", s)
	}

	return raw, nil
}

// IsAddress reports whether ParseAddress accepts s.
func IsAddress(s string) bool {
	_, err := ParseAddress(s)
	return err == nil
}

// ChecksumAddress normalises s to its EIP-55 form.
func ChecksumAddress(s string) (string, error) {
	raw, err := ParseAddress(s)
	if err != nil {
		return "", err
	}
	return checksum(raw), nil
}

// SameAddress compares two addresses regardless of case.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

func checksum(addr []byte) string {
	lower := hex.EncodeToString(addr)
	hash := bcrypto.Keccak256([]byte(lower))

	res := []byte(lower)
	for i := range res {
		if res[i] < 'a' {
			continue
		}
		nibble := hash[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble >= 8 {
			res[i] -= 'a' - 'A'
		}
	}

	return "0x" + string(res)
}
