package crypto

import (
	"golang.org/x/crypto/sha3"
)

// Keccak256 returns the legacy Keccak-256 hash of the concatenated data, as
// used by Ethereum. It is not the standardised SHA3-256.
func Keccak256(data ...[]byte) []byte {
	hasher := sha3.NewLegacyKeccak256()
	for _, d := range data {
		hasher.Write(d)
	}
	return hasher.Sum(nil)
}

// TextHash returns the keccak256 of a UTF-8 string. It mirrors the id()
// helper of Ethereum client libraries and is the digest that session keys
// sign.
func TextHash(s string) []byte {
	return Keccak256([]byte(s))
}
