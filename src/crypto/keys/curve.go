package keys

import (
	"crypto/elliptic"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
)

// Order of the secp256k1 group. Private scalars must be below N, and
// signatures are normalized to the lower half.
var (
	secp256k1N, _  = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)
	secp256k1halfN = new(big.Int).Rsh(secp256k1N, 1)
)

// Curve returns secp256k1, the curve of Ethereum accounts.
func Curve() elliptic.Curve {
	return btcec.S256()
}
