// Package eip712 hashes and signs the typed-data Policy that a wallet signs to
// answer an authentication challenge.
package eip712

import (
	"fmt"
	"math/big"

	bcrypto "github.com/linecrypto/clearnode/src/crypto"
	"github.com/linecrypto/clearnode/src/crypto/keys"
)

const (
	domainType    = "EIP712Domain(string name)"
	allowanceType = "Allowance(string asset,uint256 amount)"
	policyType    = "Policy(string challenge,string scope,address wallet,address application,address participant,uint256 expire,Allowance[] allowances)" + allowanceType
)

var (
	domainTypeHash    = bcrypto.TextHash(domainType)
	allowanceTypeHash = bcrypto.TextHash(allowanceType)
	policyTypeHash    = bcrypto.TextHash(policyType)
)

// Domain is the EIP-712 domain. Only the name is used.
type Domain struct {
	Name string
}

// Allowance caps what the session key may spend of an asset. Amount is a
// base-10 integer string.
type Allowance struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// Policy is the typed message signed by the wallet.
type Policy struct {
	Challenge   string
	Scope       string
	Wallet      string
	Application string
	Participant string
	Expire      uint64
	Allowances  []Allowance
}

// Separator returns the domain separator hash.
func (d Domain) Separator() []byte {
	return bcrypto.Keccak256(domainTypeHash, bcrypto.TextHash(d.Name))
}

// HashStruct returns the EIP-712 hashStruct of the policy.
func (p Policy) HashStruct() ([]byte, error) {
	wallet, err := encodeAddress(p.Wallet)
	if err != nil {
		return nil, fmt.Errorf("wallet: %w", err)
	}
	application, err := encodeAddress(p.Application)
	if err != nil {
		return nil, fmt.Errorf("application: %w", err)
	}
	participant, err := encodeAddress(p.Participant)
	if err != nil {
		return nil, fmt.Errorf("participant: %w", err)
	}

	allowanceHashes := make([][]byte, 0, len(p.Allowances))
	for i, a := range p.Allowances {
		h, err := a.hashStruct()
		if err != nil {
			return nil, fmt.Errorf("allowance %d: %w", i, err)
		}
		allowanceHashes = append(allowanceHashes, h)
	}

	return bcrypto.Keccak256(
		policyTypeHash,
		bcrypto.TextHash(p.Challenge),
		bcrypto.TextHash(p.Scope),
		wallet,
		application,
		participant,
		encodeUint(new(big.Int).SetUint64(p.Expire)),
		bcrypto.Keccak256(allowanceHashes...),
	), nil
}

func (a Allowance) hashStruct() ([]byte, error) {
	amount, ok := new(big.Int).SetString(a.Amount, 10)
	if !ok || amount.Sign() < 0 || amount.BitLen() > 256 {
		return nil, fmt.Errorf("invalid amount %q", a.Amount)
	}
	return bcrypto.Keccak256(allowanceTypeHash, bcrypto.TextHash(a.Asset), encodeUint(amount)), nil
}

// Digest returns keccak256(0x1901 || domainSeparator || hashStruct(policy)),
// the value actually signed.
func Digest(domain Domain, policy Policy) ([]byte, error) {
	h, err := policy.HashStruct()
	if err != nil {
		return nil, err
	}
	return bcrypto.Keccak256([]byte{0x19, 0x01}, domain.Separator(), h), nil
}

// WalletSigner signs policies with a wallet key.
type WalletSigner struct {
	signer keys.Signer
	domain Domain
}

// NewWalletSigner ...
func NewWalletSigner(signer keys.Signer, domain Domain) *WalletSigner {
	return &WalletSigner{
		signer: signer,
		domain: domain,
	}
}

// Address is the wallet address.
func (w *WalletSigner) Address() string {
	return w.signer.Address()
}

// SignPolicy returns the 65 byte signature of the policy digest.
func (w *WalletSigner) SignPolicy(policy Policy) ([]byte, error) {
	digest, err := Digest(w.domain, policy)
	if err != nil {
		return nil, err
	}
	return w.signer.SignDigest(digest)
}

// RecoverPolicySigner returns the address that signed policy under domain.
func RecoverPolicySigner(domain Domain, policy Policy, sig []byte) (string, error) {
	digest, err := Digest(domain, policy)
	if err != nil {
		return "", err
	}
	return keys.RecoverAddress(digest, sig)
}

func encodeAddress(s string) ([]byte, error) {
	if s == "" {
		return make([]byte, 32), nil
	}
	raw, err := keys.ParseAddress(s)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 32)
	copy(out[32-len(raw):], raw)
	return out, nil
}

func encodeUint(v *big.Int) []byte {
	out := make([]byte, 32)
	v.FillBytes(out)
	return out
}
