package storage

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const envelopeVersion = 1

// ErrWrongPassphrase is returned when the passphrase does not open the vault
// or a sealed value has been modified.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted value")

// ScryptParams are the key derivation cost parameters.
type ScryptParams struct {
	N int `json:"scrypt_N"`
	R int `json:"scrypt_r"`
	P int `json:"scrypt_p"`
}

// DefaultScryptParams ...
func DefaultScryptParams() ScryptParams {
	return ScryptParams{N: 1 << 15, R: 8, P: 1}
}

// vaultHeader is stored once per vault. It fixes the salt and KDF parameters
// and carries a sealed known value used to check the passphrase.
type vaultHeader struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	Params ScryptParams
	Check  []byte `json:"check"`
}

// sealed is the on-disk form of each value.
type sealed struct {
	V      int    `json:"v"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

var checkPlaintext = []byte("clearnode-vault")

func deriveKey(passphrase string, salt []byte, p ScryptParams) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), salt, p.N, p.R, p.P, chacha20poly1305.KeySize)
}

func newHeader(key, salt []byte, p ScryptParams) (vaultHeader, error) {
	check, err := seal(key, checkPlaintext, nil)
	if err != nil {
		return vaultHeader{}, err
	}
	return vaultHeader{V: envelopeVersion, Salt: salt, Params: p, Check: check}, nil
}

func (h vaultHeader) verify(key []byte) error {
	if h.V > envelopeVersion {
		return fmt.Errorf("unsupported vault version %d", h.V)
	}
	pt, err := open(key, h.Check, nil)
	if err != nil || string(pt) != string(checkPlaintext) {
		return ErrWrongPassphrase
	}
	return nil
}

// seal encrypts raw under key with a random nonce. ad binds the ciphertext to
// its storage key.
func seal(key, raw, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return json.Marshal(sealed{
		V:      envelopeVersion,
		Nonce:  nonce,
		Cipher: aead.Seal(nil, nonce, raw, ad),
	})
}

func open(key, blob, ad []byte) ([]byte, error) {
	var s sealed
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, err
	}
	if s.V > envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", s.V)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(s.Nonce) != aead.NonceSize() {
		return nil, ErrWrongPassphrase
	}

	pt, err := aead.Open(nil, s.Nonce, s.Cipher, ad)
	if err != nil {
		return nil, ErrWrongPassphrase
	}

	return pt, nil
}
