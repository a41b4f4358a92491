// Package credentials persists the ephemeral session key and the bearer token
// issued by the broker.
//
// Both are cached state: losing them only costs a fresh authentication. For
// that reason storage failures are logged and swallowed, and values that
// cannot be decoded are treated as absent.
package credentials

import (
	"crypto/ecdsa"
	"encoding/json"
	"strings"
	"sync"

	"github.com/linecrypto/clearnode/src/common"
	"github.com/linecrypto/clearnode/src/crypto/keys"
	"github.com/linecrypto/clearnode/src/storage"
	"github.com/sirupsen/logrus"
)

// Well-known storage keys.
const (
	SessionKeyKey = "clearnode_session_key"
	CredentialKey = "clearnode_jwt"
)

// SessionKey is the ephemeral keypair registered with the broker. It is
// always fully populated.
type SessionKey struct {
	PrivateKey *ecdsa.PrivateKey
	Address    string
}

// Signer returns a keys.Signer over the session key.
func (k *SessionKey) Signer() keys.Signer {
	return keys.NewECDSASigner(k.PrivateKey)
}

type storedSessionKey struct {
	PrivateKey string `json:"privateKey"`
	Address    string `json:"address"`
}

// Store is the session key and credential store.
type Store struct {
	mu      sync.Mutex
	storage storage.Storage
	logger  *logrus.Entry
}

// NewStore ...
func NewStore(s storage.Storage, logger *logrus.Entry) *Store {
	return &Store{
		storage: s,
		logger:  logger,
	}
}

// GetOrCreateSessionKey returns the persisted session key if it is present
// and well formed, otherwise it generates a new one and persists it. The key
// is returned even if persisting it fails.
func (s *Store) GetOrCreateSessionKey() (*SessionKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k := s.loadSessionKey(); k != nil {
		return k, nil
	}

	priv, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	k := &SessionKey{
		PrivateKey: priv,
		Address:    keys.KeyAddress(priv),
	}

	raw, err := json.Marshal(storedSessionKey{
		PrivateKey: keys.PrivateKeyHex(priv),
		Address:    k.Address,
	})
	if err == nil {
		err = s.storage.Set(SessionKeyKey, raw)
	}
	if err != nil {
		s.logger.WithError(err).Warn("Could not persist session key")
	} else {
		s.logger.WithField("address", k.Address).Debug("Created session key")
	}

	return k, nil
}

func (s *Store) loadSessionKey() *SessionKey {
	raw, err := s.storage.Get(SessionKeyKey)
	if err != nil {
		if !common.IsStore(err, common.KeyNotFound) {
			s.logger.WithError(err).Warn("Could not read session key")
		}
		return nil
	}

	var stored storedSessionKey
	if err := json.Unmarshal(raw, &stored); err != nil {
		s.logger.WithError(err).Warn("Ignoring undecodable session key")
		return nil
	}

	if strings.TrimSpace(stored.PrivateKey) == "" || strings.TrimSpace(stored.Address) == "" {
		s.logger.Warn("Ignoring partial session key")
		return nil
	}

	priv, err := keys.ParsePrivateKeyHex(stored.PrivateKey)
	if err != nil {
		s.logger.WithError(err).Warn("Ignoring invalid session key")
		return nil
	}

	addr := keys.KeyAddress(priv)
	if !keys.SameAddress(addr, stored.Address) {
		s.logger.WithFields(logrus.Fields{
			"stored":  stored.Address,
			"derived": addr,
		}).Warn("Ignoring session key with mismatched address")
		return nil
	}

	return &SessionKey{
		PrivateKey: priv,
		Address:    addr,
	}
}

// ClearSessionKey forces a new keypair on the next GetOrCreateSessionKey.
func (s *Store) ClearSessionKey() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Delete(SessionKeyKey); err != nil {
		s.logger.WithError(err).Warn("Could not delete session key")
	}
}

// StoreCredential persists the bearer token. Empty tokens are ignored.
func (s *Store) StoreCredential(token string) {
	if token == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Set(CredentialKey, []byte(token)); err != nil {
		s.logger.WithError(err).Warn("Could not persist credential")
	}
}

// GetCredential returns the stored token and whether one was found.
func (s *Store) GetCredential() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.storage.Get(CredentialKey)
	if err != nil {
		if !common.IsStore(err, common.KeyNotFound) {
			s.logger.WithError(err).Warn("Could not read credential")
		}
		return "", false
	}

	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", false
	}

	return token, true
}

// ClearCredential deletes the stored token.
func (s *Store) ClearCredential() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Delete(CredentialKey); err != nil {
		s.logger.WithError(err).Warn("Could not delete credential")
	}
}
