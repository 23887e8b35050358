package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
)

const serviceName = "bdaycal"

// TokenKey is the keyring item holding the calendar OAuth token.
const TokenKey = "google-calendar-token"

// Backend selects where the keyring lives.
const (
	BackendFile   = "file"
	BackendSystem = "system"
)

// filePassphrase seals file backend items. It ships with the binary, so
// the files are only as private as their owner-only permissions.
const filePassphrase = "bdaycal-file-key"

// OpenKeyring returns a configured keyring. The file backend keeps one item
// per key under dir, readable only by the owner; anyone who can read those
// files can recover the token. The system backend prefers the OS keychain or
// secret service and falls back to the file backend.
func OpenKeyring(backend, dir string) (keyring.Keyring, error) {
	allowed := []keyring.BackendType{keyring.FileBackend}
	if backend == BackendSystem {
		allowed = []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		}
	} else if backend != BackendFile && backend != "" {
		return nil, fmt.Errorf("unknown keyring backend %q", backend)
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              serviceName,
		AllowedBackends:          allowed,
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt(filePassphrase),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// TokenStore persists one OAuth token as a JSON blob in a keyring item.
type TokenStore struct {
	ring keyring.Keyring
	key  string
}

// NewTokenStore wraps ring; key names the item.
func NewTokenStore(ring keyring.Keyring, key string) *TokenStore {
	return &TokenStore{ring: ring, key: key}
}

// Load returns the cached token, or nil when none has been saved yet.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	item, err := s.ring.Get(s.key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting credential %q: %w", s.key, err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(item.Data, &tok); err != nil {
		return nil, fmt.Errorf("decoding credential %q: %w", s.key, err)
	}

	return &tok, nil
}

// Save replaces the cached token.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding credential %q: %w", s.key, err)
	}

	err = s.ring.Set(keyring.Item{
		Key:         s.key,
		Data:        data,
		Label:       "bdaycal Google Calendar token",
		Description: "OAuth token",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", s.key, err)
	}

	return nil
}

// Delete removes the cached token. Deleting a missing token is not an error.
func (s *TokenStore) Delete() error {
	err := s.ring.Remove(s.key)
	// The file backend reports a missing item as a plain not-exist error.
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting credential %q: %w", s.key, err)
	}
	return nil
}
