// Package credential stores mailbox secrets in the OS keyring.
package credential

import (
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const serviceName = "cardtx"

// EnvKeyringPassword unlocks the encrypted file backend without a prompt.
const EnvKeyringPassword = "CARDTX_KEYRING_PASSWORD"

// ErrNotFound is returned when a secret is neither in the environment nor the keyring.
var ErrNotFound = errors.New("credential not found")

// Store reads and writes secrets.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store backed by the system keyring, falling back to an
// encrypted file under ~/.config/cardtx/credentials.
func Open() (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/cardtx/credentials",
		FilePasswordFunc:         filePassword,
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// NewStore wraps an existing keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

func filePassword(prompt string) (string, error) {
	if pw := os.Getenv(EnvKeyringPassword); pw != "" {
		return pw, nil
	}
	return keyring.TerminalPrompt(prompt)
}

// Get retrieves a secret by key.
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a secret by key.
func (s *Store) Set(key, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:         key,
		Data:        []byte(value),
		Label:       "cardtx " + key,
		Description: "cardtx mailbox secret",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a secret by key.
func (s *Store) Delete(key string) error {
	if err := s.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// Key names the keyring entry holding the secret for a mailbox user.
func Key(reader, username string) string {
	return reader + ":" + username
}

// Lookup returns the value of envVar when set, otherwise the keyring entry.
// A nil Store only consults the environment.
func Lookup(s *Store, envVar, key string) (string, error) {
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}
	if s == nil {
		return "", fmt.Errorf("%s not set: %w", envVar, ErrNotFound)
	}
	return s.Get(key)
}
