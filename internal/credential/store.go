package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
)

// FileStore keeps the token as JSON in a file readable only by the owner.
type FileStore struct {
	Path string
}

func (s FileStore) Load() (*oauth2.Token, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token file %s: %w", s.Path, err)
	}
	return tok, nil
}

func (s FileStore) Save(tok *oauth2.Token) error {
	f, err := os.OpenFile(s.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open token file %s: %w", s.Path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}

// KeyringStore keeps the token in the OS keyring under a single key.
type KeyringStore struct {
	ring keyring.Keyring
	key  string
}

// NewKeyringStore returns a store backed by ring.
func NewKeyringStore(ring keyring.Keyring, key string) *KeyringStore {
	return &KeyringStore{ring: ring, key: key}
}

// OpenKeyring opens the platform keyring for service.
func OpenKeyring(service string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/" + service + "/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt(service + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}

func (s *KeyringStore) Load() (*oauth2.Token, error) {
	item, err := s.ring.Get(s.key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("get keyring item %q: %w", s.key, err)
	}

	tok := &oauth2.Token{}
	if err := json.Unmarshal(item.Data, tok); err != nil {
		return nil, fmt.Errorf("decode keyring item %q: %w", s.key, err)
	}
	return tok, nil
}

func (s *KeyringStore) Save(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if err := s.ring.Set(keyring.Item{Key: s.key, Data: data}); err != nil {
		return fmt.Errorf("set keyring item %q: %w", s.key, err)
	}
	return nil
}
