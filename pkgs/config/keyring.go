package config

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

// KeyringService is the service name passwords are stored under.
const KeyringService = "emx-mail"

// KeyringOpener opens a credential store.
type KeyringOpener func() (keyring.Keyring, error)

// OpenKeyring opens the OS keyring, falling back to an encrypted file
// under ~/.config/emx-mail/credentials.
func OpenKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: KeyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/emx-mail/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("emx-mail-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// LookupPassword returns the password stored for user.
func LookupPassword(open KeyringOpener, user string) (string, error) {
	ring, err := open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(user)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("no password stored in keyring for %s", user)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential for %s: %w", user, err)
	}
	return string(item.Data), nil
}

// StorePassword saves password for user.
func StorePassword(open KeyringOpener, user, password string) error {
	ring, err := open()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   user,
		Data:  []byte(password),
		Label: KeyringService + " " + user,
	})
	if err != nil {
		return fmt.Errorf("setting credential for %s: %w", user, err)
	}
	return nil
}
