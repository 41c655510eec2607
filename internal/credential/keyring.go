// Package credential stores the dashboard API token in the system keyring.
package credential

import (
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const serviceName = "memberdesk"

// TokenEnv overrides the keyring when set, for CI and headless use.
const TokenEnv = "MEMBERDESK_TOKEN"

// ErrNoToken is returned when no token is stored for an account.
var ErrNoToken = errors.New("no API token stored; run `memberdesk login`")

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/memberdesk/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("memberdesk-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

func tokenKey(account string) string {
	return "api-token:" + account
}

// Token returns the API token for account. MEMBERDESK_TOKEN takes
// precedence over the keyring.
func Token(account string) (string, error) {
	if tok := os.Getenv(TokenEnv); tok != "" {
		return tok, nil
	}

	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(tokenKey(account))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("getting token for %q: %w", account, err)
	}

	return string(item.Data), nil
}

// SetToken stores the API token for account.
func SetToken(account, token string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:         tokenKey(account),
		Data:        []byte(token),
		Label:       "memberdesk API token",
		Description: "Bearer token for the membership dashboard API",
	})
	if err != nil {
		return fmt.Errorf("setting token for %q: %w", account, err)
	}

	return nil
}

// DeleteToken removes the stored token for account. Removing a token that
// does not exist is not an error.
func DeleteToken(account string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(tokenKey(account))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting token for %q: %w", account, err)
	}

	return nil
}
