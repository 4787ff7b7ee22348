// Package keyring derives the purpose-bound HMAC keys used for credential
// tokens and signal hashing from one operator secret.
package keyring

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	labelCredential = "tryon/credential"
	labelSignal     = "tryon/signal"
	keySize         = 32
	minSecretSize   = 16
)

var ErrSecretTooShort = errors.New("identity secret must be at least 16 bytes")

type Keyring struct {
	Credential []byte
	Signal     []byte
}

func New(secret string) (Keyring, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < minSecretSize {
		return Keyring{}, ErrSecretTooShort
	}
	credential, err := derive([]byte(secret), labelCredential)
	if err != nil {
		return Keyring{}, err
	}
	signal, err := derive([]byte(secret), labelSignal)
	if err != nil {
		return Keyring{}, err
	}
	return Keyring{Credential: credential, Signal: signal}, nil
}

// Ephemeral returns a keyring from random material. Tokens and hashes do not
// survive a restart; only for local development.
func Ephemeral() (Keyring, error) {
	seed := make([]byte, keySize)
	if _, err := rand.Read(seed); err != nil {
		return Keyring{}, err
	}
	credential, err := derive(seed, labelCredential)
	if err != nil {
		return Keyring{}, err
	}
	signal, err := derive(seed, labelSignal)
	if err != nil {
		return Keyring{}, err
	}
	return Keyring{Credential: credential, Signal: signal}, nil
}

func derive(secret []byte, label string) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(label)), key); err != nil {
		return nil, err
	}
	return key, nil
}
