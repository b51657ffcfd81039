// Package secrets seals small secret payloads for storage at rest.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var (
	// ErrNoKey is returned when a Box is built without key material.
	ErrNoKey = errors.New("secrets: key is empty")
	// ErrDecrypt is returned when a ciphertext fails authentication.
	ErrDecrypt = errors.New("secrets: ciphertext could not be opened")
)

// Box encrypts and decrypts payloads with NaCl secretbox. The 32 byte key is
// derived from the configured passphrase with HKDF-SHA256.
type Box struct {
	key [keySize]byte
}

// NewBox derives a Box from the given passphrase.
func NewBox(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, ErrNoKey
	}
	b := &Box{}
	r := hkdf.New(sha256.New, []byte(passphrase), nil, []byte("inbox-rules-api/secrets"))
	if _, err := io.ReadFull(r, b.key[:]); err != nil {
		return nil, fmt.Errorf("derive secrets key: %w", err)
	}
	return b, nil
}

// Seal encrypts plaintext. The random nonce is prepended to the output.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &b.key), nil
}

// Open reverses Seal.
func (b *Box) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < nonceSize+secretbox.Overhead {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	out, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, &b.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return out, nil
}
