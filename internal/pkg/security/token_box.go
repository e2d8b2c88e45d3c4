package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var ErrInvalidSealedToken = errors.New("invalid sealed token")

// TokenBox seals gateway bearer tokens before they are stored.
type TokenBox struct {
	key [32]byte
}

// NewTokenBox derives the sealing key from secret.
func NewTokenBox(secret string) (*TokenBox, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("secret is required for token sealing")
	}
	return &TokenBox{key: sha256.Sum256([]byte(secret))}, nil
}

// Seal encrypts plaintext and returns nonce||box, base64url encoded.
func (b *TokenBox) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (b *TokenBox) Open(sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrInvalidSealedToken
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrInvalidSealedToken
	}
	return string(plain), nil
}
