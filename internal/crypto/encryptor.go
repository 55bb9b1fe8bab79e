// Package crypto holds the two cryptographic collaborators of the token
// manager: the RS256 signer used to build JWT-Bearer assertions, and the
// AES-256-GCM encryptor that protects client secrets and access tokens at
// rest in the SQL stores.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"oauth2-client/internal/common/errors"
)

// sealedPrefix marks values produced by SecretEncryptor.Encrypt so readers
// can tell ciphertext from legacy plaintext rows.
const sealedPrefix = "enc:v1:"

// SecretEncryptor encrypts short secrets with AES-256-GCM. Each call uses a
// fresh random nonce. Safe for concurrent use.
type SecretEncryptor struct {
	aead cipher.AEAD
}

// NewSecretEncryptor derives a 256-bit key from passphrase with PBKDF2-SHA256.
func NewSecretEncryptor(passphrase string) (*SecretEncryptor, error) {
	if passphrase == "" {
		return nil, errors.ValidationError("encryption key cannot be empty")
	}

	salt := []byte("oauth2-client-salt")
	key := pbkdf2.Key([]byte(passphrase), salt, 10000, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.InternalError("failed to create cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.InternalError("failed to create GCM", err)
	}

	return &SecretEncryptor{aead: aead}, nil
}

// Encrypt seals plaintext and returns a prefixed base64 string. Empty input
// stays empty.
func (e *SecretEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.InternalError("failed to create nonce", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Values without the prefix are
// returned unchanged.
func (e *SecretEncryptor) Decrypt(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", errors.InternalError("failed to decode ciphertext", err)
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return "", errors.ValidationError("ciphertext too short")
	}

	plaintext, err := e.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", errors.InternalError("failed to decrypt", err)
	}

	return string(plaintext), nil
}

// IsSealed reports whether value was produced by Encrypt.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
