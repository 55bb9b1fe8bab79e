package storage

import (
	"oauth2-client/internal/common/errors"
	"oauth2-client/internal/crypto"
)

// SecretCodec seals client secrets before they are written and opens them
// when read. Without a key it passes values through unchanged.
type SecretCodec struct {
	encryptor *crypto.SecretEncryptor
}

// NewSecretCodec creates a codec. An empty key disables encryption.
func NewSecretCodec(encryptionKey string) (*SecretCodec, error) {
	if encryptionKey == "" {
		return &SecretCodec{}, nil
	}

	encryptor, err := crypto.NewSecretEncryptor(encryptionKey)
	if err != nil {
		return nil, errors.ConfigError("invalid encryption key: " + err.Error())
	}

	return &SecretCodec{encryptor: encryptor}, nil
}

// Enabled reports whether secrets are encrypted at rest.
func (c *SecretCodec) Enabled() bool {
	return c != nil && c.encryptor != nil
}

// Seal encrypts secret for storage.
func (c *SecretCodec) Seal(secret string) (string, error) {
	if !c.Enabled() || secret == "" {
		return secret, nil
	}
	sealed, err := c.encryptor.Encrypt(secret)
	if err != nil {
		return "", errors.InternalError("failed to encrypt client secret", err)
	}
	return sealed, nil
}

// Open decrypts a stored secret. Values written before encryption was
// enabled are returned as they are.
func (c *SecretCodec) Open(stored string) (string, error) {
	if !crypto.IsSealed(stored) {
		return stored, nil
	}
	if !c.Enabled() {
		return "", errors.ConfigError("client secret is encrypted but no encryption key is configured")
	}
	secret, err := c.encryptor.Decrypt(stored)
	if err != nil {
		return "", errors.ConfigError("cannot decrypt client secret: " + err.Error())
	}
	return secret, nil
}
