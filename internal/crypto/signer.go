package crypto

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"oauth2-client/internal/common/errors"
)

// Signer produces an RSA-SHA256 signature over data with the private key
// referenced by keyRef.
type Signer interface {
	Sign(data []byte, keyRef string) ([]byte, error)
}

// RS256Signer signs with PKCS#1 v1.5 padding over SHA-256. keyRef is either
// a path to a PEM-encoded RSA private key or the PEM block itself. Parsed
// keys are cached by reference; a key file is parsed again once its
// modification time or size changes.
type RS256Signer struct {
	readFile func(string) ([]byte, error)
	stat     func(string) (os.FileInfo, error)
	keys     sync.Map
}

type cachedKey struct {
	version string
	key     interface{}
}

// NewRS256Signer creates a signer that reads key files from disk.
func NewRS256Signer() *RS256Signer {
	return &RS256Signer{readFile: os.ReadFile, stat: os.Stat}
}

// Sign implements Signer.
func (s *RS256Signer) Sign(data []byte, keyRef string) ([]byte, error) {
	key, err := s.privateKey(keyRef)
	if err != nil {
		return nil, err
	}

	signature, err := jwt.SigningMethodRS256.Sign(string(data), key)
	if err != nil {
		return nil, errors.InternalError("failed to sign assertion", err)
	}
	return signature, nil
}

func (s *RS256Signer) privateKey(keyRef string) (interface{}, error) {
	if keyRef == "" {
		return nil, errors.ConfigError("signing key reference is empty")
	}

	inline := isInlinePEM(keyRef)
	version := ""
	if !inline && s.stat != nil {
		info, err := s.stat(keyRef)
		if err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("cannot read signing key %s", keyRef)).
				WithContext("cause", err.Error())
		}
		version = fmt.Sprintf("%d:%d", info.ModTime().UnixNano(), info.Size())
	}

	if cached, ok := s.keys.Load(keyRef); ok && cached.(cachedKey).version == version {
		return cached.(cachedKey).key, nil
	}

	pemBytes := []byte(keyRef)
	if !inline {
		data, err := s.readFile(keyRef)
		if err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("cannot read signing key %s", keyRef)).
				WithContext("cause", err.Error())
		}
		pemBytes = data
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, errors.ConfigError("signing key is not a PEM-encoded RSA private key").
			WithContext("cause", err.Error())
	}

	s.keys.Store(keyRef, cachedKey{version: version, key: key})
	return key, nil
}

func isInlinePEM(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(ref), "-----BEGIN")
}
