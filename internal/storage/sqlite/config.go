package sqlite

import (
	"fmt"

	"oauth2-client/internal/common/utils"
)

type Config struct {
	DatabasePath string
	// EncryptionKey, when set, encrypts client secrets and tokens at rest.
	EncryptionKey string
	Clock         utils.Clock
}

func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

func (c *Config) GetType() string {
	return "sqlite"
}

func (c *Config) GetConnectionString() string {
	return c.DatabasePath
}

func DefaultConfig() *Config {
	return &Config{
		DatabasePath: "./oauth2_client.db",
	}
}
