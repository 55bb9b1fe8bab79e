package postgres

import (
	"fmt"
	"net/url"
	"strconv"

	"oauth2-client/internal/common/utils"
)

type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
	// MaxConns caps the pool. Zero keeps the pgxpool default.
	MaxConns int32
	// EncryptionKey, when set, encrypts client secrets and tokens at rest.
	EncryptionKey string
	Clock         utils.Clock
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("PostgreSQL host is required")
	}

	if c.Port <= 0 {
		c.Port = 5432 // default PostgreSQL port
	}

	if c.Database == "" {
		return fmt.Errorf("PostgreSQL database name is required")
	}

	if c.Username == "" {
		return fmt.Errorf("PostgreSQL username is required")
	}

	if c.SSLMode == "" {
		c.SSLMode = "prefer"
	}

	return nil
}

func (c *Config) GetType() string {
	return "postgres"
}

// GetConnectionString returns a postgres:// URL accepted by pgxpool.
func (c *Config) GetConnectionString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func NewConfigFromURL(connStr string) (*Config, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL URL: %w", err)
	}
	if len(u.Path) < 2 {
		return nil, fmt.Errorf("PostgreSQL URL must name a database")
	}

	config := &Config{
		Host:     u.Hostname(),
		Database: u.Path[1:], // Remove leading slash
		Username: u.User.Username(),
		SSLMode:  "prefer",
		Port:     5432,
	}

	if u.Port() != "" {
		if port, err := strconv.Atoi(u.Port()); err == nil {
			config.Port = port
		}
	}

	if password, ok := u.User.Password(); ok {
		config.Password = password
	}

	if sslMode := u.Query().Get("sslmode"); sslMode != "" {
		config.SSLMode = sslMode
	}

	return config, nil
}

func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		Database: "oauth2_client",
		Username: "postgres",
		Password: "",
		SSLMode:  "prefer",
	}
}
