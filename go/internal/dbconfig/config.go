package dbconfig

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/ardanlabs/conf/v3"
)

// Config holds Postgres connection settings.
type Config struct {
	Host     string `conf:"default:localhost,env:DB_HOST"`
	Port     int    `conf:"default:5432,env:DB_PORT"`
	User     string `conf:"default:postgres,env:DB_USER"`
	Password string `conf:"default:postgres,env:DB_PASSWORD,mask"`
	Database string `conf:"default:bidroom,env:DB_NAME"`
	SSLMode  string `conf:"default:disable,env:DB_SSLMODE"`
}

// NewConfigFromEnv reads DB_* environment variables (with defaults).
func NewConfigFromEnv() (Config, error) {
	var cfg Config
	if _, err := conf.Parse("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse database config: %w", err)
	}
	return cfg, nil
}

// DSN returns the Postgres connection URL.
func (c Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}
