package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidroom/go/internal/dbconfig"
)

const (
	envDevelopment = "development"
	envProduction  = "production"

	catalogYAML     = "yaml"
	catalogPostgres = "postgres"
)

// Config holds all configuration for the server.
type Config struct {
	Port        string `conf:"default:8080,env:PORT"`
	LogLevel    string `conf:"default:info,env:LOG_LEVEL"`
	Environment string `conf:"default:development,enum:development|testing|production,env:ENVIRONMENT"`
	InstanceID  string `conf:"env:INSTANCE_ID"`

	// Empty URLs select the in-process relay and directory, which only
	// work for a single instance.
	NATSURL  string `conf:"env:NATS_URL"`
	RedisURL string `conf:"env:REDIS_URL,mask"`

	CatalogSource  string `conf:"default:yaml,enum:yaml|postgres,env:CATALOG_SOURCE"`
	CatalogPath    string `conf:"env:CATALOG_PATH"`
	MigrateOnStart bool   `conf:"default:false,env:MIGRATE_ON_START"`
	DB             dbconfig.Config

	JournalEnabled bool `conf:"default:false,env:JOURNAL_ENABLED"`

	SnapshotInterval time.Duration `conf:"default:15s,env:SNAPSHOT_INTERVAL"`
	PresenceTimeout  time.Duration `conf:"default:3m,env:PRESENCE_TIMEOUT"`
	SyncTimeout      time.Duration `conf:"default:5s,env:SYNC_TIMEOUT"`
	RoomTTL          time.Duration `conf:"default:24h,env:ROOM_TTL"`

	CORSAllowedOrigins string        `conf:"default:*,env:CORS_ALLOWED_ORIGINS"`
	ProxyRatePerMin    int           `conf:"default:120,env:PROXY_RATE_PER_MIN"`
	ProxyTimeout       time.Duration `conf:"default:30s,env:PROXY_TIMEOUT"`
	ShutdownTimeout    time.Duration `conf:"default:15s,env:SHUTDOWN_TIMEOUT"`

	SentryDSN string `conf:"env:SENTRY_DSN,noprint"`
}

func loadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	var cfg Config
	help, err := conf.Parse("", &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
		}
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) isDevelopment() bool {
	return c.Environment == envDevelopment
}
