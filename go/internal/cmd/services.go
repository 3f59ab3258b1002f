package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidroom/go/clients"
	"github.com/mcdev12/bidroom/go/internal/catalog"
	"github.com/mcdev12/bidroom/go/internal/directory"
	"github.com/mcdev12/bidroom/go/internal/gateway"
	"github.com/mcdev12/bidroom/go/internal/httpapi"
	"github.com/mcdev12/bidroom/go/internal/metrics"
	"github.com/mcdev12/bidroom/go/internal/relay"
	"github.com/mcdev12/bidroom/go/internal/room"
)

type Services struct {
	Metrics   *metrics.Prometheus
	Relay     relay.Relay
	Directory directory.Directory
	Catalog   *catalog.Catalog
	Journal   *relay.JournalWriter
	Gateway   *gateway.Service
	Hub       *room.Hub
	API       *httpapi.Handler

	closers []func()
}

// setupServices wires the instance:
// transport and storage -> catalog -> gateway -> room hub -> HTTP API.
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	s := &Services{Metrics: metrics.NewPrometheus()}
	checks := map[string]httpapi.HealthCheck{}

	nc, err := s.setupRelay(cfg, checks)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := s.setupDirectory(cfg, checks); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.setupCatalog(ctx, cfg, checks); err != nil {
		s.Close()
		return nil, err
	}

	roomCfg := room.DefaultConfig()
	if cfg.InstanceID != "" {
		roomCfg.InstanceID = cfg.InstanceID
	}
	if err := s.setupJournal(ctx, cfg, nc); err != nil {
		s.Close()
		return nil, err
	}
	if s.Journal != nil {
		roomCfg.Journal = s.Journal
	}

	s.Gateway = gateway.NewService(gateway.DefaultConfig(), s.Metrics)

	roomCfg.Relay = s.Relay
	roomCfg.Directory = s.Directory
	roomCfg.Broadcaster = s.Gateway.Broadcaster()
	roomCfg.Metrics = s.Metrics
	roomCfg.SnapshotInterval = cfg.SnapshotInterval
	roomCfg.PresenceTimeout = cfg.PresenceTimeout
	roomCfg.SyncTimeout = cfg.SyncTimeout
	s.Hub = room.NewHub(ctx, roomCfg)

	s.Gateway.Bind(s.Hub, s.Directory)

	s.API = httpapi.NewHandler(httpapi.Deps{
		Catalog:       s.Catalog,
		Directory:     s.Directory,
		Rooms:         s.Hub,
		Assets:        clients.NewAssetClient(cfg.ProxyTimeout),
		Checks:        checks,
		Metrics:       s.Metrics.Handler(),
		IsDevelopment: cfg.isDevelopment(),
	})

	log.Info().
		Str("instance", roomCfg.InstanceID).
		Int("teams", len(s.Catalog.Teams)).
		Int("items", len(s.Catalog.Items)).
		Msg("services ready")
	return s, nil
}

func (s *Services) setupRelay(cfg *Config, checks map[string]httpapi.HealthCheck) (*nats.Conn, error) {
	if cfg.NATSURL == "" {
		log.Warn().Msg("NATS_URL not set, using in-process relay (single instance only)")
		s.Relay = relay.NewInstrumented(relay.NewMemory(), s.Metrics)
		s.closers = append(s.closers, func() { s.Relay.Close() })
		return nil, nil
	}

	natsCfg := relay.DefaultNATSConfig()
	natsCfg.URL = cfg.NATSURL
	nr, err := relay.DialNATS(natsCfg)
	if err != nil {
		return nil, err
	}
	s.Relay = relay.NewInstrumented(nr, s.Metrics)
	s.closers = append(s.closers, func() { s.Relay.Close() })

	nc := nr.Conn()
	checks["nats"] = func(context.Context) error {
		if !nc.IsConnected() {
			return fmt.Errorf("nats status %s", nc.Status())
		}
		return nil
	}
	log.Info().Str("url", nc.ConnectedUrl()).Msg("connected to NATS")
	return nc, nil
}

func (s *Services) setupDirectory(cfg *Config, checks map[string]httpapi.HealthCheck) error {
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, using in-process directory (single instance only)")
		s.Directory = directory.NewMemory()
		return nil
	}

	rdb, err := directory.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	s.Directory = directory.NewRedis(rdb, cfg.RoomTTL)
	s.closers = append(s.closers, func() { rdb.Close() })
	checks["redis"] = func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
	log.Info().Msg("connected to Redis")
	return nil
}

func (s *Services) setupCatalog(ctx context.Context, cfg *Config, checks map[string]httpapi.HealthCheck) error {
	var src catalog.Source
	switch cfg.CatalogSource {
	case catalogPostgres:
		dsn := cfg.DB.DSN()
		if cfg.MigrateOnStart {
			if err := catalog.Migrate(dsn); err != nil {
				return err
			}
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		checks["postgres"] = pool.Ping
		src = catalog.NewPostgresSource(pool)
		log.Info().Str("host", cfg.DB.Host).Str("database", cfg.DB.Database).Msg("loading catalog from Postgres")
	default:
		src = catalog.NewFileSource(cfg.CatalogPath)
		log.Info().Str("path", cfg.CatalogPath).Msg("loading catalog from YAML")
	}

	c, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	s.Catalog = c
	return nil
}

func (s *Services) setupJournal(ctx context.Context, cfg *Config, nc *nats.Conn) error {
	if !cfg.JournalEnabled {
		return nil
	}
	if nc == nil {
		return errors.New("JOURNAL_ENABLED requires NATS_URL")
	}

	js, err := relay.NewJetStreamJournal(ctx, nc, relay.DefaultJetStreamConfig())
	if err != nil {
		return fmt.Errorf("failed to set up event journal: %w", err)
	}
	s.Journal = relay.NewJournalWriter(js, relay.DefaultWriterConfig())
	if err := s.Journal.Start(ctx); err != nil {
		return err
	}
	return nil
}

// Close stops rooms first so nothing publishes into closed transports.
func (s *Services) Close() {
	if s.Hub != nil {
		s.Hub.Shutdown()
	}
	if s.Journal != nil {
		if err := s.Journal.Stop(); err != nil {
			log.Warn().Err(err).Msg("failed to stop journal writer")
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
