// Package gateway carries room traffic between browsers and the local room
// replicas over WebSocket.
package gateway

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidroom/go/internal/directory"
	"github.com/mcdev12/bidroom/go/internal/metrics"
)

// Service owns the connection manager and the WebSocket routes.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
}

type Config struct {
	ConnectionConfig ConnectionConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService builds the gateway. The connection manager exists before any
// room so that it can be handed to the hub as its broadcaster; the locator
// is bound later with Bind.
func NewService(config Config, m metrics.Collector) *Service {
	return &Service{
		connectionManager: NewConnectionManager(config.ConnectionConfig, m),
	}
}

// Broadcaster is what rooms on this instance deliver through.
func (s *Service) Broadcaster() *ConnectionManager {
	return s.connectionManager
}

// Bind wires the room locator and the directory used to admit connections.
func (s *Service) Bind(rooms RoomLocator, dir directory.Directory) {
	s.wsHandler = NewWebSocketHandler(s.connectionManager, rooms, dir)
}

// Start delivers room messages until ctx is done, then closes every
// connection.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting room gateway")
	s.connectionManager.Start(ctx)
	log.Info().Msg("room gateway stopped")
}

func (s *Service) RegisterRoutes(r chi.Router) {
	s.wsHandler.RegisterRoutes(r)
	log.Info().Msg("room gateway routes registered")
}

func (s *Service) GetStats() Stats {
	return s.connectionManager.GetConnectionStats()
}
