package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bidroom/go/internal/metrics"
	"github.com/mcdev12/bidroom/go/internal/room"
)

// ConnectionManager manages the WebSocket connections of every room on this
// instance. It is the rooms' Broadcaster.
type ConnectionManager struct {
	// Connection pools organized by room code
	roomConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	metrics  metrics.Collector

	broadcastCh chan BroadcastMessage
}

// Connection is one client socket, seated in a room under a display name.
type Connection struct {
	ID       string
	Name     string
	RoomCode string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	room *room.Room

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is a message for the connections of a room. Name, when
// set, restricts delivery to that participant.
type BroadcastMessage struct {
	RoomCode string
	Name     string
	Data     []byte
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig, m metrics.Collector) *ConnectionManager {
	if m == nil {
		m = metrics.NoOp{}
	}
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		metrics:     m,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start processes broadcast messages until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			cm.closeAll()
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and seats it
// in rm under name.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, rm *room.Room, name string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.NewString(),
		Name:        name,
		RoomCode:    rm.Code(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		room:        rm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)
	rm.Connected(name)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("name", name).
		Str("room_code", connection.RoomCode).
		Bool("authoritative", rm.Authoritative()).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.RoomCode] == nil {
		cm.roomConnections[conn.RoomCode] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomCode][conn] = true
	cm.metrics.SetConnections(cm.countLocked())

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_code", conn.RoomCode).
		Int("total_connections", len(cm.roomConnections[conn.RoomCode])).
		Msg("connection registered")
}

// unregisterConnection removes a connection and tells its room. It is safe
// to call more than once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	removed := cm.removeLocked(conn)
	cm.mu.Unlock()

	if removed {
		conn.room.Disconnected(conn.Name)
	}
}

func (cm *ConnectionManager) removeLocked(conn *Connection) bool {
	connections, exists := cm.roomConnections[conn.RoomCode]
	if !exists {
		return false
	}
	if _, exists := connections[conn]; !exists {
		return false
	}
	delete(connections, conn)
	close(conn.Send)

	if len(connections) == 0 {
		delete(cm.roomConnections, conn.RoomCode)
	}
	cm.metrics.SetConnections(cm.countLocked())

	log.Info().
		Str("connection_id", conn.ID).
		Str("name", conn.Name).
		Str("room_code", conn.RoomCode).
		Msg("connection unregistered")
	return true
}

func (cm *ConnectionManager) countLocked() int {
	n := 0
	for _, connections := range cm.roomConnections {
		n += len(connections)
	}
	return n
}

// Broadcast queues msg for every connection in the room.
func (cm *ConnectionManager) Broadcast(roomCode string, msg []byte) {
	cm.enqueue(BroadcastMessage{RoomCode: roomCode, Data: msg})
}

// SendTo queues msg for the connections of one participant.
func (cm *ConnectionManager) SendTo(roomCode, name string, msg []byte) {
	cm.enqueue(BroadcastMessage{RoomCode: roomCode, Name: name, Data: msg})
}

func (cm *ConnectionManager) enqueue(m BroadcastMessage) {
	select {
	case cm.broadcastCh <- m:
	default:
		log.Warn().
			Str("room_code", m.RoomCode).
			Str("name", m.Name).
			Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	var slow []*Connection

	cm.mu.RLock()
	delivered := 0
	for conn := range cm.roomConnections[message.RoomCode] {
		if message.Name != "" && conn.Name != message.Name {
			continue
		}
		select {
		case conn.Send <- message.Data:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	// Slow or dead clients are dropped; they resync when they reconnect.
	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("name", conn.Name).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("room_code", message.RoomCode).
		Str("name", message.Name).
		Int("connections", delivered).
		Msg("message broadcasted")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.roomConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
	}
}

// Stats summarizes the open connections.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

func (cm *ConnectionManager) GetConnectionStats() Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := Stats{
		ActiveRooms:     len(cm.roomConnections),
		RoomConnections: make(map[string]int, len(cm.roomConnections)),
	}
	for code, connections := range cm.roomConnections {
		stats.TotalConnections += len(connections)
		stats.RoomConnections[code] = len(connections)
	}
	return stats
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-c.room.Done():
			// Flush what the room said last, usually why it closed.
		flush:
			for {
				select {
				case message, ok := <-c.Send:
					if !ok {
						return
					}
					c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
					c.Conn.WriteMessage(websocket.TextMessage, message)
				default:
					break flush
				}
			}
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed"))
			return

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage decodes a client message and hands it to the room.
func (c *Connection) handleClientMessage(message []byte) {
	action, err := DecodeAction(message)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("name", c.Name).
			Msg("invalid client message")
		c.Manager.SendTo(c.RoomCode, c.Name, errorMessage(c.RoomCode, err))
		return
	}
	c.room.Submit(c.Name, action)
}
