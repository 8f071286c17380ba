package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/turnclock/go/internal/mirror"
)

// ConnectionManager keeps the viewer sockets of every room and fans frames out to them.
type ConnectionManager struct {
	rooms map[uuid.UUID]map[*Connection]bool
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage
}

// Connection is one viewer socket.
type Connection struct {
	ID         string
	OccupantID string
	RoomID     uuid.UUID
	Conn       *websocket.Conn
	Send       chan []byte
	Manager    *ConnectionManager

	// Edit defers snapshot frames while the viewer has a form open.
	Edit mirror.EditSession

	ConnectedAt time.Time

	deferredMu sync.Mutex
	deferred   []byte
}

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

// BroadcastMessage is a frame for every viewer of a room.
type BroadcastMessage struct {
	RoomID uuid.UUID
	Event  *RoomEvent
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		SendBuffer:      64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBuffer <= 0 {
		config.SendBuffer = 64
	}
	return &ConnectionManager{
		rooms: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start processes broadcasts until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades the request and registers the socket. initial, when
// set, is queued as the first frame.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, occupantID string, roomID uuid.UUID, initial *RoomEvent) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		OccupantID:  occupantID,
		RoomID:      roomID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	if initial != nil {
		if data, err := json.Marshal(initial); err == nil {
			connection.Send <- data
		}
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("occupant_id", occupantID).
		Str("room_id", roomID.String()).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.rooms[conn.RoomID] == nil {
		cm.rooms[conn.RoomID] = make(map[*Connection]bool)
	}
	cm.rooms[conn.RoomID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID.String()).
		Int("total_connections", len(cm.rooms[conn.RoomID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, ok := cm.rooms[conn.RoomID]
	if !ok {
		return
	}
	if _, ok := connections[conn]; !ok {
		return
	}
	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.rooms, conn.RoomID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("occupant_id", conn.OccupantID).
		Str("room_id", conn.RoomID.String()).
		Msg("connection unregistered")
}

// BroadcastToRoom queues event for every viewer of roomID.
func (cm *ConnectionManager) BroadcastToRoom(roomID uuid.UUID, event *RoomEvent) {
	select {
	case cm.broadcastCh <- BroadcastMessage{RoomID: roomID, Event: event}:
	default:
		log.Warn().Str("room_id", roomID.String()).Msg("broadcast channel full, dropping message")
	}
}

// ActiveRooms returns the rooms that have at least one viewer.
func (cm *ConnectionManager) ActiveRooms() []uuid.UUID {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(cm.rooms))
	for id := range cm.rooms {
		out = append(out, id)
	}
	return out
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, ok := cm.rooms[message.RoomID]
	if !ok {
		cm.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	deferred := 0
	for _, conn := range targets {
		if message.Event.Type == EventTypeSnapshot && conn.Edit.Defer() {
			conn.setDeferred(data)
			deferred++
			continue
		}
		cm.deliver(conn, data)
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("room_id", message.RoomID.String()).
		Int("connections", len(targets)).
		Int("deferred", deferred).
		Msg("event broadcasted")
}

// deliver queues data on conn, dropping the viewer when it cannot keep up.
func (cm *ConnectionManager) deliver(conn *Connection, data []byte) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if !cm.rooms[conn.RoomID][conn] {
		return
	}
	select {
	case conn.Send <- data:
	default:
		log.Warn().
			Str("connection_id", conn.ID).
			Str("occupant_id", conn.OccupantID).
			Msg("connection send buffer full, closing connection")
		go func() {
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}()
	}
}

func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	editing := 0
	perRoom := make(map[string]int)
	for roomID, connections := range cm.rooms {
		total += len(connections)
		perRoom[roomID.String()] = len(connections)
		for conn := range connections {
			if conn.Edit.Active() {
				editing++
			}
		}
	}

	return map[string]interface{}{
		"total_connections": total,
		"active_rooms":      len(cm.rooms),
		"room_connections":  perRoom,
		"editing":           editing,
	}
}

func (c *Connection) setDeferred(data []byte) {
	c.deferredMu.Lock()
	c.deferred = data
	c.deferredMu.Unlock()
}

func (c *Connection) takeDeferred() []byte {
	c.deferredMu.Lock()
	defer c.deferredMu.Unlock()
	data := c.deferred
	c.deferred = nil
	return data
}

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
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

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
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			break
		}
		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage toggles the viewer's edit session. A snapshot held back
// while editing is sent when the session ends.
func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("ignoring malformed client message")
		return
	}

	switch msg.Type {
	case ClientEditBegin:
		c.Edit.Begin()
	case ClientEditEnd:
		if c.Edit.End() {
			if data := c.takeDeferred(); data != nil {
				c.Manager.deliver(c, data)
			}
		}
	default:
		log.Debug().Str("connection_id", c.ID).Str("type", string(msg.Type)).Msg("unknown client message")
	}
}
