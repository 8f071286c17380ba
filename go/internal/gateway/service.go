package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/turnclock/go/internal/engine"
)

// Service is the turn clock gateway: JSON intents, viewer sockets and the render ticker.
type Service struct {
	hub               *RoomHub
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	roomHandler       *RoomHandler
	ticker            *Ticker
	health            HealthChecker
	metrics           *engine.CountingMetrics
	clock             clockwork.Clock
}

type Config struct {
	ConnectionConfig ConnectionConfig
	TickInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		TickInterval:     DefaultTickInterval,
	}
}

// NewService wires the gateway around hub. Mirror changes become Snapshot frames.
func NewService(config Config, hub *RoomHub, metrics *engine.CountingMetrics, health HealthChecker, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cm := NewConnectionManager(config.ConnectionConfig)
	s := &Service{
		hub:               hub,
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(hub, cm),
		roomHandler:       NewRoomHandler(hub),
		ticker:            NewTicker(hub, cm, clock, config.TickInterval),
		health:            health,
		metrics:           metrics,
		clock:             clock,
	}
	hub.OnChange(s.broadcastSnapshot)
	return s
}

func (s *Service) broadcastSnapshot(session *Session) {
	view, ok := session.View()
	if !ok {
		return
	}
	ev, err := NewRoomEvent(session.Room.ID, EventTypeSnapshot, view.Now, view)
	if err != nil {
		log.Error().Err(err).Str("room_code", session.Room.Code).Msg("failed to build snapshot")
		return
	}
	s.connectionManager.BroadcastToRoom(session.Room.ID, ev)
}

// Start runs the connection manager and ticker until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting turn clock gateway service")

	go s.connectionManager.Start(ctx)
	go s.ticker.Run(ctx)

	<-ctx.Done()

	log.Info().Msg("turn clock gateway service shutting down")
	return s.Stop()
}

func (s *Service) Stop() error {
	s.hub.Close()
	log.Info().Msg("turn clock gateway service stopped")
	return nil
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.roomHandler.RegisterRoutes(mux)
	if s.health != nil {
		mux.Handle("GET /health", s.healthHandler())
	}
	mux.HandleFunc("GET /info", s.handleInfo)
	log.Info().Msg("turn clock gateway routes registered")
}

func (s *Service) healthHandler() http.Handler {
	if h, ok := s.health.(http.Handler); ok {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := s.health.Check(r.Context())
		code := http.StatusOK
		if !status.Healthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	})
}

func (s *Service) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.GetStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode info response")
	}
}

func (s *Service) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"service":     "turnclock-gateway",
		"status":      "running",
		"now":         s.clock.Now(),
		"connections": s.connectionManager.GetConnectionStats(),
		"hub":         s.hub.Stats(),
	}
	if s.metrics != nil {
		stats["intents"] = s.metrics.Snapshot()
	}
	return stats
}

// BroadcastEvent queues an event for every viewer of a room.
func (s *Service) BroadcastEvent(roomID uuid.UUID, event *RoomEvent) {
	s.connectionManager.BroadcastToRoom(roomID, event)
}

// Ticker exposes the render scheduler, mainly for tests.
func (s *Service) Ticker() *Ticker { return s.ticker }
