package gateway

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/turnclock/go/internal/store"
)

// WebSocketHandler upgrades viewer connections for a room.
type WebSocketHandler struct {
	hub               *RoomHub
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(hub *RoomHub, cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, connectionManager: cm}
}

// HandleRoomConnection handles GET /ws/rooms/{code}. The first frame is a snapshot.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	s, err := h.hub.Open(r.Context(), code)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("room_code", code).Msg("failed to open room for socket")
		http.Error(w, "failed to open room", http.StatusBadGateway)
		return
	}

	occupantID := r.Header.Get(HeaderOccupantID)
	if occupantID == "" {
		occupantID = r.URL.Query().Get("occupant_id")
	}
	if occupantID == "" {
		occupantID = "anonymous"
	}

	var initial *RoomEvent
	if view, ok := s.View(); ok {
		initial, _ = NewRoomEvent(s.Room.ID, EventTypeSnapshot, view.Now, view)
	}

	if _, err := h.connectionManager.UpgradeConnection(w, r, occupantID, s.Room.ID, initial); err != nil {
		log.Error().
			Err(err).
			Str("room_code", s.Room.Code).
			Str("occupant_id", occupantID).
			Msg("failed to upgrade WebSocket connection")
	}
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/rooms/{code}", h.HandleRoomConnection)
}
