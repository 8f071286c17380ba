package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/turnclock/go/internal/models"
	"github.com/mcdev12/turnclock/go/internal/store"
	"github.com/mcdev12/turnclock/go/internal/turn"
)

const (
	HeaderOccupantID = "X-Occupant-ID"
	HeaderDMToken    = "X-DM-Token"
)

// RoomHandler serves the JSON API of a room.
type RoomHandler struct {
	hub *RoomHub
}

func NewRoomHandler(hub *RoomHub) *RoomHandler {
	return &RoomHandler{hub: hub}
}

type slotRequest struct {
	Slot int `json:"slot"`
}

type resetPhaseRequest struct {
	Default   string            `json:"default"`
	Overrides map[string]string `json:"overrides"`
}

type assignRequest struct {
	Slot       int        `json:"slot"`
	OccupantID *uuid.UUID `json:"occupant_id"`
}

type labelRequest struct {
	Slot  int    `json:"slot"`
	Label string `json:"label"`
}

type colorRequest struct {
	Slot  int    `json:"slot"`
	Color string `json:"color"`
}

type swapRequest struct {
	A int `json:"a"`
	B int `json:"b"`
}

type joinResponse struct {
	Slot int      `json:"slot"`
	View RoomView `json:"view"`
}

type errorResponse struct {
	Error string    `json:"error"`
	Kind  turn.Kind `json:"kind,omitempty"`
}

func (h *RoomHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rooms/{code}/state", h.HandleGetState)
	mux.HandleFunc("POST /api/rooms/{code}/join", h.HandleJoin)
	mux.HandleFunc("POST /api/rooms/{code}/activate", h.HandleActivate)
	mux.HandleFunc("POST /api/rooms/{code}/stop", h.HandleStop)
	mux.HandleFunc("POST /api/rooms/{code}/combat/begin", h.HandleBeginCombat)
	mux.HandleFunc("POST /api/rooms/{code}/combat/end", h.HandleEndCombat)
	mux.HandleFunc("POST /api/rooms/{code}/dm/reset-phase", h.HandleResetPhase)
	mux.HandleFunc("POST /api/rooms/{code}/dm/assign", h.HandleAssign)
	mux.HandleFunc("POST /api/rooms/{code}/dm/label", h.HandleLabel)
	mux.HandleFunc("POST /api/rooms/{code}/dm/color", h.HandleColor)
	mux.HandleFunc("POST /api/rooms/{code}/dm/swap", h.HandleSwap)
	mux.HandleFunc("POST /api/rooms/{code}/dm/swap-colors", h.HandleSwapColors)
}

// HandleGetState handles GET /api/rooms/{code}/state
func (h *RoomHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	s, ok := h.open(w, r)
	if !ok {
		return
	}
	view, ok := s.View()
	if !ok {
		writeError(w, turn.ErrRemoteFailure)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *RoomHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	s, ok := h.open(w, r)
	if !ok {
		return
	}
	slot, err := s.Engine.Join(r.Context(), actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	view, _ := s.View()
	writeJSON(w, http.StatusOK, joinResponse{Slot: slot, View: view})
}

func (h *RoomHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	h.intent(w, r, &req, func(ctx context.Context, s *Session, actor turn.Actor) (models.Room, error) {
		return s.Engine.Activate(ctx, actor, req.Slot)
	})
}

func (h *RoomHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.intent(w, r, nil, func(ctx context.Context, s *Session, actor turn.Actor) (models.Room, error) {
		return s.Engine.Stop(ctx, actor)
	})
}

func (h *RoomHandler) HandleBeginCombat(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	h.intent(w, r, &req, func(ctx context.Context, s *Session, actor turn.Actor) (models.Room, error) {
		return s.Engine.BeginCombat(ctx, actor, req.Slot)
	})
}

func (h *RoomHandler) HandleEndCombat(w http.ResponseWriter, r *http.Request) {
	h.intent(w, r, nil, func(ctx context.Context, s *Session, actor turn.Actor) (models.Room, error) {
		return s.Engine.EndCombat(ctx, actor)
	})
}

// HandleResetPhase takes durations as "mm:ss" strings, overrides keyed by slot number.
func (h *RoomHandler) HandleResetPhase(w http.ResponseWriter, r *http.Request) {
	var req resetPhaseRequest
	h.intent(w, r, &req, func(ctx context.Context, s *Session, actor turn.Actor) (models.Room, error) {
		def, err := turn.ParseClock(req.Default)
		if err != nil {
			return models.Room{}, err
		}
		overrides := make(map[int]int, len(req.Overrides))
		for key, value := range req.Overrides {
			slot, err := strconv.Atoi(key)
			if err != nil {
				return models.Room{}, turn.Invalid("overrides", "slot %q is not a number", key)
			}
			secs, err := turn.ParseClock(value)
			if err != nil {
				return models.Room{}, err
			}
			overrides[slot] = secs
		}
		return s.Engine.ResetPhase(ctx, actor, def, overrides)
	})
}

func (h *RoomHandler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	h.intent(w, r, &req, func(ctx context.Context, s *Session, actor turn.Actor) (models.Room, error) {
		return s.Engine.AssignSlot(ctx, actor, req.Slot, req.OccupantID)
	})
}

func (h *RoomHandler) HandleLabel(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	h.intent(w, r, &req, func(ctx context.Context, s *Session, actor turn.Actor) (models.Room, error) {
		return s.Engine.SetLabel(ctx, actor, req.Slot, req.Label)
	})
}

func (h *RoomHandler) HandleColor(w http.ResponseWriter, r *http.Request) {
	var req colorRequest
	h.intent(w, r, &req, func(ctx context.Context, s *Session, actor turn.Actor) (models.Room, error) {
		return s.Engine.SetColor(ctx, actor, req.Slot, req.Color)
	})
}

// HandleSwap exchanges occupants; colors and time stay on the slots.
func (h *RoomHandler) HandleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	h.intent(w, r, &req, func(ctx context.Context, s *Session, actor turn.Actor) (models.Room, error) {
		return s.Engine.SwapOccupants(ctx, actor, req.A, req.B)
	})
}

func (h *RoomHandler) HandleSwapColors(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	h.intent(w, r, &req, func(ctx context.Context, s *Session, actor turn.Actor) (models.Room, error) {
		return s.Engine.SwapColors(ctx, actor, req.A, req.B)
	})
}

type intentFunc func(ctx context.Context, s *Session, actor turn.Actor) (models.Room, error)

// intent decodes body into req (when non-nil), runs fn and answers with the room
// view, overlaid with the returned record when it is newer than the mirror.
func (h *RoomHandler) intent(w http.ResponseWriter, r *http.Request, req interface{}, fn intentFunc) {
	s, ok := h.open(w, r)
	if !ok {
		return
	}
	if req != nil {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			writeError(w, turn.Invalid("body", "malformed JSON: %v", err))
			return
		}
	}

	room, err := fn(r.Context(), s, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	snap, _ := s.Mirror.Snapshot()
	if room.ID == snap.Room.ID && room.Revision >= snap.Room.Revision {
		snap.Room = room
	}
	writeJSON(w, http.StatusOK, BuildView(snap, s.Mirror.Now()))
}

func (h *RoomHandler) open(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	s, err := h.hub.Open(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return s, true
}

// actorFromRequest reads the caller identity. A malformed occupant id is treated as absent.
func actorFromRequest(r *http.Request) turn.Actor {
	var actor turn.Actor
	if id, err := uuid.Parse(r.Header.Get(HeaderOccupantID)); err == nil {
		actor.OccupantID = id
	}
	actor.DMToken = r.Header.Get(HeaderDMToken)
	if actor.DMToken == "" {
		actor.DMToken = r.URL.Query().Get("dm")
	}
	return actor
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	}
	switch turn.KindOf(err) {
	case turn.KindAuthorizationDenied:
		return http.StatusForbidden
	case turn.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	resp := errorResponse{Error: err.Error()}
	if status != http.StatusNotFound && status != http.StatusConflict {
		resp.Kind = turn.KindOf(err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
