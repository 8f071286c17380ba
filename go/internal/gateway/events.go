package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RoomEvent is the frame pushed to viewers.
type RoomEvent struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType represents the type of room event
type EventType string

const (
	// EventTypeSnapshot carries a full RoomView after the mirror changed.
	EventTypeSnapshot EventType = "Snapshot"
	// EventTypeTimerTick carries a recomputed RoomView on every render tick.
	EventTypeTimerTick EventType = "TimerTick"
)

// NewRoomEvent wraps payload in an event envelope.
func NewRoomEvent(roomID uuid.UUID, typ EventType, at time.Time, payload interface{}) (*RoomEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return &RoomEvent{
		ID:        uuid.New().String(),
		RoomID:    roomID.String(),
		Type:      typ,
		Timestamp: at,
		Data:      data,
	}, nil
}

// ClientMessageType is what a viewer may send over the socket.
type ClientMessageType string

const (
	ClientEditBegin ClientMessageType = "edit_begin"
	ClientEditEnd   ClientMessageType = "edit_end"
)

type ClientMessage struct {
	Type ClientMessageType `json:"type"`
}
