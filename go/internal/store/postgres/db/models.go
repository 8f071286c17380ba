package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID       uuid.UUID       `json:"id"`
	Code     string          `json:"code"`
	Revision int64           `json:"revision"`
	State    json.RawMessage `json:"state"`
}

type PlayerSlot struct {
	RoomID       uuid.UUID     `json:"room_id"`
	Slot         int16         `json:"slot"`
	Color        string        `json:"color"`
	Label        string        `json:"label"`
	UserID       uuid.NullUUID `json:"user_id"`
	BaseSeconds  int32         `json:"base_seconds"`
	SpentSeconds int32         `json:"spent_seconds"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
