package models

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	// MinSlots and MaxSlots bound the number of participant slots in a room.
	MinSlots = 4
	MaxSlots = 10

	// DefaultPhaseSeconds is the per-slot budget used when a room has none configured.
	DefaultPhaseSeconds = 120
)

// DefaultColors are handed out to slots 1..10 when a room is created.
var DefaultColors = []string{
	"#e53935", "#8e24aa", "#3949ab", "#1e88e5", "#00897b",
	"#43a047", "#f4511e", "#6d4c41", "#546e7a", "#f9a825",
}

// CombatState is the combat block of a room. While Active, no slot accrues time.
type CombatState struct {
	Active        bool       `json:"active"`
	StartedAt     *time.Time `json:"started_at"`
	InitiatorSlot *int       `json:"initiator_slot"`
	TargetSlot    *int       `json:"target_slot"`
}

// RoomState is the shared turn clock state of one room.
type RoomState struct {
	PhaseIndex          int         `json:"phase_index"`
	IsRunning           bool        `json:"is_running"`
	ActiveSlot          *int        `json:"active_slot"`
	StartedAt           *time.Time  `json:"started_at"`
	PhaseDefaultSeconds int         `json:"phase_default_seconds"`
	Combat              CombatState `json:"combat"`
}

// SlotState is one participant slot. Color and label are cosmetic.
type SlotState struct {
	Slot         int        `json:"slot"`
	OccupantID   *uuid.UUID `json:"user_id"`
	BaseSeconds  int        `json:"base_seconds"`
	SpentSeconds int        `json:"spent_seconds"`
	Color        string     `json:"color"`
	Label        string     `json:"label"`
}

// Room is the stored record wrapping a RoomState. Revision is bumped by the store on every update.
type Room struct {
	ID       uuid.UUID `json:"id"`
	Code     string    `json:"code"`
	Revision int64     `json:"revision"`
	State    RoomState `json:"state"`
}

// Snapshot is a room together with its slots, as last read from the store.
type Snapshot struct {
	Room     Room        `json:"room"`
	Slots    []SlotState `json:"slots"`
	LoadedAt time.Time   `json:"loaded_at"`
}

// DefaultRoomState is the state of a freshly created room.
func DefaultRoomState() RoomState {
	return RoomState{PhaseDefaultSeconds: DefaultPhaseSeconds}
}

// Slot returns a pointer into s.Slots for the given slot number, or nil.
func (s *Snapshot) Slot(n int) *SlotState {
	for i := range s.Slots {
		if s.Slots[i].Slot == n {
			return &s.Slots[i]
		}
	}
	return nil
}

// Clone returns a deep copy so callers can hand snapshots across goroutines.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Room.State = s.Room.State.Clone()
	if s.Slots != nil {
		out.Slots = make([]SlotState, len(s.Slots))
		for i, sl := range s.Slots {
			out.Slots[i] = sl.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the state.
func (st RoomState) Clone() RoomState {
	out := st
	out.ActiveSlot = cloneInt(st.ActiveSlot)
	out.StartedAt = cloneTime(st.StartedAt)
	out.Combat.StartedAt = cloneTime(st.Combat.StartedAt)
	out.Combat.InitiatorSlot = cloneInt(st.Combat.InitiatorSlot)
	out.Combat.TargetSlot = cloneInt(st.Combat.TargetSlot)
	return out
}

// Clone returns a deep copy of the slot.
func (s SlotState) Clone() SlotState {
	out := s
	if s.OccupantID != nil {
		id := *s.OccupantID
		out.OccupantID = &id
	}
	return out
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }

func UUIDPtr(id uuid.UUID) *uuid.UUID { return &id }

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// DecodeRoomState parses a stored state document. It never fails: every field is
// read on its own, so a missing or mistyped field falls back to the default of a
// fresh room without disturbing the others, and an unparseable timestamp decodes to nil.
func DecodeRoomState(data []byte) RoomState {
	st := DefaultRoomState()

	fields := looseObject(data)
	if fields == nil {
		return st
	}

	if v, ok := looseNumber(fields["phase_index"]); ok {
		st.PhaseIndex = v
	}
	st.IsRunning = looseBool(fields["is_running"])
	st.ActiveSlot = looseInt(fields["active_slot"])
	st.StartedAt = looseTime(fields["started_at"])
	if v, ok := looseNumber(fields["phase_default_seconds"]); ok && v >= 0 {
		st.PhaseDefaultSeconds = v
	}

	if combat := looseObject(fields["combat"]); combat != nil {
		st.Combat.Active = looseBool(combat["active"])
		st.Combat.StartedAt = looseTime(combat["started_at"])
		st.Combat.InitiatorSlot = looseInt(combat["initiator_slot"])
		st.Combat.TargetSlot = looseInt(combat["target_slot"])
	}
	return st
}

// UnmarshalJSON decodes leniently, see DecodeRoomState.
func (st *RoomState) UnmarshalJSON(data []byte) error {
	*st = DecodeRoomState(data)
	return nil
}

func looseObject(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// looseNumber accepts only JSON numbers; quoted digits are treated as absent.
func looseNumber(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

func looseInt(raw json.RawMessage) *int {
	v, ok := looseNumber(raw)
	if !ok {
		return nil
	}
	return &v
}

// looseBool reads true, non-zero numbers and non-empty strings as set.
func looseBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return v != nil
	}
}

func looseTime(raw json.RawMessage) *time.Time {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999-07", "2006-01-02 15:04:05.999999-07"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
