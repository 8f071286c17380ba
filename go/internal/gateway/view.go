package gateway

import (
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/turnclock/go/internal/models"
	"github.com/mcdev12/turnclock/go/internal/turn"
)

type SlotView struct {
	Slot             int        `json:"slot"`
	Label            string     `json:"label"`
	Color            string     `json:"color"`
	OccupantID       *uuid.UUID `json:"user_id"`
	BaseSeconds      int        `json:"base_seconds"`
	SpentSeconds     int        `json:"spent_seconds"`
	RemainingSeconds int        `json:"remaining_seconds"`
	Clock            string     `json:"clock"`
	Active           bool       `json:"active"`
	Exhausted        bool       `json:"exhausted"`
}

type CombatView struct {
	InitiatorSlot    *int   `json:"initiator_slot"`
	TargetSlot       *int   `json:"target_slot"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Clock            string `json:"clock"`
}

// RoomView is what viewers render. Every number in it is computed from the
// snapshot and the corrected clock; nothing here is written back.
type RoomView struct {
	RoomID              uuid.UUID   `json:"room_id"`
	Code                string      `json:"code"`
	Revision            int64       `json:"revision"`
	PhaseIndex          int         `json:"phase_index"`
	PhaseDefaultSeconds int         `json:"phase_default_seconds"`
	IsRunning           bool        `json:"is_running"`
	ActiveSlot          *int        `json:"active_slot"`
	Combat              *CombatView `json:"combat,omitempty"`
	Slots               []SlotView  `json:"slots"`
	Now                 time.Time   `json:"now"`
	SyncedAt            time.Time   `json:"synced_at"`
}

// BuildView evaluates the clock math for snap at now.
func BuildView(snap models.Snapshot, now time.Time) RoomView {
	st := snap.Room.State
	view := RoomView{
		RoomID:              snap.Room.ID,
		Code:                snap.Room.Code,
		Revision:            snap.Room.Revision,
		PhaseIndex:          st.PhaseIndex,
		PhaseDefaultSeconds: st.PhaseDefaultSeconds,
		IsRunning:           st.IsRunning,
		ActiveSlot:          st.ActiveSlot,
		Slots:               make([]SlotView, 0, len(snap.Slots)),
		Now:                 now,
		SyncedAt:            snap.LoadedAt,
	}

	if left := turn.CombatRemaining(st, now); left != nil {
		view.Combat = &CombatView{
			InitiatorSlot:    st.Combat.InitiatorSlot,
			TargetSlot:       st.Combat.TargetSlot,
			RemainingSeconds: *left,
			Clock:            turn.FormatClock(*left),
		}
	}

	for _, s := range snap.Slots {
		remaining := turn.Remaining(s, st, now)
		view.Slots = append(view.Slots, SlotView{
			Slot:             s.Slot,
			Label:            s.Label,
			Color:            s.Color,
			OccupantID:       s.OccupantID,
			BaseSeconds:      s.BaseSeconds,
			SpentSeconds:     turn.LiveSpent(s, st, now),
			RemainingSeconds: remaining,
			Clock:            turn.FormatClock(remaining),
			Active:           st.IsRunning && st.ActiveSlot != nil && *st.ActiveSlot == s.Slot,
			Exhausted:        remaining == 0,
		})
	}
	return view
}
