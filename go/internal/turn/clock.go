package turn

import (
	"time"

	"github.com/mcdev12/turnclock/go/internal/models"
)

// CombatBudget is the advisory length of a combat exchange. Nothing ends combat when it runs out.
const CombatBudget = 60 * time.Second

// ElapsedSeconds returns whole seconds from since to now, clamped at zero.
// A nil baseline yields zero.
func ElapsedSeconds(since *time.Time, now time.Time) int {
	if since == nil || since.IsZero() {
		return 0
	}
	d := now.Sub(*since)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

// LiveSpent is the spent time of slot including the open interval since the last
// baseline. Only the active slot of a running room outside combat accrues.
func LiveSpent(slot models.SlotState, st models.RoomState, now time.Time) int {
	if st.Combat.Active || !st.IsRunning || st.ActiveSlot == nil || *st.ActiveSlot != slot.Slot {
		return slot.SpentSeconds
	}
	return slot.SpentSeconds + ElapsedSeconds(st.StartedAt, now)
}

// Remaining is the unspent budget of slot, never negative.
func Remaining(slot models.SlotState, st models.RoomState, now time.Time) int {
	return max(0, slot.BaseSeconds-LiveSpent(slot, st, now))
}

// CombatRemaining returns the seconds left of the combat budget, or nil outside combat.
func CombatRemaining(st models.RoomState, now time.Time) *int {
	if !st.Combat.Active {
		return nil
	}
	left := max(0, int(CombatBudget/time.Second)-ElapsedSeconds(st.Combat.StartedAt, now))
	return &left
}
