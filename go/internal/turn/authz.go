package turn

import (
	"github.com/google/uuid"

	"github.com/mcdev12/turnclock/go/internal/models"
)

// Actor is whoever issues an intent. DMToken is only a hint on the client side;
// the store validates it against the room's issued token.
type Actor struct {
	OccupantID uuid.UUID
	DMToken    string
}

// IsDM reports whether the actor presents a DM credential.
func (a Actor) IsDM() bool {
	return a.DMToken != ""
}

// CallerSlot finds the slot occupied by occupant, or nil when unseated.
func CallerSlot(slots []models.SlotState, occupant uuid.UUID) *models.SlotState {
	if occupant == uuid.Nil {
		return nil
	}
	for i := range slots {
		if slots[i].OccupantID != nil && *slots[i].OccupantID == occupant {
			return &slots[i]
		}
	}
	return nil
}

// CanActivate: an idle room can only be started by a participant on their own slot;
// a running room can only be handed over by the holder of the active slot.
func CanActivate(caller *models.SlotState, target int, st models.RoomState) bool {
	if st.Combat.Active || caller == nil {
		return false
	}
	if !st.IsRunning {
		return target == caller.Slot
	}
	return st.ActiveSlot != nil && caller.Slot == *st.ActiveSlot
}

// CanStop: the DM always, otherwise the holder of the active slot outside combat.
func CanStop(caller *models.SlotState, isDM bool, st models.RoomState) bool {
	if isDM {
		return true
	}
	if caller == nil || !st.IsRunning || st.Combat.Active || st.ActiveSlot == nil {
		return false
	}
	return caller.Slot == *st.ActiveSlot
}

// CanBeginCombat: only the holder of the active slot of a running room.
func CanBeginCombat(caller *models.SlotState, st models.RoomState) bool {
	if caller == nil || !st.IsRunning || st.Combat.Active || st.ActiveSlot == nil {
		return false
	}
	return caller.Slot == *st.ActiveSlot
}

// CanEndCombat: the DM or the initiator, and only while combat is on.
func CanEndCombat(caller *models.SlotState, isDM bool, st models.RoomState) bool {
	if !st.Combat.Active {
		return false
	}
	if isDM {
		return true
	}
	return caller != nil && st.Combat.InitiatorSlot != nil && caller.Slot == *st.Combat.InitiatorSlot
}
