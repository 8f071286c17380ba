package turn

import (
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/turnclock/go/internal/models"
)

// SlotChange is a partial update to one slot. Nil fields are left alone.
type SlotChange struct {
	Slot         int
	SpentSeconds *int
	BaseSeconds  *int
	// SetOccupant distinguishes "clear the occupant" from "leave it".
	SetOccupant bool
	OccupantID  *uuid.UUID
	Label       *string
	Color       *string
}

// Outcome is the result of a transition: the next room state and the slot writes
// that go with it. Slot writes are applied before the room state.
type Outcome struct {
	State models.RoomState
	Slots []SlotChange
}

// Apply returns slots with the outcome's slot changes applied.
func (o Outcome) Apply(slots []models.SlotState) []models.SlotState {
	out := make([]models.SlotState, len(slots))
	for i, s := range slots {
		out[i] = s.Clone()
	}
	for _, ch := range o.Slots {
		for i := range out {
			if out[i].Slot != ch.Slot {
				continue
			}
			ApplySlotChange(&out[i], ch)
		}
	}
	return out
}

// ApplySlotChange writes the non-nil fields of ch into s.
func ApplySlotChange(s *models.SlotState, ch SlotChange) {
	if ch.SpentSeconds != nil {
		s.SpentSeconds = *ch.SpentSeconds
	}
	if ch.BaseSeconds != nil {
		s.BaseSeconds = *ch.BaseSeconds
	}
	if ch.SetOccupant {
		if ch.OccupantID == nil {
			s.OccupantID = nil
		} else {
			id := *ch.OccupantID
			s.OccupantID = &id
		}
	}
	if ch.Label != nil {
		s.Label = *ch.Label
	}
	if ch.Color != nil {
		s.Color = *ch.Color
	}
}

func findSlot(slots []models.SlotState, n int) *models.SlotState {
	for i := range slots {
		if slots[i].Slot == n {
			return &slots[i]
		}
	}
	return nil
}

// finalize folds the open interval of the active slot into its stored spent time.
// It returns nil when nothing is accruing.
func finalize(st models.RoomState, slots []models.SlotState, now time.Time) *SlotChange {
	if !st.IsRunning || st.Combat.Active || st.ActiveSlot == nil {
		return nil
	}
	active := findSlot(slots, *st.ActiveSlot)
	if active == nil {
		return nil
	}
	spent := LiveSpent(*active, st, now)
	return &SlotChange{Slot: active.Slot, SpentSeconds: &spent}
}

// Activate starts the clock on target, or hands it over from the active slot.
func Activate(st models.RoomState, slots []models.SlotState, target int, now time.Time) (Outcome, error) {
	if findSlot(slots, target) == nil {
		return Outcome{}, ErrUnknownSlot
	}
	if st.Combat.Active {
		return Outcome{}, ErrCombatActive
	}
	if st.IsRunning && st.ActiveSlot != nil && *st.ActiveSlot == target {
		return Outcome{}, ErrAlreadyActive
	}

	out := Outcome{State: st.Clone()}
	if ch := finalize(st, slots, now); ch != nil {
		out.Slots = append(out.Slots, *ch)
	}
	out.State.IsRunning = true
	out.State.ActiveSlot = models.IntPtr(target)
	out.State.StartedAt = models.TimePtr(now)
	return out, nil
}

// Stop folds the active interval and idles the room.
func Stop(st models.RoomState, slots []models.SlotState, now time.Time) (Outcome, error) {
	if st.Combat.Active {
		return Outcome{}, ErrCombatActive
	}
	if !st.IsRunning {
		return Outcome{}, ErrNotRunning
	}

	out := Outcome{State: st.Clone()}
	if ch := finalize(st, slots, now); ch != nil {
		out.Slots = append(out.Slots, *ch)
	}
	out.State.IsRunning = false
	out.State.ActiveSlot = nil
	out.State.StartedAt = nil
	return out, nil
}

// BeginCombat freezes all accrual. The initiator keeps the active slot and
// StartedAt is reset so the frozen interval is never counted.
func BeginCombat(st models.RoomState, slots []models.SlotState, target int, now time.Time) (Outcome, error) {
	if !st.IsRunning || st.ActiveSlot == nil {
		return Outcome{}, ErrNotRunning
	}
	if st.Combat.Active {
		return Outcome{}, ErrCombatActive
	}
	if findSlot(slots, target) == nil {
		return Outcome{}, ErrUnknownSlot
	}
	if target == *st.ActiveSlot {
		return Outcome{}, ErrSameSlot
	}

	out := Outcome{State: st.Clone()}
	if ch := finalize(st, slots, now); ch != nil {
		out.Slots = append(out.Slots, *ch)
	}
	out.State.StartedAt = models.TimePtr(now)
	out.State.Combat = models.CombatState{
		Active:        true,
		StartedAt:     models.TimePtr(now),
		InitiatorSlot: models.IntPtr(*st.ActiveSlot),
		TargetSlot:    models.IntPtr(target),
	}
	return out, nil
}

// EndCombat resumes the initiator's clock from now.
func EndCombat(st models.RoomState, now time.Time) (Outcome, error) {
	if !st.Combat.Active {
		return Outcome{}, Invalid("state", "no combat in progress")
	}

	out := Outcome{State: st.Clone()}
	initiator := st.Combat.InitiatorSlot
	if initiator == nil {
		initiator = st.ActiveSlot
	}
	out.State.Combat = models.CombatState{}
	if initiator == nil {
		out.State.IsRunning = false
		out.State.ActiveSlot = nil
		out.State.StartedAt = nil
		return out, nil
	}
	out.State.IsRunning = true
	out.State.ActiveSlot = models.IntPtr(*initiator)
	out.State.StartedAt = models.TimePtr(now)
	return out, nil
}

// ResetPhase begins the next phase: the room idles, combat clears, and every
// slot gets a fresh budget with no spent time.
func ResetPhase(st models.RoomState, slots []models.SlotState, defaultSeconds int, overrides map[int]int) (Outcome, error) {
	if defaultSeconds < 0 || defaultSeconds > MaxClockSeconds {
		return Outcome{}, Invalid("default_seconds", "must be between 0 and %d", MaxClockSeconds)
	}
	for slot, secs := range overrides {
		if findSlot(slots, slot) == nil {
			return Outcome{}, Invalid("overrides", "no slot %d", slot)
		}
		if secs < 0 || secs > MaxClockSeconds {
			return Outcome{}, Invalid("overrides", "slot %d: must be between 0 and %d", slot, MaxClockSeconds)
		}
	}

	out := Outcome{State: st.Clone()}
	out.State.PhaseIndex = st.PhaseIndex + 1
	out.State.IsRunning = false
	out.State.ActiveSlot = nil
	out.State.StartedAt = nil
	out.State.PhaseDefaultSeconds = defaultSeconds
	out.State.Combat = models.CombatState{}

	for _, s := range slots {
		base := defaultSeconds
		if v, ok := overrides[s.Slot]; ok {
			base = v
		}
		out.Slots = append(out.Slots, SlotChange{
			Slot:         s.Slot,
			SpentSeconds: models.IntPtr(0),
			BaseSeconds:  models.IntPtr(base),
		})
	}
	return out, nil
}

// AssignSlot seats occupant on slot, unseating them from any other slot first.
// A nil occupant vacates the slot.
func AssignSlot(st models.RoomState, slots []models.SlotState, slot int, occupant *uuid.UUID) (Outcome, error) {
	if findSlot(slots, slot) == nil {
		return Outcome{}, ErrUnknownSlot
	}

	out := Outcome{State: st.Clone()}
	if occupant != nil {
		if prev := CallerSlot(slots, *occupant); prev != nil && prev.Slot != slot {
			out.Slots = append(out.Slots, SlotChange{Slot: prev.Slot, SetOccupant: true})
		}
	}
	out.Slots = append(out.Slots, SlotChange{Slot: slot, SetOccupant: true, OccupantID: occupant})
	return out, nil
}

// SetLabel renames a slot.
func SetLabel(st models.RoomState, slots []models.SlotState, slot int, label string) (Outcome, error) {
	if findSlot(slots, slot) == nil {
		return Outcome{}, ErrUnknownSlot
	}
	l, err := NormalizeLabel(slot, label)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{State: st.Clone(), Slots: []SlotChange{{Slot: slot, Label: &l}}}, nil
}

// SetColor recolors a slot.
func SetColor(st models.RoomState, slots []models.SlotState, slot int, color string) (Outcome, error) {
	if findSlot(slots, slot) == nil {
		return Outcome{}, ErrUnknownSlot
	}
	c, err := NormalizeColor(color)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{State: st.Clone(), Slots: []SlotChange{{Slot: slot, Color: &c}}}, nil
}

// SwapColors exchanges the colors of slots a and b. It follows the same idle-only
// rule as SwapOccupants so the two swaps can be combined by a DM.
func SwapColors(st models.RoomState, slots []models.SlotState, a, b int) (Outcome, error) {
	if st.IsRunning {
		return Outcome{}, ErrRunning
	}
	if st.Combat.Active {
		return Outcome{}, ErrCombatActive
	}
	sa, sb := findSlot(slots, a), findSlot(slots, b)
	if sa == nil || sb == nil {
		return Outcome{}, ErrUnknownSlot
	}
	if a == b {
		return Outcome{}, Invalid("slot", "cannot swap a slot with itself")
	}
	ca, cb := sa.Color, sb.Color
	return Outcome{
		State: st.Clone(),
		Slots: []SlotChange{{Slot: a, Color: &cb}, {Slot: b, Color: &ca}},
	}, nil
}

// SwapOccupants exchanges who sits on slots a and b. Time stays with the slot, so
// the swap is refused while anything could be accruing or frozen mid-combat.
func SwapOccupants(st models.RoomState, slots []models.SlotState, a, b int) (Outcome, error) {
	if st.IsRunning {
		return Outcome{}, ErrRunning
	}
	if st.Combat.Active {
		return Outcome{}, ErrCombatActive
	}
	sa, sb := findSlot(slots, a), findSlot(slots, b)
	if sa == nil || sb == nil {
		return Outcome{}, ErrUnknownSlot
	}
	if a == b {
		return Outcome{}, Invalid("slot", "cannot swap a slot with itself")
	}
	// Vacate a first so no occupant ever holds two slots between writes.
	return Outcome{
		State: st.Clone(),
		Slots: []SlotChange{
			{Slot: a, SetOccupant: true},
			{Slot: b, SetOccupant: true, OccupantID: sa.OccupantID},
			{Slot: a, SetOccupant: true, OccupantID: sb.OccupantID},
		},
	}, nil
}
