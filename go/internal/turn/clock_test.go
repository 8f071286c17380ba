package turn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/turnclock/go/internal/models"
)

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

func runningOn(slot int, since time.Time) models.RoomState {
	st := models.DefaultRoomState()
	st.IsRunning = true
	st.ActiveSlot = models.IntPtr(slot)
	st.StartedAt = models.TimePtr(since)
	return st
}

func TestLiveSpent(t *testing.T) {
	slot1 := models.SlotState{Slot: 1, BaseSeconds: 120, SpentSeconds: 10}
	slot2 := models.SlotState{Slot: 2, BaseSeconds: 120, SpentSeconds: 5}

	idle := models.DefaultRoomState()

	combat := runningOn(1, at(0))
	combat.Combat = models.CombatState{Active: true, StartedAt: models.TimePtr(at(0)), InitiatorSlot: models.IntPtr(1), TargetSlot: models.IntPtr(2)}

	noBaseline := runningOn(1, at(0))
	noBaseline.StartedAt = nil

	cases := []struct {
		name  string
		slot  models.SlotState
		state models.RoomState
		now   time.Time
		want  int
	}{
		{"idle room", slot1, idle, at(100), 10},
		{"active slot accrues", slot1, runningOn(1, at(0)), at(30), 40},
		{"fractional seconds floor", slot1, runningOn(1, at(0)), at(30).Add(999 * time.Millisecond), 40},
		{"inactive slot frozen", slot2, runningOn(1, at(0)), at(30), 5},
		{"combat freezes active slot", slot1, combat, at(30), 10},
		{"clock skew behind baseline clamps to zero", slot1, runningOn(1, at(60)), at(0), 10},
		{"missing baseline is fail-soft", slot1, noBaseline, at(30), 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, LiveSpent(tc.slot, tc.state, tc.now))
		})
	}
}

func TestLiveSpentFrozenSlotsInvariantOverTime(t *testing.T) {
	slots := []models.SlotState{
		{Slot: 1, BaseSeconds: 120, SpentSeconds: 3},
		{Slot: 2, BaseSeconds: 120, SpentSeconds: 7},
		{Slot: 3, BaseSeconds: 120, SpentSeconds: 11},
	}
	running := runningOn(2, at(0))
	combat := runningOn(2, at(0))
	combat.Combat = models.CombatState{Active: true, StartedAt: models.TimePtr(at(0)), InitiatorSlot: models.IntPtr(2), TargetSlot: models.IntPtr(3)}

	for _, s := range slots {
		for _, now := range []time.Time{at(0), at(1), at(59), at(3600)} {
			if s.Slot != 2 {
				assert.Equal(t, s.SpentSeconds, LiveSpent(s, running, now), "slot %d at %s", s.Slot, now)
			}
			assert.Equal(t, s.SpentSeconds, LiveSpent(s, combat, now), "slot %d in combat at %s", s.Slot, now)
		}
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	over := models.SlotState{Slot: 1, BaseSeconds: 60, SpentSeconds: 500}
	assert.Equal(t, 0, Remaining(over, models.DefaultRoomState(), at(0)))
	assert.Equal(t, 0, Remaining(over, runningOn(1, at(0)), at(1000)))

	exhausting := models.SlotState{Slot: 1, BaseSeconds: 60}
	assert.Equal(t, 1, Remaining(exhausting, runningOn(1, at(0)), at(59)))
	assert.Equal(t, 0, Remaining(exhausting, runningOn(1, at(0)), at(61)))
}

func TestCombatRemaining(t *testing.T) {
	assert.Nil(t, CombatRemaining(runningOn(1, at(0)), at(10)))

	st := runningOn(1, at(40))
	st.Combat = models.CombatState{Active: true, StartedAt: models.TimePtr(at(40)), InitiatorSlot: models.IntPtr(1), TargetSlot: models.IntPtr(2)}

	left := CombatRemaining(st, at(70))
	require.NotNil(t, left)
	assert.Equal(t, 30, *left)

	left = CombatRemaining(st, at(500))
	require.NotNil(t, left)
	assert.Equal(t, 0, *left, "budget clamps at zero and combat keeps going")

	st.Combat.StartedAt = nil
	left = CombatRemaining(st, at(500))
	require.NotNil(t, left)
	assert.Equal(t, 60, *left)
}
