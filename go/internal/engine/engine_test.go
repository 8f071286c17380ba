package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/turnclock/go/internal/mirror"
	"github.com/mcdev12/turnclock/go/internal/models"
	"github.com/mcdev12/turnclock/go/internal/store"
	"github.com/mcdev12/turnclock/go/internal/store/memory"
	"github.com/mcdev12/turnclock/go/internal/turn"
)

type harness struct {
	store   *memory.Store
	clock   *clockwork.FakeClock
	engine  *Engine
	sink    *recordingSink
	room    models.Room
	token   string
	seats   map[int]uuid.UUID
	metrics *CountingMetrics
}

type mode struct {
	name   string
	atomic bool
}

var modes = []mode{{"atomic", true}, {"fallback", false}}

func newHarness(t *testing.T, atomic bool) *harness {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 1, 19, 30, 0, 0, time.UTC))

	opts := []memory.Option{memory.WithClock(clock)}
	if !atomic {
		opts = append(opts, memory.WithoutAtomicOps())
	}
	s := memory.New(opts...)

	room, token, err := s.CreateRoom(ctx, store.CreateRoomParams{Code: "TABLE1", SlotCount: 4, PhaseDefaultSeconds: 120})
	require.NoError(t, err)

	seats := map[int]uuid.UUID{}
	for range 4 {
		id := uuid.New()
		slot, err := s.ClaimVacantSlot(ctx, room.ID, id)
		require.NoError(t, err)
		seats[slot] = id
	}

	neg, err := Negotiate(ctx, s, s, clock)
	require.NoError(t, err)

	m := mirror.New(clock)
	m.SetOffset(neg.ClockOffset)
	rec := mirror.NewReconciler(s, room.ID, m, clock, time.Second)
	require.NoError(t, rec.Reconcile(ctx, mirror.Signal{Source: mirror.SourceInitial}))

	sink := &recordingSink{rec: rec}
	metrics := NewCountingMetrics()
	eng := New(room, Deps{
		Store:        s,
		Atomic:       s,
		Capabilities: neg.Capabilities,
		Mirror:       m,
		Sink:         sink,
		Clock:        clock,
		Metrics:      metrics,
	})

	return &harness{store: s, clock: clock, engine: eng, sink: sink, room: room, token: token, seats: seats, metrics: metrics}
}

func (h *harness) player(slot int) turn.Actor {
	return turn.Actor{OccupantID: h.seats[slot]}
}

func (h *harness) dm() turn.Actor {
	return turn.Actor{DMToken: h.token}
}

func (h *harness) mirrored(t *testing.T) models.Snapshot {
	t.Helper()
	snap, ok := h.engine.mirror.Snapshot()
	require.True(t, ok)
	return snap
}

func (h *harness) slot(t *testing.T, n int) models.SlotState {
	t.Helper()
	snap := h.mirrored(t)
	s := snap.Slot(n)
	require.NotNil(t, s, "slot %d", n)
	return *s
}

func TestNegotiatedPath(t *testing.T) {
	atomicH := newHarness(t, true)
	assert.True(t, atomicH.engine.Capabilities().Has(store.OpStartOrSwitchSlot))

	fallbackH := newHarness(t, false)
	assert.False(t, fallbackH.engine.Capabilities().Has(store.OpStartOrSwitchSlot))
}

func TestActivateAndSwitch(t *testing.T) {
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			h := newHarness(t, m.atomic)
			ctx := context.Background()

			_, err := h.engine.Activate(ctx, h.player(1), 1)
			require.NoError(t, err)

			h.clock.Advance(30 * time.Second)
			snap := h.mirrored(t)
			assert.Equal(t, 90, turn.Remaining(*snap.Slot(1), snap.Room.State, h.engine.mirror.Now()))

			room, err := h.engine.Activate(ctx, h.player(1), 2)
			require.NoError(t, err)
			assert.Equal(t, 2, *room.State.ActiveSlot)

			assert.Equal(t, 30, h.slot(t, 1).SpentSeconds)
			snap = h.mirrored(t)
			require.NotNil(t, snap.Room.State.StartedAt)
			assert.True(t, snap.Room.State.StartedAt.Equal(h.clock.Now()))
		})
	}
}

func TestCombatFreezesAccrual(t *testing.T) {
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			h := newHarness(t, m.atomic)
			ctx := context.Background()

			_, err := h.engine.Activate(ctx, h.player(1), 1)
			require.NoError(t, err)
			h.clock.Advance(40 * time.Second)

			_, err = h.engine.BeginCombat(ctx, h.player(1), 2)
			require.NoError(t, err)
			assert.Equal(t, 40, h.slot(t, 1).SpentSeconds)

			h.clock.Advance(30 * time.Second)
			snap := h.mirrored(t)
			left := turn.CombatRemaining(snap.Room.State, h.engine.mirror.Now())
			require.NotNil(t, left)
			assert.Equal(t, 30, *left)
			assert.Equal(t, 40, turn.LiveSpent(*snap.Slot(1), snap.Room.State, h.engine.mirror.Now()))

			_, err = h.engine.EndCombat(ctx, h.player(2))
			assert.ErrorIs(t, err, turn.ErrAuthorizationDenied)

			_, err = h.engine.EndCombat(ctx, h.player(1))
			require.NoError(t, err)

			snap = h.mirrored(t)
			assert.Equal(t, 1, *snap.Room.State.ActiveSlot)
			assert.Equal(t, 80, turn.Remaining(*snap.Slot(1), snap.Room.State, h.engine.mirror.Now()))
		})
	}
}

func TestDMResetPhase(t *testing.T) {
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			h := newHarness(t, m.atomic)
			ctx := context.Background()

			_, err := h.engine.Activate(ctx, h.player(3), 3)
			require.NoError(t, err)
			h.clock.Advance(17 * time.Second)

			_, err = h.engine.ResetPhase(ctx, h.player(3), 90, nil)
			assert.ErrorIs(t, err, turn.ErrAuthorizationDenied, "players cannot reset")

			_, err = h.engine.ResetPhase(ctx, h.dm(), 90, map[int]int{3: 150})
			require.NoError(t, err)

			snap := h.mirrored(t)
			assert.Equal(t, 1, snap.Room.State.PhaseIndex)
			assert.False(t, snap.Room.State.IsRunning)
			for _, s := range snap.Slots {
				assert.Zero(t, s.SpentSeconds)
				if s.Slot == 3 {
					assert.Equal(t, 150, s.BaseSeconds)
				} else {
					assert.Equal(t, 90, s.BaseSeconds)
				}
			}
		})
	}
}

func TestDMTokenCheckedByStore(t *testing.T) {
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			h := newHarness(t, m.atomic)
			_, err := h.engine.SetLabel(context.Background(), turn.Actor{DMToken: "guess"}, 1, "Paladin")
			assert.ErrorIs(t, err, turn.ErrAuthorizationDenied)
			assert.Equal(t, "J1", h.slot(t, 1).Label)
		})
	}
}

func TestStaleDMTokenIgnoredOnParticipantIntents(t *testing.T) {
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			h := newHarness(t, m.atomic)
			ctx := context.Background()
			player := h.player(1)
			player.DMToken = "stale"

			_, err := h.engine.Activate(ctx, player, 1)
			require.NoError(t, err)
			_, err = h.engine.BeginCombat(ctx, player, 3)
			require.NoError(t, err)

			// Ending combat is something a token can authorize, so a bad one is checked.
			_, err = h.engine.EndCombat(ctx, player)
			assert.ErrorIs(t, err, turn.ErrAuthorizationDenied)
			assert.True(t, h.mirrored(t).Room.State.Combat.Active)
		})
	}
}

func TestDMEditsSlots(t *testing.T) {
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			h := newHarness(t, m.atomic)
			ctx := context.Background()

			_, err := h.engine.SetLabel(ctx, h.dm(), 1, "Paladin")
			require.NoError(t, err)
			_, err = h.engine.SetColor(ctx, h.dm(), 1, "#00FF00")
			require.NoError(t, err)
			_, err = h.engine.SwapOccupants(ctx, h.dm(), 1, 2)
			require.NoError(t, err)

			s1 := h.slot(t, 1)
			assert.Equal(t, "Paladin", s1.Label)
			assert.Equal(t, "#00ff00", s1.Color)
			assert.Equal(t, h.seats[2], *s1.OccupantID)
			assert.Equal(t, h.seats[1], *h.slot(t, 2).OccupantID)

			_, err = h.engine.AssignSlot(ctx, h.dm(), 4, nil)
			require.NoError(t, err)
			assert.Nil(t, h.slot(t, 4).OccupantID)

			_, err = h.engine.SetColor(ctx, h.dm(), 1, "green")
			assert.ErrorIs(t, err, turn.ErrValidation)
		})
	}
}

func TestSwapColors(t *testing.T) {
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			h := newHarness(t, m.atomic)
			ctx := context.Background()
			c1, c2 := h.slot(t, 1).Color, h.slot(t, 2).Color

			_, err := h.engine.SwapColors(ctx, h.player(1), 1, 2)
			assert.ErrorIs(t, err, turn.ErrAuthorizationDenied)

			_, err = h.engine.SwapColors(ctx, h.dm(), 1, 2)
			require.NoError(t, err)
			assert.Equal(t, c2, h.slot(t, 1).Color)
			assert.Equal(t, c1, h.slot(t, 2).Color)
			assert.Equal(t, h.seats[1], *h.slot(t, 1).OccupantID)

			_, err = h.engine.Activate(ctx, h.player(1), 1)
			require.NoError(t, err)
			_, err = h.engine.SwapColors(ctx, h.dm(), 1, 2)
			assert.ErrorIs(t, err, turn.ErrRunning)
		})
	}
}

func TestSwapRefusedWhileRunning(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	_, err := h.engine.Activate(ctx, h.player(1), 1)
	require.NoError(t, err)

	_, err = h.engine.SwapOccupants(ctx, h.dm(), 1, 2)
	assert.ErrorIs(t, err, turn.ErrRunning)
	assert.Equal(t, h.seats[1], *h.slot(t, 1).OccupantID)
}

func TestSelfActivateIsRejectedWithoutMutation(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	_, err := h.engine.Activate(ctx, h.player(2), 2)
	require.NoError(t, err)
	before, err := h.store.ReadRoomState(ctx, h.room.ID)
	require.NoError(t, err)

	h.clock.Advance(5 * time.Second)
	_, err = h.engine.Activate(ctx, h.player(2), 2)
	assert.ErrorIs(t, err, turn.ErrAlreadyActive)

	after, err := h.store.ReadRoomState(ctx, h.room.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Revision, after.Revision)
}

func TestLocalDenialMakesNoStoreCall(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	_, err := h.engine.Activate(ctx, h.player(1), 1)
	require.NoError(t, err)

	ops := &MockAtomicOps{}
	h.engine.atomic = ops

	_, err = h.engine.Activate(ctx, h.player(3), 3)
	assert.ErrorIs(t, err, turn.ErrAuthorizationDenied)
	_, err = h.engine.BeginCombat(ctx, h.player(4), 1)
	assert.ErrorIs(t, err, turn.ErrAuthorizationDenied)
	_, err = h.engine.ResetPhase(ctx, h.player(1), 60, nil)
	assert.ErrorIs(t, err, turn.ErrAuthorizationDenied)
	_, err = h.engine.ResetPhase(ctx, h.dm(), -1, nil)
	assert.ErrorIs(t, err, turn.ErrValidation)

	ops.AssertNotCalled(t, "StartOrSwitchSlot", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ops.AssertNotCalled(t, "BeginCombat", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ops.AssertNotCalled(t, "DMResetPhase", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMissingOperationFallsBackOnce(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	ops := &MockAtomicOps{}
	ops.On("StartOrSwitchSlot", mock.Anything, "TABLE1", h.player(1), 1).
		Return(models.Room{}, store.ErrOperationMissing).Once()
	h.engine.atomic = ops

	_, err := h.engine.Activate(ctx, h.player(1), 1)
	require.NoError(t, err)
	assert.False(t, h.engine.Capabilities().Has(store.OpStartOrSwitchSlot))
	assert.True(t, h.mirrored(t).Room.State.IsRunning)

	h.clock.Advance(10 * time.Second)
	_, err = h.engine.Activate(ctx, h.player(1), 2)
	require.NoError(t, err)
	assert.Equal(t, 10, h.slot(t, 1).SpentSeconds)

	ops.AssertNumberOfCalls(t, "StartOrSwitchSlot", 1)
	counts := h.metrics.Snapshot()["fallbacks"].(map[string]int64)
	assert.Equal(t, int64(1), counts["start_or_switch_slot/missing"])
}

func TestTimeoutReloadsInsteadOfRetrying(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	ops := &MockAtomicOps{}
	ops.On("StartOrSwitchSlot", mock.Anything, "TABLE1", h.player(1), 1).
		Return(models.Room{}, context.DeadlineExceeded)
	h.engine.atomic = ops

	reloadsBefore := h.sink.reloads()
	_, err := h.engine.Activate(ctx, h.player(1), 1)
	assert.ErrorIs(t, err, turn.ErrRemoteFailure)
	assert.ErrorIs(t, err, turn.ErrIndeterminate)
	assert.Equal(t, reloadsBefore+1, h.sink.reloads())
	ops.AssertNumberOfCalls(t, "StartOrSwitchSlot", 1)
}

func TestRemoteFailureIsSurfaced(t *testing.T) {
	h := newHarness(t, true)
	ops := &MockAtomicOps{}
	ops.On("StopRunning", mock.Anything, "TABLE1", h.dm()).Return(models.Room{}, assert.AnError)
	h.engine.atomic = ops

	_, err := h.engine.Stop(context.Background(), h.dm())
	assert.ErrorIs(t, err, turn.ErrRemoteFailure)
	assert.Equal(t, turn.KindRemoteFailure, turn.KindOf(err))
}

func TestJoin(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	slot, err := h.engine.Join(ctx, h.player(2))
	require.NoError(t, err)
	assert.Equal(t, 2, slot)

	_, err = h.engine.AssignSlot(ctx, h.dm(), 3, nil)
	require.NoError(t, err)

	newcomer := turn.Actor{OccupantID: uuid.New()}
	slot, err = h.engine.Join(ctx, newcomer)
	require.NoError(t, err)
	assert.Equal(t, 3, slot)

	_, err = h.engine.Join(ctx, turn.Actor{OccupantID: uuid.New()})
	assert.ErrorIs(t, err, store.ErrRoomFull)
	assert.ErrorIs(t, err, turn.ErrValidation)
}

func TestNegotiateMeasuresClockOffset(t *testing.T) {
	local := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	remote := clockwork.NewFakeClockAt(local.Now().Add(2 * time.Second))
	s := memory.New(memory.WithClock(remote))

	n, err := Negotiate(context.Background(), s, s, local)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, n.ClockOffset)
	assert.Len(t, n.Capabilities, len(store.AllOps))

	n, err = Negotiate(context.Background(), nil, s, local)
	require.NoError(t, err)
	assert.Empty(t, n.Capabilities)
}
