package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/turnclock/go/internal/mirror"
	"github.com/mcdev12/turnclock/go/internal/models"
	"github.com/mcdev12/turnclock/go/internal/store"
	"github.com/mcdev12/turnclock/go/internal/turn"
)

func denied(op store.Op) error {
	return fmt.Errorf("%w: %s", turn.ErrAuthorizationDenied, op)
}

// Activate starts the clock on target, or hands it over when the caller holds the active slot.
func (e *Engine) Activate(ctx context.Context, actor turn.Actor, target int) (models.Room, error) {
	return e.run(ctx, actor, intent{
		op: store.OpStartOrSwitchSlot,
		check: func(snap models.Snapshot, now time.Time) (turn.Outcome, error) {
			if snap.Slot(target) == nil {
				return turn.Outcome{}, turn.ErrUnknownSlot
			}
			caller := turn.CallerSlot(snap.Slots, actor.OccupantID)
			if !turn.CanActivate(caller, target, snap.Room.State) {
				return turn.Outcome{}, denied(store.OpStartOrSwitchSlot)
			}
			return turn.Activate(snap.Room.State, snap.Slots, target, now)
		},
		atomic: func(ctx context.Context) (models.Room, error) {
			return e.atomic.StartOrSwitchSlot(ctx, e.code, actor, target)
		},
	})
}

// Stop idles the room. The holder of the active slot or the DM may stop.
func (e *Engine) Stop(ctx context.Context, actor turn.Actor) (models.Room, error) {
	return e.run(ctx, actor, intent{
		op:    store.OpStopRunning,
		dmMay: true,
		check: func(snap models.Snapshot, now time.Time) (turn.Outcome, error) {
			caller := turn.CallerSlot(snap.Slots, actor.OccupantID)
			if !turn.CanStop(caller, actor.IsDM(), snap.Room.State) {
				return turn.Outcome{}, denied(store.OpStopRunning)
			}
			return turn.Stop(snap.Room.State, snap.Slots, now)
		},
		atomic: func(ctx context.Context) (models.Room, error) {
			return e.atomic.StopRunning(ctx, e.code, actor)
		},
	})
}

// BeginCombat pauses all accrual, with the caller as initiator against target.
func (e *Engine) BeginCombat(ctx context.Context, actor turn.Actor, target int) (models.Room, error) {
	return e.run(ctx, actor, intent{
		op: store.OpBeginCombat,
		check: func(snap models.Snapshot, now time.Time) (turn.Outcome, error) {
			caller := turn.CallerSlot(snap.Slots, actor.OccupantID)
			if !turn.CanBeginCombat(caller, snap.Room.State) {
				return turn.Outcome{}, denied(store.OpBeginCombat)
			}
			return turn.BeginCombat(snap.Room.State, snap.Slots, target, now)
		},
		atomic: func(ctx context.Context) (models.Room, error) {
			return e.atomic.BeginCombat(ctx, e.code, actor, target)
		},
	})
}

// EndCombat resumes the initiator's clock.
func (e *Engine) EndCombat(ctx context.Context, actor turn.Actor) (models.Room, error) {
	return e.run(ctx, actor, intent{
		op:    store.OpEndCombat,
		dmMay: true,
		check: func(snap models.Snapshot, now time.Time) (turn.Outcome, error) {
			caller := turn.CallerSlot(snap.Slots, actor.OccupantID)
			if !turn.CanEndCombat(caller, actor.IsDM(), snap.Room.State) {
				return turn.Outcome{}, denied(store.OpEndCombat)
			}
			return turn.EndCombat(snap.Room.State, now)
		},
		atomic: func(ctx context.Context) (models.Room, error) {
			return e.atomic.EndCombat(ctx, e.code, actor)
		},
	})
}

// ResetPhase starts the next phase with fresh budgets. DM only.
func (e *Engine) ResetPhase(ctx context.Context, actor turn.Actor, defaultSeconds int, overrides map[int]int) (models.Room, error) {
	return e.run(ctx, actor, intent{
		op: store.OpDMResetPhase,
		dm: true,
		check: func(snap models.Snapshot, _ time.Time) (turn.Outcome, error) {
			return turn.ResetPhase(snap.Room.State, snap.Slots, defaultSeconds, overrides)
		},
		atomic: func(ctx context.Context) (models.Room, error) {
			return e.atomic.DMResetPhase(ctx, e.code, actor.DMToken, defaultSeconds, overrides)
		},
	})
}

// AssignSlot seats occupant on slot, or vacates it when occupant is nil. DM only.
func (e *Engine) AssignSlot(ctx context.Context, actor turn.Actor, slot int, occupant *uuid.UUID) (models.Room, error) {
	return e.run(ctx, actor, intent{
		op: store.OpDMAssignSlot,
		dm: true,
		check: func(snap models.Snapshot, _ time.Time) (turn.Outcome, error) {
			return turn.AssignSlot(snap.Room.State, snap.Slots, slot, occupant)
		},
		atomic: func(ctx context.Context) (models.Room, error) {
			return e.atomic.DMAssignSlot(ctx, e.code, actor.DMToken, slot, occupant)
		},
	})
}

// SetLabel renames a slot. DM only.
func (e *Engine) SetLabel(ctx context.Context, actor turn.Actor, slot int, label string) (models.Room, error) {
	return e.run(ctx, actor, intent{
		op: store.OpDMSetSlotLabel,
		dm: true,
		check: func(snap models.Snapshot, _ time.Time) (turn.Outcome, error) {
			return turn.SetLabel(snap.Room.State, snap.Slots, slot, label)
		},
		atomic: func(ctx context.Context) (models.Room, error) {
			return e.atomic.DMSetSlotLabel(ctx, e.code, actor.DMToken, slot, label)
		},
	})
}

// SetColor recolors a slot. DM only.
func (e *Engine) SetColor(ctx context.Context, actor turn.Actor, slot int, color string) (models.Room, error) {
	return e.run(ctx, actor, intent{
		op: store.OpDMSetSlotColor,
		dm: true,
		check: func(snap models.Snapshot, _ time.Time) (turn.Outcome, error) {
			return turn.SetColor(snap.Room.State, snap.Slots, slot, color)
		},
		atomic: func(ctx context.Context) (models.Room, error) {
			return e.atomic.DMSetSlotColor(ctx, e.code, actor.DMToken, slot, color)
		},
	})
}

// SwapOccupants exchanges the occupants of two slots while the clock is idle. DM only.
func (e *Engine) SwapOccupants(ctx context.Context, actor turn.Actor, a, b int) (models.Room, error) {
	return e.run(ctx, actor, intent{
		op: store.OpDMSwapSlots,
		dm: true,
		check: func(snap models.Snapshot, _ time.Time) (turn.Outcome, error) {
			return turn.SwapOccupants(snap.Room.State, snap.Slots, a, b)
		},
		atomic: func(ctx context.Context) (models.Room, error) {
			return e.atomic.DMSwapSlots(ctx, e.code, actor.DMToken, a, b)
		},
	})
}

// SwapColors exchanges the colors of two slots while the clock is idle. DM only.
func (e *Engine) SwapColors(ctx context.Context, actor turn.Actor, a, b int) (models.Room, error) {
	return e.run(ctx, actor, intent{
		op: store.OpDMSwapColors,
		dm: true,
		check: func(snap models.Snapshot, _ time.Time) (turn.Outcome, error) {
			return turn.SwapColors(snap.Room.State, snap.Slots, a, b)
		},
		atomic: func(ctx context.Context) (models.Room, error) {
			return e.atomic.DMSwapColors(ctx, e.code, actor.DMToken, a, b)
		},
	})
}

// Join returns the caller's slot, claiming the lowest vacant one if they have none.
func (e *Engine) Join(ctx context.Context, actor turn.Actor) (int, error) {
	if actor.OccupantID == uuid.Nil {
		return 0, turn.Invalid("occupant_id", "required")
	}
	snap, err := e.current(ctx)
	if err != nil {
		return 0, err
	}
	if mine := turn.CallerSlot(snap.Slots, actor.OccupantID); mine != nil {
		return mine.Slot, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	slot, err := e.store.ClaimVacantSlot(ctx, e.roomID, actor.OccupantID)
	if err != nil {
		return 0, e.remoteError("claim_vacant_slot", err)
	}
	e.submit(mirror.Signal{Source: mirror.SourceLocal, Reload: true})
	return slot, nil
}
