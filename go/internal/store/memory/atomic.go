package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcdev12/turnclock/go/internal/models"
	"github.com/mcdev12/turnclock/go/internal/store"
	"github.com/mcdev12/turnclock/go/internal/turn"
)

// Capabilities reports every op as provisioned unless atomic ops were disabled.
func (s *Store) Capabilities(context.Context) (store.Capabilities, error) {
	caps := store.Capabilities{}
	if s.atomic {
		for _, op := range store.AllOps {
			caps[op] = true
		}
	}
	return caps, nil
}

// mutation runs one read-check-write under the store lock.
type mutation func(rec *roomRecord) (turn.Outcome, error)

func (s *Store) mutate(code string, op store.Op, fn mutation) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.atomic {
		return models.Room{}, fmt.Errorf("%w: %s", store.ErrOperationMissing, op)
	}
	rec, err := s.byCodeLocked(code)
	if err != nil {
		return models.Room{}, err
	}

	out, err := fn(rec)
	if err != nil {
		return models.Room{}, err
	}

	for _, ch := range out.Slots {
		if idx := slotIndex(rec.slots, ch.Slot); idx >= 0 {
			turn.ApplySlotChange(&rec.slots[idx], ch)
		}
	}
	rec.room.State = out.State
	rec.room.Revision++

	if len(out.Slots) > 0 {
		s.publishLocked(store.Change{Table: store.TableSlots, RoomID: rec.room.ID})
	}
	s.publishLocked(store.Change{Table: store.TableRooms, RoomID: rec.room.ID, Room: roomPtr(rec.room)})
	return copyRoom(rec.room), nil
}

func denied(op store.Op) error {
	return fmt.Errorf("%w: %s", store.ErrDenied, op)
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", store.ErrInvalid, err)
}

func (s *Store) checkDM(rec *roomRecord, token string, op store.Op) error {
	if !store.TokenMatches(token, rec.tokenHash) {
		return denied(op)
	}
	return nil
}

func (s *Store) StartOrSwitchSlot(_ context.Context, code string, actor turn.Actor, target int) (models.Room, error) {
	return s.mutate(code, store.OpStartOrSwitchSlot, func(rec *roomRecord) (turn.Outcome, error) {
		caller := turn.CallerSlot(rec.slots, actor.OccupantID)
		if !turn.CanActivate(caller, target, rec.room.State) {
			return turn.Outcome{}, denied(store.OpStartOrSwitchSlot)
		}
		out, err := turn.Activate(rec.room.State, rec.slots, target, s.clock.Now())
		if err != nil {
			return turn.Outcome{}, invalid(err)
		}
		return out, nil
	})
}

func (s *Store) StopRunning(_ context.Context, code string, actor turn.Actor) (models.Room, error) {
	return s.mutate(code, store.OpStopRunning, func(rec *roomRecord) (turn.Outcome, error) {
		isDM := false
		if actor.IsDM() {
			if err := s.checkDM(rec, actor.DMToken, store.OpStopRunning); err != nil {
				return turn.Outcome{}, err
			}
			isDM = true
		}
		caller := turn.CallerSlot(rec.slots, actor.OccupantID)
		if !turn.CanStop(caller, isDM, rec.room.State) {
			return turn.Outcome{}, denied(store.OpStopRunning)
		}
		out, err := turn.Stop(rec.room.State, rec.slots, s.clock.Now())
		if err != nil {
			return turn.Outcome{}, invalid(err)
		}
		return out, nil
	})
}

func (s *Store) BeginCombat(_ context.Context, code string, actor turn.Actor, target int) (models.Room, error) {
	return s.mutate(code, store.OpBeginCombat, func(rec *roomRecord) (turn.Outcome, error) {
		caller := turn.CallerSlot(rec.slots, actor.OccupantID)
		if !turn.CanBeginCombat(caller, rec.room.State) {
			return turn.Outcome{}, denied(store.OpBeginCombat)
		}
		out, err := turn.BeginCombat(rec.room.State, rec.slots, target, s.clock.Now())
		if err != nil {
			return turn.Outcome{}, invalid(err)
		}
		return out, nil
	})
}

func (s *Store) EndCombat(_ context.Context, code string, actor turn.Actor) (models.Room, error) {
	return s.mutate(code, store.OpEndCombat, func(rec *roomRecord) (turn.Outcome, error) {
		isDM := false
		if actor.IsDM() {
			if err := s.checkDM(rec, actor.DMToken, store.OpEndCombat); err != nil {
				return turn.Outcome{}, err
			}
			isDM = true
		}
		caller := turn.CallerSlot(rec.slots, actor.OccupantID)
		if !turn.CanEndCombat(caller, isDM, rec.room.State) {
			return turn.Outcome{}, denied(store.OpEndCombat)
		}
		out, err := turn.EndCombat(rec.room.State, s.clock.Now())
		if err != nil {
			return turn.Outcome{}, invalid(err)
		}
		return out, nil
	})
}

func (s *Store) DMResetPhase(_ context.Context, code, dmToken string, defaultSeconds int, overrides map[int]int) (models.Room, error) {
	return s.mutate(code, store.OpDMResetPhase, func(rec *roomRecord) (turn.Outcome, error) {
		if err := s.checkDM(rec, dmToken, store.OpDMResetPhase); err != nil {
			return turn.Outcome{}, err
		}
		out, err := turn.ResetPhase(rec.room.State, rec.slots, defaultSeconds, overrides)
		if err != nil {
			return turn.Outcome{}, invalid(err)
		}
		return out, nil
	})
}

func (s *Store) DMAssignSlot(_ context.Context, code, dmToken string, slot int, occupant *uuid.UUID) (models.Room, error) {
	return s.mutate(code, store.OpDMAssignSlot, func(rec *roomRecord) (turn.Outcome, error) {
		if err := s.checkDM(rec, dmToken, store.OpDMAssignSlot); err != nil {
			return turn.Outcome{}, err
		}
		out, err := turn.AssignSlot(rec.room.State, rec.slots, slot, occupant)
		if err != nil {
			return turn.Outcome{}, invalid(err)
		}
		return out, nil
	})
}

func (s *Store) DMSetSlotLabel(_ context.Context, code, dmToken string, slot int, label string) (models.Room, error) {
	return s.mutate(code, store.OpDMSetSlotLabel, func(rec *roomRecord) (turn.Outcome, error) {
		if err := s.checkDM(rec, dmToken, store.OpDMSetSlotLabel); err != nil {
			return turn.Outcome{}, err
		}
		out, err := turn.SetLabel(rec.room.State, rec.slots, slot, label)
		if err != nil {
			return turn.Outcome{}, invalid(err)
		}
		return out, nil
	})
}

func (s *Store) DMSetSlotColor(_ context.Context, code, dmToken string, slot int, color string) (models.Room, error) {
	return s.mutate(code, store.OpDMSetSlotColor, func(rec *roomRecord) (turn.Outcome, error) {
		if err := s.checkDM(rec, dmToken, store.OpDMSetSlotColor); err != nil {
			return turn.Outcome{}, err
		}
		out, err := turn.SetColor(rec.room.State, rec.slots, slot, color)
		if err != nil {
			return turn.Outcome{}, invalid(err)
		}
		return out, nil
	})
}

func (s *Store) DMSwapSlots(_ context.Context, code, dmToken string, a, b int) (models.Room, error) {
	return s.mutate(code, store.OpDMSwapSlots, func(rec *roomRecord) (turn.Outcome, error) {
		if err := s.checkDM(rec, dmToken, store.OpDMSwapSlots); err != nil {
			return turn.Outcome{}, err
		}
		out, err := turn.SwapOccupants(rec.room.State, rec.slots, a, b)
		if err != nil {
			return turn.Outcome{}, invalid(err)
		}
		return out, nil
	})
}

func (s *Store) DMSwapColors(_ context.Context, code, dmToken string, a, b int) (models.Room, error) {
	return s.mutate(code, store.OpDMSwapColors, func(rec *roomRecord) (turn.Outcome, error) {
		if err := s.checkDM(rec, dmToken, store.OpDMSwapColors); err != nil {
			return turn.Outcome{}, err
		}
		out, err := turn.SwapColors(rec.room.State, rec.slots, a, b)
		if err != nil {
			return turn.Outcome{}, invalid(err)
		}
		return out, nil
	})
}
