package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/mcdev12/turnclock/go/internal/models"
	"github.com/mcdev12/turnclock/go/internal/sqlutil"
	"github.com/mcdev12/turnclock/go/internal/store"
	"github.com/mcdev12/turnclock/go/internal/store/postgres/db"
	"github.com/mcdev12/turnclock/go/internal/turn"
)

func occupant(actor turn.Actor) uuid.NullUUID {
	if actor.OccupantID == uuid.Nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: actor.OccupantID, Valid: true}
}

func dmToken(actor turn.Actor) sql.NullString {
	if !actor.IsDM() {
		return sql.NullString{}
	}
	return sql.NullString{String: actor.DMToken, Valid: true}
}

func result(op store.Op, room db.Room, err error) (models.Room, error) {
	if err != nil {
		return models.Room{}, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return dbRoomToModel(room), nil
}

func (s *Store) StartOrSwitchSlot(ctx context.Context, code string, actor turn.Actor, target int) (models.Room, error) {
	room, err := s.queries.StartOrSwitchSlot(ctx, code, occupant(actor), int32(target))
	return result(store.OpStartOrSwitchSlot, room, err)
}

func (s *Store) StopRunning(ctx context.Context, code string, actor turn.Actor) (models.Room, error) {
	room, err := s.queries.StopRunning(ctx, code, occupant(actor), dmToken(actor))
	return result(store.OpStopRunning, room, err)
}

func (s *Store) BeginCombat(ctx context.Context, code string, actor turn.Actor, target int) (models.Room, error) {
	room, err := s.queries.BeginCombat(ctx, code, occupant(actor), int32(target))
	return result(store.OpBeginCombat, room, err)
}

func (s *Store) EndCombat(ctx context.Context, code string, actor turn.Actor) (models.Room, error) {
	room, err := s.queries.EndCombat(ctx, code, occupant(actor), dmToken(actor))
	return result(store.OpEndCombat, room, err)
}

func (s *Store) DMResetPhase(ctx context.Context, code, token string, defaultSeconds int, overrides map[int]int) (models.Room, error) {
	var slotSeconds map[string]int
	if len(overrides) > 0 {
		slotSeconds = make(map[string]int, len(overrides))
		for slot, secs := range overrides {
			slotSeconds[strconv.Itoa(slot)] = secs
		}
	}
	var arg any
	if slotSeconds != nil {
		arg = slotSeconds
	}
	raw, err := sqlutil.ToNullJSON(arg)
	if err != nil {
		return models.Room{}, fmt.Errorf("encode slot seconds: %w", err)
	}
	room, err := s.queries.DMResetPhase(ctx, code, token, int32(defaultSeconds), raw)
	return result(store.OpDMResetPhase, room, err)
}

func (s *Store) DMAssignSlot(ctx context.Context, code, token string, slot int, user *uuid.UUID) (models.Room, error) {
	room, err := s.queries.DMAssignSlot(ctx, code, token, int32(slot), sqlutil.ToNullUUID(user))
	return result(store.OpDMAssignSlot, room, err)
}

func (s *Store) DMSetSlotLabel(ctx context.Context, code, token string, slot int, label string) (models.Room, error) {
	room, err := s.queries.DMSetSlotLabel(ctx, code, token, int32(slot), label)
	return result(store.OpDMSetSlotLabel, room, err)
}

func (s *Store) DMSetSlotColor(ctx context.Context, code, token string, slot int, color string) (models.Room, error) {
	room, err := s.queries.DMSetSlotColor(ctx, code, token, int32(slot), color)
	return result(store.OpDMSetSlotColor, room, err)
}

func (s *Store) DMSwapSlots(ctx context.Context, code, token string, a, b int) (models.Room, error) {
	room, err := s.queries.DMSwapSlots(ctx, code, token, int32(a), int32(b))
	return result(store.OpDMSwapSlots, room, err)
}

func (s *Store) DMSwapColors(ctx context.Context, code, token string, a, b int) (models.Room, error) {
	room, err := s.queries.DMSwapColors(ctx, code, token, int32(a), int32(b))
	return result(store.OpDMSwapColors, room, err)
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.AtomicOps = (*Store)(nil)
	_ store.Prober    = (*Store)(nil)
)
