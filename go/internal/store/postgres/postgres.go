// Package postgres is the store backed by Postgres. Plain reads and writes go
// through db.Queries; the atomic path calls the stored functions installed by the
// migrations package.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/turnclock/go/internal/models"
	"github.com/mcdev12/turnclock/go/internal/sqlutil"
	"github.com/mcdev12/turnclock/go/internal/store"
	"github.com/mcdev12/turnclock/go/internal/store/postgres/db"
	"github.com/mcdev12/turnclock/go/internal/turn"
)

type Store struct {
	sqlDB   *sql.DB
	queries *db.Queries
}

func New(sqlDB *sql.DB) *Store {
	return &Store{
		sqlDB:   sqlDB,
		queries: db.New(sqlDB),
	}
}

// Open connects with lib/pq and pings the database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(sqlDB), nil
}

func (s *Store) DB() *sql.DB { return s.sqlDB }

func (s *Store) Close() error { return s.sqlDB.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// CreateRoom inserts a room and its slots in one transaction. It returns the clear
// DM token, which is never stored.
func (s *Store) CreateRoom(ctx context.Context, params store.CreateRoomParams) (models.Room, string, error) {
	params, err := params.Normalize()
	if err != nil {
		return models.Room{}, "", err
	}
	token, err := store.NewDMToken()
	if err != nil {
		return models.Room{}, "", err
	}
	state := models.DefaultRoomState()
	state.PhaseDefaultSeconds = params.PhaseDefaultSeconds
	stateJSON, err := sqlutil.ToNullJSON(state)
	if err != nil {
		return models.Room{}, "", fmt.Errorf("encode room state: %w", err)
	}

	var created db.Room
	err = sqlutil.Run(ctx, s.sqlDB, s.queries.WithTx, func(q *db.Queries) error {
		created, err = q.CreateRoom(ctx, db.CreateRoomParams{
			ID:          uuid.New(),
			Code:        params.Code,
			DmTokenHash: store.HashDMToken(token),
			State:       stateJSON.RawMessage,
		})
		if err != nil {
			return fmt.Errorf("insert room: %w", err)
		}
		for _, slot := range store.DefaultSlots(params.SlotCount, params.PhaseDefaultSeconds) {
			if err := q.CreatePlayerSlot(ctx, db.CreatePlayerSlotParams{
				RoomID:      created.ID,
				Slot:        int16(slot.Slot),
				Color:       slot.Color,
				Label:       slot.Label,
				BaseSeconds: int32(slot.BaseSeconds),
			}); err != nil {
				return fmt.Errorf("insert slot %d: %w", slot.Slot, err)
			}
		}
		return nil
	})
	if err != nil {
		return models.Room{}, "", mapError(err)
	}

	log.Info().Str("room_code", created.Code).Int("slots", params.SlotCount).Msg("room created")
	return dbRoomToModel(created), token, nil
}

func (s *Store) LoadRoom(ctx context.Context, code string) (models.Room, error) {
	room, err := s.queries.GetRoomByCode(ctx, code)
	if err != nil {
		return models.Room{}, fmt.Errorf("failed to load room %s: %w", code, mapError(err))
	}
	return dbRoomToModel(room), nil
}

func (s *Store) ReadRoomState(ctx context.Context, roomID uuid.UUID) (models.Room, error) {
	room, err := s.queries.GetRoom(ctx, roomID)
	if err != nil {
		return models.Room{}, fmt.Errorf("failed to read room: %w", mapError(err))
	}
	return dbRoomToModel(room), nil
}

func (s *Store) ReadSlots(ctx context.Context, roomID uuid.UUID) ([]models.SlotState, error) {
	rows, err := s.queries.ListPlayerSlots(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to read slots: %w", mapError(err))
	}
	return dbSlotsToModels(rows), nil
}

func (s *Store) VerifyDMToken(ctx context.Context, roomID uuid.UUID, token string) error {
	hash, err := s.queries.GetRoomTokenHash(ctx, roomID)
	if err != nil {
		return mapError(err)
	}
	if !store.TokenMatches(token, hash) {
		return fmt.Errorf("%w: dm token rejected", store.ErrDenied)
	}
	return nil
}

func (s *Store) ServerTime(ctx context.Context) (time.Time, error) {
	now, err := s.queries.ServerNow(ctx)
	if err != nil {
		return time.Time{}, mapError(err)
	}
	return now, nil
}

func (s *Store) WriteRoomState(ctx context.Context, roomID uuid.UUID, state models.RoomState) error {
	raw, err := sqlutil.ToNullJSON(state)
	if err != nil {
		return fmt.Errorf("encode room state: %w", err)
	}
	n, err := s.queries.UpdateRoomState(ctx, roomID, raw.RawMessage)
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return store.ErrConflict
	}
	return nil
}

func (s *Store) WriteSlot(ctx context.Context, roomID uuid.UUID, change turn.SlotChange) error {
	n, err := s.queries.UpdatePlayerSlot(ctx, db.UpdatePlayerSlotParams{
		RoomID:       roomID,
		Slot:         int16(change.Slot),
		SpentSeconds: sqlutil.ToSqlInt32(change.SpentSeconds),
		BaseSeconds:  sqlutil.ToSqlInt32(change.BaseSeconds),
		Label:        sqlutil.ToSqlString(change.Label),
		Color:        sqlutil.ToSqlString(change.Color),
		SetUser:      change.SetOccupant,
		UserID:       sqlutil.ToNullUUID(change.OccupantID),
	})
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return store.ErrConflict
	}
	return nil
}

func (s *Store) ClaimVacantSlot(ctx context.Context, roomID uuid.UUID, occupant uuid.UUID) (int, error) {
	slot, err := s.queries.GetSlotByUser(ctx, roomID, occupant)
	if err == nil {
		return int(slot), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, mapError(err)
	}

	slot, err = s.queries.ClaimVacantSlot(ctx, roomID, occupant)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrRoomFull
	}
	if err != nil {
		return 0, mapError(err)
	}
	return int(slot), nil
}

// Capabilities reports which atomic functions are installed in the current schema.
func (s *Store) Capabilities(ctx context.Context) (store.Capabilities, error) {
	names := make([]string, len(store.AllOps))
	for i, op := range store.AllOps {
		names[i] = string(op)
	}
	found, err := s.queries.ListRoutines(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("failed to list routines: %w", mapError(err))
	}
	caps := store.Capabilities{}
	for _, name := range found {
		caps[store.Op(name)] = true
	}
	return caps, nil
}

// mapError translates driver errors into store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrRoomNotFound
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "42883": // undefined_function
		return fmt.Errorf("%w: %s", store.ErrOperationMissing, pqErr.Message)
	case "42501": // insufficient_privilege
		return fmt.Errorf("%w: %s", store.ErrDenied, pqErr.Message)
	case "22023": // invalid_parameter_value
		return fmt.Errorf("%w: %s", store.ErrInvalid, pqErr.Message)
	case "P0002": // no_data_found
		return fmt.Errorf("%w: %s", store.ErrRoomNotFound, pqErr.Message)
	case "23505": // unique_violation
		return fmt.Errorf("%w: %s", store.ErrConflict, pqErr.Message)
	}
	return err
}

func dbRoomToModel(r db.Room) models.Room {
	return models.Room{
		ID:       r.ID,
		Code:     r.Code,
		Revision: r.Revision,
		State:    models.DecodeRoomState(r.State),
	}
}

func dbSlotsToModels(rows []db.PlayerSlot) []models.SlotState {
	slots := make([]models.SlotState, len(rows))
	for i, r := range rows {
		slots[i] = models.SlotState{
			Slot:         int(r.Slot),
			OccupantID:   sqlutil.FromNullUUID(r.UserID),
			BaseSeconds:  int(r.BaseSeconds),
			SpentSeconds: int(r.SpentSeconds),
			Color:        r.Color,
			Label:        r.Label,
		}
	}
	return slots
}
