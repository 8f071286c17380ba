package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

const createRoom = `-- name: CreateRoom :one
INSERT INTO rooms (id, code, dm_token_hash, state)
VALUES ($1, $2, $3, $4)
RETURNING id, code, revision, state
`

type CreateRoomParams struct {
	ID          uuid.UUID       `json:"id"`
	Code        string          `json:"code"`
	DmTokenHash string          `json:"dm_token_hash"`
	State       json.RawMessage `json:"state"`
}

func (q *Queries) CreateRoom(ctx context.Context, arg CreateRoomParams) (Room, error) {
	row := q.db.QueryRowContext(ctx, createRoom, arg.ID, arg.Code, arg.DmTokenHash, arg.State)
	var i Room
	err := row.Scan(&i.ID, &i.Code, &i.Revision, &i.State)
	return i, err
}

const createPlayerSlot = `-- name: CreatePlayerSlot :exec
INSERT INTO player_slots (room_id, slot, color, label, base_seconds)
VALUES ($1, $2, $3, $4, $5)
`

type CreatePlayerSlotParams struct {
	RoomID      uuid.UUID `json:"room_id"`
	Slot        int16     `json:"slot"`
	Color       string    `json:"color"`
	Label       string    `json:"label"`
	BaseSeconds int32     `json:"base_seconds"`
}

func (q *Queries) CreatePlayerSlot(ctx context.Context, arg CreatePlayerSlotParams) error {
	_, err := q.db.ExecContext(ctx, createPlayerSlot, arg.RoomID, arg.Slot, arg.Color, arg.Label, arg.BaseSeconds)
	return err
}

const getRoomByCode = `-- name: GetRoomByCode :one
SELECT id, code, revision, state FROM rooms WHERE code = upper($1)
`

func (q *Queries) GetRoomByCode(ctx context.Context, code string) (Room, error) {
	row := q.db.QueryRowContext(ctx, getRoomByCode, code)
	var i Room
	err := row.Scan(&i.ID, &i.Code, &i.Revision, &i.State)
	return i, err
}

const getRoom = `-- name: GetRoom :one
SELECT id, code, revision, state FROM rooms WHERE id = $1
`

func (q *Queries) GetRoom(ctx context.Context, id uuid.UUID) (Room, error) {
	row := q.db.QueryRowContext(ctx, getRoom, id)
	var i Room
	err := row.Scan(&i.ID, &i.Code, &i.Revision, &i.State)
	return i, err
}

const getRoomTokenHash = `-- name: GetRoomTokenHash :one
SELECT dm_token_hash FROM rooms WHERE id = $1
`

func (q *Queries) GetRoomTokenHash(ctx context.Context, id uuid.UUID) (string, error) {
	row := q.db.QueryRowContext(ctx, getRoomTokenHash, id)
	var hash string
	err := row.Scan(&hash)
	return hash, err
}

const listPlayerSlots = `-- name: ListPlayerSlots :many
SELECT room_id, slot, color, label, user_id, base_seconds, spent_seconds, updated_at
FROM player_slots
WHERE room_id = $1
ORDER BY slot
`

func (q *Queries) ListPlayerSlots(ctx context.Context, roomID uuid.UUID) ([]PlayerSlot, error) {
	rows, err := q.db.QueryContext(ctx, listPlayerSlots, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PlayerSlot
	for rows.Next() {
		var i PlayerSlot
		if err := rows.Scan(
			&i.RoomID,
			&i.Slot,
			&i.Color,
			&i.Label,
			&i.UserID,
			&i.BaseSeconds,
			&i.SpentSeconds,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateRoomState = `-- name: UpdateRoomState :execrows
UPDATE rooms SET state = $2 WHERE id = $1
`

func (q *Queries) UpdateRoomState(ctx context.Context, id uuid.UUID, state json.RawMessage) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateRoomState, id, state)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const updatePlayerSlot = `-- name: UpdatePlayerSlot :execrows
UPDATE player_slots
   SET spent_seconds = coalesce($3, spent_seconds),
       base_seconds  = coalesce($4, base_seconds),
       label         = coalesce($5, label),
       color         = coalesce($6, color),
       user_id       = CASE WHEN $7::boolean THEN $8::uuid ELSE user_id END
 WHERE room_id = $1 AND slot = $2
`

type UpdatePlayerSlotParams struct {
	RoomID       uuid.UUID      `json:"room_id"`
	Slot         int16          `json:"slot"`
	SpentSeconds sql.NullInt32  `json:"spent_seconds"`
	BaseSeconds  sql.NullInt32  `json:"base_seconds"`
	Label        sql.NullString `json:"label"`
	Color        sql.NullString `json:"color"`
	SetUser      bool           `json:"set_user"`
	UserID       uuid.NullUUID  `json:"user_id"`
}

func (q *Queries) UpdatePlayerSlot(ctx context.Context, arg UpdatePlayerSlotParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updatePlayerSlot,
		arg.RoomID,
		arg.Slot,
		arg.SpentSeconds,
		arg.BaseSeconds,
		arg.Label,
		arg.Color,
		arg.SetUser,
		arg.UserID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getSlotByUser = `-- name: GetSlotByUser :one
SELECT slot FROM player_slots WHERE room_id = $1 AND user_id = $2
`

func (q *Queries) GetSlotByUser(ctx context.Context, roomID, userID uuid.UUID) (int16, error) {
	row := q.db.QueryRowContext(ctx, getSlotByUser, roomID, userID)
	var slot int16
	err := row.Scan(&slot)
	return slot, err
}

const claimVacantSlot = `-- name: ClaimVacantSlot :one
UPDATE player_slots
   SET user_id = $2
 WHERE room_id = $1
   AND slot = (
       SELECT slot FROM player_slots
        WHERE room_id = $1 AND user_id IS NULL
        ORDER BY slot
        LIMIT 1
        FOR UPDATE SKIP LOCKED)
RETURNING slot
`

func (q *Queries) ClaimVacantSlot(ctx context.Context, roomID, userID uuid.UUID) (int16, error) {
	row := q.db.QueryRowContext(ctx, claimVacantSlot, roomID, userID)
	var slot int16
	err := row.Scan(&slot)
	return slot, err
}

const serverNow = `-- name: ServerNow :one
SELECT now()
`

func (q *Queries) ServerNow(ctx context.Context) (time.Time, error) {
	row := q.db.QueryRowContext(ctx, serverNow)
	var now time.Time
	err := row.Scan(&now)
	return now, err
}

const listRoutines = `-- name: ListRoutines :many
SELECT p.proname
FROM pg_proc p
JOIN pg_namespace n ON n.oid = p.pronamespace
WHERE n.nspname = current_schema() AND p.proname = ANY($1::text[])
`

func (q *Queries) ListRoutines(ctx context.Context, names []string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listRoutines, pq.Array(names))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		items = append(items, name)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const startOrSwitchSlot = `-- name: StartOrSwitchSlot :one
SELECT id, code, revision, state FROM start_or_switch_slot($1, $2, $3)
`

func (q *Queries) StartOrSwitchSlot(ctx context.Context, code string, userID uuid.NullUUID, target int32) (Room, error) {
	return q.callRoom(ctx, startOrSwitchSlot, code, userID, target)
}

const stopRunning = `-- name: StopRunning :one
SELECT id, code, revision, state FROM stop_running($1, $2, $3)
`

func (q *Queries) StopRunning(ctx context.Context, code string, userID uuid.NullUUID, dmToken sql.NullString) (Room, error) {
	return q.callRoom(ctx, stopRunning, code, userID, dmToken)
}

const beginCombat = `-- name: BeginCombat :one
SELECT id, code, revision, state FROM begin_combat($1, $2, $3)
`

func (q *Queries) BeginCombat(ctx context.Context, code string, userID uuid.NullUUID, target int32) (Room, error) {
	return q.callRoom(ctx, beginCombat, code, userID, target)
}

const endCombat = `-- name: EndCombat :one
SELECT id, code, revision, state FROM end_combat($1, $2, $3)
`

func (q *Queries) EndCombat(ctx context.Context, code string, userID uuid.NullUUID, dmToken sql.NullString) (Room, error) {
	return q.callRoom(ctx, endCombat, code, userID, dmToken)
}

const dmResetPhase = `-- name: DMResetPhase :one
SELECT id, code, revision, state FROM dm_reset_phase($1, $2, $3, $4::jsonb)
`

func (q *Queries) DMResetPhase(ctx context.Context, code, dmToken string, defaultSeconds int32, slotSeconds pqtype.NullRawMessage) (Room, error) {
	return q.callRoom(ctx, dmResetPhase, code, dmToken, defaultSeconds, slotSeconds)
}

const dmAssignSlot = `-- name: DMAssignSlot :one
SELECT id, code, revision, state FROM dm_assign_slot($1, $2, $3, $4)
`

func (q *Queries) DMAssignSlot(ctx context.Context, code, dmToken string, slot int32, userID uuid.NullUUID) (Room, error) {
	return q.callRoom(ctx, dmAssignSlot, code, dmToken, slot, userID)
}

const dmSetSlotLabel = `-- name: DMSetSlotLabel :one
SELECT id, code, revision, state FROM dm_set_slot_label($1, $2, $3, $4)
`

func (q *Queries) DMSetSlotLabel(ctx context.Context, code, dmToken string, slot int32, label string) (Room, error) {
	return q.callRoom(ctx, dmSetSlotLabel, code, dmToken, slot, label)
}

const dmSetSlotColor = `-- name: DMSetSlotColor :one
SELECT id, code, revision, state FROM dm_set_slot_color($1, $2, $3, $4)
`

func (q *Queries) DMSetSlotColor(ctx context.Context, code, dmToken string, slot int32, color string) (Room, error) {
	return q.callRoom(ctx, dmSetSlotColor, code, dmToken, slot, color)
}

const dmSwapSlots = `-- name: DMSwapSlots :one
SELECT id, code, revision, state FROM dm_swap_slots($1, $2, $3, $4)
`

func (q *Queries) DMSwapSlots(ctx context.Context, code, dmToken string, a, b int32) (Room, error) {
	return q.callRoom(ctx, dmSwapSlots, code, dmToken, a, b)
}

const dmSwapColors = `-- name: DMSwapColors :one
SELECT id, code, revision, state FROM dm_swap_colors($1, $2, $3, $4)
`

func (q *Queries) DMSwapColors(ctx context.Context, code, dmToken string, a, b int32) (Room, error) {
	return q.callRoom(ctx, dmSwapColors, code, dmToken, a, b)
}

func (q *Queries) callRoom(ctx context.Context, query string, args ...interface{}) (Room, error) {
	row := q.db.QueryRowContext(ctx, query, args...)
	var i Room
	err := row.Scan(&i.ID, &i.Code, &i.Revision, &i.State)
	return i, err
}
