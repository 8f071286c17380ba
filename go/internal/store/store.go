// Package store defines how the turn engine talks to the authoritative backing store.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/turnclock/go/internal/models"
	"github.com/mcdev12/turnclock/go/internal/turn"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrConflict         = errors.New("write conflict")
	ErrOperationMissing = errors.New("atomic operation not provisioned")
	ErrDenied           = errors.New("denied by store")
	ErrInvalid          = errors.New("rejected by store")
	ErrRoomFull         = errors.New("no vacant slot")
)

// Op names one atomic operation. The values match the stored function names.
type Op string

const (
	OpStartOrSwitchSlot Op = "start_or_switch_slot"
	OpStopRunning       Op = "stop_running"
	OpBeginCombat       Op = "begin_combat"
	OpEndCombat         Op = "end_combat"
	OpDMResetPhase      Op = "dm_reset_phase"
	OpDMAssignSlot      Op = "dm_assign_slot"
	OpDMSetSlotLabel    Op = "dm_set_slot_label"
	OpDMSetSlotColor    Op = "dm_set_slot_color"
	OpDMSwapSlots       Op = "dm_swap_slots"
	OpDMSwapColors      Op = "dm_swap_colors"
)

// AllOps lists every atomic operation in probe order.
var AllOps = []Op{
	OpStartOrSwitchSlot, OpStopRunning, OpBeginCombat, OpEndCombat,
	OpDMResetPhase, OpDMAssignSlot, OpDMSetSlotLabel, OpDMSetSlotColor, OpDMSwapSlots,
	OpDMSwapColors,
}

// Capabilities is the set of atomic operations a store provides.
type Capabilities map[Op]bool

// Has reports whether op is provisioned.
func (c Capabilities) Has(op Op) bool {
	return c[op]
}

// Without returns a copy of c with op removed.
func (c Capabilities) Without(op Op) Capabilities {
	out := make(Capabilities, len(c))
	for k, v := range c {
		out[k] = v
	}
	delete(out, op)
	return out
}

// Reader is the read side of the store.
type Reader interface {
	LoadRoom(ctx context.Context, code string) (models.Room, error)
	ReadRoomState(ctx context.Context, roomID uuid.UUID) (models.Room, error)
	// ReadSlots returns slots ordered by slot number.
	ReadSlots(ctx context.Context, roomID uuid.UUID) ([]models.SlotState, error)
	VerifyDMToken(ctx context.Context, roomID uuid.UUID, token string) error
	ServerTime(ctx context.Context) (time.Time, error)
}

// Writer is the plain write side used by the degraded fallback path.
type Writer interface {
	// WriteRoomState replaces the state document. ErrConflict when the room is gone.
	WriteRoomState(ctx context.Context, roomID uuid.UUID, state models.RoomState) error
	WriteSlot(ctx context.Context, roomID uuid.UUID, change turn.SlotChange) error
	// ClaimVacantSlot seats occupant on the lowest vacant slot in one conditional statement.
	ClaimVacantSlot(ctx context.Context, roomID uuid.UUID, occupant uuid.UUID) (int, error)
}

// Store is the combined plain interface.
type Store interface {
	Reader
	Writer
}

// AtomicOps are the linearizable read-check-write operations, one per transition.
// Each returns the authoritative room record after the mutation.
type AtomicOps interface {
	StartOrSwitchSlot(ctx context.Context, code string, actor turn.Actor, target int) (models.Room, error)
	StopRunning(ctx context.Context, code string, actor turn.Actor) (models.Room, error)
	BeginCombat(ctx context.Context, code string, actor turn.Actor, target int) (models.Room, error)
	EndCombat(ctx context.Context, code string, actor turn.Actor) (models.Room, error)
	DMResetPhase(ctx context.Context, code, dmToken string, defaultSeconds int, overrides map[int]int) (models.Room, error)
	DMAssignSlot(ctx context.Context, code, dmToken string, slot int, occupant *uuid.UUID) (models.Room, error)
	DMSetSlotLabel(ctx context.Context, code, dmToken string, slot int, label string) (models.Room, error)
	DMSetSlotColor(ctx context.Context, code, dmToken string, slot int, color string) (models.Room, error)
	DMSwapSlots(ctx context.Context, code, dmToken string, a, b int) (models.Room, error)
	DMSwapColors(ctx context.Context, code, dmToken string, a, b int) (models.Room, error)
}

// Prober reports which atomic operations exist.
type Prober interface {
	Capabilities(ctx context.Context) (Capabilities, error)
}

// Table names a change source.
type Table string

const (
	TableRooms Table = "rooms"
	TableSlots Table = "player_slots"
	// TableAny is used when changes may have been missed, e.g. after a reconnect.
	TableAny Table = "*"
)

// Change is an at-least-once, unordered notice that a room or its slots changed.
// Room carries the post-mutation record when the producer has it.
type Change struct {
	Table  Table        `json:"table"`
	RoomID uuid.UUID    `json:"room_id"`
	Slot   *int         `json:"slot,omitempty"`
	Room   *models.Room `json:"room,omitempty"`
}
