// Package memory is an in-process store with the same contract as the Postgres store.
// It backs the tests and the STORE=memory dev mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/turnclock/go/internal/models"
	"github.com/mcdev12/turnclock/go/internal/store"
	"github.com/mcdev12/turnclock/go/internal/turn"
)

var (
	_ store.Store     = (*Store)(nil)
	_ store.AtomicOps = (*Store)(nil)
	_ store.Prober    = (*Store)(nil)
)

type roomRecord struct {
	room      models.Room
	tokenHash string
	slots     []models.SlotState
}

// Store keeps rooms in memory behind a single mutex, which makes every atomic op linearizable.
type Store struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	rooms  map[uuid.UUID]*roomRecord
	byCode map[string]uuid.UUID
	atomic bool

	subs    map[int]chan store.Change
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the store-side clock used to stamp transitions.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithoutAtomicOps makes the store behave like a deployment whose stored functions
// were never installed.
func WithoutAtomicOps() Option {
	return func(s *Store) { s.atomic = false }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		clock:  clockwork.NewRealClock(),
		rooms:  make(map[uuid.UUID]*roomRecord),
		byCode: make(map[string]uuid.UUID),
		atomic: true,
		subs:   make(map[int]chan store.Change),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRoom provisions a room with default slots and returns the clear DM token.
func (s *Store) CreateRoom(_ context.Context, params store.CreateRoomParams) (models.Room, string, error) {
	p, err := params.Normalize()
	if err != nil {
		return models.Room{}, "", err
	}
	token, err := store.NewDMToken()
	if err != nil {
		return models.Room{}, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byCode[p.Code]; taken {
		return models.Room{}, "", fmt.Errorf("%w: room code %s already in use", store.ErrConflict, p.Code)
	}

	state := models.DefaultRoomState()
	state.PhaseDefaultSeconds = p.PhaseDefaultSeconds
	rec := &roomRecord{
		room:      models.Room{ID: uuid.New(), Code: p.Code, Revision: 1, State: state},
		tokenHash: store.HashDMToken(token),
		slots:     store.DefaultSlots(p.SlotCount, p.PhaseDefaultSeconds),
	}
	s.rooms[rec.room.ID] = rec
	s.byCode[p.Code] = rec.room.ID

	log.Debug().Str("room_code", p.Code).Int("slots", p.SlotCount).Msg("memory store created room")
	return copyRoom(rec.room), token, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) LoadRoom(_ context.Context, code string) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.byCodeLocked(code)
	if err != nil {
		return models.Room{}, err
	}
	return copyRoom(rec.room), nil
}

func (s *Store) ReadRoomState(_ context.Context, roomID uuid.UUID) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[roomID]
	if !ok {
		return models.Room{}, store.ErrRoomNotFound
	}
	return copyRoom(rec.room), nil
}

func (s *Store) ReadSlots(_ context.Context, roomID uuid.UUID) ([]models.SlotState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[roomID]
	if !ok {
		return nil, store.ErrRoomNotFound
	}
	return copySlots(rec.slots), nil
}

func (s *Store) VerifyDMToken(_ context.Context, roomID uuid.UUID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[roomID]
	if !ok {
		return store.ErrRoomNotFound
	}
	if !store.TokenMatches(token, rec.tokenHash) {
		return fmt.Errorf("%w: dm token rejected", store.ErrDenied)
	}
	return nil
}

func (s *Store) ServerTime(context.Context) (time.Time, error) {
	return s.clock.Now(), nil
}

func (s *Store) WriteRoomState(_ context.Context, roomID uuid.UUID, state models.RoomState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[roomID]
	if !ok {
		return store.ErrConflict
	}
	rec.room.State = state.Clone()
	rec.room.Revision++
	s.publishLocked(store.Change{Table: store.TableRooms, RoomID: roomID, Room: roomPtr(rec.room)})
	return nil
}

func (s *Store) WriteSlot(_ context.Context, roomID uuid.UUID, change turn.SlotChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[roomID]
	if !ok {
		return store.ErrConflict
	}
	idx := slotIndex(rec.slots, change.Slot)
	if idx < 0 {
		return store.ErrConflict
	}
	if change.SetOccupant && change.OccupantID != nil {
		if other := turn.CallerSlot(rec.slots, *change.OccupantID); other != nil && other.Slot != change.Slot {
			return fmt.Errorf("%w: occupant already seated on slot %d", store.ErrConflict, other.Slot)
		}
	}
	turn.ApplySlotChange(&rec.slots[idx], change)
	slot := change.Slot
	s.publishLocked(store.Change{Table: store.TableSlots, RoomID: roomID, Slot: &slot})
	return nil
}

func (s *Store) ClaimVacantSlot(_ context.Context, roomID uuid.UUID, occupant uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[roomID]
	if !ok {
		return 0, store.ErrRoomNotFound
	}
	if mine := turn.CallerSlot(rec.slots, occupant); mine != nil {
		return mine.Slot, nil
	}
	for i := range rec.slots {
		if rec.slots[i].OccupantID == nil {
			id := occupant
			rec.slots[i].OccupantID = &id
			slot := rec.slots[i].Slot
			s.publishLocked(store.Change{Table: store.TableSlots, RoomID: roomID, Slot: &slot})
			return slot, nil
		}
	}
	return 0, store.ErrRoomFull
}

// Subscribe streams changes until ctx is done. Slow subscribers lose notices,
// which is within the delivery contract.
func (s *Store) Subscribe(ctx context.Context) <-chan store.Change {
	ch := make(chan store.Change, 64)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

func (s *Store) publishLocked(change store.Change) {
	for _, ch := range s.subs {
		select {
		case ch <- change:
		default:
			log.Warn().Str("room_id", change.RoomID.String()).Msg("memory store subscriber full, dropping change")
		}
	}
}

func (s *Store) byCodeLocked(code string) (*roomRecord, error) {
	id, ok := s.byCode[code]
	if !ok {
		return nil, store.ErrRoomNotFound
	}
	return s.rooms[id], nil
}

func slotIndex(slots []models.SlotState, n int) int {
	for i := range slots {
		if slots[i].Slot == n {
			return i
		}
	}
	return -1
}

func copyRoom(r models.Room) models.Room {
	r.State = r.State.Clone()
	return r
}

func roomPtr(r models.Room) *models.Room {
	c := copyRoom(r)
	return &c
}

func copySlots(slots []models.SlotState) []models.SlotState {
	out := make([]models.SlotState, len(slots))
	for i, sl := range slots {
		out[i] = sl.Clone()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}
