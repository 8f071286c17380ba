// Package engine executes turn clock intents against the store: atomically when the
// store provides the operation, otherwise through a degraded read-then-write sequence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/turnclock/go/internal/mirror"
	"github.com/mcdev12/turnclock/go/internal/models"
	"github.com/mcdev12/turnclock/go/internal/store"
	"github.com/mcdev12/turnclock/go/internal/turn"
)

// DefaultRPCTimeout bounds a single store call or fallback sequence.
const DefaultRPCTimeout = 5 * time.Second

// Deps wires an engine to one room.
type Deps struct {
	Store        store.Store
	Atomic       store.AtomicOps
	Capabilities store.Capabilities
	Mirror       *mirror.Mirror
	Sink         mirror.Submitter
	Clock        clockwork.Clock
	Metrics      MetricsCollector
	RPCTimeout   time.Duration
}

// Engine serves the intents of one room.
type Engine struct {
	roomID  uuid.UUID
	code    string
	store   store.Store
	atomic  store.AtomicOps
	mirror  *mirror.Mirror
	sink    mirror.Submitter
	clock   clockwork.Clock
	metrics MetricsCollector
	timeout time.Duration

	capsMu sync.RWMutex
	caps   store.Capabilities
}

// New creates an engine for room.
func New(room models.Room, deps Deps) *Engine {
	e := &Engine{
		roomID:  room.ID,
		code:    room.Code,
		store:   deps.Store,
		atomic:  deps.Atomic,
		mirror:  deps.Mirror,
		sink:    deps.Sink,
		clock:   deps.Clock,
		metrics: deps.Metrics,
		timeout: deps.RPCTimeout,
		caps:    deps.Capabilities,
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.metrics == nil {
		e.metrics = NoOpMetricsCollector{}
	}
	if e.timeout <= 0 {
		e.timeout = DefaultRPCTimeout
	}
	if e.caps == nil {
		e.caps = store.Capabilities{}
	}
	if e.mirror == nil {
		e.mirror = mirror.New(e.clock)
	}
	return e
}

// RoomID of the served room.
func (e *Engine) RoomID() uuid.UUID { return e.roomID }

// Code of the served room.
func (e *Engine) Code() string { return e.code }

// Capabilities currently in use. Ops found missing mid-session are removed.
func (e *Engine) Capabilities() store.Capabilities {
	e.capsMu.RLock()
	defer e.capsMu.RUnlock()
	return e.caps.Without("")
}

func (e *Engine) hasAtomic(op store.Op) bool {
	if e.atomic == nil {
		return false
	}
	e.capsMu.RLock()
	defer e.capsMu.RUnlock()
	return e.caps.Has(op)
}

func (e *Engine) dropAtomic(op store.Op) {
	e.capsMu.Lock()
	e.caps = e.caps.Without(op)
	e.capsMu.Unlock()
}

// check validates an intent against a snapshot and plans its outcome. It is run
// against the mirror before any store call, and again against a fresh read on
// the fallback path.
type check func(snap models.Snapshot, now time.Time) (turn.Outcome, error)

type intent struct {
	op     store.Op
	dm     bool
	// dmMay marks intents a DM credential can authorize in place of a seat.
	dmMay  bool
	check  check
	atomic func(ctx context.Context) (models.Room, error)
}

// needsToken reports whether the fallback path must verify the presented DM token.
// Intents a token cannot authorize ignore it, as the atomic operations do.
func (in intent) needsToken(actor turn.Actor) bool {
	return in.dm || (in.dmMay && actor.IsDM())
}

func (e *Engine) run(ctx context.Context, actor turn.Actor, in intent) (room models.Room, err error) {
	start := e.clock.Now()
	path := PathLocal
	defer func() {
		e.metrics.RecordIntent(in.op, path, turn.KindOf(err), e.clock.Since(start))
	}()

	if in.dm && !actor.IsDM() {
		return models.Room{}, fmt.Errorf("%w: %s requires the DM", turn.ErrAuthorizationDenied, in.op)
	}

	snap, err := e.current(ctx)
	if err != nil {
		return models.Room{}, err
	}
	if _, err := in.check(snap, e.mirror.Now()); err != nil {
		return models.Room{}, err
	}

	if e.hasAtomic(in.op) {
		path = PathAtomic
		room, err = e.runAtomic(ctx, in)
		if !errors.Is(err, store.ErrOperationMissing) {
			return room, err
		}
		e.dropAtomic(in.op)
		e.metrics.RecordFallback(in.op, "missing")
		log.Warn().Str("op", string(in.op)).Str("room_code", e.code).
			Msg("atomic operation missing, switching to fallback for this session")
	}

	path = PathFallback
	return e.runFallback(ctx, actor, in)
}

func (e *Engine) runAtomic(ctx context.Context, in intent) (models.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	room, err := in.atomic(ctx)
	if err != nil {
		if errors.Is(err, store.ErrOperationMissing) {
			return models.Room{}, err
		}
		return models.Room{}, e.remoteError(in.op, err)
	}

	e.submit(mirror.Signal{Source: mirror.SourceLocal, Room: &room, Reload: true})
	return room, nil
}

// runFallback is the non-atomic sequence: read, re-check, write slots, write room.
// Another client writing between the read and the writes goes unnoticed.
func (e *Engine) runFallback(ctx context.Context, actor turn.Actor, in intent) (models.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	fresh, err := e.read(ctx)
	if err != nil {
		return models.Room{}, e.remoteError(in.op, err)
	}
	e.submit(mirror.Signal{Source: mirror.SourceLocal, Room: &fresh.Room})

	if in.needsToken(actor) {
		if err := e.store.VerifyDMToken(ctx, e.roomID, actor.DMToken); err != nil {
			return models.Room{}, e.remoteError(in.op, err)
		}
	}

	out, err := in.check(fresh, e.mirror.Now())
	if err != nil {
		return models.Room{}, err
	}

	log.Warn().Str("op", string(in.op)).Str("room_code", e.code).Msg("executing non-atomic fallback")

	for _, ch := range out.Slots {
		if err := e.store.WriteSlot(ctx, e.roomID, ch); err != nil {
			return models.Room{}, e.remoteError(in.op, fmt.Errorf("write slot %d: %w", ch.Slot, err))
		}
	}
	if err := e.store.WriteRoomState(ctx, e.roomID, out.State); err != nil {
		return models.Room{}, e.remoteError(in.op, fmt.Errorf("write room state: %w", err))
	}

	e.submit(mirror.Signal{Source: mirror.SourceLocal, Reload: true})

	room := fresh.Room
	room.State = out.State
	return room, nil
}

// current returns the mirror, or a fresh read when nothing has been mirrored yet.
func (e *Engine) current(ctx context.Context) (models.Snapshot, error) {
	if snap, ok := e.mirror.Snapshot(); ok {
		return snap, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	snap, err := e.read(ctx)
	if err != nil {
		return models.Snapshot{}, e.remoteError("read", err)
	}
	e.mirror.Replace(snap)
	return snap, nil
}

func (e *Engine) read(ctx context.Context) (models.Snapshot, error) {
	room, err := e.store.ReadRoomState(ctx, e.roomID)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("read room: %w", err)
	}
	slots, err := e.store.ReadSlots(ctx, e.roomID)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("read slots: %w", err)
	}
	return models.Snapshot{Room: room, Slots: slots, LoadedAt: e.clock.Now()}, nil
}

func (e *Engine) submit(sig mirror.Signal) {
	if e.sink != nil {
		e.sink.Submit(sig)
	}
}

// remoteError maps store errors into the turn taxonomy. A timed-out call is never
// retried; its effect is unknown until the mirror is reloaded.
func (e *Engine) remoteError(op store.Op, err error) error {
	switch {
	case errors.Is(err, store.ErrDenied):
		return fmt.Errorf("%w: %w", turn.ErrAuthorizationDenied, err)
	case errors.Is(err, store.ErrInvalid), errors.Is(err, store.ErrRoomFull):
		return fmt.Errorf("%w: %w", turn.ErrValidation, err)
	case turn.IsTimeout(err):
		e.submit(mirror.Signal{Source: mirror.SourceLocal, Reload: true})
		log.Error().Err(err).Str("op", string(op)).Str("room_code", e.code).
			Msg("store call timed out, reloading instead of retrying")
		return fmt.Errorf("%w: %w: %w", turn.ErrRemoteFailure, turn.ErrIndeterminate, err)
	default:
		log.Error().Err(err).Str("op", string(op)).Str("room_code", e.code).Msg("store call failed")
		return fmt.Errorf("%w: %w", turn.ErrRemoteFailure, err)
	}
}
