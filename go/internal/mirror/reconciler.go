package mirror

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/turnclock/go/internal/models"
	"github.com/mcdev12/turnclock/go/internal/store"
)

// Source says which producer emitted a signal. It is only used for logging and stats.
type Source string

const (
	SourceInitial Source = "initial"
	SourcePush    Source = "push"
	SourcePoll    Source = "poll"
	SourceLocal   Source = "local"
)

// Signal asks the reconciler to bring the mirror up to date. A signal carrying a
// room record replaces the room; a signal without one, or with Reload set,
// re-reads room and slots from the store.
type Signal struct {
	Source Source
	Room   *models.Room
	Reload bool
}

// Submitter accepts signals without blocking.
type Submitter interface {
	Submit(Signal)
}

// Stats counts what the reconciler has done.
type Stats struct {
	Applied  int64     `json:"applied"`
	Stale    int64     `json:"stale"`
	Reloads  int64     `json:"reloads"`
	Failures int64     `json:"failures"`
	LastSync time.Time `json:"last_sync"`
}

// Reconciler is the single entry point for changes to one room's mirror.
type Reconciler struct {
	reader  store.Reader
	roomID  uuid.UUID
	mirror  *Mirror
	clock   clockwork.Clock
	timeout time.Duration

	signals       chan Signal
	reloadPending atomic.Bool

	applied  atomic.Int64
	stale    atomic.Int64
	reloads  atomic.Int64
	failures atomic.Int64
	lastSync atomic.Int64
}

// NewReconciler binds a mirror to a room in the store.
func NewReconciler(reader store.Reader, roomID uuid.UUID, m *Mirror, clock clockwork.Clock, timeout time.Duration) *Reconciler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Reconciler{
		reader:  reader,
		roomID:  roomID,
		mirror:  m,
		clock:   clock,
		timeout: timeout,
		signals: make(chan Signal, 32),
	}
}

// RoomID of the mirrored room.
func (r *Reconciler) RoomID() uuid.UUID { return r.roomID }

// Mirror being maintained.
func (r *Reconciler) Mirror() *Mirror { return r.mirror }

// Submit queues a signal. When the queue is full the signal is folded into a
// pending full reload, which subsumes it.
func (r *Reconciler) Submit(sig Signal) {
	select {
	case r.signals <- sig:
	default:
		r.reloadPending.Store(true)
		log.Debug().Str("room_id", r.roomID.String()).Str("source", string(sig.Source)).Msg("reconcile queue full, folding into reload")
	}
}

// Run applies queued signals one at a time until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-r.signals:
			if r.reloadPending.Swap(false) {
				sig = Signal{Source: sig.Source, Reload: true}
			}
			if err := r.Reconcile(ctx, sig); err != nil {
				log.Warn().Err(err).
					Str("room_id", r.roomID.String()).
					Str("source", string(sig.Source)).
					Msg("reconcile failed, waiting for next signal")
			}
		}
	}
}

// Reconcile applies one signal synchronously. Applying the same signal twice
// leaves the mirror as applying it once.
func (r *Reconciler) Reconcile(ctx context.Context, sig Signal) error {
	if sig.Room != nil {
		if sig.Room.ID != r.roomID {
			return nil
		}
		if r.mirror.ReplaceRoom(*sig.Room) {
			r.applied.Add(1)
			r.lastSync.Store(r.clock.Now().UnixNano())
		} else {
			r.stale.Add(1)
		}
		if !sig.Reload {
			return nil
		}
	}
	return r.reload(ctx)
}

func (r *Reconciler) reload(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	room, err := r.reader.ReadRoomState(ctx, r.roomID)
	if err != nil {
		r.failures.Add(1)
		return fmt.Errorf("read room: %w", err)
	}
	slots, err := r.reader.ReadSlots(ctx, r.roomID)
	if err != nil {
		r.failures.Add(1)
		return fmt.Errorf("read slots: %w", err)
	}

	now := r.clock.Now()
	r.mirror.Replace(models.Snapshot{Room: room, Slots: slots, LoadedAt: now})
	r.reloads.Add(1)
	r.lastSync.Store(now.UnixNano())
	return nil
}

// Stats returns counters since start.
func (r *Reconciler) Stats() Stats {
	s := Stats{
		Applied:  r.applied.Load(),
		Stale:    r.stale.Load(),
		Reloads:  r.reloads.Load(),
		Failures: r.failures.Load(),
	}
	if ns := r.lastSync.Load(); ns != 0 {
		s.LastSync = time.Unix(0, ns)
	}
	return s
}

// SignalFromChange converts a store change notice into a reconcile signal.
func SignalFromChange(c store.Change) Signal {
	if c.Table == store.TableRooms && c.Room != nil {
		return Signal{Source: SourcePush, Room: c.Room}
	}
	return Signal{Source: SourcePush, Reload: true}
}

// FeedChanges forwards changes for roomID from a push producer until ctx is done
// or the channel closes.
func FeedChanges(ctx context.Context, changes <-chan store.Change, roomID uuid.UUID, sink Submitter) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if c.RoomID != roomID && c.Table != store.TableAny {
				continue
			}
			sink.Submit(SignalFromChange(c))
		}
	}
}
