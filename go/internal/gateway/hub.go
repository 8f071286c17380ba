package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/turnclock/go/internal/engine"
	"github.com/mcdev12/turnclock/go/internal/mirror"
	"github.com/mcdev12/turnclock/go/internal/models"
	"github.com/mcdev12/turnclock/go/internal/store"
)

// HubDeps wires a RoomHub to the store. Atomic and Prober may be nil, in which
// case every session runs on the fallback path.
type HubDeps struct {
	Store        store.Store
	Atomic       store.AtomicOps
	Prober       store.Prober
	Clock        clockwork.Clock
	Metrics      engine.MetricsCollector
	PollInterval time.Duration
	RPCTimeout   time.Duration
}

// Session is everything the gateway keeps for one open room.
type Session struct {
	Room       models.Room
	Engine     *engine.Engine
	Mirror     *mirror.Mirror
	Reconciler *mirror.Reconciler
	OpenedAt   time.Time

	cancel context.CancelFunc
}

// View evaluates the session's mirror at the corrected clock.
func (s *Session) View() (RoomView, bool) {
	snap, ok := s.Mirror.Snapshot()
	if !ok {
		return RoomView{}, false
	}
	return BuildView(snap, s.Mirror.Now()), true
}

// RoomHub lazily opens one session per room and routes change notices to them.
type RoomHub struct {
	deps HubDeps

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	byCode   map[string]*Session
	byID     map[uuid.UUID]*Session
	onChange func(*Session)
}

func NewRoomHub(deps HubDeps) *RoomHub {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Metrics == nil {
		deps.Metrics = engine.NoOpMetricsCollector{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RoomHub{
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		byCode: make(map[string]*Session),
		byID:   make(map[uuid.UUID]*Session),
	}
}

// OnChange registers fn to run whenever a session's mirror changes. Set it
// before the first Open.
func (h *RoomHub) OnChange(fn func(*Session)) {
	h.mu.Lock()
	h.onChange = fn
	h.mu.Unlock()
}

// Open returns the session for code, loading the room and negotiating with the
// store on first use.
func (h *RoomHub) Open(ctx context.Context, code string) (*Session, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("%w: empty room code", store.ErrRoomNotFound)
	}

	h.mu.RLock()
	s, ok := h.byCode[code]
	h.mu.RUnlock()
	if ok {
		return s, nil
	}

	s, err := h.newSession(ctx, code)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if existing, ok := h.byCode[s.Room.Code]; ok {
		h.mu.Unlock()
		return existing, nil
	}
	sctx, cancel := context.WithCancel(h.ctx)
	s.cancel = cancel
	h.byCode[s.Room.Code] = s
	h.byID[s.Room.ID] = s
	onChange := h.onChange
	h.mu.Unlock()

	h.start(sctx, s, onChange)

	log.Info().
		Str("room_code", s.Room.Code).
		Str("room_id", s.Room.ID.String()).
		Int("atomic_ops", len(s.Engine.Capabilities())).
		Msg("room session opened")
	return s, nil
}

func (h *RoomHub) newSession(ctx context.Context, code string) (*Session, error) {
	room, err := h.deps.Store.LoadRoom(ctx, code)
	if err != nil {
		return nil, err
	}

	neg, err := engine.Negotiate(ctx, h.deps.Prober, h.deps.Store, h.deps.Clock)
	if err != nil {
		return nil, fmt.Errorf("negotiate room %s: %w", room.Code, err)
	}

	m := mirror.New(h.deps.Clock)
	m.SetOffset(neg.ClockOffset)
	rec := mirror.NewReconciler(h.deps.Store, room.ID, m, h.deps.Clock, h.deps.RPCTimeout)
	if err := rec.Reconcile(ctx, mirror.Signal{Source: mirror.SourceInitial, Reload: true}); err != nil {
		return nil, fmt.Errorf("initial load of room %s: %w", room.Code, err)
	}

	eng := engine.New(room, engine.Deps{
		Store:        h.deps.Store,
		Atomic:       h.deps.Atomic,
		Capabilities: neg.Capabilities,
		Mirror:       m,
		Sink:         rec,
		Clock:        h.deps.Clock,
		Metrics:      h.deps.Metrics,
		RPCTimeout:   h.deps.RPCTimeout,
	})

	return &Session{
		Room:       room,
		Engine:     eng,
		Mirror:     m,
		Reconciler: rec,
		OpenedAt:   h.deps.Clock.Now(),
	}, nil
}

func (h *RoomHub) start(ctx context.Context, s *Session, onChange func(*Session)) {
	watch := s.Mirror.Watch()

	go func() {
		if err := s.Reconciler.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Str("room_code", s.Room.Code).Msg("reconciler stopped")
		}
	}()
	go mirror.NewPoller(h.deps.Clock, h.deps.PollInterval, s.Reconciler).Run(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-watch:
				if onChange != nil {
					onChange(s)
				}
			}
		}
	}()
}

// Lookup returns an open session by room id.
func (h *RoomHub) Lookup(roomID uuid.UUID) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.byID[roomID]
	return s, ok
}

// Sessions returns every open session.
func (h *RoomHub) Sessions() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.byID))
	for _, s := range h.byID {
		out = append(out, s)
	}
	return out
}

// Dispatch routes a change notice to its session. Wildcard notices and notices
// without a room id go to every session. Notices for rooms nobody has open are dropped.
func (h *RoomHub) Dispatch(c store.Change) {
	sig := mirror.SignalFromChange(c)
	if c.Table == store.TableAny || c.RoomID == uuid.Nil {
		for _, s := range h.Sessions() {
			s.Reconciler.Submit(sig)
		}
		return
	}
	if s, ok := h.Lookup(c.RoomID); ok {
		s.Reconciler.Submit(sig)
	}
}

// Run dispatches changes until ctx is done or the channel closes.
func (h *RoomHub) Run(ctx context.Context, changes <-chan store.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			h.Dispatch(c)
		}
	}
}

// LastSync is the oldest last-sync time across open sessions, zero when none are open.
func (h *RoomHub) LastSync() time.Time {
	var oldest time.Time
	for _, s := range h.Sessions() {
		t := s.Reconciler.Stats().LastSync
		if oldest.IsZero() || t.Before(oldest) {
			oldest = t
		}
	}
	return oldest
}

// Stats returns per-room reconcile and capability details.
func (h *RoomHub) Stats() map[string]interface{} {
	rooms := make(map[string]interface{})
	for _, s := range h.Sessions() {
		caps := make([]string, 0)
		for _, op := range store.AllOps {
			if s.Engine.Capabilities().Has(op) {
				caps = append(caps, string(op))
			}
		}
		rooms[s.Room.Code] = map[string]interface{}{
			"room_id":    s.Room.ID,
			"revision":   s.Mirror.Revision(),
			"atomic_ops": caps,
			"reconciler": s.Reconciler.Stats(),
			"opened_at":  s.OpenedAt,
		}
	}
	return map[string]interface{}{
		"open_rooms": len(rooms),
		"rooms":      rooms,
	}
}

// Close stops every session.
func (h *RoomHub) Close() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for code, s := range h.byCode {
		if s.cancel != nil {
			s.cancel()
		}
		delete(h.byCode, code)
		delete(h.byID, s.Room.ID)
	}
}
