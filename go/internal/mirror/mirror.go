// Package mirror holds a client's read-only copy of one room and keeps it in step
// with the store. All changes enter through Reconciler.Reconcile and replace whole records.
package mirror

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/turnclock/go/internal/models"
)

// Mirror is safe for concurrent use.
type Mirror struct {
	mu       sync.RWMutex
	snap     models.Snapshot
	loaded   bool
	clock    clockwork.Clock
	offset   time.Duration
	watchers []chan struct{}
}

// New creates an empty mirror.
func New(clock clockwork.Clock) *Mirror {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Mirror{clock: clock}
}

// Snapshot returns a copy of the mirrored room and slots.
func (m *Mirror) Snapshot() (models.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Clone(), m.loaded
}

// Revision of the mirrored room record.
func (m *Mirror) Revision() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Room.Revision
}

// LoadedAt is when the mirror last took a record from the store.
func (m *Mirror) LoadedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.LoadedAt
}

// SetOffset records how far the store clock is ahead of the local clock.
func (m *Mirror) SetOffset(d time.Duration) {
	m.mu.Lock()
	m.offset = d
	m.mu.Unlock()
}

// Now is local time corrected towards the store clock. Clock math uses it so
// that countdowns agree with the baselines the store stamped.
func (m *Mirror) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clock.Now().Add(m.offset)
}

// Replace swaps in a complete snapshot. Slots are replaced as a whole collection.
func (m *Mirror) Replace(snap models.Snapshot) {
	snap = snap.Clone()
	m.mu.Lock()
	if snap.LoadedAt.IsZero() {
		snap.LoadedAt = m.clock.Now()
	}
	m.snap = snap
	m.loaded = true
	m.mu.Unlock()
	m.notify()
}

// ReplaceRoom swaps in a pushed room record unless the mirror already holds a
// newer revision. It reports whether the record was applied.
func (m *Mirror) ReplaceRoom(room models.Room) bool {
	m.mu.Lock()
	if m.loaded && room.Revision < m.snap.Room.Revision {
		m.mu.Unlock()
		return false
	}
	room.State = room.State.Clone()
	m.snap.Room = room
	m.snap.LoadedAt = m.clock.Now()
	m.mu.Unlock()
	m.notify()
	return true
}

// Watch returns a channel that receives a value after each change. Notifications
// coalesce; a reader always sees the latest snapshot when it calls Snapshot.
func (m *Mirror) Watch() <-chan struct{} {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.watchers = append(m.watchers, ch)
	m.mu.Unlock()
	return ch
}

func (m *Mirror) notify() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// EditSession marks a viewer as editing. While it is open, full refreshes for
// that viewer are deferred so in-progress input is not overwritten; ticks keep flowing.
type EditSession struct {
	editing atomic.Bool
	pending atomic.Bool
}

// Begin opens the session.
func (e *EditSession) Begin() {
	e.editing.Store(true)
}

// End closes the session and reports whether a refresh was deferred meanwhile.
func (e *EditSession) End() bool {
	e.editing.Store(false)
	return e.pending.Swap(false)
}

// Active reports whether the viewer is editing.
func (e *EditSession) Active() bool {
	return e.editing.Load()
}

// Defer reports whether a refresh must wait, remembering that one did.
func (e *EditSession) Defer() bool {
	if !e.editing.Load() {
		return false
	}
	e.pending.Store(true)
	return true
}
