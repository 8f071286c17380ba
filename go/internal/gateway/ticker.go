package gateway

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultTickInterval is how often viewers get a recomputed clock.
const DefaultTickInterval = time.Second

// Ticker is the render scheduler. Each tick re-evaluates the clock math for rooms
// that have viewers and broadcasts the result. It never writes to the store.
type Ticker struct {
	hub      *RoomHub
	cm       *ConnectionManager
	clock    clockwork.Clock
	interval time.Duration
}

func NewTicker(hub *RoomHub, cm *ConnectionManager, clock clockwork.Clock, interval time.Duration) *Ticker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Ticker{hub: hub, cm: cm, clock: clock, interval: interval}
}

// Run ticks until ctx is done.
func (t *Ticker) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", t.interval).Msg("render ticker started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.Tick()
		}
	}
}

// Tick broadcasts one TimerTick frame per watched room and returns how many were sent.
func (t *Ticker) Tick() int {
	sent := 0
	for _, roomID := range t.cm.ActiveRooms() {
		s, ok := t.hub.Lookup(roomID)
		if !ok {
			continue
		}
		view, ok := s.View()
		if !ok {
			continue
		}
		ev, err := NewRoomEvent(roomID, EventTypeTimerTick, view.Now, view)
		if err != nil {
			log.Error().Err(err).Str("room_code", s.Room.Code).Msg("failed to build tick")
			continue
		}
		t.cm.BroadcastToRoom(roomID, ev)
		sent++
	}
	return sent
}
