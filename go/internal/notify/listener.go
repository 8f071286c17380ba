// Package notify turns Postgres NOTIFY payloads from the turnclock triggers into
// store.Change values.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/turnclock/go/internal/store"
)

type ListenerConfig struct {
	DatabaseURL   string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel string        // Channel name to LISTEN on
	PingInterval  time.Duration
	MinReconnect  time.Duration
	MaxReconnect  time.Duration
	Buffer        int
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel: "turnclock_changes",
		PingInterval:  90 * time.Second,
		MinReconnect:  10 * time.Second,
		MaxReconnect:  time.Minute,
		Buffer:        256,
	}
}

// Listener holds one LISTEN connection and fans its notices out as changes.
type Listener struct {
	listener *pq.Listener
	cfg      ListenerConfig
	clock    clockwork.Clock
	changes  chan store.Change

	mu       sync.Mutex
	running  bool
	lastNote time.Time
	received uint64
	dropped  uint64
}

func NewListener(cfg ListenerConfig, clock clockwork.Clock) (*Listener, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnect,
		cfg.MaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Int("event", int(ev)).Msg("listener event")
				return
			}
			if ev == pq.ListenerEventReconnected {
				log.Warn().Msg("listener reconnected")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return &Listener{
		listener: l,
		cfg:      cfg,
		clock:    clock,
		changes:  make(chan store.Change, cfg.Buffer),
	}, nil
}

// Changes is closed when Start returns.
func (l *Listener) Changes() <-chan store.Change {
	return l.changes
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Msg("listener started")

	l.setRunning(true)
	defer l.setRunning(false)

	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()
	defer close(l.changes)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// The connection was lost and re-established; anything may have been missed.
				l.emit(store.Change{Table: store.TableAny})
				continue
			}
			change, err := ParsePayload(note.Extra)
			if err != nil {
				log.Error().Err(err).Str("payload", note.Extra).Msg("failed to parse notification")
				continue
			}
			l.emit(change)
		case <-pingTicker.Chan():
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.listener.Close()
}

func (l *Listener) setRunning(v bool) {
	l.mu.Lock()
	l.running = v
	l.mu.Unlock()
}

// Active reports whether Start is running.
func (l *Listener) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Listener) emit(change store.Change) {
	l.mu.Lock()
	l.lastNote = l.clock.Now()
	l.received++
	l.mu.Unlock()

	select {
	case l.changes <- change:
	default:
		l.mu.Lock()
		l.dropped++
		l.mu.Unlock()
		log.Warn().Str("room_id", change.RoomID.String()).Msg("change buffer full, dropping notification")
	}
}

// Stats reports notices received, notices dropped and the time of the last one.
func (l *Listener) Stats() (received, dropped uint64, last time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.received, l.dropped, l.lastNote
}
