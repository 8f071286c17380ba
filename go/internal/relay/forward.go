package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/turnclock/go/internal/store"
)

// ChangePublisher is the publishing side of the relay.
type ChangePublisher interface {
	Publish(ctx context.Context, change store.Change) error
}

type ForwarderConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultForwarderConfig() ForwarderConfig {
	return ForwarderConfig{
		MaxRetries: 5,
		RetryDelay: 200 * time.Millisecond,
	}
}

// Forwarder drains a change channel into a publisher.
type Forwarder struct {
	publisher ChangePublisher
	clock     clockwork.Clock
	cfg       ForwarderConfig
}

func NewForwarder(publisher ChangePublisher, clock clockwork.Clock, cfg ForwarderConfig) *Forwarder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Forwarder{publisher: publisher, clock: clock, cfg: cfg}
}

// Run returns when changes is closed or ctx is done. A change that cannot be
// published is logged and skipped; subscribers recover through their poll.
func (f *Forwarder) Run(ctx context.Context, changes <-chan store.Change) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			if err := f.publishWithRetry(ctx, change); err != nil {
				log.Error().Err(err).Str("room_id", change.RoomID.String()).Msg("dropping change")
			}
		}
	}
}

func (f *Forwarder) publishWithRetry(ctx context.Context, change store.Change) error {
	var lastErr error

	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := f.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.clock.After(delay):
			}
		}

		if err := f.publisher.Publish(ctx, change); err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("room_id", change.RoomID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("room_id", change.RoomID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", f.cfg.MaxRetries+1, lastErr)
}
