package mirror

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is how often the poller asks for a full reload.
const DefaultPollInterval = 5 * time.Second

// Poller is the polling producer. It is the correctness backstop for dropped or
// reordered push notices.
type Poller struct {
	clock    clockwork.Clock
	interval time.Duration
	sink     Submitter
}

// NewPoller creates a poller that submits reload signals to sink.
func NewPoller(clock clockwork.Clock, interval time.Duration, sink Submitter) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{clock: clock, interval: interval, sink: sink}
}

// Run ticks until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	log.Debug().Dur("interval", p.interval).Msg("poller started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.sink.Submit(Signal{Source: SourcePoll, Reload: true})
		}
	}
}
