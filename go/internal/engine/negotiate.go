package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/turnclock/go/internal/store"
)

// Negotiation is what a session learns about the store once, at start.
type Negotiation struct {
	Capabilities store.Capabilities
	// ClockOffset is how far the store clock runs ahead of the local one.
	ClockOffset time.Duration
	At          time.Time
}

// Negotiate probes which atomic operations exist and measures the clock offset.
// A nil prober means no atomic operations. Callers cache the result for the session.
func Negotiate(ctx context.Context, prober store.Prober, reader store.Reader, clock clockwork.Clock) (Negotiation, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	n := Negotiation{Capabilities: store.Capabilities{}, At: clock.Now()}

	if prober != nil {
		caps, err := prober.Capabilities(ctx)
		if err != nil {
			return n, fmt.Errorf("probe capabilities: %w", err)
		}
		n.Capabilities = caps
	}

	before := clock.Now()
	serverNow, err := reader.ServerTime(ctx)
	if err != nil {
		return n, fmt.Errorf("read server time: %w", err)
	}
	after := clock.Now()
	mid := before.Add(after.Sub(before) / 2)
	n.ClockOffset = serverNow.Sub(mid)

	missing := make([]string, 0)
	for _, op := range store.AllOps {
		if !n.Capabilities.Has(op) {
			missing = append(missing, string(op))
		}
	}
	ev := log.Info()
	if len(missing) > 0 {
		ev = log.Warn().Strs("fallback_ops", missing)
	}
	ev.Int("atomic_ops", len(store.AllOps)-len(missing)).
		Dur("clock_offset", n.ClockOffset).
		Msg("negotiated store capabilities")

	return n, nil
}
