package engine

import (
	"sync"
	"time"

	"github.com/mcdev12/turnclock/go/internal/store"
	"github.com/mcdev12/turnclock/go/internal/turn"
)

// Path is the way an intent was executed.
type Path string

const (
	PathLocal    Path = "local" // rejected against the mirror, no store call
	PathAtomic   Path = "atomic"
	PathFallback Path = "fallback"
)

// MetricsCollector defines the interface for collecting engine metrics
type MetricsCollector interface {
	RecordIntent(op store.Op, path Path, outcome turn.Kind, duration time.Duration)
	RecordFallback(op store.Op, reason string)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordIntent(store.Op, Path, turn.Kind, time.Duration) {}
func (NoOpMetricsCollector) RecordFallback(store.Op, string)                      {}

// CountingMetrics keeps counters in memory so the gateway can report them.
type CountingMetrics struct {
	mu        sync.Mutex
	intents   map[string]int64
	fallbacks map[string]int64
	slowest   time.Duration
}

func NewCountingMetrics() *CountingMetrics {
	return &CountingMetrics{
		intents:   make(map[string]int64),
		fallbacks: make(map[string]int64),
	}
}

func (m *CountingMetrics) RecordIntent(op store.Op, path Path, outcome turn.Kind, duration time.Duration) {
	status := "ok"
	if outcome != turn.KindNone {
		status = string(outcome)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents[string(op)+"/"+string(path)+"/"+status]++
	if duration > m.slowest {
		m.slowest = duration
	}
}

func (m *CountingMetrics) RecordFallback(op store.Op, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks[string(op)+"/"+reason]++
}

// Snapshot returns a copy of the counters.
func (m *CountingMetrics) Snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	intents := make(map[string]int64, len(m.intents))
	for k, v := range m.intents {
		intents[k] = v
	}
	fallbacks := make(map[string]int64, len(m.fallbacks))
	for k, v := range m.fallbacks {
		fallbacks[k] = v
	}
	return map[string]interface{}{
		"intents":        intents,
		"fallbacks":      fallbacks,
		"slowest_intent": m.slowest.String(),
	}
}
