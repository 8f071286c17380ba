package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
)

type HealthStatus struct {
	Healthy        bool      `json:"healthy"`
	StoreConnected bool      `json:"store_connected"`
	NATSConnected  bool      `json:"nats_connected"`
	ListenerActive bool      `json:"listener_active"`
	LastSync       time.Time `json:"last_sync"`
	OpenRooms      int       `json:"open_rooms"`
	Errors         []string  `json:"errors"`
}

type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// Pinger is the store liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ChangeFeed is a push producer (LISTEN or JetStream) that reports whether it runs.
type ChangeFeed interface {
	Active() bool
}

// GatewayHealthChecker checks the store, the push feed and how stale the mirrors are.
// NATS and Feed are optional.
type GatewayHealthChecker struct {
	store     Pinger
	natsConn  *nats.Conn
	feed      ChangeFeed
	hub       *RoomHub
	clock     clockwork.Clock
	threshold time.Duration // How long a mirror may go without syncing
}

func NewGatewayHealthChecker(store Pinger, natsConn *nats.Conn, feed ChangeFeed, hub *RoomHub, clock clockwork.Clock, threshold time.Duration) *GatewayHealthChecker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &GatewayHealthChecker{
		store:     store,
		natsConn:  natsConn,
		feed:      feed,
		hub:       hub,
		clock:     clock,
		threshold: threshold,
	}
}

func (h *GatewayHealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	if err := h.store.Ping(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("store ping failed: %v", err))
	} else {
		status.StoreConnected = true
	}

	if h.natsConn != nil {
		status.NATSConnected = h.natsConn.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	// Without a push feed the poller alone keeps mirrors fresh.
	if h.feed != nil {
		status.ListenerActive = h.feed.Active()
		if !status.ListenerActive {
			status.Healthy = false
			status.Errors = append(status.Errors, "change feed not active")
		}
	}

	if h.hub != nil {
		status.OpenRooms = len(h.hub.Sessions())
		status.LastSync = h.hub.LastSync()
		if status.OpenRooms > 0 && h.threshold > 0 {
			if age := h.clock.Since(status.LastSync); age > h.threshold {
				status.Healthy = false
				status.Errors = append(status.Errors, fmt.Sprintf("no reconcile for %s", age))
			}
		}
	}

	return status
}

func (h *GatewayHealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
