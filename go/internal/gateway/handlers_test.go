package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/turnclock/go/internal/engine"
	"github.com/mcdev12/turnclock/go/internal/models"
	"github.com/mcdev12/turnclock/go/internal/store"
	"github.com/mcdev12/turnclock/go/internal/store/memory"
	"github.com/mcdev12/turnclock/go/internal/turn"
)

type testGateway struct {
	store   *memory.Store
	clock   *clockwork.FakeClock
	hub     *RoomHub
	service *Service
	server  *httptest.Server
	metrics *engine.CountingMetrics
	room    models.Room
	token   string
	seats   map[int]uuid.UUID
}

// newTestGateway serves one room with slots 1..3 seated and slot 4 vacant.
func newTestGateway(t *testing.T, opts ...memory.Option) *testGateway {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC))

	s := memory.New(append([]memory.Option{memory.WithClock(clock)}, opts...)...)
	room, token, err := s.CreateRoom(ctx, store.CreateRoomParams{Code: "CRYPT4", SlotCount: 4})
	require.NoError(t, err)

	seats := map[int]uuid.UUID{}
	for range 3 {
		id := uuid.New()
		slot, err := s.ClaimVacantSlot(ctx, room.ID, id)
		require.NoError(t, err)
		seats[slot] = id
	}

	metrics := engine.NewCountingMetrics()
	hub := NewRoomHub(HubDeps{
		Store:        s,
		Atomic:       s,
		Prober:       s,
		Clock:        clock,
		Metrics:      metrics,
		PollInterval: time.Hour,
		RPCTimeout:   time.Second,
	})
	svc := NewService(DefaultConfig(), hub, metrics, NewGatewayHealthChecker(s, nil, nil, hub, clock, 0), clock)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		hub.Close()
	})

	return &testGateway{
		store:   s,
		clock:   clock,
		hub:     hub,
		service: svc,
		server:  server,
		metrics: metrics,
		room:    room,
		token:   token,
		seats:   seats,
	}
}

type call struct {
	method   string
	path     string
	body     interface{}
	occupant uuid.UUID
	dmHeader string
}

func (g *testGateway) do(t *testing.T, c call, out interface{}) int {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	if c.method == "" {
		c.method = http.MethodPost
	}
	req, err := http.NewRequest(c.method, g.server.URL+c.path, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.occupant != uuid.Nil {
		req.Header.Set(HeaderOccupantID, c.occupant.String())
	}
	if c.dmHeader != "" {
		req.Header.Set(HeaderDMToken, c.dmHeader)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// settle waits until the open session's mirror holds at least revision rev.
func (g *testGateway) settle(t *testing.T, rev int64) {
	t.Helper()
	s, ok := g.hub.Lookup(g.room.ID)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return s.Mirror.Revision() >= rev
	}, 2*time.Second, 5*time.Millisecond)
}

func TestGetState(t *testing.T) {
	g := newTestGateway(t)

	var view RoomView
	status := g.do(t, call{method: http.MethodGet, path: "/api/rooms/crypt4/state"}, &view)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, "CRYPT4", view.Code)
	assert.False(t, view.IsRunning)
	assert.Nil(t, view.Combat)
	require.Len(t, view.Slots, 4)
	for _, s := range view.Slots {
		assert.Equal(t, "02:00", s.Clock)
		assert.Equal(t, 120, s.RemainingSeconds)
	}
	assert.Nil(t, view.Slots[3].OccupantID)
}

func TestUnknownRoomIsNotFound(t *testing.T) {
	g := newTestGateway(t)

	var resp errorResponse
	status := g.do(t, call{method: http.MethodGet, path: "/api/rooms/NOPE42/state"}, &resp)
	assert.Equal(t, http.StatusNotFound, status)
	assert.NotEmpty(t, resp.Error)
}

func TestJoinClaimsVacantSlot(t *testing.T) {
	g := newTestGateway(t)
	newcomer := uuid.New()

	var joined joinResponse
	status := g.do(t, call{path: "/api/rooms/CRYPT4/join", occupant: newcomer}, &joined)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 4, joined.Slot)

	// Joining again returns the same seat.
	status = g.do(t, call{path: "/api/rooms/CRYPT4/join", occupant: g.seats[2]}, &joined)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, joined.Slot)

	var resp errorResponse
	status = g.do(t, call{path: "/api/rooms/CRYPT4/join"}, &resp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, turn.KindValidation, resp.Kind)
}

func TestActivateStopCycle(t *testing.T) {
	g := newTestGateway(t)

	var view RoomView
	status := g.do(t, call{path: "/api/rooms/CRYPT4/activate", body: slotRequest{Slot: 1}, occupant: g.seats[1]}, &view)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, view.IsRunning)
	require.NotNil(t, view.ActiveSlot)
	assert.Equal(t, 1, *view.ActiveSlot)
	g.settle(t, view.Revision)

	g.clock.Advance(45 * time.Second)

	status = g.do(t, call{method: http.MethodGet, path: "/api/rooms/CRYPT4/state"}, &view)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "01:15", view.Slots[0].Clock)
	assert.True(t, view.Slots[0].Active)

	status = g.do(t, call{path: "/api/rooms/CRYPT4/stop", occupant: g.seats[1]}, &view)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, view.IsRunning)
}

func TestActivateOtherSlotIsForbidden(t *testing.T) {
	g := newTestGateway(t)

	var resp errorResponse
	status := g.do(t, call{path: "/api/rooms/CRYPT4/activate", body: slotRequest{Slot: 2}, occupant: g.seats[1]}, &resp)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, turn.KindAuthorizationDenied, resp.Kind)

	status = g.do(t, call{path: "/api/rooms/CRYPT4/activate", body: slotRequest{Slot: 1}}, &resp)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestCombatRoutes(t *testing.T) {
	g := newTestGateway(t)

	var view RoomView
	require.Equal(t, http.StatusOK, g.do(t, call{path: "/api/rooms/CRYPT4/activate", body: slotRequest{Slot: 1}, occupant: g.seats[1]}, &view))
	g.settle(t, view.Revision)

	require.Equal(t, http.StatusOK, g.do(t, call{path: "/api/rooms/CRYPT4/combat/begin", body: slotRequest{Slot: 3}, occupant: g.seats[1]}, &view))
	require.NotNil(t, view.Combat)
	assert.Equal(t, 3, *view.Combat.TargetSlot)
	g.settle(t, view.Revision)

	var resp errorResponse
	status := g.do(t, call{path: "/api/rooms/CRYPT4/combat/end", occupant: g.seats[3]}, &resp)
	assert.Equal(t, http.StatusForbidden, status)

	var ended RoomView
	require.Equal(t, http.StatusOK, g.do(t, call{path: "/api/rooms/CRYPT4/combat/end?dm=" + g.token}, &ended))
	assert.Nil(t, ended.Combat)
}

func TestDMRoutesCheckToken(t *testing.T) {
	g := newTestGateway(t)
	body := labelRequest{Slot: 2, Label: "Rogue"}

	var resp errorResponse
	status := g.do(t, call{path: "/api/rooms/CRYPT4/dm/label", body: body, occupant: g.seats[1]}, &resp)
	assert.Equal(t, http.StatusForbidden, status)

	status = g.do(t, call{path: "/api/rooms/CRYPT4/dm/label", body: body, dmHeader: "not-the-token"}, &resp)
	assert.Equal(t, http.StatusForbidden, status)

	var view RoomView
	status = g.do(t, call{path: "/api/rooms/CRYPT4/dm/label?dm=" + g.token, body: body}, nil)
	require.Equal(t, http.StatusOK, status)

	require.Eventually(t, func() bool {
		g.do(t, call{method: http.MethodGet, path: "/api/rooms/CRYPT4/state"}, &view)
		return view.Slots[1].Label == "Rogue"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDMEditRoutes(t *testing.T) {
	g := newTestGateway(t)
	dm := call{dmHeader: g.token}

	with := func(path string, body interface{}) call {
		c := dm
		c.path = "/api/rooms/CRYPT4/dm/" + path
		c.body = body
		return c
	}

	var view RoomView
	require.Equal(t, http.StatusOK, g.do(t, with("color", colorRequest{Slot: 1, Color: "#ABCDEF"}), &view))
	g.settle(t, view.Revision)
	require.Equal(t, http.StatusOK, g.do(t, with("swap", swapRequest{A: 1, B: 4}), &view))
	g.settle(t, view.Revision)
	require.Equal(t, http.StatusOK, g.do(t, with("assign", assignRequest{Slot: 2, OccupantID: nil}), &view))
	g.settle(t, view.Revision)
	require.Equal(t, http.StatusOK, g.do(t, with("swap-colors", swapRequest{A: 1, B: 2}), &view))
	g.settle(t, view.Revision)

	var resp errorResponse
	assert.Equal(t, http.StatusBadRequest, g.do(t, with("color", colorRequest{Slot: 1, Color: "teal"}), &resp))
	assert.Equal(t, turn.KindValidation, resp.Kind)

	require.Eventually(t, func() bool {
		g.do(t, call{method: http.MethodGet, path: "/api/rooms/CRYPT4/state"}, &view)
		return view.Slots[0].OccupantID == nil && view.Slots[1].OccupantID == nil &&
			view.Slots[3].OccupantID != nil && *view.Slots[3].OccupantID == g.seats[1] &&
			view.Slots[1].Color == "#abcdef"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.DefaultColors[1], view.Slots[0].Color)
	assert.Equal(t, "#abcdef", view.Slots[1].Color)
}

func TestResetPhaseParsesClockStrings(t *testing.T) {
	g := newTestGateway(t)
	path := "/api/rooms/CRYPT4/dm/reset-phase"

	var view RoomView
	status := g.do(t, call{path: path, dmHeader: g.token, body: resetPhaseRequest{
		Default:   "2:30",
		Overrides: map[string]string{"3": "03:00"},
	}}, &view)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 150, view.PhaseDefaultSeconds)
	assert.Equal(t, 1, view.PhaseIndex)

	require.Eventually(t, func() bool {
		g.do(t, call{method: http.MethodGet, path: "/api/rooms/CRYPT4/state"}, &view)
		return view.Slots[2].BaseSeconds == 180 && view.Slots[0].BaseSeconds == 150
	}, 2*time.Second, 10*time.Millisecond)

	var resp errorResponse
	status = g.do(t, call{path: path, dmHeader: g.token, body: resetPhaseRequest{Default: "soon"}}, &resp)
	assert.Equal(t, http.StatusBadRequest, status)

	status = g.do(t, call{path: path, dmHeader: g.token, body: resetPhaseRequest{
		Default:   "02:00",
		Overrides: map[string]string{"third": "01:00"},
	}}, &resp)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	g := newTestGateway(t)

	req, err := http.NewRequest(http.MethodPost, g.server.URL+"/api/rooms/CRYPT4/activate", bytes.NewBufferString("{slot:"))
	require.NoError(t, err)
	req.Header.Set(HeaderOccupantID, g.seats[1].String())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFallbackPathServesSameRoutes(t *testing.T) {
	g := newTestGateway(t, memory.WithoutAtomicOps())

	var view RoomView
	status := g.do(t, call{path: "/api/rooms/CRYPT4/activate", body: slotRequest{Slot: 2}, occupant: g.seats[2]}, &view)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, view.IsRunning)

	intents := g.metrics.Snapshot()["intents"].(map[string]int64)
	assert.Equal(t, int64(1), intents["start_or_switch_slot/fallback/ok"])
}

func TestInfoReportsSessionsAndIntents(t *testing.T) {
	g := newTestGateway(t)
	require.Equal(t, http.StatusOK, g.do(t, call{method: http.MethodGet, path: "/api/rooms/CRYPT4/state"}, nil))

	var info map[string]interface{}
	require.Equal(t, http.StatusOK, g.do(t, call{method: http.MethodGet, path: "/info"}, &info))
	assert.Equal(t, "turnclock-gateway", info["service"])
	hub := info["hub"].(map[string]interface{})
	assert.EqualValues(t, 1, hub["open_rooms"])
	assert.Contains(t, info, "intents")

	var health HealthStatus
	require.Equal(t, http.StatusOK, g.do(t, call{method: http.MethodGet, path: "/health"}, &health))
	assert.True(t, health.Healthy)
	assert.Equal(t, 1, health.OpenRooms)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"denied", turn.ErrAuthorizationDenied, http.StatusForbidden},
		{"validation", turn.ErrAlreadyActive, http.StatusBadRequest},
		{"not found", store.ErrRoomNotFound, http.StatusNotFound},
		{"conflict", store.ErrConflict, http.StatusConflict},
		{"remote", turn.ErrRemoteFailure, http.StatusBadGateway},
		{"unknown", context.DeadlineExceeded, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
