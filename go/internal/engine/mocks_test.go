package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/mcdev12/turnclock/go/internal/mirror"
	"github.com/mcdev12/turnclock/go/internal/models"
	"github.com/mcdev12/turnclock/go/internal/turn"
)

type MockAtomicOps struct {
	mock.Mock
}

func (m *MockAtomicOps) room(args mock.Arguments) (models.Room, error) {
	room, _ := args.Get(0).(models.Room)
	return room, args.Error(1)
}

func (m *MockAtomicOps) StartOrSwitchSlot(ctx context.Context, code string, actor turn.Actor, target int) (models.Room, error) {
	return m.room(m.Called(ctx, code, actor, target))
}

func (m *MockAtomicOps) StopRunning(ctx context.Context, code string, actor turn.Actor) (models.Room, error) {
	return m.room(m.Called(ctx, code, actor))
}

func (m *MockAtomicOps) BeginCombat(ctx context.Context, code string, actor turn.Actor, target int) (models.Room, error) {
	return m.room(m.Called(ctx, code, actor, target))
}

func (m *MockAtomicOps) EndCombat(ctx context.Context, code string, actor turn.Actor) (models.Room, error) {
	return m.room(m.Called(ctx, code, actor))
}

func (m *MockAtomicOps) DMResetPhase(ctx context.Context, code, dmToken string, defaultSeconds int, overrides map[int]int) (models.Room, error) {
	return m.room(m.Called(ctx, code, dmToken, defaultSeconds, overrides))
}

func (m *MockAtomicOps) DMAssignSlot(ctx context.Context, code, dmToken string, slot int, occupant *uuid.UUID) (models.Room, error) {
	return m.room(m.Called(ctx, code, dmToken, slot, occupant))
}

func (m *MockAtomicOps) DMSetSlotLabel(ctx context.Context, code, dmToken string, slot int, label string) (models.Room, error) {
	return m.room(m.Called(ctx, code, dmToken, slot, label))
}

func (m *MockAtomicOps) DMSetSlotColor(ctx context.Context, code, dmToken string, slot int, color string) (models.Room, error) {
	return m.room(m.Called(ctx, code, dmToken, slot, color))
}

func (m *MockAtomicOps) DMSwapSlots(ctx context.Context, code, dmToken string, a, b int) (models.Room, error) {
	return m.room(m.Called(ctx, code, dmToken, a, b))
}

func (m *MockAtomicOps) DMSwapColors(ctx context.Context, code, dmToken string, a, b int) (models.Room, error) {
	return m.room(m.Called(ctx, code, dmToken, a, b))
}

// recordingSink applies signals synchronously and remembers them.
type recordingSink struct {
	rec     *mirror.Reconciler
	signals []mirror.Signal
}

func (s *recordingSink) Submit(sig mirror.Signal) {
	s.signals = append(s.signals, sig)
	if s.rec != nil {
		_ = s.rec.Reconcile(context.Background(), sig)
	}
}

func (s *recordingSink) reloads() int {
	n := 0
	for _, sig := range s.signals {
		if sig.Reload || sig.Room == nil {
			n++
		}
	}
	return n
}
