package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRoomStateMistypedFieldKeepsTheRest(t *testing.T) {
	st := DecodeRoomState([]byte(`{
		"phase_index": "3",
		"is_running": true,
		"active_slot": 2,
		"started_at": "2026-02-01T19:30:05Z",
		"phase_default_seconds": 90,
		"combat": {"active": false, "initiator_slot": null}
	}`))

	assert.Equal(t, 0, st.PhaseIndex)
	assert.True(t, st.IsRunning)
	require.NotNil(t, st.ActiveSlot)
	assert.Equal(t, 2, *st.ActiveSlot)
	require.NotNil(t, st.StartedAt)
	assert.True(t, time.Date(2026, 2, 1, 19, 30, 5, 0, time.UTC).Equal(*st.StartedAt))
	assert.Equal(t, 90, st.PhaseDefaultSeconds)
	assert.Nil(t, st.Combat.InitiatorSlot)
}

func TestDecodeRoomStateUnparseableTimestamp(t *testing.T) {
	st := DecodeRoomState([]byte(`{"is_running":true,"active_slot":1,"started_at":"yesterday",
		"combat":{"active":true,"started_at":42,"initiator_slot":1,"target_slot":"2"}}`))

	assert.True(t, st.IsRunning)
	assert.Nil(t, st.StartedAt)
	assert.True(t, st.Combat.Active)
	assert.Nil(t, st.Combat.StartedAt)
	require.NotNil(t, st.Combat.InitiatorSlot)
	assert.Equal(t, 1, *st.Combat.InitiatorSlot)
	assert.Nil(t, st.Combat.TargetSlot)
}

func TestDecodeRoomStatePostgresTimestamps(t *testing.T) {
	want := time.Date(2026, 3, 14, 20, 0, 1, 250000000, time.UTC)
	for _, raw := range []string{
		"2026-03-14T20:00:01.25+00:00",
		"2026-03-14T20:00:01.25+00",
		"2026-03-14 20:00:01.25+00",
	} {
		st := DecodeRoomState([]byte(`{"started_at":"` + raw + `"}`))
		require.NotNil(t, st.StartedAt, raw)
		assert.True(t, want.Equal(*st.StartedAt), raw)
	}
}

func TestDecodeRoomStateFallsBackToDefaults(t *testing.T) {
	for _, doc := range []string{``, `null`, `not json`, `[1,2]`, `{}`} {
		assert.Equal(t, DefaultRoomState(), DecodeRoomState([]byte(doc)), "%q", doc)
	}

	st := DecodeRoomState([]byte(`{"phase_default_seconds":-5,"active_slot":null,"is_running":0}`))
	assert.Equal(t, DefaultPhaseSeconds, st.PhaseDefaultSeconds)
	assert.Nil(t, st.ActiveSlot)
	assert.False(t, st.IsRunning)
}

func TestRoomStateUnmarshalIsLenient(t *testing.T) {
	var room Room
	require.NoError(t, json.Unmarshal([]byte(`{"code":"CRYPT4","revision":3,"state":{"phase_index":"x","is_running":true}}`), &room))
	assert.Equal(t, "CRYPT4", room.Code)
	assert.True(t, room.State.IsRunning)
	assert.Equal(t, DefaultPhaseSeconds, room.State.PhaseDefaultSeconds)
}

func TestCloneIsDeep(t *testing.T) {
	st := RoomState{ActiveSlot: IntPtr(1), StartedAt: TimePtr(time.Unix(0, 0))}
	c := st.Clone()
	*c.ActiveSlot = 4
	assert.Equal(t, 1, *st.ActiveSlot)
}
