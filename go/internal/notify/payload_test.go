package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/turnclock/go/internal/store"
)

const roomID = "0f8fad5b-d9cb-469f-a165-70867728950e"

func TestParseRoomPayload(t *testing.T) {
	payload := `{"table":"rooms","room_id":"` + roomID + `","room":{"id":"` + roomID + `","code":"ABC123","revision":7,
		"state":{"phase_index":2,"is_running":true,"active_slot":3,"started_at":"2026-02-01T19:30:05.123456+00:00",
		"combat":{"active":false,"started_at":null,"initiator_slot":null,"target_slot":null}}}}`

	change, err := ParsePayload(payload)
	require.NoError(t, err)
	assert.Equal(t, store.TableRooms, change.Table)
	require.NotNil(t, change.Room)
	assert.Equal(t, int64(7), change.Room.Revision)
	assert.Equal(t, 2, change.Room.State.PhaseIndex)
	assert.Equal(t, 3, *change.Room.State.ActiveSlot)
	require.NotNil(t, change.Room.State.StartedAt)
	assert.Equal(t, 5, change.Room.State.StartedAt.Second())
	assert.Equal(t, 120, change.Room.State.PhaseDefaultSeconds, "missing default is filled in")
}

func TestParseSlotPayload(t *testing.T) {
	change, err := ParsePayload(`{"table":"player_slots","room_id":"` + roomID + `","slot":4}`)
	require.NoError(t, err)
	assert.Equal(t, store.TableSlots, change.Table)
	assert.Nil(t, change.Room)
	require.NotNil(t, change.Slot)
	assert.Equal(t, 4, *change.Slot)
}

func TestParseRejectsBadPayloads(t *testing.T) {
	for name, payload := range map[string]string{
		"not json":      `room changed`,
		"unknown table": `{"table":"users","room_id":"` + roomID + `"}`,
		"no room id":    `{"table":"rooms"}`,
		"mismatch":      `{"table":"rooms","room_id":"` + roomID + `","room":{"id":"6ba7b810-9dad-11d1-80b4-00c04fd430c8"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePayload(payload)
			assert.Error(t, err)
		})
	}
}
