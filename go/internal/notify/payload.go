package notify

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcdev12/turnclock/go/internal/store"
)

// ParsePayload decodes a trigger payload. Room notices carry the full record;
// slot notices only name the room and slot.
func ParsePayload(extra string) (store.Change, error) {
	var change store.Change
	if err := json.Unmarshal([]byte(extra), &change); err != nil {
		return store.Change{}, fmt.Errorf("decode payload: %w", err)
	}
	switch change.Table {
	case store.TableRooms, store.TableSlots, store.TableAny:
	default:
		return store.Change{}, fmt.Errorf("unknown table %q", change.Table)
	}
	if change.Table != store.TableAny && change.RoomID == uuid.Nil {
		return store.Change{}, fmt.Errorf("payload for %s has no room_id", change.Table)
	}
	if change.Room != nil && change.Room.ID != change.RoomID {
		return store.Change{}, fmt.Errorf("room record %s does not match room_id %s", change.Room.ID, change.RoomID)
	}
	return change, nil
}
