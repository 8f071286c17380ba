package relay

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mcdev12/turnclock/go/internal/store"
)

// allRooms is the subject token for changes that concern every room.
const allRooms = "all"

// Subject is the per-room subject a change is published on.
func Subject(prefix string, roomID uuid.UUID) string {
	if roomID == uuid.Nil {
		return prefix + "." + allRooms
	}
	return fmt.Sprintf("%s.%s", prefix, roomID)
}

// RoomFromSubject recovers the room id from a subject built by Subject.
func RoomFromSubject(prefix, subject string) (uuid.UUID, error) {
	rest, ok := strings.CutPrefix(subject, prefix+".")
	if !ok {
		return uuid.Nil, fmt.Errorf("subject %q is outside %s", subject, prefix)
	}
	if rest == allRooms {
		return uuid.Nil, nil
	}
	return uuid.Parse(rest)
}

// MsgID dedupes room records by revision. Slot and wildcard notices carry no
// revision and are never deduped; a duplicate reload is harmless.
func MsgID(change store.Change) string {
	if change.Room == nil {
		return ""
	}
	return change.RoomID.String() + ":" + strconv.FormatInt(change.Room.Revision, 10)
}

func encode(change store.Change) ([]byte, error) {
	return json.Marshal(change)
}

func decode(data []byte) (store.Change, error) {
	var change store.Change
	if err := json.Unmarshal(data, &change); err != nil {
		return store.Change{}, fmt.Errorf("unmarshal change: %w", err)
	}
	return change, nil
}
