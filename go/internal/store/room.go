package store

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mcdev12/turnclock/go/internal/models"
	"github.com/mcdev12/turnclock/go/internal/turn"
)

// codeAlphabet leaves out characters that are easy to misread on a shared screen.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CreateRoomParams describes a new room. Zero values pick defaults.
type CreateRoomParams struct {
	Code                string
	SlotCount           int
	PhaseDefaultSeconds int
}

// Normalize fills defaults and validates the parameters.
func (p CreateRoomParams) Normalize() (CreateRoomParams, error) {
	if p.Code == "" {
		code, err := NewRoomCode(6)
		if err != nil {
			return p, err
		}
		p.Code = code
	}
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	if p.SlotCount == 0 {
		p.SlotCount = models.MinSlots
	}
	if p.SlotCount < models.MinSlots || p.SlotCount > models.MaxSlots {
		return p, turn.Invalid("slot_count", "must be between %d and %d", models.MinSlots, models.MaxSlots)
	}
	if p.PhaseDefaultSeconds == 0 {
		p.PhaseDefaultSeconds = models.DefaultPhaseSeconds
	}
	if p.PhaseDefaultSeconds < 0 {
		return p, turn.Invalid("phase_default_seconds", "must not be negative")
	}
	return p, nil
}

// DefaultSlots builds the initial slots of a room.
func DefaultSlots(n, baseSeconds int) []models.SlotState {
	slots := make([]models.SlotState, n)
	for i := range slots {
		slots[i] = models.SlotState{
			Slot:        i + 1,
			BaseSeconds: baseSeconds,
			Color:       models.DefaultColors[i%len(models.DefaultColors)],
			Label:       turn.DefaultLabel(i + 1),
		}
	}
	return slots
}

// NewRoomCode returns a random public room code.
func NewRoomCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate room code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// NewDMToken returns a random DM credential. Only its hash is stored.
func NewDMToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate dm token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashDMToken is the stored form of a DM token. The SQL side computes the same
// value with encode(sha256(convert_to(token, 'UTF8')), 'hex').
func HashDMToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenMatches compares a presented token against a stored hash in constant time.
func TokenMatches(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashDMToken(token)), []byte(hash)) == 1
}
