package postgres

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/mcdev12/turnclock/go/internal/store"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", sql.ErrNoRows, store.ErrRoomNotFound},
		{"missing function", &pq.Error{Code: "42883", Message: "function dm_swap_slots does not exist"}, store.ErrOperationMissing},
		{"denied", &pq.Error{Code: "42501", Message: "dm token rejected"}, store.ErrDenied},
		{"invalid", &pq.Error{Code: "22023", Message: "unknown slot 9"}, store.ErrInvalid},
		{"room lock", &pq.Error{Code: "P0002", Message: "room ZZ not found"}, store.ErrRoomNotFound},
		{"duplicate", &pq.Error{Code: "23505"}, store.ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tc.in), tc.want)
		})
	}

	other := errors.New("connection reset")
	assert.Equal(t, other, mapError(other))
	assert.NoError(t, mapError(nil))
}
