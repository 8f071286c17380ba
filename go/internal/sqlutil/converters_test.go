package sqlutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullableConverters(t *testing.T) {
	n := 42
	assert.Equal(t, int32(42), ToSqlInt32(&n).Int32)
	assert.False(t, ToSqlInt32(nil).Valid)

	s := "J3"
	assert.True(t, ToSqlString(&s).Valid)
	assert.False(t, ToSqlString(nil).Valid)

	id := uuid.New()
	back := FromNullUUID(ToNullUUID(&id))
	require.NotNil(t, back)
	assert.Equal(t, id, *back)
	assert.Nil(t, FromNullUUID(ToNullUUID(nil)))
}

func TestToNullJSON(t *testing.T) {
	raw, err := ToNullJSON(map[string]int{"3": 150})
	require.NoError(t, err)
	assert.True(t, raw.Valid)
	assert.JSONEq(t, `{"3":150}`, string(raw.RawMessage))

	raw, err = ToNullJSON(nil)
	require.NoError(t, err)
	assert.False(t, raw.Valid)

	_, err = ToNullJSON(func() {})
	assert.Error(t, err)
}
