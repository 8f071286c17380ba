package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	valid := map[string]int{
		"45":      45,
		" 90 ":    90,
		"2:00":    120,
		"02:30":   150,
		"1:02:03": 3723,
		"0:59":    59,

		"2147483647":   MaxClockSeconds,
		"35791394:07":  MaxClockSeconds,
		"596523:14:07": MaxClockSeconds,
	}
	for in, want := range valid {
		got, err := ParseClock(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{
		"", "  ", "abc", "1:60", "1:75:00", "-5", "1:2:3:4", "1.5",
		"2147483648",
		"596523:14:08",
		"1193046:28:16",
		"153722867280912931:00",
		"99999999999999999999",
	} {
		_, err := ParseClock(in)
		assert.ErrorIs(t, err, ErrValidation, "%q", in)
	}
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00", FormatClock(0))
	assert.Equal(t, "00:00", FormatClock(-12))
	assert.Equal(t, "01:30", FormatClock(90))
	assert.Equal(t, "125:00", FormatClock(7500))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNone, KindOf(nil))
	assert.Equal(t, KindValidation, KindOf(ErrAlreadyActive))
	assert.Equal(t, KindAuthorizationDenied, KindOf(ErrAuthorizationDenied))
	assert.Equal(t, KindRemoteFailure, KindOf(assert.AnError))
}
