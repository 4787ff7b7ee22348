package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMinorUnits(t *testing.T) {
	cases := map[string]int64{"5.00": 500, "20": 2000, "2.5": 250, "0.07": 7}
	for in, want := range cases {
		got, err := ParseMinorUnits(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "1.234", "-1.00", "abc"} {
		_, err := ParseMinorUnits(bad)
		assert.ErrorIs(t, err, ErrInvalidPayload, bad)
	}
}

func TestParseCredits(t *testing.T) {
	n, ok := ParseCredits(" 15 ")
	assert.True(t, ok)
	assert.Equal(t, int64(15), n)
	_, ok = ParseCredits("0")
	assert.False(t, ok)
	_, ok = ParseCredits("x")
	assert.False(t, ok)
}
