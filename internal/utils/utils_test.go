package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "0m"},
		{-5, "0m"},
		{59, "0m"},
		{60, "1m"},
		{3600, "1h"},
		{3660, "1h 1m"},
		{86400, "1d"},
		{93784, "1d 2h 3m"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.seconds), "seconds=%d", tt.seconds)
	}
}

func TestParseToggle(t *testing.T) {
	got, err := ParseToggle("on", false)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = ParseToggle("OFF", true)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = ParseToggle("", true)
	require.NoError(t, err)
	assert.False(t, got, "empty argument flips")

	got, err = ParseToggle("", false)
	require.NoError(t, err)
	assert.True(t, got)

	_, err = ParseToggle("maybe", false)
	require.Error(t, err)
}
