package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tswatcher/internal/model"
)

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		in      string
		host    string
		port    int
		wantErr bool
	}{
		{in: "ts.example.com", host: "ts.example.com", port: model.DefaultQueryPort},
		{in: "ts.example.com:10022", host: "ts.example.com", port: 10022},
		{in: "10.0.0.5:10011", host: "10.0.0.5", port: 10011},
		{in: "::1", host: "::1", port: model.DefaultQueryPort},
		{in: "[::1]:10022", host: "::1", port: 10022},
		{in: "2001:db8::7", host: "2001:db8::7", port: model.DefaultQueryPort},
		{in: "ts.example.com:notaport", wantErr: true},
		{in: "ts.example.com:0", wantErr: true},
		{in: ":10011", wantErr: true},
	}
	for _, tt := range tests {
		host, port, err := splitHostPort(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.host, host)
		assert.Equal(t, tt.port, port)
	}
}

func TestDescribeSub(t *testing.T) {
	assert.Equal(t, "nothing", describeSub(model.Subscription{}))
	assert.Equal(t, "join", describeSub(model.Subscription{NotifyJoin: true}))
	assert.Equal(t, "join+leave+status", describeSub(model.Subscription{
		NotifyJoin: true, NotifyLeave: true, NotifyStatus: true,
	}))
	assert.Equal(t, "leave+status", describeSub(model.Subscription{
		NotifyLeave: true, NotifyStatus: true,
	}))
}

func TestParseIntervalMinutes(t *testing.T) {
	got, err := parseIntervalMinutes("60")
	require.NoError(t, err)
	assert.Equal(t, 60, got)

	got, err = parseIntervalMinutes("10")
	require.NoError(t, err)
	assert.Equal(t, 10, got)

	// below the floor is an error, never rounded up
	_, err = parseIntervalMinutes("5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 10")

	_, err = parseIntervalMinutes("0")
	require.Error(t, err)

	_, err = parseIntervalMinutes("abc")
	require.Error(t, err)
}

func TestOptionalKind(t *testing.T) {
	assert.Equal(t, "", optionalKind([]string{"myts"}))
	assert.Equal(t, "join", optionalKind([]string{"myts", "JOIN"}))
}
