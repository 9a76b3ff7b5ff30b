package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tswatcher/internal/model"
)

func TestFileStoreMissingFile(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	snap, err := fs.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Servers)
	assert.Empty(t, snap.Subscriptions)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "tswatcher.json")
	fs := NewFileStore(path)

	snap := Snapshot{
		Servers: map[string]model.ServerConfig{
			"myts": {
				Alias:           "myts",
				Host:            "ts.example.com",
				QueryPort:       10011,
				QueryUser:       "serveradmin",
				QueryPassword:   "secret",
				VirtualServerID: 1,
				NotifyJoin:      true,
				NotifyLeave:     true,
				StatusInterval:  60,
			},
		},
		Subscriptions: map[string]map[string]model.Subscription{
			"myts": {
				"12345": {NotifyJoin: true, NotifyStatus: true},
			},
		},
	}
	require.NoError(t, fs.Save(snap))

	got, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	// tmp file must not be left behind
	assert.NoFileExists(t, path+".tmp")
}
