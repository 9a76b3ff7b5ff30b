package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"tswatcher/internal/model"
)

// Snapshot is the persisted record shape: servers by alias, and
// subscriptions by alias then recipient chat id.
type Snapshot struct {
	Servers       map[string]model.ServerConfig            `json:"servers"`
	Subscriptions map[string]map[string]model.Subscription `json:"subscriptions"`
}

// FileStore persists a Snapshot as one JSON document, written to a
// temp file and renamed into place.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the snapshot. A missing file yields an empty snapshot.
func (s *FileStore) Load() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Servers:       map[string]model.ServerConfig{},
		Subscriptions: map[string]map[string]model.Subscription{},
	}

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return snap, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if snap.Servers == nil {
		snap.Servers = map[string]model.ServerConfig{}
	}
	if snap.Subscriptions == nil {
		snap.Subscriptions = map[string]map[string]model.Subscription{}
	}
	return snap, nil
}

func (s *FileStore) Save(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure data dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
