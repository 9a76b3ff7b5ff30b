// Package store holds the shared server and subscription state. All
// access goes through one coarse mutex; critical sections never do I/O.
// Persistence is asynchronous and best-effort: the in-memory state is
// authoritative for the running process.
package store

import (
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"tswatcher/internal/model"
	"tswatcher/internal/storage"
)

var (
	ErrDuplicateAlias = errors.New("server alias already exists")
	ErrUnknownAlias   = errors.New("unknown server alias")
	ErrNotSubscribed  = errors.New("not subscribed")
)

// Persister saves a full snapshot of the store's state.
type Persister interface {
	Save(storage.Snapshot) error
}

// Store is the single source of truth for server configs and
// subscriptions. Mutations trigger a coalescing background save and
// notify the registered change observer so the alias's poll loop can
// be stopped or recreated; the store does not own loop lifecycle.
type Store struct {
	mu      sync.Mutex
	servers map[string]model.ServerConfig
	subs    map[string]map[string]model.Subscription

	persist  Persister
	logger   *zap.Logger
	onChange func(alias string)

	saveReq chan struct{}
	done    chan struct{}
	saved   sync.WaitGroup
}

func New(persist Persister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		servers: map[string]model.ServerConfig{},
		subs:    map[string]map[string]model.Subscription{},
		persist: persist,
		logger:  logger.Named("store"),
		saveReq: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.saved.Add(1)
	go s.saver()
	return s
}

// Restore replaces the store contents from a loaded snapshot. Intended
// for process start, before any concurrent access.
func (s *Store) Restore(snap storage.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers = map[string]model.ServerConfig{}
	for alias, cfg := range snap.Servers {
		s.servers[alias] = cfg
	}
	s.subs = map[string]map[string]model.Subscription{}
	for alias, targets := range snap.Subscriptions {
		m := map[string]model.Subscription{}
		for target, sub := range targets {
			if !sub.Empty() {
				m[target] = sub
			}
		}
		s.subs[alias] = m
	}
}

// OnChange registers the observer invoked (outside the lock) whenever a
// server config is added, updated or removed.
func (s *Store) OnChange(fn func(alias string)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Close stops the background saver and performs one final synchronous
// save so the latest state reaches disk on shutdown.
func (s *Store) Close() {
	close(s.done)
	s.saved.Wait()
	if err := s.persist.Save(s.Snapshot()); err != nil {
		s.logger.Warn("final save failed", zap.Error(err))
	}
}

// ---------- servers ----------

func (s *Store) Server(alias string) (model.ServerConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.servers[alias]
	return cfg, ok
}

// Servers returns all configs sorted by alias.
func (s *Store) Servers() []model.ServerConfig {
	s.mu.Lock()
	out := make([]model.ServerConfig, 0, len(s.servers))
	for _, cfg := range s.servers {
		out = append(out, cfg)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

func (s *Store) AddServer(cfg model.ServerConfig) error {
	s.mu.Lock()
	if _, ok := s.servers[cfg.Alias]; ok {
		s.mu.Unlock()
		return ErrDuplicateAlias
	}
	s.servers[cfg.Alias] = cfg
	if s.subs[cfg.Alias] == nil {
		s.subs[cfg.Alias] = map[string]model.Subscription{}
	}
	s.mu.Unlock()

	s.requestSave()
	s.notifyChange(cfg.Alias)
	return nil
}

// UpdateServer applies fn to the alias's config inside the critical
// section. The alias itself cannot be changed.
func (s *Store) UpdateServer(alias string, fn func(*model.ServerConfig)) error {
	s.mu.Lock()
	cfg, ok := s.servers[alias]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownAlias
	}
	fn(&cfg)
	cfg.Alias = alias
	s.servers[alias] = cfg
	s.mu.Unlock()

	s.requestSave()
	s.notifyChange(alias)
	return nil
}

// RemoveServer deletes the config and every subscription for the alias.
func (s *Store) RemoveServer(alias string) error {
	s.mu.Lock()
	if _, ok := s.servers[alias]; !ok {
		s.mu.Unlock()
		return ErrUnknownAlias
	}
	delete(s.servers, alias)
	delete(s.subs, alias)
	s.mu.Unlock()

	s.requestSave()
	s.notifyChange(alias)
	return nil
}

// ---------- subscriptions ----------

func (s *Store) Subscription(alias, target string) (model.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[alias][target]
	return sub, ok
}

// SetSubscription stores the flags for (alias, target). A subscription
// left with no interest is pruned.
func (s *Store) SetSubscription(alias, target string, sub model.Subscription) error {
	s.mu.Lock()
	if _, ok := s.servers[alias]; !ok {
		s.mu.Unlock()
		return ErrUnknownAlias
	}
	if s.subs[alias] == nil {
		s.subs[alias] = map[string]model.Subscription{}
	}
	if sub.Empty() {
		delete(s.subs[alias], target)
	} else {
		s.subs[alias][target] = sub
	}
	s.mu.Unlock()

	s.requestSave()
	return nil
}

func (s *Store) RemoveSubscription(alias, target string) error {
	s.mu.Lock()
	if _, ok := s.subs[alias][target]; !ok {
		s.mu.Unlock()
		return ErrNotSubscribed
	}
	delete(s.subs[alias], target)
	s.mu.Unlock()

	s.requestSave()
	return nil
}

// SubscribersFor returns the recipient chat ids whose flag for the
// given event kind is set, sorted for stable dispatch order.
func (s *Store) SubscribersFor(alias string, kind model.EventKind) []string {
	s.mu.Lock()
	var out []string
	for target, sub := range s.subs[alias] {
		if subscribed(sub, kind) {
			out = append(out, target)
		}
	}
	s.mu.Unlock()

	sort.Strings(out)
	return out
}

// SubscriptionsOf returns every (alias → subscription) the target holds.
func (s *Store) SubscriptionsOf(target string) map[string]model.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]model.Subscription{}
	for alias, targets := range s.subs {
		if sub, ok := targets[target]; ok {
			out[alias] = sub
		}
	}
	return out
}

func (s *Store) SubscriberCount(alias string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[alias])
}

func (s *Store) TotalSubscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, targets := range s.subs {
		n += len(targets)
	}
	return n
}

// Snapshot deep-copies the current state for persistence.
func (s *Store) Snapshot() storage.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := storage.Snapshot{
		Servers:       make(map[string]model.ServerConfig, len(s.servers)),
		Subscriptions: make(map[string]map[string]model.Subscription, len(s.subs)),
	}
	for alias, cfg := range s.servers {
		snap.Servers[alias] = cfg
	}
	for alias, targets := range s.subs {
		m := make(map[string]model.Subscription, len(targets))
		for target, sub := range targets {
			m[target] = sub
		}
		snap.Subscriptions[alias] = m
	}
	return snap
}

// ---------- internals ----------

func subscribed(sub model.Subscription, kind model.EventKind) bool {
	switch kind {
	case model.EventClientJoined:
		return sub.NotifyJoin
	case model.EventClientLeft:
		return sub.NotifyLeave
	case model.EventStatusTick:
		return sub.NotifyStatus
	}
	return false
}

// requestSave schedules a background save. Requests coalesce: one
// pending request covers any number of mutations.
func (s *Store) requestSave() {
	select {
	case s.saveReq <- struct{}{}:
	default:
	}
}

func (s *Store) notifyChange(alias string) {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(alias)
	}
}

func (s *Store) saver() {
	defer s.saved.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.saveReq:
			if err := s.persist.Save(s.Snapshot()); err != nil {
				s.logger.Warn("save failed, in-memory state stays authoritative", zap.Error(err))
			}
		}
	}
}
