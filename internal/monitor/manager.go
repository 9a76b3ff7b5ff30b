package monitor

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"tswatcher/internal/bridge"
	"tswatcher/internal/store"
)

// Manager owns the monitor per alias. It registers itself as the
// store's change observer so that adding, updating or removing a
// server stops and recreates the matching poll loop.
type Manager struct {
	store  *store.Store
	events *bridge.Bridge
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	monitors map[string]*Monitor
}

func NewManager(st *store.Store, events *bridge.Bridge, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Manager{
		store:    st,
		events:   events,
		opts:     opts,
		logger:   logger.Named("manager"),
		monitors: map[string]*Monitor{},
	}
	st.OnChange(g.onConfigChange)
	return g
}

// onConfigChange restarts the alias's loop after any config mutation,
// or just stops it when the alias was removed.
func (g *Manager) onConfigChange(alias string) {
	g.Stop(alias)
	if _, ok := g.store.Server(alias); ok {
		if err := g.Start(alias); err != nil {
			g.logger.Warn("restart after config change failed",
				zap.String("server", alias), zap.Error(err))
		}
	}
}

// Start creates and launches a monitor for the alias, replacing any
// existing one.
func (g *Manager) Start(alias string) error {
	cfg, ok := g.store.Server(alias)
	if !ok {
		return store.ErrUnknownAlias
	}

	opts := g.opts
	opts.StatusInterval = time.Duration(cfg.StatusInterval) * time.Minute

	g.mu.Lock()
	if old, exists := g.monitors[alias]; exists {
		old.Stop()
	}
	mon := New(cfg, g.events, opts)
	g.monitors[alias] = mon
	g.mu.Unlock()

	mon.Start()
	g.logger.Info("monitor started", zap.String("server", alias))
	return nil
}

// Stop signals the alias's monitor and forgets it. Safe when no
// monitor exists; never blocks on teardown.
func (g *Manager) Stop(alias string) {
	g.mu.Lock()
	mon, ok := g.monitors[alias]
	if ok {
		delete(g.monitors, alias)
	}
	g.mu.Unlock()

	if ok {
		mon.Stop()
		g.logger.Info("monitor stopped", zap.String("server", alias))
	}
}

func (g *Manager) Restart(alias string) error {
	g.Stop(alias)
	return g.Start(alias)
}

// StartAll launches monitors for every stored server; returns how many
// were started.
func (g *Manager) StartAll() int {
	started := 0
	for _, cfg := range g.store.Servers() {
		if err := g.Start(cfg.Alias); err == nil {
			started++
		}
	}
	return started
}

// RestartAll stops and relaunches every stored alias.
func (g *Manager) RestartAll() int {
	restarted := 0
	for _, cfg := range g.store.Servers() {
		if err := g.Restart(cfg.Alias); err == nil {
			restarted++
		}
	}
	return restarted
}

func (g *Manager) StopAll() {
	g.mu.Lock()
	monitors := g.monitors
	g.monitors = map[string]*Monitor{}
	g.mu.Unlock()

	for _, mon := range monitors {
		mon.Stop()
	}
}

// State reports the alias's monitor state; false when no monitor
// exists for the alias.
func (g *Manager) State(alias string) (State, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	mon, ok := g.monitors[alias]
	if !ok {
		return StateStopped, false
	}
	return mon.State(), true
}

// RunningCount counts monitors that are up or reconnecting.
func (g *Manager) RunningCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, mon := range g.monitors {
		if mon.Running() {
			n++
		}
	}
	return n
}
