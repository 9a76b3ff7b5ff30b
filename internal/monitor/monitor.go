// Package monitor runs one poll loop per monitored server: it diffs
// client snapshots, debounces transient flaps, and pushes confirmed
// events plus periodic status over the bridge.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tswatcher/internal/bridge"
	"tswatcher/internal/model"
	"tswatcher/internal/query"
)

// State of a monitor, visible through the list/status commands.
type State int32

const (
	StateConnecting State = iota
	StatePolling
	StateReconnecting
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StatePolling:
		return "running"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options tune one monitor. Zero values fall back to production
// defaults; tests shrink the durations.
type Options struct {
	Dial           query.DialFunc
	PollInterval   time.Duration // default 2s
	StatusInterval time.Duration // default from server config
	DebounceWindow time.Duration // default 5s
	ReconnectDelay time.Duration // default 30s
	MaxAttempts    int           // default 5
	Logger         *zap.Logger
}

const (
	defaultPollInterval   = 2 * time.Second
	defaultReconnectDelay = 30 * time.Second
	defaultMaxAttempts    = 5
)

// Monitor is the poll loop for one server alias. It owns its query
// session and goroutine; Stop only signals cancellation and teardown
// is observed through Done.
type Monitor struct {
	cfg    model.ServerConfig
	opts   Options
	events *bridge.Bridge
	logger *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	state    atomic.Int32
	stopOnce sync.Once
}

func New(cfg model.ServerConfig, events *bridge.Bridge, opts Options) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.StatusInterval <= 0 {
		minutes := cfg.StatusInterval
		if minutes <= 0 {
			minutes = model.DefaultStatusInterval
		}
		opts.StatusInterval = time.Duration(minutes) * time.Minute
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	// the context exists before the monitor is ever shared, so Stop
	// is safe from any goroutine at any point relative to Start
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		cfg:    cfg,
		opts:   opts,
		events: events,
		logger: logger.Named("monitor").With(zap.String("server", cfg.Alias)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the poll loop goroutine.
func (m *Monitor) Start() {
	go m.run(m.ctx)
}

// Stop signals cancellation and returns immediately. Idempotent, and
// valid even before Start.
func (m *Monitor) Stop() {
	m.stopOnce.Do(m.cancel)
}

// Done is closed once the loop has fully torn down.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Running reports whether the loop is up (connected or trying to get
// back to connected).
func (m *Monitor) Running() bool {
	switch m.State() {
	case StateConnecting, StatePolling, StateReconnecting:
		return true
	}
	return false
}

func (m *Monitor) run(ctx context.Context) {
	defer func() {
		if m.State() != StateFailed {
			m.state.Store(int32(StateStopped))
		}
		close(m.done)
	}()

	sess, ok := m.connect(ctx)
	if !ok {
		return
	}
	// sess is nil again if a reconnect attempt below gives up
	defer func() {
		if sess != nil {
			sess.Close()
		}
	}()

	tracker := NewTracker(m.opts.DebounceWindow)
	if clients, err := sess.ClientList(); err == nil {
		tracker.Observe(clients, time.Now())
	}
	m.state.Store(int32(StatePolling))
	m.logger.Info("monitoring started", zap.Int("online", tracker.Online()))

	poll := time.NewTicker(m.opts.PollInterval)
	defer poll.Stop()
	status := time.NewTicker(m.opts.StatusInterval)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-poll.C:
			clients, err := sess.ClientList()
			if err != nil {
				m.logger.Warn("poll failed, reconnecting", zap.Error(err))
				sess.Close()
				tracker.Reset()

				m.state.Store(int32(StateReconnecting))
				sess, ok = m.connect(ctx)
				if !ok {
					return
				}
				m.state.Store(int32(StatePolling))
				continue
			}

			now := time.Now()
			for _, change := range tracker.Observe(clients, now) {
				kind := model.EventClientJoined
				if change.Left {
					kind = model.EventClientLeft
				}
				c := change.Client
				m.events.Publish(model.Event{
					ID:     uuid.NewString(),
					Kind:   kind,
					Alias:  m.cfg.Alias,
					Client: &c,
					At:     now,
				})
				m.logger.Info("membership change",
					zap.String("kind", string(kind)),
					zap.String("client", c.Nickname))
			}

		case <-status.C:
			st, err := FetchStatus(sess)
			if err != nil {
				// skipped, retried at the next cadence
				m.logger.Warn("status tick skipped", zap.Error(err))
				continue
			}
			m.events.Publish(model.Event{
				ID:     uuid.NewString(),
				Kind:   model.EventStatusTick,
				Alias:  m.cfg.Alias,
				Status: &st,
				At:     time.Now(),
			})
		}
	}
}

// connect dials with the bounded fixed-backoff policy. A false return
// means either cancellation or exhaustion; exhaustion marks the alias
// failed.
func (m *Monitor) connect(ctx context.Context) (query.Session, bool) {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return nil, false
		}

		sess, err := m.opts.Dial(m.cfg)
		if err == nil {
			return sess, true
		}

		m.logger.Warn("connect failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.opts.MaxAttempts),
			zap.Error(err))

		if attempt >= m.opts.MaxAttempts {
			m.state.Store(int32(StateFailed))
			m.logger.Error("giving up after repeated connect failures")
			return nil, false
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(m.opts.ReconnectDelay):
		}
	}
}

// FetchStatus assembles a status report from a live session. The
// online count is always the filtered clientlist length, never the
// server-reported figure.
func FetchStatus(sess query.Session) (model.ServerStatus, error) {
	info, err := sess.ServerInfo()
	if err != nil {
		return model.ServerStatus{}, err
	}
	clients, err := sess.ClientList()
	if err != nil {
		return model.ServerStatus{}, err
	}
	online := OnlineClients(clients)
	return model.ServerStatus{
		Name:           info.Name,
		ClientsOnline:  len(online),
		MaxClients:     info.MaxClients,
		ChannelsOnline: info.ChannelsOnline,
		UptimeSeconds:  info.UptimeSeconds,
		Clients:        online,
	}, nil
}
