package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tswatcher/internal/bridge"
	"tswatcher/internal/model"
	"tswatcher/internal/query"
)

type fakeSession struct {
	mu      sync.Mutex
	clients []model.Client
	info    model.ServerSummary
	listErr error
	closed  bool
}

func (f *fakeSession) ClientList() ([]model.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Client, len(f.clients))
	copy(out, f.clients)
	return out, nil
}

func (f *fakeSession) ServerInfo() (model.ServerSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info, nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) setClients(clients ...model.Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients = clients
}

func (f *fakeSession) failList(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

type fakeDialer struct {
	mu         sync.Mutex
	attempts   int
	failsFirst int
	failsAfter int // when > 0, every dial past the Nth is refused
	sessions   []*fakeSession
	template   func() *fakeSession
}

func (d *fakeDialer) dial(model.ServerConfig) (query.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.attempts <= d.failsFirst {
		return nil, errors.New("connection refused")
	}
	if d.failsAfter > 0 && d.attempts > d.failsAfter {
		return nil, errors.New("connection refused")
	}
	sess := d.template()
	d.sessions = append(d.sessions, sess)
	return sess, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func fastOptions(dial query.DialFunc) Options {
	return Options{
		Dial:           dial,
		PollInterval:   5 * time.Millisecond,
		StatusInterval: time.Hour,
		DebounceWindow: 20 * time.Millisecond,
		ReconnectDelay: time.Millisecond,
		MaxAttempts:    5,
	}
}

func nextEvent(t *testing.T, b *bridge.Bridge, wait time.Duration) model.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	ev, err := b.Next(ctx)
	require.NoError(t, err, "expected an event")
	return ev
}

func TestMonitorEmitsConfirmedJoinAndLeave(t *testing.T) {
	sess := &fakeSession{clients: []model.Client{{ID: 1, Nickname: "A"}}}
	d := &fakeDialer{template: func() *fakeSession { return sess }}
	b := bridge.New()

	m := New(model.ServerConfig{Alias: "myts"}, b, fastOptions(d.dial))
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool { return m.State() == StatePolling },
		time.Second, time.Millisecond)

	sess.setClients(model.Client{ID: 1, Nickname: "A"}, model.Client{ID: 2, Nickname: "B"})

	ev := nextEvent(t, b, 2*time.Second)
	assert.Equal(t, model.EventClientJoined, ev.Kind)
	assert.Equal(t, "myts", ev.Alias)
	require.NotNil(t, ev.Client)
	assert.Equal(t, "B", ev.Client.Nickname)
	assert.NotEmpty(t, ev.ID)

	sess.setClients(model.Client{ID: 1, Nickname: "A"})

	ev = nextEvent(t, b, 2*time.Second)
	assert.Equal(t, model.EventClientLeft, ev.Kind)
	require.NotNil(t, ev.Client)
	assert.Equal(t, "B", ev.Client.Nickname)
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	sess := &fakeSession{}
	d := &fakeDialer{template: func() *fakeSession { return sess }}
	b := bridge.New()

	m := New(model.ServerConfig{Alias: "myts"}, b, fastOptions(d.dial))
	m.Start()

	require.Eventually(t, func() bool { return m.State() == StatePolling },
		time.Second, time.Millisecond)

	m.Stop()
	m.Stop()

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("monitor did not tear down")
	}
	assert.Equal(t, StateStopped, m.State())

	sess.mu.Lock()
	closed := sess.closed
	sess.mu.Unlock()
	assert.True(t, closed, "session must be released on stop")
}

func TestMonitorFirstConnectionExhaustion(t *testing.T) {
	d := &fakeDialer{failsFirst: 1 << 30, template: func() *fakeSession { return &fakeSession{} }}
	b := bridge.New()

	m := New(model.ServerConfig{Alias: "myts"}, b, fastOptions(d.dial))
	m.Start()

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("monitor did not give up")
	}

	assert.Equal(t, StateFailed, m.State())
	assert.Equal(t, 5, d.dialCount(), "exactly max attempts, no sixth try")

	// no sixth attempt happens later either
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 5, d.dialCount())
	assert.Zero(t, b.Len(), "a failed alias emits nothing")
}

func TestMonitorReconnectExhaustionFailsCleanly(t *testing.T) {
	d := &fakeDialer{failsAfter: 1, template: func() *fakeSession {
		return &fakeSession{clients: []model.Client{{ID: 1, Nickname: "A"}}}
	}}
	b := bridge.New()

	m := New(model.ServerConfig{Alias: "myts"}, b, fastOptions(d.dial))
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool { return m.State() == StatePolling },
		time.Second, time.Millisecond)

	d.mu.Lock()
	first := d.sessions[0]
	d.mu.Unlock()
	first.failList(errors.New("connection reset"))

	// every redial is refused: the loop must exhaust its budget and
	// tear down without taking the process with it
	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("monitor did not give up after reconnect exhaustion")
	}
	assert.Equal(t, StateFailed, m.State())
	assert.Equal(t, 1+5, d.dialCount(), "initial dial plus max redial attempts")
}

func TestMonitorStopDuringReconnectBackoff(t *testing.T) {
	d := &fakeDialer{failsAfter: 1, template: func() *fakeSession {
		return &fakeSession{clients: []model.Client{{ID: 1, Nickname: "A"}}}
	}}
	b := bridge.New()

	opts := fastOptions(d.dial)
	opts.ReconnectDelay = time.Hour // Stop must cut the wait short

	m := New(model.ServerConfig{Alias: "myts"}, b, opts)
	m.Start()

	require.Eventually(t, func() bool { return m.State() == StatePolling },
		time.Second, time.Millisecond)

	d.mu.Lock()
	first := d.sessions[0]
	d.mu.Unlock()
	first.failList(errors.New("connection reset"))

	// one refused redial parks the loop in the backoff wait
	require.Eventually(t, func() bool { return d.dialCount() >= 2 },
		time.Second, time.Millisecond)

	m.Stop()
	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("monitor did not tear down during backoff")
	}
	assert.Equal(t, StateStopped, m.State())
}

func TestMonitorStopBeforeStart(t *testing.T) {
	d := &fakeDialer{template: func() *fakeSession { return &fakeSession{} }}
	b := bridge.New()

	m := New(model.ServerConfig{Alias: "myts"}, b, fastOptions(d.dial))
	m.Stop()
	m.Start()

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("pre-stopped monitor must exit immediately")
	}
	assert.Equal(t, StateStopped, m.State())
	assert.Zero(t, d.dialCount(), "no dial after an early stop")
}

func TestMonitorReconnectSuppressesMassLeave(t *testing.T) {
	roster := []model.Client{{ID: 1, Nickname: "A"}, {ID: 2, Nickname: "B"}, {ID: 3, Nickname: "C"}}
	d := &fakeDialer{template: func() *fakeSession {
		return &fakeSession{clients: roster}
	}}
	b := bridge.New()

	m := New(model.ServerConfig{Alias: "myts"}, b, fastOptions(d.dial))
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool { return m.State() == StatePolling },
		time.Second, time.Millisecond)

	// sever the first session; the loop must reconnect and re-prime
	d.mu.Lock()
	first := d.sessions[0]
	d.mu.Unlock()
	first.failList(errors.New("connection reset"))

	require.Eventually(t, func() bool { return d.dialCount() >= 2 },
		time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return m.State() == StatePolling },
		time.Second, time.Millisecond)

	// let several debounce windows pass: the unchanged roster must not
	// produce leave events against the lost baseline
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, b.Len(), "reconnect must not diff old roster against fresh snapshot")
}

func TestMonitorStatusTickUsesFilteredCount(t *testing.T) {
	sess := &fakeSession{
		clients: []model.Client{
			{ID: 1, Nickname: "A"},
			{ID: 9, Nickname: "serveradmin", Type: 1},
		},
		info: model.ServerSummary{
			Name:           "My Server",
			ClientsOnline:  5, // reported count lies: includes query clients
			MaxClients:     32,
			ChannelsOnline: 4,
			UptimeSeconds:  7200,
		},
	}
	d := &fakeDialer{template: func() *fakeSession { return sess }}
	b := bridge.New()

	opts := fastOptions(d.dial)
	opts.StatusInterval = 15 * time.Millisecond

	m := New(model.ServerConfig{Alias: "myts"}, b, opts)
	m.Start()
	defer m.Stop()

	ev := nextEvent(t, b, 2*time.Second)
	require.Equal(t, model.EventStatusTick, ev.Kind)
	require.NotNil(t, ev.Status)
	assert.Equal(t, "My Server", ev.Status.Name)
	assert.Equal(t, 1, ev.Status.ClientsOnline, "never the server-reported count")
	assert.Equal(t, 32, ev.Status.MaxClients)
	require.Len(t, ev.Status.Clients, 1)
	assert.Equal(t, "A", ev.Status.Clients[0].Nickname)
}

func TestFetchStatus(t *testing.T) {
	sess := &fakeSession{
		clients: []model.Client{{ID: 1, Nickname: "A"}, {ID: 2, Nickname: "q", Type: 1}},
		info:    model.ServerSummary{Name: "S", ClientsOnline: 99, MaxClients: 10, ChannelsOnline: 2, UptimeSeconds: 60},
	}

	st, err := FetchStatus(sess)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ClientsOnline)
	assert.Equal(t, "S", st.Name)
	assert.Equal(t, 2, st.ChannelsOnline)
}
