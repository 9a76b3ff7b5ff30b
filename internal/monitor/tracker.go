package monitor

import (
	"time"

	"tswatcher/internal/model"
)

// DefaultDebounceWindow is how long a join/leave candidate must hold
// before it is confirmed. Transient flaps shorter than this are
// absorbed without emitting anything.
const DefaultDebounceWindow = 5 * time.Second

// Change is a confirmed membership change.
type Change struct {
	Client model.Client
	Left   bool
}

type pendingChange struct {
	client    model.Client
	leaving   bool
	firstSeen time.Time
}

// Tracker turns consecutive client snapshots into confirmed changes.
// The first snapshot after construction or Reset only primes the
// baseline. Service/management connections are ignored entirely.
//
// Not safe for concurrent use; each poll loop owns its own tracker.
type Tracker struct {
	window  time.Duration
	primed  bool
	known   map[int]model.Client
	pending map[int]pendingChange
}

func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Tracker{window: window}
}

// Observe feeds one snapshot taken at now and returns any changes whose
// confirmation window has expired.
func (t *Tracker) Observe(clients []model.Client, now time.Time) []Change {
	present := make(map[int]model.Client, len(clients))
	for _, c := range clients {
		if c.IsServiceConnection() {
			continue
		}
		present[c.ID] = c
	}

	if !t.primed {
		t.known = present
		t.pending = map[int]pendingChange{}
		t.primed = true
		return nil
	}

	for id, c := range present {
		if p, ok := t.pending[id]; ok {
			if p.leaving {
				// reappeared within the window: flap, not a leave
				delete(t.pending, id)
			}
			continue
		}
		if _, ok := t.known[id]; !ok {
			t.pending[id] = pendingChange{client: c, firstSeen: now}
		}
	}

	for id, c := range t.known {
		if _, ok := present[id]; ok {
			continue
		}
		if _, ok := t.pending[id]; !ok {
			t.pending[id] = pendingChange{client: c, leaving: true, firstSeen: now}
		}
	}

	// a join candidate that vanished again is also a flap
	for id, p := range t.pending {
		if !p.leaving {
			if _, ok := present[id]; !ok {
				delete(t.pending, id)
			}
		}
	}

	var out []Change
	for id, p := range t.pending {
		if now.Sub(p.firstSeen) < t.window {
			continue
		}
		delete(t.pending, id)
		if p.leaving {
			delete(t.known, id)
		} else {
			t.known[id] = p.client
		}
		out = append(out, Change{Client: p.client, Left: p.leaving})
	}
	return out
}

// Online reports the confirmed-present client count.
func (t *Tracker) Online() int {
	return len(t.known)
}

// Reset drops the baseline and all pending candidates. The next
// Observe primes a fresh baseline without emitting events, so a
// reconnect never diffs the old roster against a partial snapshot.
func (t *Tracker) Reset() {
	t.primed = false
	t.known = nil
	t.pending = nil
}

// OnlineClients filters out service/management connections.
func OnlineClients(clients []model.Client) []model.Client {
	out := make([]model.Client, 0, len(clients))
	for _, c := range clients {
		if !c.IsServiceConnection() {
			out = append(out, c)
		}
	}
	return out
}
