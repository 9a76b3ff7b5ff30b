package notify

import (
	"context"

	"go.uber.org/zap"

	"tswatcher/internal/bridge"
	"tswatcher/internal/model"
	"tswatcher/internal/store"
)

// Dispatcher is the single consumer of the event bridge. It resolves
// subscribers per event, renders the message once, and delivers it to
// each target. A failed delivery is logged and skipped; it never stops
// the loop or the remaining targets.
type Dispatcher struct {
	events *bridge.Bridge
	store  *store.Store
	sender Sender
	logger *zap.Logger
}

func NewDispatcher(events *bridge.Bridge, st *store.Store, sender Sender, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		events: events,
		store:  st,
		sender: sender,
		logger: logger.Named("dispatcher"),
	}
}

// Run drains the bridge until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		ev, err := d.events.Next(ctx)
		if err != nil {
			return
		}
		d.dispatch(ev)
	}
}

func (d *Dispatcher) dispatch(ev model.Event) {
	cfg, ok := d.store.Server(ev.Alias)
	if !ok {
		// server was removed while the event was in flight
		return
	}

	// server-level switches silence join/leave for everyone
	switch ev.Kind {
	case model.EventClientJoined:
		if !cfg.NotifyJoin {
			return
		}
	case model.EventClientLeft:
		if !cfg.NotifyLeave {
			return
		}
	}

	text, ok := Render(ev)
	if !ok {
		d.logger.Warn("event without payload dropped",
			zap.String("event_id", ev.ID),
			zap.String("kind", string(ev.Kind)))
		return
	}

	atAll := ev.Kind == model.EventStatusTick && cfg.AtAllOnStatus

	targets := d.store.SubscribersFor(ev.Alias, ev.Kind)
	for _, target := range targets {
		if err := d.sender.Send(target, text, atAll); err != nil {
			d.logger.Warn("delivery failed",
				zap.String("event_id", ev.ID),
				zap.String("server", ev.Alias),
				zap.String("target", target),
				zap.Error(err))
		}
	}
	if len(targets) > 0 {
		d.logger.Debug("event dispatched",
			zap.String("event_id", ev.ID),
			zap.String("kind", string(ev.Kind)),
			zap.Int("targets", len(targets)))
	}
}
