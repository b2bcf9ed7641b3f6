package tasks

import (
	"context"
	"time"

	"github.com/sweeney/toggle-blinker/internal/events"
	"github.com/sweeney/toggle-blinker/internal/logger"
	"github.com/sweeney/toggle-blinker/internal/logic"
	"github.com/sweeney/toggle-blinker/internal/toggle"
)

// DefaultPoll bounds how long the dispatcher waits for an event before
// re-checking its context.
const DefaultPoll = logic.DefaultPoll

// Dispatcher routes queued sources to their toggle flags.
type Dispatcher struct {
	ch     *events.Channel
	routes map[logic.Source]*toggle.Flag
	poll   time.Duration
}

// NewDispatcher creates a dispatcher. routes is not copied and must not be
// modified afterwards.
func NewDispatcher(ch *events.Channel, routes map[logic.Source]*toggle.Flag, poll time.Duration) *Dispatcher {
	if poll <= 0 {
		poll = DefaultPoll
	}
	return &Dispatcher{ch: ch, routes: routes, poll: poll}
}

// Run receives events until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "dispatcher")
	logger.Debugf(ctx, "started: poll=%v routes=%d", d.poll, len(d.routes))

	for {
		if ctx.Err() != nil {
			return nil
		}

		src, ok := d.ch.Receive(ctx, d.poll)
		if !ok {
			continue
		}
		d.Dispatch(src)
	}
}

// Dispatch signals the flag routed for src. It reports false for
// sources with no route.
func (d *Dispatcher) Dispatch(src logic.Source) bool {
	flag, ok := d.routes[src]
	if !ok {
		return false
	}
	flag.Signal()
	return true
}
