// Package app wires the controller together: it creates the event
// channel, one toggle flag per LED, the edge detector, the dispatcher and
// the blinkers, and runs the tasks until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/toggle-blinker/internal/config"
	"github.com/sweeney/toggle-blinker/internal/events"
	"github.com/sweeney/toggle-blinker/internal/gpio"
	"github.com/sweeney/toggle-blinker/internal/logger"
	"github.com/sweeney/toggle-blinker/internal/logic"
	"github.com/sweeney/toggle-blinker/internal/mqtt"
	"github.com/sweeney/toggle-blinker/internal/status"
	"github.com/sweeney/toggle-blinker/internal/tasks"
	"github.com/sweeney/toggle-blinker/internal/toggle"
)

// ErrUnknownLED is returned by Press for a name that is not configured.
var ErrUnknownLED = errors.New("unknown LED")

// reportQueue bounds LED events waiting to be published.
const reportQueue = 16

// App owns every runtime resource of the controller. All of them are
// created once in New and live until Run returns.
type App struct {
	events     *events.Channel
	detector   *logic.Detector
	dispatcher *tasks.Dispatcher
	blinkers   []*tasks.Blinker

	sources map[string]logic.Source
	pins    []int

	tracker   *status.Tracker
	publisher mqtt.Publisher
	reports   chan logic.LEDEvent
	now       func() time.Time
}

// New builds the controller from cfg. leds must hold an output for every
// configured channel name. tracker and publisher may be nil.
func New(cfg *config.Config, leds map[string]gpio.LED, tracker *status.Tracker, publisher mqtt.Publisher) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}

	ch, err := events.New(cfg.QueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("create event channel: %w", err)
	}

	if publisher == nil {
		publisher = mqtt.NopPublisher{}
	}

	a := &App{
		events:    ch,
		sources:   make(map[string]logic.Source, len(cfg.Channels)),
		tracker:   tracker,
		publisher: publisher,
		reports:   make(chan logic.LEDEvent, reportQueue),
		now:       time.Now,
	}

	routes := make(map[logic.Source]*toggle.Flag, len(cfg.Channels))
	lines := make([]logic.Source, 0, len(cfg.Channels))
	for _, c := range cfg.Channels {
		led, ok := leds[c.Name]
		if !ok || led == nil {
			return nil, fmt.Errorf("no LED output for channel %q", c.Name)
		}

		src := logic.Source(c.Button)
		flag := toggle.New()
		routes[src] = flag
		lines = append(lines, src)
		a.sources[c.Name] = src
		a.pins = append(a.pins, c.Button)

		a.blinkers = append(a.blinkers, tasks.NewBlinker(c.Name, led, flag,
			tasks.WithHalfPeriod(cfg.BlinkHalfPeriod),
			tasks.WithObserver(a),
		))
	}

	a.detector = logic.NewDetector(cfg.Debounce, ch, lines...)
	a.dispatcher = tasks.NewDispatcher(ch, routes, cfg.PollInterval)

	return a, nil
}

// HandleEdge is the gpio.EdgeHandler for the button lines.
func (a *App) HandleEdge(e logic.Edge) {
	a.detector.HandleEdge(e)
}

// ButtonPins returns the button line offsets in channel order.
func (a *App) ButtonPins() []int {
	return append([]int(nil), a.pins...)
}

// Press queues a virtual button press for the named LED, exactly as if
// its button had been released. It reports whether the event was queued.
func (a *App) Press(name string) (bool, error) {
	src, ok := a.sources[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownLED, name)
	}
	return a.events.Send(src), nil
}

// States returns the current run state of every LED.
func (a *App) States() map[string]logic.RunState {
	out := make(map[string]logic.RunState, len(a.blinkers))
	for _, b := range a.blinkers {
		out[b.Name()] = b.State()
	}
	return out
}

// LEDChanged implements tasks.Observer. It runs on a blinker goroutine,
// so publishing is handed off to the reporter.
func (a *App) LEDChanged(name string, state logic.RunState) {
	if a.tracker != nil {
		a.tracker.LEDChanged(name, state)
	}

	select {
	case a.reports <- logic.LEDEvent{Timestamp: a.now(), LED: name, State: state}:
	default:
	}
}

// Run starts the dispatcher, the blinkers and the reporter and blocks
// until ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.dispatcher.Run(ctx) })
	for _, b := range a.blinkers {
		b := b
		g.Go(func() error { return b.Run(ctx) })
	}
	g.Go(func() error { return a.report(ctx) })

	logger.Infof(ctx, "controller running: leds=%d queue=%d debounce=%v",
		len(a.blinkers), a.events.Cap(), a.detector.Hold())

	return g.Wait()
}

// report publishes LED events until ctx is done, then flushes what is
// already queued.
func (a *App) report(ctx context.Context) error {
	ctx = logger.WithName(ctx, "reporter")
	for {
		select {
		case ev := <-a.reports:
			a.publish(ctx, ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-a.reports:
					a.publish(ctx, ev)
				default:
					return nil
				}
			}
		}
	}
}

func (a *App) publish(ctx context.Context, ev logic.LEDEvent) {
	logger.InfoKV(ctx, "led state changed", "led", ev.LED, "state", ev.State)
	if err := a.publisher.Publish(ev); err != nil {
		logger.Warnf(ctx, "publish error: %v", err)
	}
}
