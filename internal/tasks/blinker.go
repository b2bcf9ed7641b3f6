package tasks

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sweeney/toggle-blinker/internal/gpio"
	"github.com/sweeney/toggle-blinker/internal/logger"
	"github.com/sweeney/toggle-blinker/internal/logic"
	"github.com/sweeney/toggle-blinker/internal/toggle"
)

// DefaultHalfPeriod is the on (and off) time of one blink cycle.
const DefaultHalfPeriod = logic.DefaultHalfPeriod

// Observer is told about run state changes. It is called from the
// blinker goroutine and must return quickly.
type Observer interface {
	LEDChanged(name string, state logic.RunState)
}

// Blinker owns one LED. While DARK it holds the LED low and sleeps until
// its flag is signaled; while BLINKING it cycles high/low and checks the
// flag once per cycle.
type Blinker struct {
	name     string
	led      gpio.LED
	flag     *toggle.Flag
	half     time.Duration
	observer Observer

	blinking atomic.Bool
}

// BlinkerOption configures a Blinker.
type BlinkerOption func(*Blinker)

// WithHalfPeriod sets the on/off duration of a blink cycle.
func WithHalfPeriod(d time.Duration) BlinkerOption {
	return func(b *Blinker) {
		if d > 0 {
			b.half = d
		}
	}
}

// WithObserver registers an observer for run state changes.
func WithObserver(o Observer) BlinkerOption {
	return func(b *Blinker) {
		b.observer = o
	}
}

// NewBlinker creates a blinker in the DARK state.
func NewBlinker(name string, led gpio.LED, flag *toggle.Flag, opts ...BlinkerOption) *Blinker {
	b := &Blinker{
		name: name,
		led:  led,
		flag: flag,
		half: DefaultHalfPeriod,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the LED name.
func (b *Blinker) Name() string {
	return b.name
}

// State returns the current run state. Safe for concurrent use.
func (b *Blinker) State() logic.RunState {
	if b.blinking.Load() {
		return logic.StateBlinking
	}
	return logic.StateDark
}

// Run drives the LED until ctx is done. The LED is left low on return.
func (b *Blinker) Run(ctx context.Context) error {
	ctx = logger.WithKV(logger.WithName(ctx, "blinker"), "led", b.name)
	defer b.set(ctx, false)

	for {
		if !b.blinking.Load() {
			b.set(ctx, false)
			if err := b.flag.Wait(ctx); err != nil {
				return nil
			}
			b.flip(ctx)
			continue
		}

		if b.flag.TryTake() {
			b.flip(ctx)
			continue
		}

		b.set(ctx, true)
		if !sleep(ctx, b.half) {
			return nil
		}
		b.set(ctx, false)
		if !sleep(ctx, b.half) {
			return nil
		}
	}
}

func (b *Blinker) flip(ctx context.Context) {
	state := b.State().Toggle()
	b.blinking.Store(state == logic.StateBlinking)

	logger.Debugf(ctx, "run state -> %s", state)
	if b.observer != nil {
		b.observer.LEDChanged(b.name, state)
	}
}

func (b *Blinker) set(ctx context.Context, on bool) {
	if err := b.led.Set(on); err != nil {
		logger.WarnKV(ctx, "led write failed", "on", on, "error", err)
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
