// Package logic contains the pure parts of the button-to-LED controller.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via the edge timestamp.
package logic

import "time"

// Source identifies which physical input produced an event.
// It is the GPIO line offset of the button.
type Source int

// EdgeKind is the direction of an input transition.
type EdgeKind string

const (
	Rising  EdgeKind = "RISING"  // low -> high
	Falling EdgeKind = "FALLING" // high -> low
)

// Edge is a single transition observed on an input line.
type Edge struct {
	Line Source
	Kind EdgeKind
	// At is a monotonic timestamp. Only differences between edges on the
	// same line are meaningful.
	At time.Duration
}

// Controller defaults, shared by the config layer and the runtime packages.
const (
	// DefaultQueueCapacity is the press event queue size.
	DefaultQueueCapacity = 32
	// DefaultPoll bounds how long the dispatcher waits for an event before
	// re-checking its context.
	DefaultPoll = 100 * time.Millisecond
	// DefaultHold is how long rising edges are ignored after a falling edge.
	DefaultHold = 100 * time.Millisecond
	// DefaultHalfPeriod is the on (and off) time of one blink cycle.
	DefaultHalfPeriod = 100 * time.Millisecond
)

// RunState is the state of one LED's blinker.
type RunState string

const (
	StateDark     RunState = "DARK"
	StateBlinking RunState = "BLINKING"
)

// Toggle returns the opposite run state.
func (s RunState) Toggle() RunState {
	if s == StateBlinking {
		return StateDark
	}
	return StateBlinking
}

// LEDEvent represents a run state change to be published.
type LEDEvent struct {
	Timestamp time.Time
	LED       string
	State     RunState
}

// Sender accepts sources without blocking.
// Send reports whether the source was accepted.
type Sender interface {
	Send(src Source) bool
}
