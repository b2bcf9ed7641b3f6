package gpio

import (
	"sync"
	"time"

	"github.com/sweeney/toggle-blinker/internal/logic"
)

// FakeButtons is a test double for button lines. Edges are injected with
// Emit or Press and delivered synchronously to the handler.
type FakeButtons struct {
	mu      sync.Mutex
	handler EdgeHandler
	levels  map[logic.Source]bool

	// Closed tracks if Close was called.
	Closed bool

	levelsErr error
}

// NewFakeButtons creates pulled-up (high) fake lines.
// handler may be nil.
func NewFakeButtons(handler EdgeHandler, lines ...logic.Source) *FakeButtons {
	levels := make(map[logic.Source]bool, len(lines))
	for _, l := range lines {
		levels[l] = true
	}
	return &FakeButtons{handler: handler, levels: levels}
}

// SetHandler replaces the edge handler.
func (f *FakeButtons) SetHandler(h EdgeHandler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

// Emit records the new level implied by e and delivers it to the handler.
func (f *FakeButtons) Emit(e logic.Edge) {
	f.mu.Lock()
	f.levels[e.Line] = e.Kind == logic.Rising
	h := f.handler
	f.mu.Unlock()

	if h != nil {
		h(e)
	}
}

// Press emits a falling edge at at and a rising edge held later,
// like a pulled-up button being pushed and released.
func (f *FakeButtons) Press(line logic.Source, at, held time.Duration) {
	f.Emit(logic.Edge{Line: line, Kind: logic.Falling, At: at})
	f.Emit(logic.Edge{Line: line, Kind: logic.Rising, At: at + held})
}

// SetLevelsError makes Levels fail with err; nil clears it.
func (f *FakeButtons) SetLevelsError(err error) {
	f.mu.Lock()
	f.levelsErr = err
	f.mu.Unlock()
}

// Levels returns a copy of the current line levels.
func (f *FakeButtons) Levels() (map[logic.Source]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.levelsErr != nil {
		return nil, f.levelsErr
	}
	out := make(map[logic.Source]bool, len(f.levels))
	for k, v := range f.levels {
		out[k] = v
	}
	return out, nil
}

// Close marks the buttons as closed.
func (f *FakeButtons) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Transition is one recorded output change.
type Transition struct {
	On   bool
	Time time.Time
}

// FakeLED records every level written to it. Safe for concurrent use.
type FakeLED struct {
	mu       sync.Mutex
	on       bool
	writes   int
	history  []Transition
	closed   bool
	setError error
}

// NewFakeLED creates a fake LED that starts low.
func NewFakeLED() *FakeLED {
	return &FakeLED{}
}

// Set records the level. Only level changes are added to the history.
func (f *FakeLED) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.setError != nil {
		return f.setError
	}

	f.writes++
	if on != f.on || len(f.history) == 0 {
		f.history = append(f.history, Transition{On: on, Time: time.Now()})
	}
	f.on = on
	return nil
}

// SetError makes subsequent Set calls fail with err (nil clears it).
func (f *FakeLED) SetError(err error) {
	f.mu.Lock()
	f.setError = err
	f.mu.Unlock()
}

// On returns the current level.
func (f *FakeLED) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// Writes returns the number of successful Set calls.
func (f *FakeLED) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// History returns a copy of the recorded level changes.
func (f *FakeLED) History() []Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Transition(nil), f.history...)
}

// Rises returns how many times the LED went from low to high.
func (f *FakeLED) Rises() int {
	n := 0
	for _, tr := range f.History() {
		if tr.On {
			n++
		}
	}
	return n
}

// Close drives the LED low and marks it closed.
func (f *FakeLED) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = false
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeLED) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
