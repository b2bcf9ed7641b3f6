package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/toggle-blinker/internal/config"
	"github.com/sweeney/toggle-blinker/internal/gpio"
	"github.com/sweeney/toggle-blinker/internal/logic"
	"github.com/sweeney/toggle-blinker/internal/mqtt"
	"github.com/sweeney/toggle-blinker/internal/status"
)

const (
	pinR logic.Source = gpio.DefaultButtonR
	pinY logic.Source = gpio.DefaultButtonY

	held    = 50 * time.Millisecond
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

type rig struct {
	app     *App
	red     *gpio.FakeLED
	yellow  *gpio.FakeLED
	buttons *gpio.FakeButtons
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.Debounce = 20 * time.Millisecond
	cfg.BlinkHalfPeriod = 5 * time.Millisecond
	return cfg
}

func newRig(t *testing.T) *rig {
	t.Helper()

	r := &rig{
		red:     gpio.NewFakeLED(),
		yellow:  gpio.NewFakeLED(),
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(time.Now(), status.Config{}, "red", "yellow"),
	}

	a, err := New(testConfig(), map[string]gpio.LED{"red": r.red, "yellow": r.yellow}, r.tracker, r.pub)
	require.NoError(t, err)
	r.app = a
	r.buttons = gpio.NewFakeButtons(a.HandleEdge, pinR, pinY)
	return r
}

// start runs the app until the test ends and returns a stop function that
// cancels it and reports Run's result.
func (r *rig) start(t *testing.T) func() error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.app.Run(ctx) }()

	var (
		stopped bool
		result  error
	)
	stop := func() error {
		if stopped {
			return result
		}
		stopped = true
		cancel()
		select {
		case result = <-done:
		case <-time.After(waitFor):
			t.Fatal("app did not stop")
		}
		return result
	}
	t.Cleanup(func() { stop() })
	return stop
}

func (r *rig) state(name string) logic.RunState {
	return r.app.States()[name]
}

func TestNewNilConfig(t *testing.T) {
	_, err := New(nil, nil, nil, nil)
	require.Error(t, err)
}

func TestNewRequiresLEDForEveryChannel(t *testing.T) {
	_, err := New(testConfig(), map[string]gpio.LED{"red": gpio.NewFakeLED()}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yellow")
}

func TestNewRejectsZeroCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.QueueCapacity = 0

	leds := map[string]gpio.LED{"red": gpio.NewFakeLED(), "yellow": gpio.NewFakeLED()}
	_, err := New(cfg, leds, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event channel")
}

func TestButtonPins(t *testing.T) {
	r := newRig(t)
	assert.Equal(t, []int{gpio.DefaultButtonR, gpio.DefaultButtonY}, r.app.ButtonPins())
}

func TestColdStartDark(t *testing.T) {
	r := newRig(t)
	r.start(t)

	require.Eventually(t, func() bool {
		return r.red.Writes() > 0 && r.yellow.Writes() > 0
	}, waitFor, tick)

	time.Sleep(30 * time.Millisecond)
	for name, led := range map[string]*gpio.FakeLED{"red": r.red, "yellow": r.yellow} {
		assert.False(t, led.On(), name)
		assert.Zero(t, led.Rises(), name)
		assert.Equal(t, logic.StateDark, r.state(name), name)
	}
}

func TestButtonTogglesOnlyItsLED(t *testing.T) {
	r := newRig(t)
	r.start(t)

	r.buttons.Press(pinR, 0, held)
	require.Eventually(t, func() bool {
		return r.state("red") == logic.StateBlinking && r.red.Rises() >= 2
	}, waitFor, tick)

	assert.Equal(t, logic.StateDark, r.state("yellow"))
	assert.Zero(t, r.yellow.Rises())

	r.buttons.Press(pinR, time.Second, held)
	require.Eventually(t, func() bool {
		return r.state("red") == logic.StateDark && !r.red.On()
	}, waitFor, tick)

	rises := r.red.Rises()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, rises, r.red.Rises(), "dark LED must stay low")
}

func TestBothLEDsBlinkIndependently(t *testing.T) {
	r := newRig(t)
	r.start(t)

	r.buttons.Press(pinR, 0, held)
	r.buttons.Press(pinY, 0, held)
	require.Eventually(t, func() bool {
		return r.red.Rises() >= 2 && r.yellow.Rises() >= 2
	}, waitFor, tick)

	r.buttons.Press(pinY, time.Second, held)
	require.Eventually(t, func() bool {
		return r.state("yellow") == logic.StateDark
	}, waitFor, tick)

	rises := r.red.Rises()
	require.Eventually(t, func() bool {
		return r.red.Rises() > rises
	}, waitFor, tick, "red keeps blinking after yellow goes dark")
	assert.Equal(t, logic.StateBlinking, r.state("red"))
}

func TestContactBounceIsOnePress(t *testing.T) {
	r := newRig(t)
	r.start(t)

	// Release chatter: the first rising edge counts, the rest are within
	// the debounce window of a falling edge.
	ms := time.Millisecond
	r.buttons.Emit(logic.Edge{Line: pinR, Kind: logic.Falling, At: 0})
	r.buttons.Emit(logic.Edge{Line: pinR, Kind: logic.Rising, At: 50 * ms})
	r.buttons.Emit(logic.Edge{Line: pinR, Kind: logic.Falling, At: 52 * ms})
	r.buttons.Emit(logic.Edge{Line: pinR, Kind: logic.Rising, At: 53 * ms})
	r.buttons.Emit(logic.Edge{Line: pinR, Kind: logic.Falling, At: 55 * ms})
	r.buttons.Emit(logic.Edge{Line: pinR, Kind: logic.Rising, At: 57 * ms})

	require.Eventually(t, func() bool {
		return r.state("red") == logic.StateBlinking
	}, waitFor, tick)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, logic.StateBlinking, r.state("red"))
	assert.Equal(t, 1, len(r.pub.Events()))
}

func TestPressByName(t *testing.T) {
	r := newRig(t)
	r.start(t)

	ok, err := r.app.Press("yellow")
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return r.state("yellow") == logic.StateBlinking
	}, waitFor, tick)
	assert.Equal(t, logic.StateDark, r.state("red"))
}

func TestPressUnknownName(t *testing.T) {
	r := newRig(t)

	ok, err := r.app.Press("blue")
	require.ErrorIs(t, err, ErrUnknownLED)
	assert.False(t, ok)
}

func TestQueueSaturationDropsNewest(t *testing.T) {
	r := newRig(t)

	// Nothing is draining the channel yet.
	for i := 0; i < testConfig().QueueCapacity; i++ {
		ok, err := r.app.Press("red")
		require.NoError(t, err)
		require.True(t, ok, "press %d", i)
	}

	ok, err := r.app.Press("yellow")
	require.NoError(t, err)
	assert.False(t, ok, "press beyond capacity must be dropped")

	r.buttons.Press(pinY, 0, held)
	assert.Equal(t, testConfig().QueueCapacity, r.app.events.Len())

	// The queued red presses drain into a single pending toggle; the
	// dropped yellow presses never arrive.
	r.start(t)
	require.Eventually(t, func() bool {
		return r.app.events.Len() == 0
	}, waitFor, tick)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, logic.StateDark, r.state("yellow"))
}

func TestStateChangesAreReported(t *testing.T) {
	r := newRig(t)
	stop := r.start(t)

	r.buttons.Press(pinR, 0, held)
	require.Eventually(t, func() bool {
		return len(r.pub.Events()) == 1
	}, waitFor, tick)

	ev := r.pub.Events()[0]
	assert.Equal(t, "red", ev.LED)
	assert.Equal(t, logic.StateBlinking, ev.State)
	assert.False(t, ev.Timestamp.IsZero())

	snap := r.tracker.Snapshot()
	led, ok := snap.LED("red")
	require.True(t, ok)
	assert.Equal(t, logic.StateBlinking, led.State)
	assert.Equal(t, 1, led.Toggles)

	require.NoError(t, stop())
}

func TestPublishErrorDoesNotStopTasks(t *testing.T) {
	r := newRig(t)
	r.pub.PublishError = errors.New("broker down")
	r.start(t)

	r.buttons.Press(pinR, 0, held)
	require.Eventually(t, func() bool {
		return r.red.Rises() >= 3
	}, waitFor, tick)
}

func TestStopLeavesLEDsLow(t *testing.T) {
	r := newRig(t)
	stop := r.start(t)

	r.buttons.Press(pinR, 0, held)
	r.buttons.Press(pinY, 0, held)
	require.Eventually(t, func() bool {
		return r.red.Rises() >= 1 && r.yellow.Rises() >= 1
	}, waitFor, tick)

	require.NoError(t, stop())
	assert.False(t, r.red.On())
	assert.False(t, r.yellow.On())
}

func TestNilTrackerAndPublisher(t *testing.T) {
	red, yellow := gpio.NewFakeLED(), gpio.NewFakeLED()
	a, err := New(testConfig(), map[string]gpio.LED{"red": red, "yellow": yellow}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	_, err = a.Press("red")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return red.Rises() >= 1 }, waitFor, tick)

	cancel()
	require.NoError(t, <-done)
}
