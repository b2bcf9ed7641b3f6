// Package status provides a thread-safe status tracker for the toggle-blinker daemon.
// It is fed by the blinkers (through the Observer hook) and read by the
// HTTP handlers and MQTT heartbeats.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/toggle-blinker/internal/logic"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs        int64
	DebounceMs    int64
	BlinkMs       int64
	HeartbeatMs   int64
	QueueCapacity int
	Broker        string
	HTTPAddr      string
}

// LED is the observed state of one LED.
type LED struct {
	Name    string
	State   logic.RunState
	Toggles int
	Changed time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	LEDs          []LED
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// LED returns the entry for name.
func (s Snapshot) LED(name string) (LED, bool) {
	for _, l := range s.LEDs {
		if l.Name == name {
			return l, true
		}
	}
	return LED{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with every named LED DARK.
func NewTracker(startTime time.Time, cfg Config, names ...string) *Tracker {
	leds := make([]LED, len(names))
	for i, n := range names {
		leds[i] = LED{Name: n, State: logic.StateDark}
	}
	return &Tracker{
		snap: Snapshot{
			LEDs:      leds,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// LEDChanged records a run state change. Unknown names are ignored.
func (t *Tracker) LEDChanged(name string, state logic.RunState) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.snap.LEDs {
		l := &t.snap.LEDs[i]
		if l.Name != name {
			continue
		}
		if l.State != state {
			l.Toggles++
		}
		l.State = state
		l.Changed = now
		return
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.LEDs = append([]LED(nil), t.snap.LEDs...)
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
