package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/toggle-blinker/internal/config"
	"github.com/sweeney/toggle-blinker/internal/gpio"
	"github.com/sweeney/toggle-blinker/internal/logic"
	"github.com/sweeney/toggle-blinker/internal/mqtt"
	"github.com/sweeney/toggle-blinker/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}

	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestSignalName(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := signalName(tt.sig); got != tt.want {
			t.Errorf("signalName(%v): got %q, want %q", tt.sig, got, tt.want)
		}
	}
}

// --- runLoop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Only called from runLoop's goroutine.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// fakeController blocks in Run until ctx ends, or fails with runErr at once.
type fakeController struct {
	runErr error

	mu      sync.Mutex
	stopped bool
}

func (c *fakeController) Run(ctx context.Context) error {
	if c.runErr != nil {
		return c.runErr
	}
	<-ctx.Done()
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	return nil
}

func (c *fakeController) States() map[string]logic.RunState {
	return map[string]logic.RunState{"red": logic.StateBlinking, "yellow": logic.StateDark}
}

func (c *fakeController) wasStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func newTracker() *status.Tracker {
	return status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), status.Config{}, "red", "yellow")
}

// runRunLoop drives runLoop with nTicks ticks followed by signal.
func runRunLoop(t *testing.T, c controller, pub *mqtt.FakePublisher, tracker *status.Tracker, heartbeat time.Duration, clock func() time.Time, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(context.Background(), c, pub, pub, tracker, heartbeat, clock, tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not return")
		return nil
	}
}

func TestRunLoopShutdown(t *testing.T) {
	for _, sig := range []os.Signal{syscall.SIGINT, syscall.SIGTERM} {
		t.Run(signalName(sig), func(t *testing.T) {
			c := &fakeController{}
			pub := mqtt.NewFakePublisher()
			clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)

			if err := runRunLoop(t, c, pub, newTracker(), 0, clock, 3, sig); err != nil {
				t.Fatalf("runLoop returned error: %v", err)
			}

			if !c.wasStopped() {
				t.Error("controller was not stopped before returning")
			}

			events := pub.SystemEvents()
			if len(events) != 1 {
				t.Fatalf("expected 1 system event, got %d", len(events))
			}
			if events[0].Event != "SHUTDOWN" || events[0].Reason != signalName(sig) {
				t.Errorf("got %s/%s, want SHUTDOWN/%s", events[0].Event, events[0].Reason, signalName(sig))
			}
			if !events[0].Retained {
				t.Error("SHUTDOWN should be retained")
			}
			if !strings.Contains(string(pub.SystemPayloads()[0]), `"event":"SHUTDOWN"`) {
				t.Errorf("payload missing event: %s", pub.SystemPayloads()[0])
			}
		})
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	c := &fakeController{}
	pub := mqtt.NewFakePublisher()
	// First call is the loop start; each tick advances 30s.
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 30*time.Second)

	if err := runRunLoop(t, c, pub, newTracker(), time.Minute, clock, 4, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	events := pub.SystemEvents()
	if len(events) != 3 {
		t.Fatalf("expected 2 heartbeats + shutdown, got %d events", len(events))
	}
	for i := 0; i < 2; i++ {
		if events[i].Event != "HEARTBEAT" {
			t.Errorf("event %d: got %s, want HEARTBEAT", i, events[i].Event)
		}
		if events[i].Retained {
			t.Errorf("event %d: HEARTBEAT should not be retained", i)
		}
	}
	if events[2].Event != "SHUTDOWN" {
		t.Errorf("last event: got %s, want SHUTDOWN", events[2].Event)
	}
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	c := &fakeController{}
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Hour)

	if err := runRunLoop(t, c, pub, newTracker(), 0, clock, 5, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if n := len(pub.SystemEvents()); n != 1 {
		t.Errorf("expected only SHUTDOWN, got %d events", n)
	}
}

func TestRunLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.42")

	c := &fakeController{}
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute)

	if err := runRunLoop(t, c, pub, newTracker(), time.Minute, clock, 1, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	payloads := pub.SystemPayloads()
	if len(payloads) != 2 {
		t.Fatalf("expected heartbeat + shutdown, got %d", len(payloads))
	}
	if !strings.Contains(string(payloads[0]), "192.168.1.42") {
		t.Errorf("heartbeat payload missing network IP: %s", payloads[0])
	}
	if !strings.Contains(string(payloads[0]), `"event":"HEARTBEAT"`) {
		t.Errorf("heartbeat payload missing event: %s", payloads[0])
	}
}

func TestRunLoopRefreshesMQTTState(t *testing.T) {
	c := &fakeController{}
	pub := mqtt.NewFakePublisher()
	tracker := newTracker()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)

	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(context.Background(), c, pub, pub, tracker, 0, clock, tick, sig)
	}()

	pub.SetConnected(true)
	tick <- time.Time{}
	tick <- time.Time{} // second send returns only after the first tick was handled
	if !tracker.Snapshot().MQTTConnected {
		t.Error("expected tracker to report MQTT connected after a tick")
	}

	sig <- syscall.SIGTERM
	if err := <-errCh; err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
}

func TestRunLoopPublishError(t *testing.T) {
	c := &fakeController{}
	pub := mqtt.NewFakePublisher()
	pub.PublishSystemError = errors.New("broker down")
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute)

	if err := runRunLoop(t, c, pub, newTracker(), time.Minute, clock, 3, syscall.SIGTERM); err != nil {
		t.Fatalf("publish failure must not fail runLoop: %v", err)
	}
}

func TestRunLoopControllerError(t *testing.T) {
	c := &fakeController{runErr: errors.New("led gone")}
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)

	err := runLoop(context.Background(), c, pub, pub, newTracker(), 0, clock, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "led gone") {
		t.Fatalf("expected controller error, got %v", err)
	}
}

func TestRunLoopContextCancel(t *testing.T) {
	c := &fakeController{}
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := runLoop(ctx, c, pub, pub, newTracker(), 0, clock, nil, nil); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	events := pub.SystemEvents()
	if len(events) != 1 || events[0].Event != "SHUTDOWN" || events[0].Reason != "CONTEXT" {
		t.Errorf("expected SHUTDOWN/CONTEXT, got %+v", events)
	}
}

// --- CLI tests ---

func TestProbe(t *testing.T) {
	cfg := config.Default()
	buttons := gpio.NewFakeButtons(nil, gpio.DefaultButtonR, gpio.DefaultButtonY)
	buttons.Emit(logic.Edge{Line: gpio.DefaultButtonY, Kind: logic.Falling})

	var out bytes.Buffer
	if err := probe(&out, cfg, buttons); err != nil {
		t.Fatalf("probe: %v", err)
	}

	want := "red: button 23 HIGH\nyellow: button 24 LOW (pressed)\n"
	if out.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestProbeReadError(t *testing.T) {
	buttons := gpio.NewFakeButtons(nil)
	buttons.SetLevelsError(errors.New("ioctl failed"))

	var out bytes.Buffer
	if err := probe(&out, config.Default(), buttons); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blinker.yaml")
	cfg := config.Default()
	cfg.Broker = "tcp://192.168.1.200:1883"
	cfg.HTTPAddr = ":9090"
	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	tests := []struct {
		name       string
		args       []string
		wantBroker string
		wantHTTP   string
	}{
		{"file only", []string{"--config", path}, "tcp://192.168.1.200:1883", ":9090"},
		{"broker disabled", []string{"--config", path, "--broker", ""}, "", ":9090"},
		{"http override", []string{"--config", path, "--http", ":80"}, "tcp://192.168.1.200:1883", ":80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &flags{}
			root := newRootCommand(f)
			if err := root.ParseFlags(tt.args); err != nil {
				t.Fatalf("parse flags: %v", err)
			}

			got, err := loadConfig(root, f)
			if err != nil {
				t.Fatalf("loadConfig: %v", err)
			}
			if got.Broker != tt.wantBroker {
				t.Errorf("Broker: got %q, want %q", got.Broker, tt.wantBroker)
			}
			if got.HTTPAddr != tt.wantHTTP {
				t.Errorf("HTTPAddr: got %q, want %q", got.HTTPAddr, tt.wantHTTP)
			}
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "blinker.yaml")
	if err := config.Save(valid, config.Default()); err != nil {
		t.Fatalf("save: %v", err)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"missing explicit file", []string{"--config", filepath.Join(dir, "missing.yaml")}},
		{"unknown log level", []string{"--config", valid, "--log-level", "loud"}},
		{"bad broker", []string{"--config", valid, "--broker", "not a url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &flags{}
			root := newRootCommand(f)
			if err := root.ParseFlags(tt.args); err != nil {
				t.Fatalf("parse flags: %v", err)
			}
			if _, err := loadConfig(root, f); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
