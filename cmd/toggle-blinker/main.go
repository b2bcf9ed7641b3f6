// Command toggle-blinker drives two LEDs from two push buttons: each press
// toggles its LED between dark and blinking. State changes are published
// to MQTT and served over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/toggle-blinker/internal/app"
	"github.com/sweeney/toggle-blinker/internal/config"
	"github.com/sweeney/toggle-blinker/internal/gpio"
	"github.com/sweeney/toggle-blinker/internal/logger"
	"github.com/sweeney/toggle-blinker/internal/logic"
	"github.com/sweeney/toggle-blinker/internal/mqtt"
	"github.com/sweeney/toggle-blinker/internal/status"
	"github.com/sweeney/toggle-blinker/internal/version"
	"github.com/sweeney/toggle-blinker/internal/web"
)

// statusInterval is how often connectivity is refreshed and the heartbeat
// deadline checked.
const statusInterval = time.Second

func main() {
	Execute()
}

// controller is the part of app.App the run loop drives.
type controller interface {
	Run(ctx context.Context) error
	States() map[string]logic.RunState
}

func run(ctx context.Context, cfg *config.Config) error {
	chip, err := gpio.OpenBackend(cfg.Backend, cfg.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	leds := make(map[string]gpio.LED, len(cfg.Channels))
	names := make([]string, 0, len(cfg.Channels))
	for _, c := range cfg.Channels {
		led, err := chip.OpenLED(c.LED)
		if err != nil {
			return fmt.Errorf("init %s LED: %w", c.Name, err)
		}
		defer led.Close()
		leds[c.Name] = led
		names = append(names, c.Name)
	}

	var (
		publisher mqtt.Publisher        = mqtt.NopPublisher{}
		mqttState mqtt.ConnectionStatus = mqtt.NopPublisher{}
	)
	if cfg.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.Broker, cfg.ClientID)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher, mqttState = p, p
	}
	defer publisher.Close()

	// Tracker exists before STARTUP so the snapshot is available.
	tracker := status.NewTracker(time.Now(), statusConfig(cfg), names...)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	a, err := app.New(cfg, leds, tracker, publisher)
	if err != nil {
		return fmt.Errorf("init controller: %w", err)
	}

	buttons, err := chip.OpenButtons(a.ButtonPins(), a.HandleEdge)
	if err != nil {
		return fmt.Errorf("init buttons: %w", err)
	}
	defer buttons.Close()

	tracker.SetMQTTConnected(mqttState.IsConnected())
	publishSystem(ctx, publisher, tracker, "STARTUP", version.Short())

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, web.WithPresser(a, app.ErrUnknownLED))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf(ctx, "http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Infof(ctx, "http status server listening on %s", cfg.HTTPAddr)
	}

	logger.Infof(ctx, "started %s: backend=%s chip=%s broker=%q heartbeat=%v",
		version.Short(), cfg.Backend, cfg.Chip, cfg.Broker, cfg.Heartbeat)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runLoop(ctx, a, publisher, mqttState, tracker, cfg.Heartbeat, time.Now, ticker.C, sigCh)
}

// runLoop runs the controller until a signal arrives or ctx ends, keeping
// the tracker's connectivity fresh and publishing heartbeats. The
// controller's tasks have stopped (and the LEDs are low) when it returns.
func runLoop(ctx context.Context, c controller, publisher mqtt.Publisher, mqttState mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	lastHeartbeat := now()

	for {
		select {
		case s := <-sig:
			logger.Infof(ctx, "received %v, shutting down", s)
			cancel()
			err := <-done
			refresh(tracker, mqttState, false)
			publishSystem(context.WithoutCancel(ctx), publisher, tracker, "SHUTDOWN", signalName(s))
			return err

		case err := <-done:
			if err != nil {
				return fmt.Errorf("controller stopped: %w", err)
			}
			refresh(tracker, mqttState, false)
			publishSystem(context.WithoutCancel(ctx), publisher, tracker, "SHUTDOWN", "CONTEXT")
			return nil

		case <-tick:
			t := now()
			if heartbeat <= 0 || t.Sub(lastHeartbeat) < heartbeat {
				refresh(tracker, mqttState, false)
				continue
			}
			lastHeartbeat = t

			refresh(tracker, mqttState, true)
			logger.InfoKV(ctx, "heartbeat", "states", c.States())
			publishSystem(ctx, publisher, tracker, "HEARTBEAT", "")
		}
	}
}

// refresh updates connectivity in the tracker; network info is re-read
// from the environment only when full is set.
func refresh(tracker *status.Tracker, mqttState mqtt.ConnectionStatus, full bool) {
	if tracker == nil {
		return
	}
	if mqttState != nil {
		tracker.SetMQTTConnected(mqttState.IsConnected())
	}
	if full {
		if net := readNetworkInfo(); net != nil {
			tracker.SetNetwork(net)
		}
	}
}

// publishSystem publishes a retained lifecycle event carrying a full status
// snapshot. HEARTBEAT is not retained.
func publishSystem(ctx context.Context, publisher mqtt.Publisher, tracker *status.Tracker, event, reason string) {
	ev := mqtt.SystemEvent{
		Timestamp: time.Now(),
		Event:     event,
		Reason:    reason,
		Retained:  event != "HEARTBEAT",
	}
	if tracker != nil {
		snap := tracker.Snapshot()
		ev.Timestamp = snap.Now
		ev.RawPayload = status.FormatStatusEvent(snap, event, reason)
	}

	if err := publisher.PublishSystem(ev); err != nil {
		logger.Warnf(ctx, "failed to publish %s event: %v", event, err)
		return
	}
	logger.Debugf(ctx, "published %s event", event)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		PollMs:        cfg.PollInterval.Milliseconds(),
		DebounceMs:    cfg.Debounce.Milliseconds(),
		BlinkMs:       cfg.BlinkHalfPeriod.Milliseconds(),
		HeartbeatMs:   cfg.Heartbeat.Milliseconds(),
		QueueCapacity: cfg.QueueCapacity,
		Broker:        cfg.Broker,
		HTTPAddr:      cfg.HTTPAddr,
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
