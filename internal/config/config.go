package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/toggle-blinker/internal/gpio"
	"github.com/sweeney/toggle-blinker/internal/logger"
	"github.com/sweeney/toggle-blinker/internal/logic"
)

// Channel binds one button to one LED.
type Channel struct {
	// Name identifies the LED in logs, MQTT events and the HTTP API.
	Name string `yaml:"name"`
	// Button is the input line offset (BCM numbering on a Pi).
	Button int `yaml:"button"`
	// LED is the output line offset.
	LED int `yaml:"led"`
}

// Config holds the daemon settings.
type Config struct {
	// Backend selects the GPIO driver: gpiocdev or periph.
	Backend string `yaml:"backend"`
	// Chip is the GPIO character device name (gpiocdev only).
	Chip string `yaml:"chip"`
	// Channels lists the button/LED pairs.
	Channels []Channel `yaml:"channels"`
	// QueueCapacity is the size of the press event queue.
	QueueCapacity int `yaml:"queue_capacity"`
	// PollInterval bounds how long the dispatcher waits for an event.
	PollInterval time.Duration `yaml:"poll_interval"`
	// Debounce is how long rising edges are ignored after a falling edge.
	Debounce time.Duration `yaml:"debounce"`
	// BlinkHalfPeriod is the on (and off) time of one blink.
	BlinkHalfPeriod time.Duration `yaml:"blink_half_period"`
	// Heartbeat is the interval between MQTT heartbeats (0 disables).
	Heartbeat time.Duration `yaml:"heartbeat"`
	// Broker is the MQTT broker URL. Empty disables MQTT.
	Broker string `yaml:"broker"`
	// ClientID is the MQTT client identifier.
	ClientID string `yaml:"client_id"`
	// HTTPAddr is the status server listen address. Empty disables it.
	HTTPAddr string `yaml:"http_addr"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

const (
	// DefaultConfigFilename is the file read when no --config is given.
	DefaultConfigFilename = "toggle-blinker.yaml"

	// DefaultHeartbeat is the default MQTT heartbeat interval.
	DefaultHeartbeat = 15 * time.Minute

	// DefaultClientID is the default MQTT client identifier.
	DefaultClientID = "toggle-blinker"

	// DefaultHTTPAddr is the default status server address.
	DefaultHTTPAddr = ":8080"

	// DefaultFilePermissions is the permission used by Save.
	DefaultFilePermissions = 0o644

	// channelCount is the number of button/LED pairs the controller drives.
	channelCount = 2
)

var (
	errConfigIsNotSet  = errors.New("configuration is not set")
	errChannelCount    = fmt.Errorf("exactly %d channels must be configured", channelCount)
	errChannelName     = errors.New("channel name must be set")
	errNegativeSetting = errors.New("durations and capacities must not be negative")
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: gpio.BackendGPIOCDev,
		Chip:    gpio.DefaultChip,
		Channels: []Channel{
			{Name: "red", Button: gpio.DefaultButtonR, LED: gpio.DefaultLEDR},
			{Name: "yellow", Button: gpio.DefaultButtonY, LED: gpio.DefaultLEDY},
		},
		QueueCapacity:   logic.DefaultQueueCapacity,
		PollInterval:    logic.DefaultPoll,
		Debounce:        logic.DefaultHold,
		BlinkHalfPeriod: logic.DefaultHalfPeriod,
		Heartbeat:       DefaultHeartbeat,
		ClientID:        DefaultClientID,
		HTTPAddr:        DefaultHTTPAddr,
		LogLevel:        "info",
	}
}

// Load reads configuration from path on top of the defaults.
// A missing file is only tolerated for the default filename.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	cfg := Default()

	contents, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultConfigFilename:
		// Run on defaults.
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks cfg and fills zero values with defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.QueueCapacity < 0 || cfg.PollInterval < 0 || cfg.Debounce < 0 ||
		cfg.BlinkHalfPeriod < 0 || cfg.Heartbeat < 0 {
		return errNegativeSetting
	}

	def := Default()
	if cfg.Backend == "" {
		cfg.Backend = def.Backend
	}
	if cfg.Backend != gpio.BackendGPIOCDev && cfg.Backend != gpio.BackendPeriph {
		return fmt.Errorf("unknown gpio backend %q", cfg.Backend)
	}
	if cfg.Chip == "" {
		cfg.Chip = def.Chip
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.BlinkHalfPeriod == 0 {
		cfg.BlinkHalfPeriod = def.BlinkHalfPeriod
	}
	if cfg.ClientID == "" {
		cfg.ClientID = def.ClientID
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}

	if err := validateChannels(cfg.Channels); err != nil {
		return err
	}

	if cfg.Broker != "" {
		u, err := url.Parse(cfg.Broker)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid broker URL %q", cfg.Broker)
		}
	}

	return nil
}

func validateChannels(chs []Channel) error {
	if len(chs) != channelCount {
		return errChannelCount
	}

	names := make(map[string]bool, len(chs))
	pins := make(map[int]string, 2*len(chs))
	for i, ch := range chs {
		if ch.Name == "" {
			return fmt.Errorf("channel %d: %w", i, errChannelName)
		}
		if names[ch.Name] {
			return fmt.Errorf("channel %q: duplicate name", ch.Name)
		}
		names[ch.Name] = true

		for _, pin := range []int{ch.Button, ch.LED} {
			if pin < 0 {
				return fmt.Errorf("channel %q: invalid pin %d", ch.Name, pin)
			}
			if other, used := pins[pin]; used {
				return fmt.Errorf("channel %q: pin %d already used by %q", ch.Name, pin, other)
			}
			pins[pin] = ch.Name
		}
	}

	return nil
}
