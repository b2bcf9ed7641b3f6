package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sweeney/toggle-blinker/internal/config"
	"github.com/sweeney/toggle-blinker/internal/gpio"
	"github.com/sweeney/toggle-blinker/internal/logger"
	"github.com/sweeney/toggle-blinker/internal/logic"
	"github.com/sweeney/toggle-blinker/internal/version"
)

// flags holds command-line overrides of the configuration file.
type flags struct {
	configPath string
	broker     string
	httpAddr   string
	logLevel   string
}

// Execute runs the toggle-blinker CLI and exits with non-zero status on error.
func Execute() {
	if err := newRootCommand(&flags{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(f *flags) *cobra.Command {
	root := &cobra.Command{
		Use:   "toggle-blinker",
		Short: "Toggle two blinking LEDs with two push buttons.",
		Long: `Each button toggles its LED between dark and blinking.

Presses are debounced, queued and dispatched to one blinker per LED.
LED state changes and lifecycle events are published to MQTT when a broker
is configured, and a status page is served over HTTP.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}

			ctx := logger.ToContext(cmd.Context(), logger.Logger().Named("toggle-blinker"))
			if err := run(ctx, cfg); err != nil {
				logger.Errorf(ctx, "fatal: %v", err)
				return err
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	pf.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.Flags().StringVar(&f.broker, "broker", "", `MQTT broker URL, e.g. tcp://host:1883 ("" disables)`)
	root.Flags().StringVar(&f.httpAddr, "http", "", `HTTP status address ("" disables)`)

	root.AddCommand(newProbeCommand(f))
	version.AttachCobraVersionCommand(root)

	return root
}

// loadConfig reads the configuration file and applies flags that were set
// explicitly, so an empty --broker or --http disables the feature.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cmd.Flags().Changed("broker") {
		cfg.Broker = f.broker
	}
	if cmd.Flags().Changed("http") {
		cfg.HTTPAddr = f.httpAddr
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level, _ := logger.ParseLogLevel(cfg.LogLevel)
	logger.SetLevel(level)

	return cfg, nil
}

func newProbeCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Print the current button levels and exit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}

			chip, err := gpio.OpenBackend(cfg.Backend, cfg.Chip)
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			defer chip.Close()

			pins := make([]int, len(cfg.Channels))
			for i, c := range cfg.Channels {
				pins[i] = c.Button
			}
			buttons, err := chip.OpenButtons(pins, nil)
			if err != nil {
				return fmt.Errorf("init buttons: %w", err)
			}
			defer buttons.Close()

			return probe(cmd.OutOrStdout(), cfg, buttons)
		},
	}
}

// probe prints one line per channel: its name, button pin and level.
// Buttons are pulled up, so a pressed button reads LOW.
func probe(w io.Writer, cfg *config.Config, buttons gpio.Buttons) error {
	levels, err := buttons.Levels()
	if err != nil {
		return fmt.Errorf("read buttons: %w", err)
	}

	chs := append([]config.Channel(nil), cfg.Channels...)
	sort.Slice(chs, func(i, j int) bool { return chs[i].Name < chs[j].Name })

	for _, c := range chs {
		level := "LOW (pressed)"
		if levels[logic.Source(c.Button)] {
			level = "HIGH"
		}
		fmt.Fprintf(w, "%s: button %d %s\n", c.Name, c.Button, level)
	}
	return nil
}
