// Package config loads, validates and persists the YAML settings of the
// toggle-blinker daemon.
package config
