//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/toggle-blinker/internal/logic"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Chip is not available on non-Linux platforms.
type Chip struct{}

// Open returns an error on non-Linux platforms.
func Open(name string) (*Chip, error) {
	return nil, errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (c *Chip) Close() error { return nil }

// RealButtons is not available on non-Linux platforms.
type RealButtons struct{}

// OpenButtons returns an error on non-Linux platforms.
func (c *Chip) OpenButtons(pins []int, handler EdgeHandler) (Buttons, error) {
	return nil, errUnsupported
}

// Levels is not implemented on non-Linux platforms.
func (b *RealButtons) Levels() (map[logic.Source]bool, error) {
	return nil, errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (b *RealButtons) Close() error { return nil }

// RealLED is not available on non-Linux platforms.
type RealLED struct{}

// OpenLED returns an error on non-Linux platforms.
func (c *Chip) OpenLED(pin int) (LED, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (l *RealLED) Set(on bool) error { return errUnsupported }

// Close is a no-op on non-Linux platforms.
func (l *RealLED) Close() error { return nil }
