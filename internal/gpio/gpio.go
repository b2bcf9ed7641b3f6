// Package gpio provides button input and LED output with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"fmt"

	"github.com/sweeney/toggle-blinker/internal/logic"
)

// EdgeHandler receives input transitions.
// It is called from the GPIO event goroutine and must not block.
type EdgeHandler func(logic.Edge)

// Buttons are the monitored input lines (pulled up, both edges).
type Buttons interface {
	// Levels returns the current raw level of every line (true = high).
	Levels() (map[logic.Source]bool, error)

	// Close releases GPIO resources.
	Close() error
}

// LED drives a single output line.
type LED interface {
	// Set drives the line high (on) or low.
	Set(on bool) error

	// Close drives the line low and releases it.
	Close() error
}

// Backend opens button and LED lines on one GPIO controller.
type Backend interface {
	// OpenButtons requests pins as pulled-up inputs. A nil handler
	// disables edge detection (levels can still be read).
	OpenButtons(pins []int, handler EdgeHandler) (Buttons, error)

	// OpenLED requests pin as an output, initially low.
	OpenLED(pin int) (LED, error)

	// Close releases the controller.
	Close() error
}

// Backend names accepted by OpenBackend.
const (
	BackendGPIOCDev = "gpiocdev"
	BackendPeriph   = "periph"
)

// OpenBackend opens the named backend. chip is only used by gpiocdev.
func OpenBackend(kind, chip string) (Backend, error) {
	switch kind {
	case "", BackendGPIOCDev:
		c, err := Open(chip)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendPeriph:
		p, err := OpenPeriph()
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown gpio backend %q", kind)
	}
}

// DefaultChip is the GPIO character device used when none is configured.
const DefaultChip = "gpiochip0"

// Default pin assignment (BCM numbering).
const (
	DefaultButtonR = 23
	DefaultLEDR    = 5
	DefaultButtonY = 24
	DefaultLEDY    = 6
)

// Consumer is the label attached to requested lines.
const Consumer = "toggle-blinker"
