//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/toggle-blinker/internal/logic"
)

// Chip is an open GPIO character device.
type Chip struct {
	chip *gpiocdev.Chip
}

// Open opens the named GPIO chip (e.g. "gpiochip0").
func Open(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{chip: chip}, nil
}

// Close releases the chip. Lines requested from it stay valid until closed.
func (c *Chip) Close() error {
	return c.chip.Close()
}

// RealButtons are button lines requested from hardware.
type RealButtons struct {
	lines *gpiocdev.Lines
	pins  []int
}

// OpenButtons requests the given pins as pulled-up inputs.
// If handler is non-nil, both edges are watched and delivered to it from
// the gpiocdev event goroutine.
func (c *Chip) OpenButtons(pins []int, handler EdgeHandler) (Buttons, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
	}
	if handler != nil {
		opts = append(opts,
			gpiocdev.WithBothEdges,
			gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
				handler(edgeFromEvent(evt))
			}),
		)
	}

	lines, err := c.chip.RequestLines(pins, opts...)
	if err != nil {
		return nil, fmt.Errorf("request button pins %v: %w", pins, err)
	}

	return &RealButtons{lines: lines, pins: pins}, nil
}

func edgeFromEvent(evt gpiocdev.LineEvent) logic.Edge {
	kind := logic.Falling
	if evt.Type == gpiocdev.LineEventRisingEdge {
		kind = logic.Rising
	}
	return logic.Edge{
		Line: logic.Source(evt.Offset),
		Kind: kind,
		At:   evt.Timestamp,
	}
}

// Levels returns the current raw level of every button line.
func (b *RealButtons) Levels() (map[logic.Source]bool, error) {
	vals := make([]int, len(b.pins))
	if err := b.lines.Values(vals); err != nil {
		return nil, fmt.Errorf("read button pins: %w", err)
	}

	levels := make(map[logic.Source]bool, len(b.pins))
	for i, pin := range b.pins {
		levels[logic.Source(pin)] = vals[i] != 0
	}
	return levels, nil
}

// Close stops edge detection and releases the lines.
func (b *RealButtons) Close() error {
	if err := b.lines.Close(); err != nil {
		return fmt.Errorf("close button pins: %w", err)
	}
	return nil
}

// RealLED is an output line requested from hardware.
type RealLED struct {
	line *gpiocdev.Line
	pin  int
}

// OpenLED requests pin as an output, initially low.
func (c *Chip) OpenLED(pin int) (LED, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request LED pin %d: %w", pin, err)
	}
	return &RealLED{line: line, pin: pin}, nil
}

// Set drives the LED line.
func (l *RealLED) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("set LED pin %d: %w", l.pin, err)
	}
	return nil
}

// Close drives the line low, returns it to an input (the boot default)
// and releases it.
func (l *RealLED) Close() error {
	var errs []error

	if err := l.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("clear LED pin %d: %w", l.pin, err))
	}
	if err := l.line.Reconfigure(gpiocdev.AsInput); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure LED pin %d: %w", l.pin, err))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close LED pin %d: %w", l.pin, err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
