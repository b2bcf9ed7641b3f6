package gpio

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/sweeney/toggle-blinker/internal/logic"
)

// edgeWait bounds each WaitForEdge call so Close can stop the watchers.
const edgeWait = 100 * time.Millisecond

// Periph is a Backend built on the periph.io host drivers (sysfs or
// direct register access). It serves boards without a GPIO character device.
type Periph struct {
	lookup func(name string) pgpio.PinIO
	start  time.Time
}

// OpenPeriph initializes the periph.io host drivers.
func OpenPeriph() (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	return newPeriph(gpioreg.ByName), nil
}

func newPeriph(lookup func(name string) pgpio.PinIO) *Periph {
	return &Periph{lookup: lookup, start: time.Now()}
}

// Close is a no-op; pins are released by their own Close.
func (p *Periph) Close() error { return nil }

func (p *Periph) pin(n int) (pgpio.PinIO, error) {
	pin := p.lookup(strconv.Itoa(n))
	if pin == nil {
		return nil, fmt.Errorf("gpio %d not found", n)
	}
	return pin, nil
}

// OpenButtons configures pins as pulled-up inputs. If handler is non-nil
// one goroutine per pin waits for edges and reports them; the direction
// is taken from the level read right after the edge.
func (p *Periph) OpenButtons(pins []int, handler EdgeHandler) (Buttons, error) {
	edge := pgpio.NoEdge
	if handler != nil {
		edge = pgpio.BothEdges
	}

	b := &PeriphButtons{done: make(chan struct{})}
	for _, n := range pins {
		pin, err := p.pin(n)
		if err != nil {
			return nil, errors.Join(err, b.halt())
		}
		if err := pin.In(pgpio.PullUp, edge); err != nil {
			return nil, errors.Join(fmt.Errorf("configure button pin %d: %w", n, err), b.halt())
		}
		b.pins = append(b.pins, pin)
		b.sources = append(b.sources, logic.Source(n))
	}

	if handler != nil {
		for i, pin := range b.pins {
			b.wg.Add(1)
			go b.watch(pin, b.sources[i], handler, p.start)
		}
	}
	return b, nil
}

// OpenLED configures pin as an output, initially low.
func (p *Periph) OpenLED(n int) (LED, error) {
	pin, err := p.pin(n)
	if err != nil {
		return nil, err
	}
	if err := pin.Out(pgpio.Low); err != nil {
		return nil, fmt.Errorf("configure LED pin %d: %w", n, err)
	}
	return &PeriphLED{pin: pin, n: n}, nil
}

// PeriphButtons are button pins driven through periph.io.
type PeriphButtons struct {
	pins    []pgpio.PinIO
	sources []logic.Source

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (b *PeriphButtons) watch(pin pgpio.PinIO, src logic.Source, handler EdgeHandler, start time.Time) {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		default:
		}

		if !pin.WaitForEdge(edgeWait) {
			continue
		}
		kind := logic.Falling
		if pin.Read() == pgpio.High {
			kind = logic.Rising
		}
		handler(logic.Edge{Line: src, Kind: kind, At: time.Since(start)})
	}
}

// Levels returns the current raw level of every button pin.
func (b *PeriphButtons) Levels() (map[logic.Source]bool, error) {
	levels := make(map[logic.Source]bool, len(b.pins))
	for i, pin := range b.pins {
		levels[b.sources[i]] = pin.Read() == pgpio.High
	}
	return levels, nil
}

// Close stops the edge watchers and halts the pins.
func (b *PeriphButtons) Close() (err error) {
	b.closeOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
		err = b.halt()
	})
	return err
}

// halt releases every pin configured so far.
func (b *PeriphButtons) halt() error {
	var errs []error
	for _, pin := range b.pins {
		if err := pin.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt %s: %w", pin, err))
		}
	}
	return errors.Join(errs...)
}

// PeriphLED is an output pin driven through periph.io.
type PeriphLED struct {
	pin pgpio.PinIO
	n   int
}

// Set drives the LED pin.
func (l *PeriphLED) Set(on bool) error {
	if err := l.pin.Out(pgpio.Level(on)); err != nil {
		return fmt.Errorf("set LED pin %d: %w", l.n, err)
	}
	return nil
}

// Close drives the pin low and halts it.
func (l *PeriphLED) Close() error {
	return errors.Join(l.Set(false), l.pin.Halt())
}
