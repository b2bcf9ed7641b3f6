package logic

import (
	"sync/atomic"
	"time"
)

// Detector turns raw button edges into queued press events.
//
// HandleEdge is called from the GPIO event handler and never blocks:
// a rising edge is forwarded to the Sender unless it follows a falling
// edge on the same line by less than the hold duration, in which case it
// is contact bounce. A falling edge only records its timestamp.
type Detector struct {
	hold  time.Duration
	out   Sender
	lines map[Source]*lineState
}

// lineState is the per-line debounce state.
// lastFall holds At+1 of the most recent falling edge; 0 means none yet.
type lineState struct {
	lastFall atomic.Int64
}

// NewDetector creates an edge detector for the given lines.
// The line set is fixed for the lifetime of the detector.
func NewDetector(hold time.Duration, out Sender, lines ...Source) *Detector {
	d := &Detector{
		hold:  hold,
		out:   out,
		lines: make(map[Source]*lineState, len(lines)),
	}
	for _, l := range lines {
		d.lines[l] = &lineState{}
	}
	return d
}

// HandleEdge processes a single edge. It reports whether a press event
// was accepted by the Sender.
func (d *Detector) HandleEdge(e Edge) bool {
	ls, ok := d.lines[e.Line]
	if !ok {
		return false
	}

	switch e.Kind {
	case Falling:
		ls.lastFall.Store(int64(e.At) + 1)
		return false
	case Rising:
		if d.bouncing(ls, e.At) {
			return false
		}
		// Full channel drops the event; interrupt context cannot wait.
		return d.out.Send(e.Line)
	default:
		return false
	}
}

func (d *Detector) bouncing(ls *lineState, at time.Duration) bool {
	v := ls.lastFall.Load()
	if v == 0 {
		return false
	}
	since := at - time.Duration(v-1)
	return since >= 0 && since < d.hold
}

// Hold returns the debounce hold duration.
func (d *Detector) Hold() time.Duration {
	return d.hold
}
