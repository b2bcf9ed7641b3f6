// Package toggle provides a binary "toggle requested" signal shared by one
// writer and one reader.
package toggle

import "context"

// Flag is a binary signal. It holds at most one pending signal: signaling
// an already signaled flag is a no-op, so bursts collapse into one.
//
// The zero value is not usable; construct with New.
type Flag struct {
	sig chan struct{}
}

// New returns a Flag in the not-signaled state.
func New() *Flag {
	return &Flag{sig: make(chan struct{}, 1)}
}

// Signal sets the flag. It never blocks.
func (f *Flag) Signal() {
	select {
	case f.sig <- struct{}{}:
	default:
	}
}

// TryTake clears the flag and reports whether it was signaled.
// It never waits.
func (f *Flag) TryTake() bool {
	select {
	case <-f.sig:
		return true
	default:
		return false
	}
}

// Wait blocks until the flag is signaled, then clears it.
// It returns ctx.Err() if ctx is done first.
func (f *Flag) Wait(ctx context.Context) error {
	select {
	case <-f.sig:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports whether a signal is waiting, without clearing it.
func (f *Flag) Pending() bool {
	return len(f.sig) > 0
}
