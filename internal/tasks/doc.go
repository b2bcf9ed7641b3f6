// Package tasks contains the long-running goroutines of the controller:
// the Dispatcher, which drains the event channel and raises toggle flags,
// and the Blinker, one per LED, which owns that LED's run state.
//
// Tasks return nil when their context is canceled.
package tasks
