// Package sched provides a cancellable delayed-task primitive.
package sched

import (
	"sync"
	"time"
)

// Debouncer runs a function after a delay, with replace-on-arm semantics:
// at most one task is pending at a time, and arming cancels any previous
// pending task. The zero value is ready to use.
type Debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
}

// Arm schedules fn to run after delay, cancelling any task armed earlier.
func (d *Debouncer) Arm(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, fn)
}

// Stop cancels the pending task, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
