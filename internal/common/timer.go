// Package common provides shared timing utilities.
package common

import (
	"fmt"
	"time"
)

// Timer accumulates wall-clock time over one or more Start/Stop segments.
// A zero Timer is ready to use.
type Timer struct {
	name    string
	start   time.Time
	running bool
	total   time.Duration
	laps    int
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{}
}

// NewNamedTimer creates a new timer with the given name.
func NewNamedTimer(name string) *Timer {
	return &Timer{name: name}
}

// Start begins a segment. Calling Start on a running timer restarts the
// current segment without adding to the total.
func (t *Timer) Start() {
	t.start = time.Now()
	t.running = true
}

// Stop ends the current segment, adds it to the total and returns the
// segment duration. Stop on an idle timer returns 0.
func (t *Timer) Stop() time.Duration {
	if !t.running {
		return 0
	}
	d := time.Since(t.start)
	t.total += d
	t.laps++
	t.running = false
	return d
}

// Time runs fn inside one segment and returns its error.
func (t *Timer) Time(fn func() error) error {
	t.Start()
	defer t.Stop()
	return fn()
}

// Total returns the sum of all completed segments.
func (t *Timer) Total() time.Duration {
	return t.total
}

// Laps returns the number of completed segments.
func (t *Timer) Laps() int {
	return t.laps
}

// Name returns the timer name (empty string if unnamed).
func (t *Timer) Name() string {
	return t.name
}

// String returns a formatted string representation of the timer.
func (t *Timer) String() string {
	if t.name != "" {
		return fmt.Sprintf("%s: %v (%d laps)", t.name, t.total, t.laps)
	}
	return fmt.Sprintf("%v (%d laps)", t.total, t.laps)
}
