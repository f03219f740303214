// Package clock provides Clock implementations.
package clock

import (
	"sync"
	"time"

	"github.com/artpar/flowgate/ports"
)

// Real reads the system clock.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// After waits for d on the system clock.
func (Real) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

var _ ports.TimerClock = Real{}

// Fake is a manually driven clock for tests. Channels returned by After
// fire when Set or Advance moves the time past their deadline.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	waiters []waiter
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewFake creates a fake clock set to t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// After returns a channel that receives the fake time once it reaches
// Now()+d. A non-positive d fires immediately.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	deadline := f.current.Add(d)
	if !deadline.After(f.current) {
		ch <- f.current
		return ch
	}
	f.waiters = append(f.waiters, waiter{deadline: deadline, ch: ch})
	return ch
}

// Waiters returns how many After channels have not fired yet.
func (f *Fake) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

// Set moves the fake time to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
	f.fire()
}

// Advance moves the fake time forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
	f.fire()
}

// fire must be called with mu held.
func (f *Fake) fire() {
	pending := f.waiters[:0]
	for _, w := range f.waiters {
		if w.deadline.After(f.current) {
			pending = append(pending, w)
			continue
		}
		w.ch <- f.current
	}
	f.waiters = pending
}

var _ ports.TimerClock = (*Fake)(nil)
