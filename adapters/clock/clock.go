// Package clock supplies the time source used for credit periods,
// rate windows and retention sweeps. Real wraps the system clock;
// Fake lets tests pin and advance time deterministically.
package clock

import (
	"sync"
	"time"
)

// Real reads the system clock.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// Fake is a controllable clock for tests.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFake returns a fake clock pinned to t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// Now returns the pinned time.
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Set pins the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}
