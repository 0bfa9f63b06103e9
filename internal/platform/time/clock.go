package time

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock access so schedulers and timeout sweeps can be
// driven deterministically in tests. All production code takes a Clock rather
// than calling time.Now directly
type Clock interface {
	Now() time.Time
}

// Real is the wall clock
type Real struct{}

// Now returns the current UTC time
func (Real) Now() time.Time { return time.Now().UTC() }

// Manual is a test clock advanced by hand. The zero value starts at the
// zero time; use Set or Advance before first read
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock pinned at t
func NewManual(t time.Time) *Manual { return &Manual{now: t.UTC()} }

// Now returns the pinned time
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set pins the clock at t
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC()
	m.mu.Unlock()
}

// Advance moves the clock forward by d
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
