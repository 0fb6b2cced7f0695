// Package clock provides time abstraction for testing and production use.
// The poller waits between cycles through a Clock so that tests can drive
// the loop deterministically with a MockClock.
package clock

import (
	"sync"
	"time"
)

// Clock provides an abstraction for time operations.
// Use RealClock in production and MockClock in tests.
type Clock interface {
	// Now returns the current time
	Now() time.Time
	// After waits for the duration to elapse and then sends the current time
	// on the returned channel.
	After(d time.Duration) <-chan time.Time
}

// RealClock implements Clock using actual system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// After delegates to time.After.
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// MockClock implements Clock and provides a controllable, thread-safe time for tests.
// Channels returned by After fire only when Advance or Set moves the clock
// to or past their deadline.
type MockClock struct {
	mu          sync.Mutex
	currentTime time.Time
	waiters     []waiter
}

// NewMockClock creates a new MockClock set to the specified time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

// Now returns the mock clock's current time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

// After registers a waiter that fires once the clock reaches now+d.
// A non-positive d fires immediately.
func (m *MockClock) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- m.currentTime
		return ch
	}
	m.waiters = append(m.waiters, waiter{deadline: m.currentTime.Add(d), ch: ch})
	return ch
}

// Waiters returns the number of After channels that have not fired yet.
func (m *MockClock) Waiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

// Set changes the mock clock's current time and fires due waiters.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
	m.fireLocked()
}

// Advance moves the mock clock by the specified duration and fires due waiters.
// Use positive durations to move forward, negative to move backward.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
	m.fireLocked()
}

func (m *MockClock) fireLocked() {
	pending := m.waiters[:0]
	for _, w := range m.waiters {
		if !w.deadline.After(m.currentTime) {
			w.ch <- m.currentTime
			continue
		}
		pending = append(pending, w)
	}
	m.waiters = pending
}
