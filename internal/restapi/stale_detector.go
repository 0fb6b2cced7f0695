package restapi

import (
	"time"
)

// staleIntervals is how many poll intervals may pass without a successful
// cycle before the service reports itself stale.
const staleIntervals = 6

type StaleDetector struct {
	threshold time.Duration
}

func NewStaleDetector() *StaleDetector {
	return &StaleDetector{
		threshold: staleIntervals * 10 * time.Second,
	}
}

func (d *StaleDetector) WithThreshold(threshold time.Duration) *StaleDetector {
	d.threshold = threshold
	return d
}

// Check reports whether lastSuccess is too old. A zero time is stale.
func (d *StaleDetector) Check(lastSuccess time.Time, currentTime time.Time) bool {
	if lastSuccess.IsZero() {
		return true
	}
	return d.Age(lastSuccess, currentTime) > d.threshold
}

func (d *StaleDetector) Age(lastSuccess time.Time, currentTime time.Time) time.Duration {
	if lastSuccess.IsZero() {
		return d.threshold + 1
	}
	return currentTime.Sub(lastSuccess)
}
