// Package utils provides the clock abstraction, epoch conversions, duration
// parsing and correlation id helpers shared across the module.
package utils

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Clock supplies the current time. All expiry arithmetic goes through a
// Clock so tests can pin "now".
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock is a manually driven Clock. The zero value reports the zero
// time. Safe for concurrent use.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock returns a FixedClock pinned at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t.UTC()}
}

// Now returns the pinned time.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set pins the clock at t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FromEpoch converts fractional seconds since the Unix epoch to a UTC time.
func FromEpoch(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC()
}

// ToEpoch converts t to fractional seconds since the Unix epoch.
func ToEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// ParseDuration parses a duration string with support for additional time units.
//
// Extends time.ParseDuration with days ("d") and weeks ("w"):
//
//	ParseDuration("1d")    // 24 hours
//	ParseDuration("2w")    // 336 hours
//	ParseDuration("10s")   // standard Go format
func ParseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	var days int
	if n, err := fmt.Sscanf(s, "%dd", &days); err == nil && n == 1 {
		return time.Duration(days) * 24 * time.Hour, nil
	}

	var weeks int
	if n, err := fmt.Sscanf(s, "%dw", &weeks); err == nil && n == 1 {
		return time.Duration(weeks) * 7 * 24 * time.Hour, nil
	}

	return 0, fmt.Errorf("invalid duration: %s", s)
}
