// Package system provides the wall clock behind audit runs.
//
// The run's started_at timestamp, the report filenames derived from it, the
// per-check durations printed to stderr and the year footer_year expects are
// all read from this clock. Tests substitute a fixed audit.Clock instead.
package system

import "time"

// Clock satisfies audit.Clock. Times are always UTC so report names do not
// depend on the host's zone.
type Clock struct{}

// New returns a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Since returns how long has passed since start.
func (c Clock) Since(start time.Time) time.Duration {
	return c.Now().Sub(start)
}
