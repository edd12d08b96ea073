// Package clock isolates wall-clock and monotonic time behind an interface
// so consensus timing and close-time voting are deterministic under test,
// per SPEC_FULL.md §6.
package clock

import "time"

// rippleEpoch is 2000-01-01T00:00:00Z, the fixed epoch close times are
// expressed relative to, per spec.md §6.
var rippleEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock is the sole source of time for anything state-affecting.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time

	// Monotonic returns a duration from an arbitrary, process-local start
	// point; only differences between two calls are meaningful.
	Monotonic() time.Duration

	// CloseTimeNow returns seconds since rippleEpoch, for close-time voting.
	CloseTimeNow() uint32
}

// ToCloseTime converts a wall-clock instant to seconds since rippleEpoch.
func ToCloseTime(t time.Time) uint32 {
	d := t.Sub(rippleEpoch)
	if d < 0 {
		return 0
	}
	return uint32(d.Seconds())
}

// FromCloseTime converts seconds-since-rippleEpoch back to a wall-clock time.
func FromCloseTime(ct uint32) time.Time {
	return rippleEpoch.Add(time.Duration(ct) * time.Second)
}

// Real is the production Clock, backed by the standard library.
type Real struct {
	start time.Time
}

func NewReal() *Real {
	return &Real{start: time.Now()}
}

func (r *Real) Now() time.Time { return time.Now() }

func (r *Real) Monotonic() time.Duration { return time.Since(r.start) }

func (r *Real) CloseTimeNow() uint32 { return ToCloseTime(time.Now()) }

// Manual is a test Clock advanced explicitly by calls to Advance/Set.
type Manual struct {
	now time.Time
}

// NewManual starts the clock at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

func (m *Manual) Now() time.Time { return m.now }

func (m *Manual) Monotonic() time.Duration { return m.now.Sub(rippleEpoch) }

func (m *Manual) CloseTimeNow() uint32 { return ToCloseTime(m.now) }

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) { m.now = m.now.Add(d) }

// Set pins the clock to t.
func (m *Manual) Set(t time.Time) { m.now = t }
