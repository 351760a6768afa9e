package occupancy

import (
	"time"
)

// Tick is the smallest step between two boundaries of one operation. It matches
// the resolution of a PostgreSQL timestamptz.
const Tick = time.Microsecond

// Clock supplies the wall time used to stamp interval boundaries.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// stamper hands out strictly increasing boundaries for one operation. It never
// returns a time at or before a start time it has observed, so an interval it
// closes always ends after it began, even when the clock stalls or steps back.
type stamper struct {
	clock Clock
	last  time.Time
}

func newStamper(clock Clock) *stamper {
	return &stamper{clock: clock}
}

// observe records an existing boundary that later stamps must follow.
func (s *stamper) observe(t time.Time) {
	if t.After(s.last) {
		s.last = t.UTC()
	}
}

// next returns a boundary strictly after every boundary seen or issued so far.
func (s *stamper) next() time.Time {
	now := s.clock.Now().UTC().Truncate(Tick)
	if !now.After(s.last) {
		now = s.last.Add(Tick)
	}
	s.last = now
	return now
}
