package timeline

import "time"

// Clock is a monotonic reference clock for one device or stream. A clock
// whose rate the mix engine may trim toward a hardware clock is adjustable;
// a hardware-derived clock is not.
type Clock struct {
	now        func() int64
	adjustable bool
}

var processStart = time.Now()

// MonotonicNow reads the shared process monotonic clock in nanoseconds.
// Transports that timestamp against the default device clock use this as
// their time base.
func MonotonicNow() int64 { return int64(time.Since(processStart)) }

// NewClock wraps a monotonic nanosecond source. A nil source uses the
// shared process monotonic clock.
func NewClock(now func() int64, adjustable bool) *Clock {
	if now == nil {
		now = MonotonicNow
	}
	return &Clock{now: now, adjustable: adjustable}
}

// Now returns the clock's current reading in nanoseconds.
func (c *Clock) Now() int64 { return c.now() }

// Adjustable reports whether the mix engine may rate-adjust this clock.
func (c *Clock) Adjustable() bool { return c.adjustable }
