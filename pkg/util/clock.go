package util

import "time"

type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }

// NowMs returns the clock's current time as unix milliseconds, the
// resolution order validity windows are expressed in.
func NowMs(c Clock) int64 { return c.Now().UnixMilli() }
