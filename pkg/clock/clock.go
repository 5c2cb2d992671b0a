package clock

import "time"

// Clock abstracts wall time for components that schedule work against it,
// allowing tests to advance time deterministically instead of sleeping.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the handle returned by AfterFunc.
type Timer interface {
	Stop() bool
}

type realClock struct{}

// New returns a Clock backed by the time package.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
