package engine

import "time"

// Clock abstracts wall-clock reads and deadline scheduling so rooms can run
// against a manual clock in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable pending deadline.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the stop
	// happened before the timer expired.
	Stop() bool
}

type realClock struct{}

// NewClock returns the wall clock.
func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
