package kv_capacity

import "time"

type Clock interface {
	Now() time.Time
}

var _ Clock = new(RealClock)

type RealClock struct {
}

func NewRealClock() Clock {
	return &RealClock{}
}

func (r *RealClock) Now() time.Time {
	return time.Now()
}

var _ Clock = new(FixedClock)

// FixedClock always reports the same instant. Useful for stamping records
// deterministically.
type FixedClock struct {
	At time.Time
}

func (f *FixedClock) Now() time.Time {
	return f.At
}
