package metering

import "time"

// Clock provides time information to the meter so tests can run simulated
// minutes without waiting for them.
type Clock interface {
	Now() time.Time
}

// RealClock provides actual system time.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}
