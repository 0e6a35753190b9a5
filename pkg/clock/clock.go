package clock

import "time"

// Clock is the time source used by all time-dependent components so tests
// can pin or shift time. Values returned by SystemClock carry Go's monotonic
// reading, which keeps interval math (rate-limit window pruning) safe against
// wall-clock adjustments. TOTP step derivation uses the wall-clock value.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

// NewSystemClock creates a clock backed by time.Now.
func NewSystemClock() SystemClock {
	return SystemClock{}
}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// Fixed is a clock pinned to a single instant, for tests.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time {
	return f.At
}
