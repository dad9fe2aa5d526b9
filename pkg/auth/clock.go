package auth

import "time"

// Clock supplies the current time. Caches and the token codec take a Clock
// so tests can drive expiry deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func orSystemClock(c Clock) Clock {
	if c == nil {
		return SystemClock{}
	}
	return c
}
