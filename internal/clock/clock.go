package clock

import "time"

// Clock supplies the current time. Sync runs stamp sync dates and compute usage
// windows through it so tests can pin time.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
