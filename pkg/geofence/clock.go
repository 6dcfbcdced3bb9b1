package geofence

import "time"

// stopper cancels a scheduled function.
type stopper interface {
	Stop() bool
}

// clock abstracts time for debouncing.
type clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) stopper
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}
