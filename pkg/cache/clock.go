package cache

import "time"

// Clock supplies the current time. Injected so sweeps and popularity
// decay can be tested against a manual clock instead of wall time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the wall-clock implementation used outside tests.
var SystemClock Clock = systemClock{}
