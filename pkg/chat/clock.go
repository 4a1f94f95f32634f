package chat

import "time"

// Clock abstracts the poll-loop sleeps so stabilization can be tested
// without real delays.
type Clock interface {
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock returns the real clock.
func SystemClock() Clock { return systemClock{} }
