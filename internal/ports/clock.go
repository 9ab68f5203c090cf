package ports

import "time"

// Ticker delivers fixed-interval firings.
type Ticker interface {
	// C returns the channel on which firings are delivered.
	C() <-chan time.Time
	// Stop turns off the ticker. No more firings are delivered after Stop returns.
	Stop()
}

// Clock is the timer source the job scheduler is driven by.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// NewTicker wraps time.NewTicker.
func (SystemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

// Ensure SystemClock implements Clock.
var _ Clock = SystemClock{}
