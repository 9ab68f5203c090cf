package job

import (
	"context"
	"time"

	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
	"github.com/felixgeelhaar/pluginhost/internal/ports"
)

// DefaultTickInterval is the client-side firing period.
const DefaultTickInterval = 10 * time.Millisecond

// DefaultWorkers is the default size of the task pool.
const DefaultWorkers = 4

// scheduler drives one side at a fixed period. Firings run serially in
// the scheduler goroutine, so a firing never overlaps the previous one.
type scheduler struct {
	side      unit.Side
	period    time.Duration
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func newScheduler(side unit.Side, period time.Duration) *scheduler {
	return &scheduler{
		side:      side,
		period:    period,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// run blocks until ctx is done or stop is called.
func (s *scheduler) run(ctx context.Context, clock ports.Clock, fire func(context.Context)) {
	defer close(s.stoppedCh)

	ticker := clock.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C():
			fire(ctx)
		}
	}
}

// stop signals the loop and waits for it to exit or for ctx to expire.
func (s *scheduler) stop(ctx context.Context) error {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	select {
	case <-s.stoppedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
