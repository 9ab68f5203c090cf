package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/pluginhost/internal/ports"
)

// FakeClock is a ports.Clock whose tickers fire only when a test says so.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	created chan *FakeTicker
}

// NewFakeClock creates a clock frozen at now.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now, created: make(chan *FakeTicker, 16)}
}

// Now returns the frozen time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the frozen time forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// NewTicker returns a ticker driven by Fire.
func (c *FakeClock) NewTicker(d time.Duration) ports.Ticker {
	t := &FakeTicker{clock: c, period: d, ch: make(chan time.Time), done: make(chan struct{})}
	c.created <- t
	return t
}

// WaitTicker blocks until the next ticker is created.
func (c *FakeClock) WaitTicker(t testing.TB) *FakeTicker {
	t.Helper()
	select {
	case ticker := <-c.created:
		return ticker
	case <-time.After(2 * time.Second):
		t.Fatal("no ticker was created")
		return nil
	}
}

// FakeTicker is the ports.Ticker returned by FakeClock.
type FakeTicker struct {
	clock  *FakeClock
	period time.Duration
	ch     chan time.Time
	once   sync.Once
	done   chan struct{}
}

// Period returns the interval the ticker was created with.
func (t *FakeTicker) Period() time.Duration {
	return t.period
}

// C returns the firing channel.
func (t *FakeTicker) C() <-chan time.Time {
	return t.ch
}

// Stop stops the ticker.
func (t *FakeTicker) Stop() {
	t.once.Do(func() { close(t.done) })
}

// Stopped reports whether Stop was called.
func (t *FakeTicker) Stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Fire advances the clock by one period and delivers a firing. It returns
// once the receiver has taken it.
func (t *FakeTicker) Fire(tb testing.TB) {
	tb.Helper()
	t.clock.Advance(t.period)
	select {
	case t.ch <- t.clock.Now():
	case <-t.done:
		tb.Fatal("ticker stopped")
	case <-time.After(2 * time.Second):
		tb.Fatal("firing was not received")
	}
}

var _ ports.Clock = (*FakeClock)(nil)
