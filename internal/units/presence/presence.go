// Package presence periodically publishes the player count to the kv cache.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/pluginhost/internal/domain/job"
	"github.com/felixgeelhaar/pluginhost/internal/domain/plugin"
	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
	"github.com/felixgeelhaar/pluginhost/internal/ports"
	"github.com/felixgeelhaar/pluginhost/internal/units/kvcache"
	"github.com/felixgeelhaar/pluginhost/internal/units/sessions"
)

// Name is the registry key of the job.
const Name = "presence"

const (
	// CountKey holds the last published player count.
	CountKey = "server:playerCount"
	// CountTTL bounds how long a stale count survives a dead host.
	CountTTL = 300 * time.Second
	// DefaultEvery publishes once a minute at the default 10ms period.
	DefaultEvery = 6000
)

// Job publishes sessions.Tracker.Count under CountKey every N ticks.
type Job struct {
	job.Base

	registry *plugin.Registry
	side     unit.Side
	every    int64
	logger   ports.Logger

	ticks atomic.Int64

	mu      sync.RWMutex
	tracker *sessions.Tracker
	cache   *kvcache.Client
}

// New returns a constructor for the job. Plugins are looked up in registry
// during Init; every below one uses DefaultEvery.
func New(registry *plugin.Registry, every int, logger ports.Logger) job.Constructor {
	if every <= 0 {
		every = DefaultEvery
	}
	if logger == nil {
		logger = ports.NopLogger{}
	}
	return func(name string, side unit.Side) (job.Job, error) {
		if registry == nil {
			return nil, fmt.Errorf("%s: nil plugin registry", name)
		}
		j := &Job{registry: registry, side: side, every: int64(every), logger: logger}
		j.SetManifest(unit.Manifest{
			Name:        "Presence",
			Description: "Publishes the connected player count",
			Version:     "1.0.0",
		})
		return j, nil
	}
}

// Init resolves the sessions and kvcache plugin APIs.
func (j *Job) Init(ctx context.Context) error {
	tracker, ok := plugin.APIAs[*sessions.Tracker](j.registry, j.side, sessions.Name)
	if !ok || tracker == nil {
		return fmt.Errorf("%s plugin not available on %s", sessions.Name, j.side)
	}
	cache, ok := plugin.APIAs[*kvcache.Client](j.registry, j.side, kvcache.Name)
	if !ok {
		return fmt.Errorf("%s plugin not available on %s", kvcache.Name, j.side)
	}

	j.mu.Lock()
	j.tracker = tracker
	j.cache = cache
	j.mu.Unlock()

	j.logger.Debug(ctx, "presence ready", ports.F("every", j.every))
	return nil
}

// Ticks returns the number of ticks seen.
func (j *Job) Ticks() int64 {
	return j.ticks.Load()
}

// Tick enqueues a publish on every Nth tick while the cache is connected.
func (j *Job) Tick(_ context.Context, queue job.TaskQueue) error {
	n := j.ticks.Add(1)
	if n%j.every != 0 {
		return nil
	}

	j.mu.RLock()
	tracker, cache := j.tracker, j.cache
	j.mu.RUnlock()
	if tracker == nil || !cache.Connected() {
		return nil
	}

	count := tracker.Count()
	queue.Enqueue(func(ctx context.Context) error {
		if err := cache.Set(ctx, CountKey, strconv.Itoa(count), CountTTL); err != nil {
			return fmt.Errorf("publishing player count: %w", err)
		}
		return nil
	})
	return nil
}
