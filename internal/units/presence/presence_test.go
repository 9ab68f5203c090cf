package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/pluginhost/internal/domain/job"
	"github.com/felixgeelhaar/pluginhost/internal/domain/plugin"
	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
	"github.com/felixgeelhaar/pluginhost/internal/units/kvcache"
	"github.com/felixgeelhaar/pluginhost/internal/units/sessions"
)

type queue struct {
	tasks []job.Task
}

func (q *queue) Enqueue(task job.Task) {
	q.tasks = append(q.tasks, task)
}

type host struct {
	plugins *plugin.Registry
	backend *kvcache.MemoryBackend
	tracker *sessions.Tracker
	cache   *kvcache.Client
}

func newHost(t *testing.T, backendOpts ...kvcache.MemoryOption) *host {
	t.Helper()
	ctx := context.Background()
	h := &host{
		plugins: plugin.NewRegistry(),
		backend: kvcache.NewMemoryBackend(backendOpts...),
	}
	cfg := kvcache.Config{HostName: "arena", Attempts: 1, RetryDelay: time.Millisecond}
	require.NoError(t, h.plugins.RegisterServer(kvcache.Name, kvcache.New(cfg, h.backend, nil)))
	require.NoError(t, h.plugins.RegisterServer(sessions.Name, sessions.New(h.plugins, 0, nil)))

	report, err := h.plugins.InitServer(ctx)
	require.NoError(t, err)
	require.False(t, report.HasFailures())

	var ok bool
	h.tracker, ok = plugin.APIAs[*sessions.Tracker](h.plugins, unit.SideServer, sessions.Name)
	require.True(t, ok)
	h.cache, ok = plugin.APIAs[*kvcache.Client](h.plugins, unit.SideServer, kvcache.Name)
	require.True(t, ok)
	return h
}

func newJob(t *testing.T, reg *plugin.Registry, every int) *Job {
	t.Helper()
	j, err := New(reg, every, nil)(Name, unit.SideServer)
	require.NoError(t, err)
	return j.(*Job)
}

func TestJob_PublishesEveryNthTick(t *testing.T) {
	ctx := context.Background()
	h := newHost(t)
	require.NoError(t, h.tracker.Join(ctx, sessions.Player{ID: "1"}))
	require.NoError(t, h.tracker.Join(ctx, sessions.Player{ID: "2"}))

	j := newJob(t, h.plugins, 3)
	require.NoError(t, j.Init(ctx))

	q := &queue{}
	for range 2 {
		require.NoError(t, j.Tick(ctx, q))
	}
	assert.Empty(t, q.tasks)

	require.NoError(t, j.Tick(ctx, q))
	require.Len(t, q.tasks, 1)
	assert.Equal(t, int64(3), j.Ticks())

	require.NoError(t, q.tasks[0](ctx))
	value, found, err := h.cache.Get(ctx, CountKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2", value)

	expires, ok := h.backend.ExpiresAt("host:arena:" + CountKey)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(CountTTL), expires, time.Minute)

	for range 3 {
		require.NoError(t, j.Tick(ctx, q))
	}
	assert.Len(t, q.tasks, 2)
}

func TestJob_SkipsWhileDegraded(t *testing.T) {
	ctx := context.Background()
	h := newHost(t, kvcache.WithRefusedConnects(-1))

	j := newJob(t, h.plugins, 1)
	require.NoError(t, j.Init(ctx))

	q := &queue{}
	require.NoError(t, j.Tick(ctx, q))
	assert.Empty(t, q.tasks)
}

func TestJob_InitRequiresPlugins(t *testing.T) {
	j := newJob(t, plugin.NewRegistry(), 1)
	assert.Error(t, j.Init(context.Background()))

	q := &queue{}
	require.NoError(t, j.Tick(context.Background(), q), "an uninitialized job ticks without work")
	assert.Empty(t, q.tasks)
}

func TestNew_Defaults(t *testing.T) {
	j := newJob(t, plugin.NewRegistry(), 0)
	assert.Equal(t, int64(DefaultEvery), j.every)

	_, err := New(nil, 1, nil)(Name, unit.SideServer)
	assert.Error(t, err)
}

func TestJob_ThroughJobRegistry(t *testing.T) {
	ctx := context.Background()
	h := newHost(t)
	require.NoError(t, h.tracker.Join(ctx, sessions.Player{ID: "1"}))

	jobs, err := job.NewRegistry()
	require.NoError(t, err)
	t.Cleanup(func() { _ = jobs.Stop(context.Background()) })

	require.NoError(t, jobs.RegisterServer(Name, New(h.plugins, 1, nil)))
	report, err := jobs.InitServer(ctx)
	require.NoError(t, err)
	require.False(t, report.HasFailures())

	tick := jobs.Tick(ctx, unit.SideServer)
	require.False(t, tick.HasFailures())

	assert.Eventually(t, func() bool {
		value, found, err := h.cache.Get(ctx, CountKey)
		return err == nil && found && value == "1"
	}, 2*time.Second, 5*time.Millisecond)
}
