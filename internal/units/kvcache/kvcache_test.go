package kvcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/pluginhost/internal/domain/plugin"
	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
	"github.com/felixgeelhaar/pluginhost/internal/ports"
	"github.com/felixgeelhaar/pluginhost/internal/testutil"
)

func fastConfig() Config {
	return Config{HostName: "arena", Attempts: 5, RetryDelay: time.Millisecond}
}

func newServer(t *testing.T, backend Backend, logger ports.Logger) *Server {
	t.Helper()
	p, err := New(fastConfig(), backend, logger)(Name, unit.SideServer)
	require.NoError(t, err)
	srv, ok := p.(*Server)
	require.True(t, ok)
	return srv
}

func TestServer_ConnectsAfterRetries(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(WithRefusedConnects(2))
	logger := testutil.NewRecordingLogger()
	srv := newServer(t, backend, logger)

	require.NoError(t, srv.OnLoad(ctx))

	assert.True(t, srv.Client().Connected())
	assert.Len(t, logger.Find(ports.LevelInfo, "connecting kv backend"), 3)
	assert.Empty(t, logger.Find(ports.LevelWarn, "degraded"))
}

func TestServer_DegradedWhenUnreachable(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(WithRefusedConnects(-1))
	logger := testutil.NewRecordingLogger()
	srv := newServer(t, backend, logger)

	require.NoError(t, srv.OnLoad(ctx), "an unreachable backend is not a load failure")

	assert.False(t, srv.Client().Connected())
	assert.Len(t, logger.Find(ports.LevelInfo, "connecting kv backend"), 5)
	assert.Len(t, logger.Find(ports.LevelWarn, "running degraded"), 1)

	_, _, err := srv.Client().Get(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable)

	require.NoError(t, srv.OnEnable(ctx))
	assert.Len(t, logger.Find(ports.LevelWarn, "host info not published"), 1)
	require.NoError(t, srv.OnDisable(ctx))
}

func TestServer_CancelledLoadFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := newServer(t, NewMemoryBackend(), nil)
	err := srv.OnLoad(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServer_HostInfoLifecycle(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	srv := newServer(t, backend, nil)
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	srv.now = func() time.Time { return start }

	require.NoError(t, srv.OnLoad(ctx))
	require.NoError(t, srv.OnEnable(ctx))

	var info Info
	found, err := srv.Client().GetObject(ctx, InfoKey, &info)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Info{Name: "arena", InstanceID: srv.InstanceID(), StartTime: start}, info)
	assert.Contains(t, backend.Keys(), "host:arena:server:info")
	assert.NotEmpty(t, srv.InstanceID())

	require.NoError(t, srv.OnDisable(ctx))
	found, err = srv.Client().GetObject(ctx, InfoKey, &info)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, srv.OnUnload(ctx))
	assert.False(t, backend.Connected())
	assert.False(t, srv.Client().Connected())
}

func TestNew_ClientVariant(t *testing.T) {
	ctx := context.Background()
	logger := testutil.NewRecordingLogger()

	p, err := New(fastConfig(), nil, logger)(Name, unit.SideClient)
	require.NoError(t, err)

	require.NoError(t, p.OnLoad(ctx))
	require.NoError(t, p.OnEnable(ctx))
	require.NoError(t, p.OnDisable(ctx))
	require.NoError(t, p.OnUnload(ctx))
	assert.Len(t, logger.Find(ports.LevelInfo, "limited functionality"), 1)

	client, ok := p.API().(*Client)
	require.True(t, ok)
	assert.Nil(t, client)
	assert.False(t, client.Connected())
	assert.ErrorIs(t, client.Set(ctx, "k", "v", 0), ErrUnavailable)
	_, err = client.Subscribe("c", func(string) {})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNew_ServerRequiresBackend(t *testing.T) {
	_, err := New(fastConfig(), nil, nil)(Name, unit.SideServer)
	assert.Error(t, err)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, "default", cfg.HostName)
	assert.Equal(t, "host:default:", cfg.Prefix)
	assert.Equal(t, 5, cfg.Attempts)
	assert.Equal(t, time.Second, cfg.RetryDelay)

	cfg = Config{HostName: "a", Prefix: "custom:"}.withDefaults()
	assert.Equal(t, "custom:", cfg.Prefix)
}

func TestServer_ThroughRegistry(t *testing.T) {
	ctx := context.Background()
	reg := plugin.NewRegistry()
	require.NoError(t, reg.RegisterServer(Name, New(fastConfig(), NewMemoryBackend(), nil)))

	report, err := reg.InitServer(ctx)
	require.NoError(t, err)
	assert.False(t, report.HasFailures())

	client, ok := plugin.APIAs[*Client](reg, unit.SideServer, Name)
	require.True(t, ok)
	require.True(t, client.Connected())
	require.NoError(t, client.Set(ctx, "greeting", "hello", 0))

	value, found, err := client.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hello", value)

	_, err = reg.UnloadServer(ctx)
	require.NoError(t, err)
	assert.False(t, client.Connected())
}

func TestMemoryBackend_TTL(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewMemoryBackend(WithNow(clock.Now))
	require.NoError(t, m.Connect(ctx))

	require.NoError(t, m.Set(ctx, "short", "1", time.Minute))
	require.NoError(t, m.Set(ctx, "forever", "2", 0))

	expires, ok := m.ExpiresAt("short")
	require.True(t, ok)
	assert.Equal(t, clock.Now().Add(time.Minute), expires)

	clock.Advance(59 * time.Second)
	_, found, err := m.Get(ctx, "short")
	require.NoError(t, err)
	assert.True(t, found)

	clock.Advance(time.Second)
	_, found, err = m.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NotContains(t, m.Keys(), "short")

	value, found, err := m.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2", value)
}

func TestMemoryBackend_PubSub(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	require.NoError(t, m.Connect(ctx))

	var got []string
	unsubscribe, err := m.Subscribe("chat", func(msg string) { got = append(got, msg) })
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, "chat", "one"))
	require.NoError(t, m.Publish(ctx, "other", "ignored"))
	unsubscribe()
	require.NoError(t, m.Publish(ctx, "chat", "two"))

	assert.Equal(t, []string{"one"}, got)
}

func TestMemoryBackend_RequiresConnection(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()

	assert.ErrorIs(t, m.Set(ctx, "k", "v", 0), ErrUnavailable)

	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.Set(ctx, "k", "v", 0))
	require.NoError(t, m.Close())

	_, _, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Connect(ctx), ErrClosed)
}

func TestClient_Objects(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	require.NoError(t, m.Connect(ctx))
	c := newClient(m, "p:")
	c.connected.Store(true)

	type player struct {
		ID   string `json:"identifier"`
		Name string `json:"name"`
	}
	require.NoError(t, c.SetObject(ctx, "player:1", player{ID: "1", Name: "Ada"}, time.Hour))

	raw, found, err := m.Get(ctx, "p:player:1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"identifier":"1","name":"Ada"}`, raw)
	assert.NotContains(t, raw, "\n")

	var got player
	found, err = c.GetObject(ctx, "player:1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Ada", got.Name)

	require.NoError(t, c.Set(ctx, "bad", "{", 0))
	_, err = c.GetObject(ctx, "bad", &got)
	assert.Error(t, err)

	assert.Error(t, c.SetObject(ctx, "chan", make(chan int), 0))
}

func TestClient_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	require.NoError(t, m.Connect(ctx))
	c := newClient(m, "p:")
	c.connected.Store(true)

	received := make(chan string, 1)
	_, err := c.Subscribe("player:join", func(msg string) { received <- msg })
	require.NoError(t, err)
	require.NoError(t, c.Publish(ctx, "player:join", "42"))

	assert.Equal(t, "42", <-received)
}
