package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/pluginhost/internal/domain/plugin"
	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
	"github.com/felixgeelhaar/pluginhost/internal/testutil"
)

const hostYAML = `name: arena
log:
  level: debug
  format: json
plugins:
  server: [kvcache, sessions]
  client: [kvcache]
  missing_dependencies: warn
  on_failure: skip-dependents
jobs:
  server: [presence]
  tick_interval: 20ms
  server_tick_interval: 1s
  workers: 8
admin:
  addr: 127.0.0.1:9090
units:
  kvcache:
    retry_delay: 50ms
    retries: 3
  presence:
    every: 100
`

const hostTOML = `name = "arena"

[log]
level = "warn"

[plugins]
server = ["kvcache", "sessions"]

[jobs]
server = ["presence"]
tick_interval = "5ms"

[units.presence]
every = 10
stale = 1.5
`

func TestLoader_LoadYAML(t *testing.T) {
	dir := testutil.TempConfigDir(t)
	path := testutil.WriteTempFile(t, dir, "host.yaml", hostYAML)

	cfg, err := (&Loader{}).Load(path)
	require.NoError(t, err)

	assert.Equal(t, "arena", cfg.Name)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"kvcache", "sessions"}, cfg.PluginNames(unit.SideServer))
	assert.Equal(t, []string{"kvcache"}, cfg.PluginNames(unit.SideClient))
	assert.Equal(t, []string{"presence"}, cfg.JobNames(unit.SideServer))
	assert.Empty(t, cfg.JobNames(unit.SideClient))
	assert.Equal(t, plugin.MissingWarn, cfg.MissingPolicy())
	assert.Equal(t, plugin.FailureSkipDependents, cfg.FailurePolicy())
	assert.Equal(t, 20*time.Millisecond, cfg.Jobs.TickInterval.Std())
	assert.Equal(t, time.Second, cfg.Jobs.ServerTickInterval.Std())
	assert.Equal(t, 8, cfg.Jobs.Workers)
	assert.Equal(t, "127.0.0.1:9090", cfg.Admin.Addr)

	kv := cfg.Settings("kvcache")
	assert.Equal(t, 50*time.Millisecond, kv.Duration("retry_delay", time.Second))
	assert.Equal(t, 3, kv.Int("retries", 5))
	assert.Equal(t, 100, cfg.Settings("presence").Int("every", 1))
}

func TestLoader_LoadTOML(t *testing.T) {
	dir := testutil.TempConfigDir(t)
	path := testutil.WriteTempFile(t, dir, "host.toml", hostTOML)

	cfg, err := (&Loader{}).Load(path)
	require.NoError(t, err)

	assert.Equal(t, "arena", cfg.Name)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, []string{"kvcache", "sessions"}, cfg.Plugins.Server)
	assert.Equal(t, 5*time.Millisecond, cfg.Jobs.TickInterval.Std())
	assert.Equal(t, 10, cfg.Settings("presence").Int("every", 1))
	assert.Equal(t, 1500*time.Millisecond, cfg.Settings("presence").Duration("stale", 0))
}

func TestLoader_ExampleFile(t *testing.T) {
	cfg, err := (&Loader{}).Load("../../host.example.yaml")
	require.NoError(t, err)

	assert.Equal(t, "arena", cfg.Name)
	assert.Equal(t, []string{"kvcache", "sessions"}, cfg.PluginNames(unit.SideServer))
	assert.Equal(t, []string{"presence"}, cfg.JobNames(unit.SideServer))
	assert.Equal(t, plugin.MissingFail, cfg.MissingPolicy())
	assert.Equal(t, plugin.FailureIsolate, cfg.FailurePolicy())
	assert.Equal(t, 10*time.Millisecond, cfg.Jobs.ServerTickInterval.Std())
	assert.Equal(t, "127.0.0.1:9090", cfg.Admin.Addr)
	assert.Equal(t, "host:arena:", cfg.Settings("kvcache").String("prefix", ""))
	assert.Equal(t, time.Second, cfg.Settings("kvcache").Duration("retry_delay", 0))
	assert.Equal(t, 6000, cfg.Settings("presence").Int("every", 0))
}

func TestLoader_Defaults(t *testing.T) {
	dir := testutil.TempConfigDir(t)
	path := testutil.WriteTempFile(t, dir, "host.yml", "")

	cfg, err := (&Loader{}).Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pluginhost", cfg.Name)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, plugin.MissingFail, cfg.MissingPolicy())
	assert.Equal(t, plugin.FailureIsolate, cfg.FailurePolicy())
	assert.Equal(t, 10*time.Millisecond, cfg.Jobs.TickInterval.Std())
	assert.Zero(t, cfg.Jobs.ServerTickInterval)
	assert.Equal(t, 4, cfg.Jobs.Workers)
	assert.Empty(t, cfg.Admin.Addr)
	assert.Empty(t, cfg.Settings("missing"))
}

func TestLoader_Errors(t *testing.T) {
	dir := testutil.TempConfigDir(t)

	tests := []struct {
		name     string
		file     string
		content  string
		sentinel error
	}{
		{"unsupported extension", "host.json", `{}`, ErrFormat},
		{"bad yaml", "host.yaml", "plugins: [", ErrParse},
		{"unknown yaml field", "host.yaml", "plugin:\n  server: [a]\n", ErrParse},
		{"bad toml", "host.toml", "name = ", ErrParse},
		{"unknown toml field", "host.toml", "colour = \"red\"\n", ErrParse},
		{"bad duration", "host.yaml", "jobs:\n  tick_interval: soon\n", ErrParse},
		{"invalid values", "host.yaml", "jobs:\n  workers: -1\n", ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteTempFile(t, dir, tt.file, tt.content)

			_, err := (&Loader{}).Load(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
		})
	}
}

func TestLoader_NotFound(t *testing.T) {
	dir := testutil.TempConfigDir(t)

	_, err := NewLoader().Load(dir + "/absent.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var userErr *UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Format(), "Suggestion:")
	assert.Contains(t, userErr.Error(), "absent.yaml")
}

func TestLoader_ParseErrorCarriesPath(t *testing.T) {
	dir := testutil.TempConfigDir(t)
	path := testutil.WriteTempFile(t, dir, "host.yaml", "log: [")

	_, err := (&Loader{}).Load(path)

	var userErr *UserError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, path, userErr.Context)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PLUGINHOST_LOG_LEVEL", "error")
	t.Setenv("PLUGINHOST_TICK_INTERVAL", "250ms")
	t.Setenv("PLUGINHOST_WORKERS", "2")
	t.Setenv("PLUGINHOST_ADMIN_ADDR", ":8081")
	t.Setenv("PLUGINHOST_ON_FAILURE", "skip-dependents")

	dir := testutil.TempConfigDir(t)
	path := testutil.WriteTempFile(t, dir, "host.yaml", hostYAML)

	cfg, err := NewLoader().Load(path)
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format, "unset variables keep file values")
	assert.Equal(t, 250*time.Millisecond, cfg.Jobs.TickInterval.Std())
	assert.Equal(t, time.Second, cfg.Jobs.ServerTickInterval.Std())
	assert.Equal(t, 2, cfg.Jobs.Workers)
	assert.Equal(t, ":8081", cfg.Admin.Addr)
	assert.Equal(t, plugin.FailureSkipDependents, cfg.FailurePolicy())
}

func TestApplyEnv_Invalid(t *testing.T) {
	t.Setenv("PLUGINHOST_WORKERS", "many")

	err := ApplyEnv(Default())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEnvInvalid)
	assert.Contains(t, err.Error(), "parse env")
}

func TestApplyEnv_InvalidValueFailsValidation(t *testing.T) {
	t.Setenv("PLUGINHOST_LOG_FORMAT", "xml")

	dir := testutil.TempConfigDir(t)
	path := testutil.WriteTempFile(t, dir, "host.yaml", "name: a\n")

	_, err := NewLoader().Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "log.format")
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Plugins.MissingDependencies = "ignore"
	cfg.Plugins.OnFailure = "panic"
	cfg.Plugins.Server = []string{"kvcache", "", "kvcache"}
	cfg.Jobs.TickInterval = 0
	cfg.Jobs.ServerTickInterval = Duration(-time.Second)
	cfg.Jobs.Workers = 0

	err := cfg.Validate()
	require.Error(t, err)

	var list *ErrorList
	require.ErrorAs(t, err, &list)
	assert.Equal(t, 9, list.Len())
	assert.Contains(t, list.Format(), "plugins.server[1]")
	assert.Contains(t, list.Format(), "plugins.server[2]")
	assert.Contains(t, list.Error(), "9 errors occurred")
}

func TestValidate_Default(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestPoliciesFallBackWhenInvalid(t *testing.T) {
	cfg := Default()
	cfg.Plugins.MissingDependencies = "bogus"
	cfg.Plugins.OnFailure = "bogus"

	assert.Equal(t, plugin.MissingFail, cfg.MissingPolicy())
	assert.Equal(t, plugin.FailureIsolate, cfg.FailurePolicy())
}

func TestSettings(t *testing.T) {
	s := Settings{
		"name":    "cache",
		"count":   int64(7),
		"ratio":   2.0,
		"enabled": true,
		"delay":   "2s",
		"ttl":     30,
		"broken":  "later",
	}

	assert.Equal(t, "cache", s.String("name", "x"))
	assert.Equal(t, "x", s.String("count", "x"))
	assert.Equal(t, 7, s.Int("count", 0))
	assert.Equal(t, 2, s.Int("ratio", 0))
	assert.Equal(t, 9, s.Int("name", 9))
	assert.True(t, s.Bool("enabled", false))
	assert.True(t, s.Bool("absent", true))
	assert.Equal(t, 2*time.Second, s.Duration("delay", 0))
	assert.Equal(t, 30*time.Second, s.Duration("ttl", 0))
	assert.Equal(t, time.Minute, s.Duration("broken", time.Minute))
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Std())

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))

	assert.Error(t, d.UnmarshalText([]byte("fast")))
}
