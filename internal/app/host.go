// Package app wires configuration, registries and units into a running host.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/felixgeelhaar/pluginhost/internal/adapters/metrics"
	"github.com/felixgeelhaar/pluginhost/internal/config"
	"github.com/felixgeelhaar/pluginhost/internal/domain/job"
	"github.com/felixgeelhaar/pluginhost/internal/domain/plugin"
	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
	"github.com/felixgeelhaar/pluginhost/internal/ports"
)

// ErrUnknownUnit is returned when configuration names a unit the catalog
// does not provide.
var ErrUnknownUnit = errors.New("unknown unit")

// Host owns the plugin and job registries of one side.
type Host struct {
	cfg     *config.HostConfig
	side    unit.Side
	logger  ports.Logger
	metrics *metrics.Prometheus
	catalog *Catalog
	clock   ports.Clock

	plugins *plugin.Registry
	jobs    *job.Registry

	mu         sync.Mutex
	registered bool

	adminOnce sync.Once
	admin     http.Handler
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithLogger sets the host logger.
func WithLogger(logger ports.Logger) HostOption {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithCatalog replaces the default unit catalog.
func WithCatalog(c *Catalog) HostOption {
	return func(h *Host) {
		if c != nil {
			h.catalog = c
		}
	}
}

// WithClock sets the clock driving job schedulers.
func WithClock(c ports.Clock) HostOption {
	return func(h *Host) {
		if c != nil {
			h.clock = c
		}
	}
}

// WithMetrics sets the Prometheus adapter shared by both registries.
func WithMetrics(m *metrics.Prometheus) HostOption {
	return func(h *Host) {
		if m != nil {
			h.metrics = m
		}
	}
}

// NewHost builds the registries for side from cfg. Units are not
// registered until Register or Start is called.
func NewHost(cfg *config.HostConfig, side unit.Side, opts ...HostOption) (*Host, error) {
	if cfg == nil {
		return nil, errors.New("host config is required")
	}
	if !side.IsValid() {
		return nil, fmt.Errorf("%w: %q", unit.ErrUnknownSide, side)
	}

	h := &Host{
		cfg:     cfg,
		side:    side,
		logger:  ports.NopLogger{},
		catalog: DefaultCatalog(),
		clock:   ports.SystemClock{},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = metrics.NewPrometheus()
	}
	h.logger = h.logger.With(ports.F("host", cfg.Name), ports.F("side", side.String()))

	h.plugins = plugin.NewRegistry(
		plugin.WithLogger(h.logger),
		plugin.WithMetrics(h.metrics),
		plugin.WithMissingPolicy(cfg.MissingPolicy()),
		plugin.WithFailurePolicy(cfg.FailurePolicy()),
	)

	jobs, err := job.NewRegistry(
		job.WithLogger(h.logger),
		job.WithMetrics(h.metrics),
		job.WithClock(h.clock),
		job.WithTickInterval(cfg.Jobs.TickInterval.Std()),
		job.WithWorkers(cfg.Jobs.Workers),
	)
	if err != nil {
		return nil, fmt.Errorf("creating job registry: %w", err)
	}
	h.jobs = jobs
	return h, nil
}

// Side returns the host side.
func (h *Host) Side() unit.Side { return h.side }

// Config returns the host configuration.
func (h *Host) Config() *config.HostConfig { return h.cfg }

// Plugins returns the plugin registry.
func (h *Host) Plugins() *plugin.Registry { return h.plugins }

// Jobs returns the job registry.
func (h *Host) Jobs() *job.Registry { return h.jobs }

// Metrics returns the metrics adapter.
func (h *Host) Metrics() *metrics.Prometheus { return h.metrics }

// Register registers every configured unit of the host's side. Names missing
// from the catalog fail before anything is registered. Conflicts and
// constructor failures are logged by the registries and returned joined; the
// remaining units are still registered. Calling Register again is a no-op.
func (h *Host) Register(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.registered {
		return nil
	}

	pluginNames := h.cfg.PluginNames(h.side)
	jobNames := h.cfg.JobNames(h.side)

	var unknown []error
	for _, name := range pluginNames {
		if _, ok := h.catalog.Plugin(name); !ok {
			unknown = append(unknown, fmt.Errorf("%w: plugin %q", ErrUnknownUnit, name))
		}
	}
	for _, name := range jobNames {
		if _, ok := h.catalog.Job(name); !ok {
			unknown = append(unknown, fmt.Errorf("%w: job %q", ErrUnknownUnit, name))
		}
	}
	if len(unknown) > 0 {
		return errors.Join(unknown...)
	}

	var errs []error
	for _, name := range pluginNames {
		factory, _ := h.catalog.Plugin(name)
		ctor := factory(h.deps(name), h.cfg.Settings(name))
		if err := h.plugins.Register(h.side, name, ctor); err != nil {
			errs = append(errs, err)
		}
	}
	for _, name := range jobNames {
		factory, _ := h.catalog.Job(name)
		ctor := factory(h.deps(name), h.cfg.Settings(name))
		if err := h.jobs.Register(h.side, name, ctor); err != nil {
			errs = append(errs, err)
		}
	}

	h.registered = true
	h.logger.Info(ctx, "units registered",
		ports.F("plugins", len(h.plugins.Names(h.side))),
		ports.F("jobs", len(h.jobs.Names(h.side))))
	return errors.Join(errs...)
}

func (h *Host) deps(name string) Deps {
	return Deps{
		HostName: h.cfg.Name,
		Plugins:  h.plugins,
		Logger:   h.logger.With(ports.F("unit", name)),
	}
}

// StartReport collects the pass reports of Start.
type StartReport struct {
	Plugins *unit.PassReport
	Jobs    *unit.PassReport
}

// Start registers the configured units, initializes plugins in dependency
// order, then initializes jobs. The client scheduler starts with the jobs;
// a server scheduler starts only when server_tick_interval is set. Hook
// failures are in the report; the error is fatal only for registration of
// unknown units, plugin ordering or scheduler start.
func (h *Host) Start(ctx context.Context) (*StartReport, error) {
	if err := h.Register(ctx); err != nil {
		if errors.Is(err, ErrUnknownUnit) {
			return nil, err
		}
		h.logger.Warn(ctx, "some units were not registered", ports.Err(err))
	}

	report := &StartReport{}
	var err error
	report.Plugins, err = h.plugins.Init(ctx, h.side)
	if err != nil {
		return report, fmt.Errorf("initializing plugins: %w", err)
	}

	report.Jobs, err = h.jobs.Init(ctx, h.side)
	if err != nil {
		return report, fmt.Errorf("initializing jobs: %w", err)
	}

	if h.side == unit.SideServer {
		if period := h.cfg.Jobs.ServerTickInterval.Std(); period > 0 {
			if err := h.jobs.StartScheduler(ctx, unit.SideServer, period); err != nil && !errors.Is(err, job.ErrSchedulerRunning) {
				return report, fmt.Errorf("starting server scheduler: %w", err)
			}
		}
	}

	h.logger.Info(ctx, "host started",
		ports.F("plugins_enabled", len(report.Plugins.Succeeded)),
		ports.F("plugins_failed", len(report.Plugins.Failed)),
		ports.F("jobs_initialized", len(report.Jobs.Succeeded)))
	return report, nil
}

// Stop stops the job schedulers and waits for queued tasks, then unloads
// plugins in reverse load order. Jobs stop first so no tick reaches an
// unloaded plugin.
func (h *Host) Stop(ctx context.Context) (*unit.PassReport, error) {
	var errs []error
	if err := h.jobs.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping jobs: %w", err))
	}

	report, err := h.plugins.Unload(ctx, h.side)
	if err != nil {
		errs = append(errs, fmt.Errorf("unloading plugins: %w", err))
	}

	h.logger.Info(ctx, "host stopped",
		ports.F("plugins_unloaded", len(report.Succeeded)),
		ports.F("plugins_failed", len(report.Failed)))
	return report, errors.Join(errs...)
}

// Order registers the configured units and returns the plugin load order
// without loading anything.
func (h *Host) Order(ctx context.Context) ([]string, error) {
	if err := h.Register(ctx); err != nil && errors.Is(err, ErrUnknownUnit) {
		return nil, err
	}
	return h.plugins.Order(h.side)
}

// Ready reports an error naming every configured plugin that is not enabled.
func (h *Host) Ready() error {
	var notReady []string
	for _, name := range h.cfg.PluginNames(h.side) {
		inst, ok := h.plugins.Get(h.side, name)
		if !ok || !inst.Enabled() {
			notReady = append(notReady, name)
		}
	}
	if len(notReady) > 0 {
		return fmt.Errorf("plugins not enabled: %v", notReady)
	}
	return nil
}

// Validate registers the configured units and checks every manifest. All
// problems are returned joined.
func (h *Host) Validate(ctx context.Context) error {
	var errs []error
	if err := h.Register(ctx); err != nil {
		errs = append(errs, err)
	}

	for _, name := range h.plugins.Names(h.side) {
		inst, _ := h.plugins.Get(h.side, name)
		if err := unit.ValidateManifest(inst.Manifest()); err != nil {
			errs = append(errs, fmt.Errorf("plugin %q: %w", name, err))
		}
	}
	for _, name := range h.jobs.Names(h.side) {
		j, _ := h.jobs.Get(h.side, name)
		if err := unit.ValidateManifest(j.Manifest()); err != nil {
			errs = append(errs, fmt.Errorf("job %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Snapshot is the /units payload.
type Snapshot struct {
	Host      string          `json:"host"`
	Side      unit.Side       `json:"side"`
	LoadOrder []string        `json:"load_order"`
	Plugins   []plugin.Status `json:"plugins"`
	Jobs      []job.Status    `json:"jobs"`
}

// Snapshot returns the current state of every unit.
func (h *Host) Snapshot() Snapshot {
	return Snapshot{
		Host:      h.cfg.Name,
		Side:      h.side,
		LoadOrder: h.plugins.LoadOrder(h.side),
		Plugins:   h.plugins.Statuses(h.side),
		Jobs:      h.jobs.Statuses(h.side),
	}
}
