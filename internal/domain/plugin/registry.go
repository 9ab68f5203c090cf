package plugin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
	"github.com/felixgeelhaar/pluginhost/internal/ports"
)

// namespace holds the plugins of one side in registration order.
type namespace struct {
	names     []string
	units     map[string]*Instance
	reserved  map[string]bool
	loadOrder []string
	busy      bool
}

func newNamespace() *namespace {
	return &namespace{
		units:    make(map[string]*Instance),
		reserved: make(map[string]bool),
	}
}

// Registry manages plugins for both sides.
//
// Bulk passes run in the caller's goroutine, one hook at a time. Lookups
// take a read lock only, so hooks may call Get and API freely.
type Registry struct {
	mu      sync.RWMutex
	spaces  map[unit.Side]*namespace
	logger  ports.Logger
	metrics ports.Metrics
	missing MissingPolicy
	failure FailurePolicy
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		spaces:  make(map[unit.Side]*namespace, len(unit.Sides)),
		logger:  ports.NopLogger{},
		metrics: ports.NopMetrics{},
		missing: MissingFail,
		failure: FailureIsolate,
	}
	for _, side := range unit.Sides {
		r.spaces[side] = newNamespace()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MissingPolicy returns the configured missing dependency policy.
func (r *Registry) MissingPolicy() MissingPolicy {
	return r.missing
}

// FailurePolicy returns the configured hook failure policy.
func (r *Registry) FailurePolicy() FailurePolicy {
	return r.failure
}

// Register constructs a plugin and adds it under name on side.
// The first registration of a name wins; later ones are rejected without
// calling the constructor.
func (r *Registry) Register(side unit.Side, name string, ctor Constructor) error {
	ctx := context.Background()
	if !side.IsValid() {
		return fmt.Errorf("%w: %q", unit.ErrUnknownSide, side)
	}
	if name == "" {
		return unit.ErrEmptyName
	}
	if ctor == nil {
		return unit.ErrNilConstructor
	}

	r.mu.Lock()
	ns := r.spaces[side]
	if ns.busy {
		r.mu.Unlock()
		return fmt.Errorf("registering %s plugin %q: %w", side, name, unit.ErrPassInProgress)
	}
	if _, exists := ns.units[name]; exists || ns.reserved[name] {
		r.mu.Unlock()
		r.logger.Warn(ctx, "plugin already registered, keeping the first",
			ports.F("side", side.String()), ports.F("plugin", name))
		return &unit.RegistrationConflictError{Side: side, Name: name}
	}
	ns.reserved[name] = true
	r.mu.Unlock()

	inst, err := r.instantiate(side, name, ctor)

	r.mu.Lock()
	delete(ns.reserved, name)
	if err == nil {
		ns.units[name] = inst
		ns.names = append(ns.names, name)
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error(ctx, "plugin instantiation failed",
			ports.F("side", side.String()), ports.F("plugin", name), ports.Err(err))
		return err
	}

	r.logger.Debug(ctx, "plugin registered",
		ports.F("side", side.String()), ports.F("plugin", name))
	return nil
}

// RegisterClient registers a client-side plugin.
func (r *Registry) RegisterClient(name string, ctor Constructor) error {
	return r.Register(unit.SideClient, name, ctor)
}

// RegisterServer registers a server-side plugin.
func (r *Registry) RegisterServer(name string, ctor Constructor) error {
	return r.Register(unit.SideServer, name, ctor)
}

func (r *Registry) instantiate(side unit.Side, name string, ctor Constructor) (*Instance, error) {
	var impl Plugin
	err := unit.Guard(func() error {
		var ctorErr error
		impl, ctorErr = ctor(name, side)
		return ctorErr
	})
	if err == nil && impl == nil {
		err = unit.ErrNilUnit
	}
	if err != nil {
		return nil, &unit.InstantiationError{Side: side, Name: name, Err: err}
	}

	inst, err := NewInstance(side, name, impl, r.logger)
	if err != nil {
		return nil, &unit.InstantiationError{Side: side, Name: name, Err: err}
	}
	return inst, nil
}

// Get returns the plugin instance registered under name on side.
func (r *Registry) Get(side unit.Side, name string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ns, ok := r.spaces[side]
	if !ok {
		return nil, false
	}
	inst, ok := ns.units[name]
	return inst, ok
}

// GetClient returns a client-side plugin instance.
func (r *Registry) GetClient(name string) (*Instance, bool) {
	return r.Get(unit.SideClient, name)
}

// GetServer returns a server-side plugin instance.
func (r *Registry) GetServer(name string) (*Instance, bool) {
	return r.Get(unit.SideServer, name)
}

// API returns the API value of the plugin registered under name on side.
func (r *Registry) API(side unit.Side, name string) (any, bool) {
	inst, ok := r.Get(side, name)
	if !ok {
		return nil, false
	}
	return inst.API(), true
}

// ClientAPI returns the API of a client-side plugin.
func (r *Registry) ClientAPI(name string) (any, bool) {
	return r.API(unit.SideClient, name)
}

// ServerAPI returns the API of a server-side plugin.
func (r *Registry) ServerAPI(name string) (any, bool) {
	return r.API(unit.SideServer, name)
}

// APIAs returns the API of a plugin asserted to T. It reports false when
// the plugin is missing or its API has a different type.
func APIAs[T any](r *Registry, side unit.Side, name string) (T, bool) {
	var zero T
	api, ok := r.API(side, name)
	if !ok {
		return zero, false
	}
	typed, ok := api.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Names returns the registered plugin names of a side in registration order.
func (r *Registry) Names(side unit.Side) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ns, ok := r.spaces[side]
	if !ok {
		return nil
	}
	return slices.Clone(ns.names)
}

// LoadOrder returns the most recently computed load order of a side.
func (r *Registry) LoadOrder(side unit.Side) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ns, ok := r.spaces[side]
	if !ok {
		return nil
	}
	return slices.Clone(ns.loadOrder)
}

// Statuses returns a status snapshot of every plugin on a side in
// registration order.
func (r *Registry) Statuses(side unit.Side) []Status {
	names, units := r.snapshot(side)
	statuses := make([]Status, 0, len(names))
	for _, name := range names {
		statuses = append(statuses, units[name].Status())
	}
	return statuses
}

// Graph builds the dependency graph of a side from the live manifests.
func (r *Registry) Graph(side unit.Side) *Graph {
	names, units := r.snapshot(side)
	return buildGraph(names, units)
}

func buildGraph(names []string, units map[string]*Instance) *Graph {
	g := NewGraph()
	for _, name := range names {
		g.Add(name, unit.DependenciesOf(units[name].Manifest()))
	}
	return g
}

func (r *Registry) snapshot(side unit.Side) ([]string, map[string]*Instance) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ns, ok := r.spaces[side]
	if !ok {
		return nil, nil
	}
	units := make(map[string]*Instance, len(ns.units))
	for name, inst := range ns.units {
		units[name] = inst
	}
	return slices.Clone(ns.names), units
}

// beginPass marks a side busy and snapshots it.
func (r *Registry) beginPass(side unit.Side) ([]string, map[string]*Instance, error) {
	if !side.IsValid() {
		return nil, nil, fmt.Errorf("%w: %q", unit.ErrUnknownSide, side)
	}

	r.mu.Lock()
	ns := r.spaces[side]
	if ns.busy {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("%s plugins: %w", side, unit.ErrPassInProgress)
	}
	ns.busy = true
	r.mu.Unlock()

	names, units := r.snapshot(side)
	return names, units, nil
}

func (r *Registry) endPass(side unit.Side) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spaces[side].busy = false
}

// Order computes the load order of a side without loading anything and
// without replacing the cached order.
func (r *Registry) Order(side unit.Side) ([]string, error) {
	if !side.IsValid() {
		return nil, fmt.Errorf("%w: %q", unit.ErrUnknownSide, side)
	}
	g := r.Graph(side)
	if missing := g.Missing(); len(missing) > 0 && r.missing == MissingFail {
		return nil, &MissingDependencyError{Side: side, Missing: missing}
	}
	order, err := g.Order()
	if err != nil {
		return nil, withSide(err, side)
	}
	return order, nil
}

// Init computes the load order of a side and then loads and enables every
// plugin in that order. Hook failures are recorded in the report and do not
// stop the pass. The returned error is non-nil only when no plugin could be
// processed: a dependency cycle, missing dependencies under MissingFail, or
// a concurrent pass.
func (r *Registry) Init(ctx context.Context, side unit.Side) (*unit.PassReport, error) {
	report := unit.NewPassReport(side, "init")

	names, units, err := r.beginPass(side)
	if err != nil {
		return report.Finish(), err
	}
	defer r.endPass(side)

	r.logger.Info(ctx, "initializing plugins",
		ports.F("side", side.String()), ports.F("count", len(names)))

	g := buildGraph(names, units)
	if missing := g.Missing(); len(missing) > 0 {
		missingErr := &MissingDependencyError{Side: side, Missing: missing}
		if r.missing == MissingFail {
			r.logger.Error(ctx, "plugin dependencies missing, aborting", ports.F("side", side.String()), ports.Err(missingErr))
			return report.Finish(), missingErr
		}
		r.logger.Warn(ctx, "plugin dependencies missing", ports.F("side", side.String()), ports.Err(missingErr))
	}

	order, err := g.Order()
	if err != nil {
		err = withSide(err, side)
		r.logger.Error(ctx, "plugin load order could not be computed", ports.F("side", side.String()), ports.Err(err))
		return report.Finish(), err
	}

	r.mu.Lock()
	r.spaces[side].loadOrder = order
	r.mu.Unlock()

	r.logger.Debug(ctx, "plugin load order computed",
		ports.F("side", side.String()), ports.F("order", order))

	failed := make(map[string]bool)
	for _, name := range order {
		inst, ok := units[name]
		if !ok {
			report.Skip(name, "not registered")
			continue
		}

		if r.failure == FailureSkipDependents {
			if dep, blocked := failedDependency(g, name, failed); blocked {
				failed[name] = true
				report.Skip(name, fmt.Sprintf("dependency %q failed", dep))
				r.logger.Warn(ctx, "skipping plugin with failed dependency",
					ports.F("side", side.String()), ports.F("plugin", name), ports.F("dependency", dep))
				continue
			}
		}

		if inst.Phase() == PhaseUnloaded {
			report.Skip(name, "unloaded")
			continue
		}

		if hookErr := r.activate(ctx, inst); hookErr != nil {
			failed[name] = true
			report.Fail(hookErr)
			r.hookFailed(ctx, hookErr)
			continue
		}
		report.Succeed(name)
	}

	report.Finish()
	r.logger.Info(ctx, "plugins initialized",
		ports.F("side", side.String()),
		ports.F("enabled", len(report.Succeeded)),
		ports.F("failed", len(report.Failed)),
		ports.F("duration", report.Duration().String()))
	return report, nil
}

// InitClient initializes client-side plugins.
func (r *Registry) InitClient(ctx context.Context) (*unit.PassReport, error) {
	return r.Init(ctx, unit.SideClient)
}

// InitServer initializes server-side plugins.
func (r *Registry) InitServer(ctx context.Context) (*unit.PassReport, error) {
	return r.Init(ctx, unit.SideServer)
}

func (r *Registry) activate(ctx context.Context, inst *Instance) *unit.HookError {
	side := inst.Side().String()

	if inst.Phase() == PhaseCreated {
		if err := inst.Load(ctx); err != nil {
			return asHookError(inst, HookLoad, err)
		}
		r.metrics.PluginTransition(side, string(PhaseLoaded))
	}

	wasEnabled := inst.Enabled()
	if err := inst.Enable(ctx); err != nil {
		return asHookError(inst, HookEnable, err)
	}
	if !wasEnabled {
		r.metrics.PluginTransition(side, string(PhaseEnabled))
	}
	return nil
}

// Unload disables and unloads every enabled plugin of a side in the exact
// reverse of the last computed load order. Plugins that are not enabled are
// skipped.
func (r *Registry) Unload(ctx context.Context, side unit.Side) (*unit.PassReport, error) {
	report := unit.NewPassReport(side, "unload")

	_, units, err := r.beginPass(side)
	if err != nil {
		return report.Finish(), err
	}
	defer r.endPass(side)

	order := r.LoadOrder(side)
	slices.Reverse(order)

	r.logger.Info(ctx, "unloading plugins",
		ports.F("side", side.String()), ports.F("count", len(order)))

	for _, name := range order {
		inst, ok := units[name]
		if !ok {
			report.Skip(name, "not registered")
			continue
		}
		if !inst.Enabled() {
			report.Skip(name, "not enabled")
			continue
		}

		if err := inst.Disable(ctx); err != nil {
			hookErr := asHookError(inst, HookDisable, err)
			report.Fail(hookErr)
			r.hookFailed(ctx, hookErr)
			continue
		}
		r.metrics.PluginTransition(side.String(), string(PhaseDisabled))

		if err := inst.Unload(ctx); err != nil {
			hookErr := asHookError(inst, HookUnload, err)
			report.Fail(hookErr)
			r.hookFailed(ctx, hookErr)
			continue
		}
		r.metrics.PluginTransition(side.String(), string(PhaseUnloaded))
		report.Succeed(name)
	}

	report.Finish()
	r.logger.Info(ctx, "plugins unloaded",
		ports.F("side", side.String()),
		ports.F("unloaded", len(report.Succeeded)),
		ports.F("failed", len(report.Failed)))
	return report, nil
}

// UnloadClient unloads client-side plugins.
func (r *Registry) UnloadClient(ctx context.Context) (*unit.PassReport, error) {
	return r.Unload(ctx, unit.SideClient)
}

// UnloadServer unloads server-side plugins.
func (r *Registry) UnloadServer(ctx context.Context) (*unit.PassReport, error) {
	return r.Unload(ctx, unit.SideServer)
}

func (r *Registry) hookFailed(ctx context.Context, err *unit.HookError) {
	r.metrics.HookFailure(err.Side.String(), "plugin", err.Hook)
	r.logger.Error(ctx, "plugin hook failed",
		ports.F("side", err.Side.String()),
		ports.F("plugin", err.Unit),
		ports.F("hook", err.Hook),
		ports.Err(err.Err))
}

// failedDependency reports the first dependency of name that failed.
func failedDependency(g *Graph, name string, failed map[string]bool) (string, bool) {
	for _, dep := range g.Dependencies(name) {
		if failed[dep] {
			return dep, true
		}
	}
	return "", false
}

func asHookError(inst *Instance, hook string, err error) *unit.HookError {
	var hookErr *unit.HookError
	if errors.As(err, &hookErr) {
		return hookErr
	}
	return &unit.HookError{Side: inst.Side(), Unit: inst.Name(), Hook: hook, Err: err}
}

func withSide(err error, side unit.Side) error {
	var cyclicErr *CyclicDependencyError
	if errors.As(err, &cyclicErr) {
		cyclicErr.Side = side
	}
	return err
}
