package job

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
	"github.com/felixgeelhaar/pluginhost/internal/ports"
)

// entry is a registered job with its task queue.
type entry struct {
	name        string
	side        unit.Side
	job         Job
	queue       *taskQueue
	initialized bool
}

// namespace holds the jobs of one side in registration order.
type namespace struct {
	names    []string
	entries  map[string]*entry
	reserved map[string]bool
}

func newNamespace() *namespace {
	return &namespace{
		entries:  make(map[string]*entry),
		reserved: make(map[string]bool),
	}
}

// Status is a point-in-time view of a registered job.
type Status struct {
	Name        string         `json:"name"`
	Side        unit.Side      `json:"side"`
	Manifest    *unit.Manifest `json:"manifest,omitempty"`
	Initialized bool           `json:"initialized"`
	Pending     int            `json:"pending_tasks"`
}

// Registry manages jobs for both sides and the schedulers that tick them.
type Registry struct {
	mu         sync.RWMutex
	spaces     map[unit.Side]*namespace
	schedulers map[unit.Side]*scheduler
	stopped    bool

	logger   ports.Logger
	metrics  ports.Metrics
	clock    ports.Clock
	interval time.Duration
	workers  int

	tasks *dispatcher
}

// NewRegistry creates an empty registry. It fails only when the task pool
// cannot be created.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		spaces:     make(map[unit.Side]*namespace, len(unit.Sides)),
		schedulers: make(map[unit.Side]*scheduler),
		logger:     ports.NopLogger{},
		metrics:    ports.NopMetrics{},
		clock:      ports.SystemClock{},
		interval:   DefaultTickInterval,
		workers:    DefaultWorkers,
	}
	for _, side := range unit.Sides {
		r.spaces[side] = newNamespace()
	}
	for _, opt := range opts {
		opt(r)
	}

	tasks, err := newDispatcher(r.workers, r.logger, r.metrics)
	if err != nil {
		return nil, err
	}
	r.tasks = tasks
	return r, nil
}

// TickInterval returns the client scheduler period.
func (r *Registry) TickInterval() time.Duration {
	return r.interval
}

// Register constructs a job and adds it under name on side. The first
// registration of a name wins.
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
	if _, exists := ns.entries[name]; exists || ns.reserved[name] {
		r.mu.Unlock()
		r.logger.Warn(ctx, "job already registered, keeping the first",
			ports.F("side", side.String()), ports.F("job", name))
		return &unit.RegistrationConflictError{Side: side, Name: name}
	}
	ns.reserved[name] = true
	r.mu.Unlock()

	var impl Job
	err := unit.Guard(func() error {
		var ctorErr error
		impl, ctorErr = ctor(name, side)
		return ctorErr
	})
	if err == nil && impl == nil {
		err = unit.ErrNilUnit
	}

	r.mu.Lock()
	delete(ns.reserved, name)
	if err == nil {
		ns.entries[name] = &entry{name: name, side: side, job: impl, queue: newTaskQueue()}
		ns.names = append(ns.names, name)
	}
	r.mu.Unlock()

	if err != nil {
		instErr := &unit.InstantiationError{Side: side, Name: name, Err: err}
		r.logger.Error(ctx, "job instantiation failed",
			ports.F("side", side.String()), ports.F("job", name), ports.Err(err))
		return instErr
	}

	r.logger.Debug(ctx, "job registered", ports.F("side", side.String()), ports.F("job", name))
	return nil
}

// RegisterClient registers a client-side job.
func (r *Registry) RegisterClient(name string, ctor Constructor) error {
	return r.Register(unit.SideClient, name, ctor)
}

// RegisterServer registers a server-side job.
func (r *Registry) RegisterServer(name string, ctor Constructor) error {
	return r.Register(unit.SideServer, name, ctor)
}

// Get returns the job registered under name on side.
func (r *Registry) Get(side unit.Side, name string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ns, ok := r.spaces[side]
	if !ok {
		return nil, false
	}
	e, ok := ns.entries[name]
	if !ok {
		return nil, false
	}
	return e.job, true
}

// Names returns the registered job names of a side in registration order.
func (r *Registry) Names(side unit.Side) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ns, ok := r.spaces[side]
	if !ok {
		return nil
	}
	return slices.Clone(ns.names)
}

// Statuses returns a snapshot of every job on a side in registration order.
func (r *Registry) Statuses(side unit.Side) []Status {
	entries := r.snapshot(side)

	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]Status, 0, len(entries))
	for _, e := range entries {
		statuses = append(statuses, Status{
			Name:        e.name,
			Side:        e.side,
			Manifest:    e.job.Manifest().Clone(),
			Initialized: e.initialized,
			Pending:     e.queue.Len(),
		})
	}
	return statuses
}

// snapshot returns the entries of a side in registration order.
func (r *Registry) snapshot(side unit.Side) []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ns, ok := r.spaces[side]
	if !ok {
		return nil
	}
	entries := make([]*entry, 0, len(ns.names))
	for _, name := range ns.names {
		entries = append(entries, ns.entries[name])
	}
	return entries
}

// Init runs Init on every job of a side in registration order. Failures are
// recorded and do not stop the pass. On the client side the periodic
// scheduler is started afterwards; the server side has no scheduler unless
// StartScheduler is called.
func (r *Registry) Init(ctx context.Context, side unit.Side) (*unit.PassReport, error) {
	report := unit.NewPassReport(side, "init")
	if !side.IsValid() {
		return report.Finish(), fmt.Errorf("%w: %q", unit.ErrUnknownSide, side)
	}

	entries := r.snapshot(side)
	r.logger.Info(ctx, "initializing jobs",
		ports.F("side", side.String()), ports.F("count", len(entries)))

	for _, e := range entries {
		r.mu.RLock()
		done := e.initialized
		r.mu.RUnlock()
		if done {
			report.Skip(e.name, "already initialized")
			continue
		}

		if err := unit.Guard(func() error { return e.job.Init(ctx) }); err != nil {
			hookErr := &unit.HookError{Side: side, Unit: e.name, Hook: HookInit, Err: err}
			report.Fail(hookErr)
			r.hookFailed(ctx, hookErr)
			continue
		}

		r.mu.Lock()
		e.initialized = true
		r.mu.Unlock()
		report.Succeed(e.name)
	}
	report.Finish()

	if side == unit.SideClient {
		if err := r.StartScheduler(ctx, side, r.interval); err != nil && !errors.Is(err, ErrSchedulerRunning) {
			return report, err
		}
	}

	r.logger.Info(ctx, "jobs initialized",
		ports.F("side", side.String()),
		ports.F("initialized", len(report.Succeeded)),
		ports.F("failed", len(report.Failed)))
	return report, nil
}

// InitClient initializes client-side jobs and starts the client scheduler.
func (r *Registry) InitClient(ctx context.Context) (*unit.PassReport, error) {
	return r.Init(ctx, unit.SideClient)
}

// InitServer initializes server-side jobs.
func (r *Registry) InitServer(ctx context.Context) (*unit.PassReport, error) {
	return r.Init(ctx, unit.SideServer)
}

// Tick performs one firing for a side: Tick on every registered job in
// registration order, then hands queued tasks to the worker pool. A failing
// job does not prevent later jobs from ticking.
func (r *Registry) Tick(ctx context.Context, side unit.Side) *unit.PassReport {
	report := unit.NewPassReport(side, "tick")
	start := r.clock.Now()

	entries := r.snapshot(side)
	for _, e := range entries {
		queue := e.queue
		if err := unit.Guard(func() error { return e.job.Tick(ctx, queue) }); err != nil {
			hookErr := &unit.HookError{Side: side, Unit: e.name, Hook: HookTick, Err: err}
			report.Fail(hookErr)
			r.hookFailed(ctx, hookErr)
			continue
		}
		report.Succeed(e.name)
	}

	for _, e := range entries {
		r.tasks.drain(e)
	}

	r.metrics.JobTick(side.String(), r.clock.Now().Sub(start))
	return report.Finish()
}

// ErrSchedulerRunning indicates a scheduler is already active for a side.
var ErrSchedulerRunning = errors.New("scheduler already running")

// ErrRegistryStopped indicates the registry was stopped.
var ErrRegistryStopped = errors.New("job registry stopped")

// StartScheduler starts a goroutine that calls Tick for side every period.
// The scheduler runs until Stop is called or ctx is done.
func (r *Registry) StartScheduler(ctx context.Context, side unit.Side, period time.Duration) error {
	if !side.IsValid() {
		return fmt.Errorf("%w: %q", unit.ErrUnknownSide, side)
	}
	if period <= 0 {
		return fmt.Errorf("scheduler period must be positive, got %s", period)
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrRegistryStopped
	}
	if _, running := r.schedulers[side]; running {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", side, ErrSchedulerRunning)
	}
	s := newScheduler(side, period)
	r.schedulers[side] = s
	r.mu.Unlock()

	go func() {
		s.run(ctx, r.clock, func(ctx context.Context) {
			r.Tick(ctx, side)
		})

		r.mu.Lock()
		if r.schedulers[side] == s {
			delete(r.schedulers, side)
		}
		r.mu.Unlock()
	}()

	r.logger.Info(ctx, "job scheduler started",
		ports.F("side", side.String()), ports.F("period", period.String()))
	return nil
}

// SchedulerRunning reports whether a scheduler is active for side.
func (r *Registry) SchedulerRunning(side unit.Side) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schedulers[side]
	return ok
}

// Stop stops every scheduler, waits for in-flight tasks until ctx is done,
// and releases the worker pool. The registry cannot be restarted.
func (r *Registry) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	schedulers := r.schedulers
	r.schedulers = make(map[unit.Side]*scheduler)
	r.mu.Unlock()

	var errs []error
	for _, side := range unit.Sides {
		s, ok := schedulers[side]
		if !ok {
			continue
		}
		if err := s.stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s scheduler: %w", side, err))
			continue
		}
		r.logger.Info(ctx, "job scheduler stopped", ports.F("side", side.String()))
	}

	if err := r.tasks.shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for job tasks: %w", err))
	}
	for _, side := range unit.Sides {
		for _, e := range r.snapshot(side) {
			e.queue.dispose()
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) hookFailed(ctx context.Context, err *unit.HookError) {
	r.metrics.HookFailure(err.Side.String(), "job", err.Hook)
	r.logger.Error(ctx, "job hook failed",
		ports.F("side", err.Side.String()),
		ports.F("job", err.Unit),
		ports.F("hook", err.Hook),
		ports.Err(err.Err))
}
