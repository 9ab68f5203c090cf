package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
	"github.com/felixgeelhaar/pluginhost/internal/ports"
)

// Phase is the lifecycle position of a plugin instance.
type Phase string

const (
	stateCreated  = "created"
	stateLoaded   = "loaded"
	stateEnabled  = "enabled"
	stateDisabled = "disabled"
	stateUnloaded = "unloaded"
)

const (
	// PhaseCreated indicates the plugin was constructed but never loaded.
	PhaseCreated Phase = stateCreated
	// PhaseLoaded indicates the load hook succeeded.
	PhaseLoaded Phase = stateLoaded
	// PhaseEnabled indicates the plugin is active.
	PhaseEnabled Phase = stateEnabled
	// PhaseDisabled indicates the plugin was enabled and then disabled.
	PhaseDisabled Phase = stateDisabled
	// PhaseUnloaded is terminal.
	PhaseUnloaded Phase = stateUnloaded
)

// Event types for the lifecycle state machine.
const (
	EventLoad    = "LOAD"
	EventEnable  = "ENABLE"
	EventDisable = "DISABLE"
	EventUnload  = "UNLOAD"
)

// Hook names reported in unit.HookError.
const (
	HookLoad    = "load"
	HookEnable  = "enable"
	HookDisable = "disable"
	HookUnload  = "unload"
)

// machineContext is the statekit context type. Timestamps live on the
// Instance itself; entry actions write them through a captured pointer.
type machineContext struct{}

// Status is a point-in-time view of an instance.
type Status struct {
	Name       string         `json:"name"`
	Side       unit.Side      `json:"side"`
	Phase      Phase          `json:"phase"`
	Enabled    bool           `json:"enabled"`
	Manifest   *unit.Manifest `json:"manifest,omitempty"`
	LoadedAt   time.Time      `json:"loaded_at,omitzero"`
	EnabledAt  time.Time      `json:"enabled_at,omitzero"`
	DisabledAt time.Time      `json:"disabled_at,omitzero"`
	LastError  string         `json:"last_error,omitempty"`
}

// Instance wraps a Plugin with its lifecycle state.
//
// Operations are serialized per instance. Hooks run without the state lock
// held, so a hook may read its own Status.
type Instance struct {
	name   string
	side   unit.Side
	impl   Plugin
	logger ports.Logger

	opMu sync.Mutex

	mu         sync.RWMutex
	interp     *statekit.Interpreter[machineContext]
	enabled    bool
	loadedAt   time.Time
	enabledAt  time.Time
	disabledAt time.Time
	lastErr    error
}

// NewInstance wraps impl. The logger may be nil.
func NewInstance(side unit.Side, name string, impl Plugin, logger ports.Logger) (*Instance, error) {
	if impl == nil {
		return nil, unit.ErrNilUnit
	}
	if logger == nil {
		logger = ports.NopLogger{}
	}

	inst := &Instance{
		name:   name,
		side:   side,
		impl:   impl,
		logger: logger.With(ports.F("side", side.String()), ports.F("plugin", name)),
	}

	interp, err := buildLifecycleMachine(inst)
	if err != nil {
		return nil, fmt.Errorf("building lifecycle machine for %q: %w", name, err)
	}
	inst.interp = interp
	inst.interp.Start()

	return inst, nil
}

// buildLifecycleMachine constructs the plugin lifecycle using statekit.
// Entry actions run inside Send, which is only called with inst.mu held.
func buildLifecycleMachine(inst *Instance) (*statekit.Interpreter[machineContext], error) {
	machine, err := statekit.NewMachine[machineContext]("plugin-lifecycle").
		WithInitial(stateCreated).
		WithContext(machineContext{}).
		WithAction("recordLoaded", func(_ *machineContext, _ statekit.Event) {
			inst.loadedAt = time.Now()
		}).
		WithAction("recordEnabled", func(_ *machineContext, _ statekit.Event) {
			inst.enabled = true
			inst.enabledAt = time.Now()
		}).
		WithAction("recordDisabled", func(_ *machineContext, _ statekit.Event) {
			inst.enabled = false
			inst.disabledAt = time.Now()
		}).
		WithAction("recordUnloaded", func(_ *machineContext, _ statekit.Event) {
			inst.enabled = false
		}).
		State(stateCreated).
		On(EventLoad).Target(stateLoaded).
		On(EventUnload).Target(stateUnloaded).Done().

		State(stateLoaded).
		OnEntry("recordLoaded").
		On(EventEnable).Target(stateEnabled).
		On(EventUnload).Target(stateUnloaded).Done().

		State(stateEnabled).
		OnEntry("recordEnabled").
		On(EventDisable).Target(stateDisabled).Done().

		State(stateDisabled).
		OnEntry("recordDisabled").
		On(EventEnable).Target(stateEnabled).
		On(EventUnload).Target(stateUnloaded).Done().

		State(stateUnloaded).
		OnEntry("recordUnloaded").Done().
		Build()
	if err != nil {
		return nil, err
	}

	return statekit.NewInterpreter(machine), nil
}

// Name returns the registry key.
func (i *Instance) Name() string {
	return i.name
}

// Side returns the namespace the instance belongs to.
func (i *Instance) Side() unit.Side {
	return i.side
}

// Plugin returns the wrapped implementation.
func (i *Instance) Plugin() Plugin {
	return i.impl
}

// Manifest returns the live manifest of the wrapped plugin.
func (i *Instance) Manifest() *unit.Manifest {
	return i.impl.Manifest()
}

// API returns the wrapped plugin's API value.
func (i *Instance) API() any {
	return i.impl.API()
}

// Phase returns the current lifecycle phase.
func (i *Instance) Phase() Phase {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return Phase(i.interp.State().Value)
}

// Enabled reports whether the plugin is active.
func (i *Instance) Enabled() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.enabled
}

// LastError returns the most recent hook failure, if any.
func (i *Instance) LastError() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastErr
}

// Status returns a snapshot of the instance.
func (i *Instance) Status() Status {
	i.mu.RLock()
	defer i.mu.RUnlock()

	s := Status{
		Name:       i.name,
		Side:       i.side,
		Phase:      Phase(i.interp.State().Value),
		Enabled:    i.enabled,
		Manifest:   i.impl.Manifest().Clone(),
		LoadedAt:   i.loadedAt,
		EnabledAt:  i.enabledAt,
		DisabledAt: i.disabledAt,
	}
	if i.lastErr != nil {
		s.LastError = i.lastErr.Error()
	}
	return s
}

// Load runs the load hook. It is valid exactly once, from the created phase.
func (i *Instance) Load(ctx context.Context) error {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	if phase := i.Phase(); phase != PhaseCreated {
		return i.transitionError(phase, EventLoad)
	}

	i.logger.Debug(ctx, "loading plugin")
	if err := i.runHook(ctx, HookLoad, i.impl.OnLoad); err != nil {
		return err
	}
	i.send(statekit.Event{Type: EventLoad})
	i.logger.Debug(ctx, "plugin loaded")
	return nil
}

// Enable runs the enable hook unless the plugin is already enabled.
func (i *Instance) Enable(ctx context.Context) error {
	i.opMu.Lock()
	defer i.opMu.Unlock()
	return i.enable(ctx)
}

func (i *Instance) enable(ctx context.Context) error {
	if i.Enabled() {
		i.logger.Debug(ctx, "plugin already enabled")
		return nil
	}

	switch phase := i.Phase(); phase {
	case PhaseLoaded, PhaseDisabled:
	default:
		return i.transitionError(phase, EventEnable)
	}

	i.logger.Debug(ctx, "enabling plugin")
	if err := i.runHook(ctx, HookEnable, i.impl.OnEnable); err != nil {
		return err
	}
	i.send(statekit.Event{Type: EventEnable})
	i.logger.Info(ctx, "plugin enabled")
	return nil
}

// Disable runs the disable hook if the plugin is enabled, and is a no-op otherwise.
func (i *Instance) Disable(ctx context.Context) error {
	i.opMu.Lock()
	defer i.opMu.Unlock()
	return i.disable(ctx)
}

func (i *Instance) disable(ctx context.Context) error {
	if !i.Enabled() {
		i.logger.Debug(ctx, "plugin already disabled")
		return nil
	}

	i.logger.Debug(ctx, "disabling plugin")
	if err := i.runHook(ctx, HookDisable, i.impl.OnDisable); err != nil {
		return err
	}
	i.send(statekit.Event{Type: EventDisable})
	i.logger.Info(ctx, "plugin disabled")
	return nil
}

// Unload disables the plugin if needed and then runs the unload hook.
// Unloading is terminal.
func (i *Instance) Unload(ctx context.Context) error {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	if phase := i.Phase(); phase == PhaseUnloaded {
		return i.transitionError(phase, EventUnload)
	}

	if err := i.disable(ctx); err != nil {
		return err
	}

	i.logger.Debug(ctx, "unloading plugin")
	if err := i.runHook(ctx, HookUnload, i.impl.OnUnload); err != nil {
		return err
	}
	i.send(statekit.Event{Type: EventUnload})
	i.logger.Debug(ctx, "plugin unloaded")
	return nil
}

func (i *Instance) runHook(ctx context.Context, hook string, fn func(context.Context) error) error {
	err := unit.Guard(func() error { return fn(ctx) })
	if err == nil {
		return nil
	}

	hookErr := &unit.HookError{Side: i.side, Unit: i.name, Hook: hook, Err: err}
	i.mu.Lock()
	i.lastErr = hookErr
	i.mu.Unlock()
	return hookErr
}

func (i *Instance) send(event statekit.Event) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.interp.Send(event)
}

func (i *Instance) transitionError(from Phase, event string) error {
	return &TransitionError{Side: i.side, Unit: i.name, From: from, Event: event}
}
