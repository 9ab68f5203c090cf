package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/pluginhost/internal/domain/unit"
)

func newTestInstance(t *testing.T, p Plugin) *Instance {
	t.Helper()
	inst, err := NewInstance(unit.SideServer, "p", p, nil)
	require.NoError(t, err)
	return inst
}

func TestNewInstance_NilPlugin(t *testing.T) {
	_, err := NewInstance(unit.SideServer, "p", nil, nil)
	assert.ErrorIs(t, err, unit.ErrNilUnit)
}

func TestInstance_Lifecycle(t *testing.T) {
	ctx := context.Background()
	log := &journal{}
	inst := newTestInstance(t, newFake("p", log))

	assert.Equal(t, PhaseCreated, inst.Phase())
	assert.False(t, inst.Enabled())

	require.NoError(t, inst.Load(ctx))
	assert.Equal(t, PhaseLoaded, inst.Phase())
	assert.False(t, inst.Status().LoadedAt.IsZero())

	require.NoError(t, inst.Enable(ctx))
	assert.Equal(t, PhaseEnabled, inst.Phase())
	assert.True(t, inst.Enabled())

	require.NoError(t, inst.Disable(ctx))
	assert.Equal(t, PhaseDisabled, inst.Phase())
	assert.False(t, inst.Enabled())

	require.NoError(t, inst.Enable(ctx))
	assert.True(t, inst.Enabled())

	require.NoError(t, inst.Unload(ctx))
	assert.Equal(t, PhaseUnloaded, inst.Phase())
	assert.False(t, inst.Enabled())

	assert.Equal(t, []string{
		"load:p", "enable:p", "disable:p", "enable:p", "disable:p", "unload:p",
	}, log.all())
}

func TestInstance_EnableIsIdempotent(t *testing.T) {
	ctx := context.Background()
	log := &journal{}
	inst := newTestInstance(t, newFake("p", log))

	require.NoError(t, inst.Load(ctx))
	require.NoError(t, inst.Enable(ctx))
	require.NoError(t, inst.Enable(ctx))

	assert.Equal(t, 1, log.count("enable:p"))
	assert.True(t, inst.Enabled())
}

func TestInstance_DisableWhenNotEnabled(t *testing.T) {
	ctx := context.Background()
	log := &journal{}
	inst := newTestInstance(t, newFake("p", log))

	require.NoError(t, inst.Disable(ctx))
	require.NoError(t, inst.Load(ctx))
	require.NoError(t, inst.Disable(ctx))

	assert.Zero(t, log.count("disable:p"))
	assert.Equal(t, PhaseLoaded, inst.Phase())
}

func TestInstance_LoadOnlyOnce(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t, newFake("p", &journal{}))

	require.NoError(t, inst.Load(ctx))
	err := inst.Load(ctx)
	require.Error(t, err)
	assert.True(t, IsTransitionError(err))
	assert.Contains(t, err.Error(), "cannot load from phase loaded")
}

func TestInstance_EnableBeforeLoad(t *testing.T) {
	inst := newTestInstance(t, newFake("p", &journal{}))

	err := inst.Enable(context.Background())
	assert.True(t, IsTransitionError(err))
	assert.Equal(t, PhaseCreated, inst.Phase())
}

func TestInstance_UnloadNeverLoaded(t *testing.T) {
	ctx := context.Background()
	log := &journal{}
	inst := newTestInstance(t, newFake("p", log))

	require.NoError(t, inst.Unload(ctx))
	assert.Equal(t, PhaseUnloaded, inst.Phase())
	assert.Equal(t, []string{"unload:p"}, log.all())

	assert.True(t, IsTransitionError(inst.Unload(ctx)))
	assert.True(t, IsTransitionError(inst.Load(ctx)))
}

func TestInstance_UnloadDisablesFirst(t *testing.T) {
	ctx := context.Background()
	log := &journal{}
	inst := newTestInstance(t, newFake("p", log))

	require.NoError(t, inst.Load(ctx))
	require.NoError(t, inst.Enable(ctx))
	require.NoError(t, inst.Unload(ctx))

	assert.Equal(t, []string{"load:p", "enable:p", "disable:p", "unload:p"}, log.all())
}

func TestInstance_HookFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("error keeps phase", func(t *testing.T) {
		p := newFake("p", &journal{})
		p.failOn[HookLoad] = errBoom
		inst := newTestInstance(t, p)

		err := inst.Load(ctx)
		require.Error(t, err)
		assert.True(t, unit.IsHookFailure(err))
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, PhaseCreated, inst.Phase())
		assert.Contains(t, inst.Status().LastError, "boom")
	})

	t.Run("enable failure leaves plugin disabled", func(t *testing.T) {
		p := newFake("p", &journal{})
		p.failOn[HookEnable] = errBoom
		inst := newTestInstance(t, p)

		require.NoError(t, inst.Load(ctx))
		require.Error(t, inst.Enable(ctx))
		assert.False(t, inst.Enabled())
		assert.Equal(t, PhaseLoaded, inst.Phase())
	})

	t.Run("panic becomes hook error", func(t *testing.T) {
		p := newFake("p", &journal{})
		p.panicOn = HookLoad
		inst := newTestInstance(t, p)

		err := inst.Load(ctx)
		require.Error(t, err)
		assert.True(t, unit.IsHookFailure(err))

		var panicErr *unit.PanicError
		require.ErrorAs(t, err, &panicErr)
		assert.Equal(t, "load exploded", panicErr.Value)
	})
}

func TestInstance_Status(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t, newFake("p", &journal{}, "dep"))

	require.NoError(t, inst.Load(ctx))
	require.NoError(t, inst.Enable(ctx))

	s := inst.Status()
	assert.Equal(t, "p", s.Name)
	assert.Equal(t, unit.SideServer, s.Side)
	assert.Equal(t, PhaseEnabled, s.Phase)
	assert.True(t, s.Enabled)
	require.NotNil(t, s.Manifest)
	assert.Equal(t, []string{"dep"}, s.Manifest.Dependencies)
	assert.False(t, s.EnabledAt.IsZero())
	assert.Empty(t, s.LastError)

	s.Manifest.Dependencies[0] = "mutated"
	assert.Equal(t, []string{"dep"}, inst.Manifest().Dependencies)
}

func TestBase_Defaults(t *testing.T) {
	var b Base
	ctx := context.Background()

	assert.Nil(t, b.Manifest())
	assert.Nil(t, b.API())
	assert.NoError(t, b.OnLoad(ctx))
	assert.NoError(t, b.OnEnable(ctx))
	assert.NoError(t, b.OnDisable(ctx))
	assert.NoError(t, b.OnUnload(ctx))
}
