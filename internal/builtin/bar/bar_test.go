package bar

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/modkernel/internal/apidb"
	"github.com/felixgeelhaar/modkernel/internal/builtin/core"
	"github.com/felixgeelhaar/modkernel/internal/builtin/foo"
	"github.com/felixgeelhaar/modkernel/internal/builtin/inspector"
	"github.com/felixgeelhaar/modkernel/internal/cdb"
	"github.com/felixgeelhaar/modkernel/internal/kernel"
	"github.com/felixgeelhaar/modkernel/internal/modhost"
)

type system struct {
	reg    *apidb.DB
	db     *cdb.DB
	kernel *kernel.Kernel
	host   *modhost.Host
}

func boot(t *testing.T) *system {
	t.Helper()
	reg := apidb.New(nil)
	db := cdb.New(nil)
	k := kernel.New(reg, db, nil, nil, kernel.DefaultConfig())
	h := modhost.New(reg, nil, modhost.Options{
		Hooks: modhost.Hooks{OnLoaded: k.ModuleLoaded, OnUnloading: k.ModuleUnloading},
	})

	// Registered consumer first: load order comes from dependencies.
	require.NoError(t, h.Register(Module(Options{})))
	require.NoError(t, h.Register(foo.Module()))
	require.NoError(t, h.Register(core.Module(nil)))

	ctx := context.Background()
	require.NoError(t, h.LoadAll(ctx))
	require.NoError(t, k.Boot(ctx))
	return &system{reg: reg, db: db, kernel: k, host: h}
}

func (s *system) global(t *testing.T) *G {
	t.Helper()
	g, err := apidb.GlobalOf(s.reg, ModuleName, "_g", G{})
	require.NoError(t, err)
	return g
}

func (s *system) ticks(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.kernel.Tick(context.Background()))
	}
}

func TestBar_UpdatesStateEveryTick(t *testing.T) {
	s := boot(t)
	s.ticks(t, 3)

	g := s.global(t)
	assert.Equal(t, uint32(3), g.Var1)
	require.True(t, s.db.Exists(g.State))

	var1, err := s.db.GetU32(g.State, PropVar1)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), var1)
	last, err := s.db.GetF32(g.State, PropLastFoo)
	require.NoError(t, err)
	assert.Equal(t, float32(84), last)
	label, err := s.db.GetStr(g.State, PropLabel)
	require.NoError(t, err)
	assert.Equal(t, "bar", label)

	fooAPI, err := apidb.GetAPIOf[foo.API](s.reg, foo.ModuleName, apidb.LangGo)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), fooAPI.Calls())
}

func TestBar_StateRendersThroughAspect(t *testing.T) {
	s := boot(t)
	s.ticks(t, 2)

	var out bytes.Buffer
	in := inspector.New(s.reg, nil)
	require.NoError(t, in.Properties(s.db, s.global(t).State, cdb.PropertiesArgs{Out: &out}))
	assert.Equal(t, "bar: var1=2 foo=84.0 at tick 2\n", out.String())
}

func TestBar_ReloadKeepsCounterAndState(t *testing.T) {
	s := boot(t)
	s.ticks(t, 2)
	state := s.global(t).State

	require.NoError(t, s.host.Reload(context.Background(), Module(Options{SpamLog: true})))
	assert.Equal(t, []string{KernelTaskName}, s.kernel.LifecycleTasks(), "surviving task is not re-initialized")

	s.ticks(t, 1)
	g := s.global(t)
	assert.Equal(t, uint32(3), g.Var1)
	assert.Equal(t, state, g.State)

	var out bytes.Buffer
	require.NoError(t, inspector.New(s.reg, nil).Properties(s.db, g.State, cdb.PropertiesArgs{Out: &out}))
	assert.Equal(t, "bar: var1=3 foo=84.0 at tick 3\n", out.String())

	aspects := s.reg.Impls(cdb.AspectInterface(cdb.PropertiesAspectName, state.Type))
	assert.Len(t, aspects, 1)
}

func TestBar_MissingFooFailsUpdate(t *testing.T) {
	s := boot(t)
	require.NoError(t, s.host.Unload(context.Background(), foo.ModuleName))

	err := s.kernel.Tick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apidb.ErrNotFound)

	var taskErr *kernel.TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, UpdateTaskName, taskErr.Task)
}

func TestBar_UnloadDestroysState(t *testing.T) {
	s := boot(t)
	s.ticks(t, 1)
	state := s.global(t).State

	require.NoError(t, s.host.Unload(context.Background(), ModuleName))
	assert.False(t, s.db.Exists(state))
	assert.Empty(t, s.reg.Impls(cdb.AspectInterface(cdb.PropertiesAspectName, state.Type)))
	assert.True(t, s.reg.Owned(ModuleName).Empty())
}

func TestBar_LoadFailsWithoutCore(t *testing.T) {
	reg := apidb.New(nil)
	h := modhost.New(reg, nil, modhost.Options{})
	require.NoError(t, h.Register(Module(Options{})))

	err := h.Load(context.Background(), ModuleName)
	assert.ErrorIs(t, err, apidb.ErrNotFound)
	assert.True(t, reg.Owned(ModuleName).Empty())
}
