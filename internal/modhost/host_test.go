package modhost

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/modkernel/internal/alloc"
	"github.com/felixgeelhaar/modkernel/internal/apidb"
)

type counterAPI struct {
	Value func() int
}

// counterModule publishes counterAPI and counts its loads in a global.
func counterModule(name string, deps ...string) Desc {
	api := &counterAPI{}
	return Desc{
		Name:    name,
		Depends: deps,
		Entry: func(reg apidb.API, _ alloc.Allocator, load, reload bool) error {
			loads, err := apidb.GlobalOf(reg, name, "loads", 0)
			if err != nil {
				return err
			}
			if load {
				*loads++
			}
			api.Value = func() int { return *loads }
			apidb.SetOrRemoveOf(reg, name, apidb.LangGo, api, load, reload)
			return nil
		},
	}
}

func counterValue(t *testing.T, reg *apidb.DB, module string) int {
	t.Helper()
	api, err := apidb.GetAPIOf[counterAPI](reg, module, apidb.LangGo)
	require.NoError(t, err)
	return api.Value()
}

func TestHost_LoadAndUnload(t *testing.T) {
	reg := apidb.New(nil)
	h := New(reg, nil, Options{})
	require.NoError(t, h.Register(counterModule("counter")))

	require.NoError(t, h.Load(context.Background(), "counter"))
	assert.Equal(t, 1, counterValue(t, reg, "counter"))

	info, ok := h.Module("counter")
	require.True(t, ok)
	assert.Equal(t, StatusLoaded, info.Status)
	assert.NotZero(t, info.Generation)

	err := h.Load(context.Background(), "counter")
	assert.ErrorIs(t, err, ErrAlreadyLoaded)

	require.NoError(t, h.Unload(context.Background(), "counter"))
	assert.True(t, reg.Owned("counter").Empty(), "unload retracts everything, globals included")

	_, err = apidb.GetAPIOf[counterAPI](reg, "counter", apidb.LangGo)
	assert.ErrorIs(t, err, apidb.ErrNotFound)

	assert.ErrorIs(t, h.Unload(context.Background(), "counter"), ErrNotLoaded)
}

func TestHost_KeepGlobalsOnUnload(t *testing.T) {
	reg := apidb.New(nil)
	h := New(reg, nil, Options{KeepGlobalsOnUnload: true})
	require.NoError(t, h.Register(counterModule("counter")))

	ctx := context.Background()
	require.NoError(t, h.Load(ctx, "counter"))
	require.NoError(t, h.Unload(ctx, "counter"))
	assert.Equal(t, []string{"loads"}, reg.Owned("counter").Globals)

	require.NoError(t, h.Load(ctx, "counter"))
	assert.Equal(t, 2, counterValue(t, reg, "counter"))
}

func TestHost_ReloadKeepsGlobals(t *testing.T) {
	reg := apidb.New(nil)
	h := New(reg, nil, Options{})
	require.NoError(t, h.Register(counterModule("counter")))

	ctx := context.Background()
	require.NoError(t, h.Load(ctx, "counter"))
	before, _ := h.Module("counter")

	var sawReload []bool
	next := counterModule("counter")
	inner := next.Entry
	next.Entry = func(reg apidb.API, a alloc.Allocator, load, reload bool) error {
		sawReload = append(sawReload, reload)
		return inner(reg, a, load, reload)
	}
	require.NoError(t, h.Reload(ctx, next))

	assert.Equal(t, 2, counterValue(t, reg, "counter"))
	assert.Equal(t, []bool{true}, sawReload)

	after, _ := h.Module("counter")
	assert.NotEqual(t, before.Generation, after.Generation)
	assert.Equal(t, 2, after.Loads)
}

func TestHost_ReloadOfUnloadedModuleIsPlainLoad(t *testing.T) {
	reg := apidb.New(nil)
	h := New(reg, nil, Options{})
	require.NoError(t, h.Register(counterModule("counter")))

	var reloads []bool
	desc := counterModule("counter")
	inner := desc.Entry
	desc.Entry = func(reg apidb.API, a alloc.Allocator, load, reload bool) error {
		reloads = append(reloads, reload)
		return inner(reg, a, load, reload)
	}
	require.NoError(t, h.Reload(context.Background(), desc))
	assert.Equal(t, []bool{false}, reloads)
}

func TestHost_FailedLoadRetractsPartialRegistrations(t *testing.T) {
	reg := apidb.New(nil)
	h := New(reg, nil, Options{})

	boom := errors.New("missing resource")
	require.NoError(t, h.Register(Desc{
		Name: "broken",
		Entry: func(reg apidb.API, _ alloc.Allocator, load, _ bool) error {
			reg.SetAPI("broken", apidb.LangGo, "half", &counterAPI{}, 8)
			require.NoError(t, reg.Impl("broken", "some_i", &counterAPI{}))
			_, _ = reg.GlobalValue("broken", "state", 1)
			return boom
		},
	}))

	err := h.Load(context.Background(), "broken")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var modErr *ModuleError
	require.True(t, errors.As(err, &modErr))
	assert.Equal(t, "load", modErr.Op)

	assert.True(t, reg.Owned("broken").Empty())
	info, _ := h.Module("broken")
	assert.Equal(t, StatusFailed, info.Status)
	assert.ErrorIs(t, info.Err, boom)
}

func TestHost_FailedReloadKeepsGlobals(t *testing.T) {
	reg := apidb.New(nil)
	h := New(reg, nil, Options{})
	require.NoError(t, h.Register(counterModule("counter")))

	ctx := context.Background()
	require.NoError(t, h.Load(ctx, "counter"))
	require.NoError(t, h.Reload(ctx, counterModule("counter")))
	assert.Equal(t, 2, counterValue(t, reg, "counter"))

	boom := errors.New("bad build")
	err := h.Reload(ctx, Desc{
		Name: "counter",
		Entry: func(apidb.API, alloc.Allocator, bool, bool) error {
			return boom
		},
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"loads"}, reg.Owned("counter").Globals)

	var reloads []bool
	fixed := counterModule("counter")
	inner := fixed.Entry
	fixed.Entry = func(reg apidb.API, a alloc.Allocator, load, reload bool) error {
		reloads = append(reloads, reload)
		return inner(reg, a, load, reload)
	}
	require.NoError(t, h.Reload(ctx, fixed))

	assert.Equal(t, []bool{true}, reloads)
	assert.Equal(t, 3, counterValue(t, reg, "counter"))
}

func TestHost_EntryPanicFailsLoad(t *testing.T) {
	h := New(apidb.New(nil), nil, Options{})
	require.NoError(t, h.Register(Desc{
		Name: "panicky",
		Entry: func(apidb.API, alloc.Allocator, bool, bool) error {
			panic("nil map")
		},
	}))
	assert.ErrorIs(t, h.Load(context.Background(), "panicky"), ErrModulePanic)
}

func TestHost_RegisterValidation(t *testing.T) {
	h := New(apidb.New(nil), nil, Options{})

	assert.ErrorIs(t, h.Register(Desc{Entry: counterModule("x").Entry}), ErrInvalidModule)
	assert.ErrorIs(t, h.Register(Desc{Name: "x"}), ErrInvalidModule)

	require.NoError(t, h.Register(counterModule("x")))
	assert.ErrorIs(t, h.Register(counterModule("x")), ErrAlreadyRegistered)
	assert.ErrorIs(t, h.Load(context.Background(), "y"), ErrModuleNotFound)
}

func TestHost_LoadAllFollowsDependencies(t *testing.T) {
	reg := apidb.New(nil)
	h := New(reg, nil, Options{})

	var order []string
	trace := func(d Desc) Desc {
		inner := d.Entry
		d.Entry = func(reg apidb.API, a alloc.Allocator, load, reload bool) error {
			if load {
				order = append(order, d.Name)
			} else {
				order = append(order, "-"+d.Name)
			}
			return inner(reg, a, load, reload)
		}
		return d
	}
	require.NoError(t, h.Register(trace(counterModule("app", "render", "core"))))
	require.NoError(t, h.Register(trace(counterModule("render", "core"))))
	require.NoError(t, h.Register(trace(counterModule("core"))))

	ctx := context.Background()
	require.NoError(t, h.LoadAll(ctx))
	assert.Equal(t, []string{"core", "render", "app"}, order)

	order = nil
	require.NoError(t, h.UnloadAll(ctx))
	assert.Equal(t, []string{"-app", "-render", "-core"}, order)
}

func TestHost_LoadAllSkipsDependentsOfFailures(t *testing.T) {
	h := New(apidb.New(nil), nil, Options{})
	require.NoError(t, h.Register(Desc{
		Name: "core",
		Entry: func(apidb.API, alloc.Allocator, bool, bool) error {
			return errors.New("no device")
		},
	}))
	require.NoError(t, h.Register(counterModule("app", "core")))
	require.NoError(t, h.Register(counterModule("standalone")))

	err := h.LoadAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependency)

	app, _ := h.Module("app")
	assert.Equal(t, StatusFailed, app.Status)
	standalone, _ := h.Module("standalone")
	assert.Equal(t, StatusLoaded, standalone.Status)
}

func TestHost_LoadAllRejectsCycles(t *testing.T) {
	h := New(apidb.New(nil), nil, Options{})
	require.NoError(t, h.Register(counterModule("a", "b")))
	require.NoError(t, h.Register(counterModule("b", "a")))

	err := h.LoadAll(context.Background())
	assert.ErrorIs(t, err, ErrDependency)
}

func TestHost_Hooks(t *testing.T) {
	reg := apidb.New(nil)
	h := New(reg, nil, Options{})

	var events []string
	h.SetHooks(Hooks{
		OnLoaded: func(_ context.Context, module string, reload bool) error {
			if module == "vetoed" {
				return errors.New("vetoed")
			}
			events = append(events, "loaded:"+module)
			return nil
		},
		OnUnloading: func(_ context.Context, module string, reload bool) {
			events = append(events, "unloading:"+module)
		},
	})
	require.NoError(t, h.Register(counterModule("ok")))
	require.NoError(t, h.Register(counterModule("vetoed")))

	ctx := context.Background()
	require.NoError(t, h.Load(ctx, "ok"))
	require.NoError(t, h.Unload(ctx, "ok"))

	err := h.Load(ctx, "vetoed")
	require.Error(t, err)
	assert.True(t, reg.Owned("vetoed").Empty())

	assert.Equal(t, []string{"loaded:ok", "unloading:ok", "unloading:vetoed"}, events)
}

type closeCounter struct{ closed int }

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestHost_UnregisterAndClose(t *testing.T) {
	h := New(apidb.New(nil), nil, Options{})
	artifact := &closeCounter{}

	h.mu.Lock()
	require.NoError(t, h.registerLocked(counterModule("a"), nil, artifact))
	h.mu.Unlock()
	require.NoError(t, h.Register(counterModule("b")))

	ctx := context.Background()
	require.NoError(t, h.Load(ctx, "a"))
	assert.ErrorIs(t, h.Unregister("a"), ErrAlreadyLoaded)

	require.NoError(t, h.Close(ctx))
	assert.Equal(t, 1, artifact.closed)

	require.NoError(t, h.Unregister("a"))
	assert.Equal(t, 1, artifact.closed, "artifact is released once")
	assert.Len(t, h.Modules(), 1)
}
