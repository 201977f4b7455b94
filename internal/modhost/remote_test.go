package modhost

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/modkernel/internal/apidb"
	"github.com/felixgeelhaar/modkernel/internal/cdb"
	"github.com/felixgeelhaar/modkernel/internal/kernel"
	"github.com/felixgeelhaar/modkernel/internal/modhost/remote"
)

type fakeRemote struct {
	mu      sync.Mutex
	calls   []string
	ticks   []uint64
	failing bool
}

func (f *fakeRemote) Describe() (remote.Info, error) {
	return remote.Info{
		Name:    "physics",
		Version: "0.1.0",
		Tasks: []remote.TaskInfo{
			{Name: "physics.world", Lifecycle: true},
			{Name: "physics.integrate", Phase: kernel.OnUpdate},
			{Name: "physics.collide", Phase: kernel.OnUpdate, Depends: []string{"physics.integrate"}},
		},
	}, nil
}

func (f *fakeRemote) Update(task string, tick uint64, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("solver diverged")
	}
	f.calls = append(f.calls, "update:"+task)
	f.ticks = append(f.ticks, tick)
	return nil
}

func (f *fakeRemote) Init(task string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "init:"+task)
	return nil
}

func (f *fakeRemote) Shutdown(task string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "shutdown:"+task)
	return nil
}

func (f *fakeRemote) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func dispenseRemote(t *testing.T, impl remote.Module) remote.Module {
	t.Helper()
	client, _ := plugin.TestPluginRPCConn(t, remote.PluginMap(impl), nil)
	t.Cleanup(func() { client.Close() })

	raw, err := client.Dispense(remote.PluginName)
	require.NoError(t, err)
	mod, ok := raw.(remote.Module)
	require.True(t, ok)
	return mod
}

func TestRemote_DescribeOverRPC(t *testing.T) {
	mod := dispenseRemote(t, &fakeRemote{})

	info, err := mod.Describe()
	require.NoError(t, err)
	assert.Equal(t, "physics", info.Name)
	require.Len(t, info.Tasks, 3)
	assert.True(t, info.Tasks[0].Lifecycle)
	assert.Equal(t, []string{"physics.integrate"}, info.Tasks[2].Depends)
}

func TestRemote_ProxyTasksRunInKernel(t *testing.T) {
	impl := &fakeRemote{}
	mod := dispenseRemote(t, impl)
	info, err := mod.Describe()
	require.NoError(t, err)

	reg := apidb.New(nil)
	k := kernel.New(reg, cdb.New(nil), nil, nil, kernel.DefaultConfig())
	h := New(reg, nil, Options{Hooks: Hooks{OnLoaded: k.ModuleLoaded, OnUnloading: k.ModuleUnloading}})

	ctx := context.Background()
	require.NoError(t, h.Register(RemoteDesc(info, mod, nil)))
	require.NoError(t, h.Load(ctx, "physics"))
	require.NoError(t, k.Boot(ctx))
	require.NoError(t, k.Tick(ctx))

	assert.Equal(t, []string{
		"init:physics.world",
		"update:physics.integrate",
		"update:physics.collide",
	}, impl.snapshot())
	assert.Equal(t, []uint64{1, 1}, impl.ticks)

	require.NoError(t, h.Unload(ctx, "physics"))
	assert.Equal(t, "shutdown:physics.world", impl.snapshot()[3])
	assert.True(t, reg.Owned("physics").Empty())

	phases, _ := k.Plan()
	for _, p := range phases {
		assert.Empty(t, p.Tasks)
	}
}

func TestRemote_UpdateErrorsReachTheKernel(t *testing.T) {
	impl := &fakeRemote{failing: true}
	mod := dispenseRemote(t, impl)
	info, err := mod.Describe()
	require.NoError(t, err)

	reg := apidb.New(nil)
	k := kernel.New(reg, cdb.New(nil), nil, nil, kernel.DefaultConfig())
	h := New(reg, nil, Options{})
	require.NoError(t, h.Register(RemoteDesc(info, mod, nil)))
	require.NoError(t, h.Load(context.Background(), "physics"))

	err = k.Tick(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "solver diverged")

	var taskErr *kernel.TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "physics.integrate", taskErr.Task)
}
