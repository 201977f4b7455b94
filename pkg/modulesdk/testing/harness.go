// Package testing runs modules built with modulesdk the way the kernel
// would, without starting a kernel.
//
// Example usage:
//
//	func TestPhysics(t *testing.T) {
//		h := moduletesting.NewRPCHarness(t, newPhysics())
//		require.NoError(t, h.Init())
//		require.NoError(t, h.Tick(16*time.Millisecond))
//	}
package testing

import (
	"errors"
	"fmt"
	stdtesting "testing"
	"time"

	"github.com/hashicorp/go-plugin"

	"github.com/felixgeelhaar/modkernel/internal/kernel"
	"github.com/felixgeelhaar/modkernel/internal/modhost/remote"
	"github.com/felixgeelhaar/modkernel/internal/toposort"
)

// ErrNotInitialized is returned by Tick before Init.
var ErrNotInitialized = errors.New("module not initialized")

// Harness drives a module: lifecycle tasks in dependency order, update tasks
// phase by phase.
type Harness struct {
	mod         remote.Module
	info        remote.Info
	tick        uint64
	initialized []string
}

// NewHarness drives mod in-process.
func NewHarness(mod remote.Module) *Harness {
	return &Harness{mod: mod}
}

// NewRPCHarness drives mod through an in-memory RPC connection, so every
// call crosses the same encoding as in production.
func NewRPCHarness(t *stdtesting.T, mod remote.Module) *Harness {
	t.Helper()
	client, _ := plugin.TestPluginRPCConn(t, remote.PluginMap(mod), nil)
	t.Cleanup(func() { _ = client.Close() })

	raw, err := client.Dispense(remote.PluginName)
	if err != nil {
		t.Fatalf("dispense module: %v", err)
	}
	return &Harness{mod: raw.(remote.Module)}
}

// Info returns what the module described at Init.
func (h *Harness) Info() remote.Info {
	return h.info
}

// TickCount returns the number of ticks run.
func (h *Harness) TickCount() uint64 {
	return h.tick
}

// Init describes the module and initializes its lifecycle tasks.
func (h *Harness) Init() error {
	info, err := h.mod.Describe()
	if err != nil {
		return fmt.Errorf("describe: %w", err)
	}
	h.info = info

	var lifecycle []remote.TaskInfo
	for _, t := range info.Tasks {
		if t.Lifecycle {
			lifecycle = append(lifecycle, t)
		}
	}
	ordered, err := order(lifecycle)
	if err != nil {
		return err
	}
	for _, t := range ordered {
		if err := h.mod.Init(t.Name); err != nil {
			return fmt.Errorf("init %s: %w", t.Name, err)
		}
		h.initialized = append(h.initialized, t.Name)
	}
	if h.initialized == nil {
		h.initialized = []string{}
	}
	return nil
}

// Tick runs every update task once with the next tick number and dt.
func (h *Harness) Tick(dt time.Duration) error {
	if h.initialized == nil {
		return ErrNotInitialized
	}
	h.tick++

	var errs []error
	for _, phase := range kernel.DefaultPhases {
		var tasks []remote.TaskInfo
		for _, t := range h.info.Tasks {
			if !t.Lifecycle && t.Phase == phase {
				tasks = append(tasks, t)
			}
		}
		ordered, err := order(tasks)
		if err != nil {
			errs = append(errs, fmt.Errorf("phase %s: %w", phase, err))
			continue
		}
		for _, t := range ordered {
			if err := h.mod.Update(t.Name, h.tick, dt); err != nil {
				errs = append(errs, fmt.Errorf("task %s: %w", t.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Shutdown shuts lifecycle tasks down in reverse init order.
func (h *Harness) Shutdown() error {
	var errs []error
	for i := len(h.initialized) - 1; i >= 0; i-- {
		if err := h.mod.Shutdown(h.initialized[i]); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", h.initialized[i], err))
		}
	}
	h.initialized = nil
	return errors.Join(errs...)
}

func order(tasks []remote.TaskInfo) ([]remote.TaskInfo, error) {
	nodes := make([]toposort.Node[string], len(tasks))
	for i, t := range tasks {
		nodes[i] = toposort.Node[string]{Key: t.Name, Name: t.Name, Depends: t.Depends}
	}
	idx, err := toposort.Sort(nodes)
	if err != nil {
		return nil, err
	}
	out := make([]remote.TaskInfo, len(idx))
	for i, j := range idx {
		out[i] = tasks[j]
	}
	return out, nil
}
