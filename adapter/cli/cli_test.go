package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/modkernel/internal/app"
	"github.com/felixgeelhaar/modkernel/internal/cdb"
	"github.com/felixgeelhaar/modkernel/internal/modhost"
	"github.com/felixgeelhaar/modkernel/pkg/config"
)

func newContainer(t *testing.T) *app.Container {
	t.Helper()
	cfg := &config.Config{Env: "development", TickRate: time.Millisecond}
	c, err := app.NewContainer(context.Background(), cfg, nil, app.Options{SkipDiscovery: true})
	require.NoError(t, err)
	SetContainer(c)
	t.Cleanup(func() {
		SetContainer(nil)
		_ = c.Close(context.Background())
	})
	return c
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := ExecuteContext(context.Background())
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "modkernel "+Version)
	assert.Contains(t, out, modhost.KernelVersion)
}

func TestRunCommand(t *testing.T) {
	c := newContainer(t)

	out, err := execute(t, "run", "--ticks", "2", "--rate", "1ms")
	require.NoError(t, err)
	assert.Contains(t, out, "stopped after 2 ticks")
	assert.Equal(t, uint64(2), c.Kernel.TickCount())
}

func TestModulesListCommand(t *testing.T) {
	newContainer(t)

	out, err := execute(t, "modules", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "core [loaded] (built-in)")
	assert.Contains(t, out, "bar [loaded] (built-in)")
	assert.Contains(t, out, "depends: core, foo")
	assert.Contains(t, out, "Total: 4 modules")
}

func TestModulesListCommand_Verbose(t *testing.T) {
	newContainer(t)
	t.Cleanup(func() { verbose = false })

	out, err := execute(t, "modules", "list", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "loads: 1  generation: ")
}

func TestModulesReloadCommand_BuiltinHasNoSource(t *testing.T) {
	newContainer(t)

	_, err := execute(t, "modules", "reload", "bar")
	assert.ErrorIs(t, err, modhost.ErrNoLoader)
}

func TestApisCommand(t *testing.T) {
	newContainer(t)

	out, err := execute(t, "apis")
	require.NoError(t, err)
	assert.Contains(t, out, "core/go/")
	assert.Contains(t, out, "owner=core")
	assert.Contains(t, out, "bar/_g")
}

func TestTasksCommand(t *testing.T) {
	newContainer(t)

	_, err := execute(t, "run", "--ticks", "1", "--rate", "1ms")
	require.NoError(t, err)

	out, err := execute(t, "tasks")
	require.NoError(t, err)
	assert.Contains(t, out, "BarUpdate")
	assert.Contains(t, out, "calls=1")
	assert.Contains(t, out, "barKernelTask")
}

func TestTypesAndInspectCommands(t *testing.T) {
	newContainer(t)

	out, err := execute(t, "types")
	require.NoError(t, err)
	assert.Contains(t, out, "bar_state")
	assert.Contains(t, out, "var1 u32")

	out, err = execute(t, "inspect", "bar_state")
	require.NoError(t, err)
	assert.Contains(t, out, "bar_state ")
	assert.Contains(t, out, "bar: var1=0 foo=0.0 at tick 0")

	_, err = execute(t, "inspect", "nothing")
	assert.ErrorIs(t, err, cdb.ErrUnknownType)
}

func TestCommandsNeedContainer(t *testing.T) {
	SetContainer(nil)

	_, err := execute(t, "modules", "list")
	assert.ErrorIs(t, err, errNoContainer)
}
