package testing

import (
	"errors"
	stdtesting "testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/modkernel/pkg/modulesdk"
)

func newSample(trace *[]string) *modulesdk.BaseModule {
	record := func(s string) { *trace = append(*trace, s) }
	return modulesdk.NewBaseModule("sample", "1.0.0", "harness sample").
		OnUpdate(modulesdk.PhasePostUpdate, "report", func(tick uint64, _ time.Duration) error {
			record("report")
			return nil
		}).
		OnUpdate(modulesdk.PhaseOnUpdate, "collide", func(uint64, time.Duration) error {
			record("collide")
			return nil
		}, "integrate").
		OnUpdate(modulesdk.PhaseOnUpdate, "integrate", func(uint64, time.Duration) error {
			record("integrate")
			return nil
		}).
		OnLifecycle("world", func() error {
			record("init world")
			return nil
		}, func() error {
			record("shutdown world")
			return nil
		}).
		OnLifecycle("assets", func() error {
			record("init assets")
			return nil
		}, nil, "world")
}

func runHarness(t *stdtesting.T, h *Harness, trace *[]string) {
	t.Helper()
	assert.ErrorIs(t, h.Tick(time.Millisecond), ErrNotInitialized)

	require.NoError(t, h.Init())
	assert.Equal(t, "sample", h.Info().Name)
	require.NoError(t, h.Tick(time.Millisecond))
	require.NoError(t, h.Shutdown())

	assert.Equal(t, []string{
		"init world", "init assets",
		"integrate", "collide", "report",
		"shutdown world",
	}, *trace)
	assert.Equal(t, uint64(1), h.TickCount())
}

func TestHarness_InProcess(t *stdtesting.T) {
	var trace []string
	runHarness(t, NewHarness(newSample(&trace)), &trace)
}

func TestHarness_OverRPC(t *stdtesting.T) {
	var trace []string
	runHarness(t, NewRPCHarness(t, newSample(&trace)), &trace)
}

func TestHarness_ReportsTaskErrors(t *stdtesting.T) {
	mod := modulesdk.NewBaseModule("failing", "1.0.0", "").
		OnUpdate(modulesdk.PhaseOnUpdate, "step", func(uint64, time.Duration) error {
			return errors.New("nan in solver")
		})

	h := NewRPCHarness(t, mod)
	require.NoError(t, h.Init())
	err := h.Tick(time.Millisecond)
	assert.ErrorContains(t, err, "nan in solver")
}

func TestHarness_DuplicateTaskFailsInit(t *stdtesting.T) {
	mod := modulesdk.NewBaseModule("dup", "1.0.0", "").
		OnUpdate(modulesdk.PhaseOnUpdate, "step", nil).
		OnLifecycle("step", nil, nil)

	err := NewHarness(mod).Init()
	assert.ErrorIs(t, err, modulesdk.ErrDuplicateTask)
}
