package kernel

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector_RecordCall(t *testing.T) {
	m := NewMetricsCollector()

	m.RecordCall("physics", OnUpdate, OpUpdate, 1, 10*time.Millisecond, nil)
	m.RecordCall("physics", OnUpdate, OpUpdate, 2, 30*time.Millisecond, errors.New("nan"))
	m.RecordCall("physics", "", OpInit, 0, 5*time.Millisecond, nil)

	got := m.Get("physics")
	require.NotNil(t, got)
	assert.Equal(t, OnUpdate, got.Phase)
	assert.Equal(t, int64(3), got.TotalCalls)
	assert.Equal(t, int64(2), got.SuccessfulCalls)
	assert.Equal(t, int64(1), got.FailedCalls)
	assert.Equal(t, 5*time.Millisecond, got.MinDuration)
	assert.Equal(t, 30*time.Millisecond, got.MaxDuration)
	assert.Equal(t, 15*time.Millisecond, got.AverageDuration)
	assert.Equal(t, "nan", got.LastError)
	assert.Equal(t, uint64(0), got.LastTick)

	require.Contains(t, got.Operations, OpUpdate)
	assert.Equal(t, int64(2), got.Operations[OpUpdate].TotalCalls)
	assert.Equal(t, 20*time.Millisecond, got.Operations[OpUpdate].AverageDuration)

	// Copies are detached.
	got.Operations[OpUpdate].TotalCalls = 99
	assert.Equal(t, int64(2), m.Get("physics").Operations[OpUpdate].TotalCalls)

	assert.Nil(t, m.Get("missing"))
}

func TestMetricsCollector_Snapshot(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordCall("b", OnUpdate, OpUpdate, 1, time.Millisecond, nil)
	m.RecordCall("a", OnUpdate, OpUpdate, 1, time.Millisecond, errors.New("x"))
	m.RecordCircuitBreakerChange("a", "open")

	snap := m.TakeSnapshot()
	require.Len(t, snap.Tasks, 2)
	assert.Equal(t, "a", snap.Tasks[0].Task)
	assert.Equal(t, 2, snap.Summary.TotalTasks)
	assert.Equal(t, int64(2), snap.Summary.TotalCalls)
	assert.InDelta(t, 0.5, snap.Summary.SuccessRate, 1e-9)
	assert.Equal(t, []string{"a"}, snap.Summary.TasksWithOpenCircuit)
	assert.Equal(t, int64(1), snap.Tasks[0].CircuitOpenCount)

	m.Reset()
	assert.Empty(t, m.TakeSnapshot().Tasks)
}
