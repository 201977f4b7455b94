package kernel

import (
	"sort"
	"sync"
	"time"
)

// Task operations recorded by the metrics collector.
const (
	OpUpdate   = "update"
	OpInit     = "init"
	OpShutdown = "shutdown"
)

// MetricsCollector collects per-task execution metrics.
type MetricsCollector struct {
	mu      sync.RWMutex
	metrics map[string]*TaskMetrics
}

// TaskMetrics contains metrics for a single task.
type TaskMetrics struct {
	Task  string `json:"task"`
	Phase string `json:"phase,omitempty"`

	TotalCalls      int64 `json:"total_calls"`
	SuccessfulCalls int64 `json:"successful_calls"`
	FailedCalls     int64 `json:"failed_calls"`
	// SkippedCalls counts ticks skipped while the breaker was open.
	SkippedCalls int64 `json:"skipped_calls"`

	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`

	LastTick  uint64 `json:"last_tick"`
	LastError string `json:"last_error,omitempty"`

	CircuitBreakerState string `json:"circuit_breaker_state"`
	CircuitOpenCount    int64  `json:"circuit_open_count"`

	Operations map[string]*OperationMetrics `json:"operations"`
}

// OperationMetrics contains metrics for one kind of call on a task.
type OperationMetrics struct {
	Operation       string        `json:"operation"`
	TotalCalls      int64         `json:"total_calls"`
	FailedCalls     int64         `json:"failed_calls"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics: make(map[string]*TaskMetrics),
	}
}

// RecordCall records one call of a task.
func (m *MetricsCollector) RecordCall(task, phase, operation string, tick uint64, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tm := m.getOrCreate(task)
	if phase != "" {
		tm.Phase = phase
	}
	tm.TotalCalls++
	tm.TotalDuration += duration
	tm.LastTick = tick

	if err != nil {
		tm.FailedCalls++
		tm.LastError = err.Error()
	} else {
		tm.SuccessfulCalls++
	}

	if tm.TotalCalls == 1 || duration < tm.MinDuration {
		tm.MinDuration = duration
	}
	if duration > tm.MaxDuration {
		tm.MaxDuration = duration
	}
	tm.AverageDuration = tm.TotalDuration / time.Duration(tm.TotalCalls)

	op, ok := tm.Operations[operation]
	if !ok {
		op = &OperationMetrics{Operation: operation}
		tm.Operations[operation] = op
	}
	op.TotalCalls++
	op.TotalDuration += duration
	if err != nil {
		op.FailedCalls++
	}
	if duration > op.MaxDuration {
		op.MaxDuration = duration
	}
	op.AverageDuration = op.TotalDuration / time.Duration(op.TotalCalls)
}

// RecordSkip records a call skipped because the task's breaker is open.
func (m *MetricsCollector) RecordSkip(task string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreate(task).SkippedCalls++
}

// RecordCircuitBreakerChange records a breaker state transition.
func (m *MetricsCollector) RecordCircuitBreakerChange(task, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tm := m.getOrCreate(task)
	tm.CircuitBreakerState = state
	if state == "open" {
		tm.CircuitOpenCount++
	}
}

// Get returns a copy of the metrics of task, or nil.
func (m *MetricsCollector) Get(task string) *TaskMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if tm, ok := m.metrics[task]; ok {
		return tm.clone()
	}
	return nil
}

// Reset drops all metrics.
func (m *MetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = make(map[string]*TaskMetrics)
}

func (m *MetricsCollector) getOrCreate(task string) *TaskMetrics {
	if tm, ok := m.metrics[task]; ok {
		return tm
	}
	tm := &TaskMetrics{
		Task:                task,
		CircuitBreakerState: "closed",
		Operations:          make(map[string]*OperationMetrics),
	}
	m.metrics[task] = tm
	return tm
}

func (tm *TaskMetrics) clone() *TaskMetrics {
	c := *tm
	c.Operations = make(map[string]*OperationMetrics, len(tm.Operations))
	for k, op := range tm.Operations {
		opCopy := *op
		c.Operations[k] = &opCopy
	}
	return &c
}

// Snapshot is a point-in-time copy of all task metrics.
type Snapshot struct {
	Timestamp time.Time       `json:"timestamp"`
	Tasks     []TaskMetrics   `json:"tasks"`
	Summary   SnapshotSummary `json:"summary"`
}

// SnapshotSummary aggregates a snapshot.
type SnapshotSummary struct {
	TotalTasks           int      `json:"total_tasks"`
	TotalCalls           int64    `json:"total_calls"`
	TotalFailed          int64    `json:"total_failed"`
	SuccessRate          float64  `json:"success_rate"`
	TasksWithOpenCircuit []string `json:"tasks_with_open_circuit"`
}

// TakeSnapshot returns all metrics sorted by task name.
func (m *MetricsCollector) TakeSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Timestamp: time.Now(),
		Tasks:     make([]TaskMetrics, 0, len(m.metrics)),
	}

	var successful int64
	for name, tm := range m.metrics {
		snap.Tasks = append(snap.Tasks, *tm.clone())
		snap.Summary.TotalCalls += tm.TotalCalls
		snap.Summary.TotalFailed += tm.FailedCalls
		successful += tm.SuccessfulCalls
		if tm.CircuitBreakerState == "open" {
			snap.Summary.TasksWithOpenCircuit = append(snap.Summary.TasksWithOpenCircuit, name)
		}
	}
	sort.Slice(snap.Tasks, func(i, j int) bool { return snap.Tasks[i].Task < snap.Tasks[j].Task })
	sort.Strings(snap.Summary.TasksWithOpenCircuit)

	snap.Summary.TotalTasks = len(m.metrics)
	if snap.Summary.TotalCalls > 0 {
		snap.Summary.SuccessRate = float64(successful) / float64(snap.Summary.TotalCalls)
	}
	return snap
}
