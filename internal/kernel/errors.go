package kernel

import (
	"errors"
	"fmt"
	"strings"
)

// Kernel errors.
var (
	ErrConfig      = errors.New("task configuration error")
	ErrCircuitOpen = errors.New("task circuit breaker is open")
	ErrTaskPanic   = errors.New("task panicked")
	ErrNotBooted   = errors.New("kernel not booted")

	ErrDependencyFailed = errors.New("lifecycle dependency failed to initialize")
)

// ConfigError reports tasks that cannot be ordered: a dependency cycle, a
// dependency on a task absent from the phase, duplicate names or an unknown
// phase.
type ConfigError struct {
	// Phase is empty for lifecycle tasks.
	Phase  string
	Tasks  []string
	Reason string
}

func (e *ConfigError) Error() string {
	scope := "lifecycle tasks"
	if e.Phase != "" {
		scope = "phase " + e.Phase
	}
	return fmt.Sprintf("%s: %s (tasks: %s)", scope, e.Reason, strings.Join(e.Tasks, ", "))
}

// Unwrap lets errors.Is match ErrConfig.
func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

// TaskError wraps a failure of a single task.
type TaskError struct {
	Task  string
	Phase string
	Err   error
}

func (e *TaskError) Error() string {
	if e.Phase == "" {
		return fmt.Sprintf("task %s: %v", e.Task, e.Err)
	}
	return fmt.Sprintf("task %s in %s: %v", e.Task, e.Phase, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}
