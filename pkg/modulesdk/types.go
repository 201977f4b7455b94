// Package modulesdk builds modules that run in their own process and talk
// to the kernel over the remote module protocol.
//
// Example:
//
//	func main() {
//		m := modulesdk.NewBaseModule("physics", "0.1.0", "rigid bodies")
//		m.OnUpdate(modulesdk.PhaseOnUpdate, "physics.step", step)
//		modulesdk.Serve(m)
//	}
package modulesdk

import (
	"errors"

	"github.com/felixgeelhaar/modkernel/internal/kernel"
	"github.com/felixgeelhaar/modkernel/internal/modhost/remote"
)

// Protocol types.
type (
	Info     = remote.Info
	TaskInfo = remote.TaskInfo
	Module   = remote.Module
)

// Phase names, in execution order.
const (
	PhaseOnLoad     = kernel.OnLoad
	PhasePostLoad   = kernel.PostLoad
	PhasePreUpdate  = kernel.PreUpdate
	PhaseOnUpdate   = kernel.OnUpdate
	PhaseOnValidate = kernel.OnValidate
	PhasePostUpdate = kernel.PostUpdate
	PhasePreStore   = kernel.PreStore
	PhaseOnStore    = kernel.OnStore
)

// Phases returns the phase names in execution order.
func Phases() []string {
	return append([]string(nil), kernel.DefaultPhases...)
}

var (
	// ErrUnknownTask is returned for calls naming a task the module does not
	// declare.
	ErrUnknownTask = errors.New("unknown task")

	// ErrDuplicateTask is returned when two tasks share a name.
	ErrDuplicateTask = errors.New("duplicate task")
)
