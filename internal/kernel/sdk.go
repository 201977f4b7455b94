// Package kernel drives modules' per-tick work.
//
// Modules register update tasks, lifecycle tasks and type creators as
// implementations in the capability registry. Every tick the kernel runs the
// update tasks phase by phase, each phase ordered by the tasks' declared
// dependencies.
package kernel

import (
	"sync"
	"time"

	"github.com/felixgeelhaar/modkernel/internal/alloc"
	"github.com/felixgeelhaar/modkernel/internal/cdb"
	"github.com/felixgeelhaar/modkernel/internal/strid"
)

// Registry interface names.
const (
	TaskUpdateInterface  = "ct_kernel_task_update_i"
	TaskInterface        = "ct_kernel_task_i"
	CreateTypesInterface = "ct_cdb_create_types_i"
)

// Phase names, in execution order.
const (
	OnLoad     = "OnLoad"
	PostLoad   = "PostLoad"
	PreUpdate  = "PreUpdate"
	OnUpdate   = "OnUpdate"
	OnValidate = "OnValidate"
	PostUpdate = "PostUpdate"
	PreStore   = "PreStore"
	OnStore    = "OnStore"
)

// DefaultPhases is the fixed phase order of a tick.
var DefaultPhases = []string{
	OnLoad,
	PostLoad,
	PreUpdate,
	OnUpdate,
	OnValidate,
	PostUpdate,
	PreStore,
	OnStore,
}

// PhaseID returns the identifier of a phase name.
func PhaseID(name string) strid.ID64 {
	return strid.Sum64(name)
}

var taskNames sync.Map // strid.ID64 -> string

// TaskID returns the identifier of a task name. Dependencies refer to tasks
// by this identifier.
func TaskID(name string) strid.ID64 {
	id := strid.Sum64(name)
	taskNames.LoadOrStore(id, name)
	return id
}

// TaskName returns the name an identifier was created from by TaskID.
func TaskName(id strid.ID64) (string, bool) {
	v, ok := taskNames.Load(id)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// UpdateFunc is called once per tick. frame is valid until the tick ends.
type UpdateFunc func(frame alloc.Allocator, db *cdb.DB, tick uint64, dt time.Duration) error

// TaskUpdate is a per-tick task, registered under TaskUpdateInterface.
type TaskUpdate struct {
	Phase   strid.ID64
	Name    string
	Depends []strid.ID64
	Update  UpdateFunc
}

// Task is a lifecycle task, registered under TaskInterface. Init runs once
// after the owning module loads, Shutdown once before it unloads.
type Task struct {
	Name     string
	Depends  []strid.ID64
	Init     func(db *cdb.DB) error
	Shutdown func()
}

// CreateTypes registers object types, registered under CreateTypesInterface.
// It runs at boot and after every module load and must be idempotent.
type CreateTypes struct {
	Name   string
	Create func(db *cdb.DB) error
}
