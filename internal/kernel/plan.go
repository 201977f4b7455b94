package kernel

import (
	"errors"
	"slices"
	"strings"

	"github.com/felixgeelhaar/modkernel/internal/apidb"
	"github.com/felixgeelhaar/modkernel/internal/strid"
	"github.com/felixgeelhaar/modkernel/internal/toposort"
)

// Registry is the part of the capability registry the kernel reads.
type Registry interface {
	GetFirstImpl(iface string) *apidb.ImplIter
	Version() uint64
	Owned(owner string) apidb.Ownership
}

// PhasePlan is the execution order of one phase.
type PhasePlan struct {
	Name  string
	Tasks []*TaskUpdate
	// Err is set when the phase cannot be ordered; the phase is skipped.
	Err error
}

// TaskNames returns the ordered task names.
func (p PhasePlan) TaskNames() []string {
	names := make([]string, len(p.Tasks))
	for i, t := range p.Tasks {
		names[i] = t.Name
	}
	return names
}

type plan struct {
	version uint64
	phases  []PhasePlan
	// errs holds problems not tied to a known phase.
	errs []error
}

func buildPlan(reg Registry, phases []string) *plan {
	p := &plan{version: reg.Version()}

	byPhase := make(map[strid.ID64][]*TaskUpdate, len(phases))
	known := make(map[strid.ID64]bool, len(phases))
	for _, name := range phases {
		known[PhaseID(name)] = true
	}

	var unknown, invalid []string
	for _, t := range apidb.ImplsOf[TaskUpdate](reg, TaskUpdateInterface) {
		switch {
		case t.Name == "" || t.Update == nil:
			invalid = append(invalid, t.Name)
		case !known[t.Phase]:
			unknown = append(unknown, t.Name)
		default:
			byPhase[t.Phase] = append(byPhase[t.Phase], t)
		}
	}
	if len(invalid) > 0 {
		p.errs = append(p.errs, &ConfigError{Tasks: invalid, Reason: "task has no name or update function"})
	}
	if len(unknown) > 0 {
		p.errs = append(p.errs, &ConfigError{Tasks: unknown, Reason: "task declares an unknown phase"})
	}

	for _, name := range phases {
		tasks := byPhase[PhaseID(name)]
		ordered, err := orderUpdates(name, tasks)
		p.phases = append(p.phases, PhasePlan{Name: name, Tasks: ordered, Err: err})
	}
	return p
}

func (p *plan) liveTasks() map[string]bool {
	live := make(map[string]bool)
	for _, ph := range p.phases {
		for _, t := range ph.Tasks {
			live[t.Name] = true
		}
	}
	return live
}

func orderUpdates(phase string, tasks []*TaskUpdate) ([]*TaskUpdate, error) {
	nodes := make([]toposort.Node[strid.ID64], len(tasks))
	for i, t := range tasks {
		nodes[i] = toposort.Node[strid.ID64]{Key: TaskID(t.Name), Name: t.Name, Depends: t.Depends}
	}
	order, err := toposort.SortNamed(nodes, TaskName)
	if err != nil {
		return nil, configError(phase, err)
	}
	out := make([]*TaskUpdate, len(order))
	for i, idx := range order {
		out[i] = tasks[idx]
	}
	return out, nil
}

// orderLifecycle orders tasks waiting for Init. Dependencies on ready tasks
// are already met. Tasks that cannot be ordered, and the tasks depending on
// them, are returned as blocked along with a ConfigError naming them.
func orderLifecycle(tasks []*Task, ready map[strid.ID64]bool) (ordered, blocked []*Task, err error) {
	var reasons []string
	remaining := tasks
	for {
		nodes := make([]toposort.Node[strid.ID64], len(remaining))
		for i, t := range remaining {
			var deps []strid.ID64
			for _, d := range t.Depends {
				if !ready[d] {
					deps = append(deps, d)
				}
			}
			nodes[i] = toposort.Node[strid.ID64]{Key: TaskID(t.Name), Name: t.Name, Depends: deps}
		}
		order, serr := toposort.SortNamed(nodes, TaskName)
		if serr == nil {
			ordered = make([]*Task, len(order))
			for i, idx := range order {
				ordered[i] = remaining[idx]
			}
			break
		}
		reasons = append(reasons, serr.Error())

		bad := make(map[strid.ID64]bool)
		var terr *toposort.Error
		if errors.As(serr, &terr) {
			for _, name := range terr.Names() {
				bad[TaskID(name)] = true
			}
		}
		if len(bad) == 0 {
			blocked = append(blocked, remaining...)
			remaining = nil
			continue
		}
		remaining, blocked = splitBlocked(remaining, bad, blocked)
	}

	if len(blocked) == 0 {
		return ordered, nil, nil
	}
	names := make([]string, len(blocked))
	for i, t := range blocked {
		names[i] = t.Name
	}
	return ordered, blocked, &ConfigError{Tasks: names, Reason: strings.Join(reasons, "; ")}
}

// splitBlocked moves the tasks in bad, and every task depending on one of
// them, from tasks to blocked.
func splitBlocked(tasks []*Task, bad map[strid.ID64]bool, blocked []*Task) ([]*Task, []*Task) {
	for changed := true; changed; {
		changed = false
		for _, t := range tasks {
			id := TaskID(t.Name)
			if !bad[id] && slices.ContainsFunc(t.Depends, func(d strid.ID64) bool { return bad[d] }) {
				bad[id] = true
				changed = true
			}
		}
	}
	var kept []*Task
	for _, t := range tasks {
		if bad[TaskID(t.Name)] {
			blocked = append(blocked, t)
		} else {
			kept = append(kept, t)
		}
	}
	return kept, blocked
}

func configError(phase string, err error) error {
	var terr *toposort.Error
	if errors.As(err, &terr) {
		return &ConfigError{Phase: phase, Tasks: terr.Names(), Reason: terr.Error()}
	}
	return &ConfigError{Phase: phase, Reason: err.Error()}
}
