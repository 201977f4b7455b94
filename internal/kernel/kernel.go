package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/felixgeelhaar/modkernel/internal/alloc"
	"github.com/felixgeelhaar/modkernel/internal/apidb"
	"github.com/felixgeelhaar/modkernel/internal/cdb"
	"github.com/felixgeelhaar/modkernel/internal/strid"
)

// Config configures the kernel.
type Config struct {
	// Phases is the phase order of a tick. Defaults to DefaultPhases.
	Phases []string

	Breaker BreakerConfig

	// FrameChunkSize sizes the chunks of the per-tick frame allocator.
	FrameChunkSize int
}

// DefaultConfig returns the kernel defaults.
func DefaultConfig() Config {
	return Config{
		Phases:         slices.Clone(DefaultPhases),
		Breaker:        DefaultBreakerConfig(),
		FrameChunkSize: alloc.DefaultChunkSize,
	}
}

type lifecycleRecord struct {
	name string
	task *Task
}

// Kernel runs update tasks every tick and lifecycle tasks around module
// loads. Ticks and lifecycle events are serialized.
type Kernel struct {
	mu sync.Mutex

	reg     Registry
	db      *cdb.DB
	cfg     Config
	exec    *executor
	metrics *MetricsCollector
	logger  *slog.Logger
	frame   *alloc.Frame
	now     func() time.Time

	plan   *plan
	tick   uint64
	last   time.Time
	booted bool
	// initialized holds lifecycle tasks in init order.
	initialized []lifecycleRecord
}

// New creates a kernel reading tasks from reg and running them against db.
func New(reg Registry, db *cdb.DB, metrics *MetricsCollector, logger *slog.Logger, cfg Config) *Kernel {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetricsCollector()
	}
	if len(cfg.Phases) == 0 {
		cfg.Phases = slices.Clone(DefaultPhases)
	}
	return &Kernel{
		reg:     reg,
		db:      db,
		cfg:     cfg,
		exec:    newExecutor(cfg.Breaker, metrics, logger),
		metrics: metrics,
		logger:  logger,
		frame:   alloc.NewFrame(cfg.FrameChunkSize),
		now:     time.Now,
	}
}

// DB returns the object store tasks run against.
func (k *Kernel) DB() *cdb.DB {
	return k.db
}

// Metrics returns the task metrics collector.
func (k *Kernel) Metrics() *MetricsCollector {
	return k.metrics
}

// TickCount returns the number of ticks run so far.
func (k *Kernel) TickCount() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tick
}

// Boot registers types and initializes every lifecycle task registered so
// far. Modules loaded afterwards are initialized by ModuleLoaded.
func (k *Kernel) Boot(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.createTypes(); err != nil {
		return err
	}
	if err := k.syncLifecycle(nil); err != nil {
		return err
	}
	k.booted = true

	k.logger.InfoContext(ctx, "kernel booted", "lifecycle_tasks", len(k.initialized))
	return nil
}

// Shutdown runs Shutdown of every initialized lifecycle task in reverse init
// order.
func (k *Kernel) Shutdown(ctx context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for i := len(k.initialized) - 1; i >= 0; i-- {
		k.shutdownTask(k.initialized[i])
	}
	k.initialized = nil
	k.booted = false

	k.logger.InfoContext(ctx, "kernel shut down", "ticks", k.tick)
}

// ModuleLoaded registers the module's types and initializes lifecycle tasks
// that appeared with it. Tasks whose names were already initialized, as
// after a reload, are not initialized again. Only problems with the module's
// own tasks are returned; tasks of other modules that still cannot be
// initialized are logged and left waiting.
func (k *Kernel) ModuleLoaded(ctx context.Context, module string, reload bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.booted {
		return nil
	}
	if err := k.createTypes(); err != nil {
		return err
	}
	owned := k.ownedTasks(module)
	if err := k.syncLifecycle(func(t *Task) bool { return owned[t] }); err != nil {
		return err
	}
	k.logger.DebugContext(ctx, "module lifecycle synced", "module", module, "reload", reload)
	return nil
}

// ModuleUnloading shuts down the lifecycle tasks owned by module, and every
// initialized task depending on them, in reverse init order. Nothing is shut
// down ahead of a reload.
func (k *Kernel) ModuleUnloading(ctx context.Context, module string, reload bool) {
	if reload {
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	owned := k.ownedTasks(module)
	if len(owned) == 0 {
		return
	}
	stopped := k.shutdownWhere(func(rec lifecycleRecord) bool { return owned[rec.task] })

	k.logger.DebugContext(ctx, "module lifecycle tasks shut down", "module", module, "tasks", stopped)
}

func (k *Kernel) ownedTasks(module string) map[*Task]bool {
	owned := make(map[*Task]bool)
	for _, ref := range k.reg.Owned(module).Impls {
		if t, ok := ref.Impl.(*Task); ok && ref.Interface == TaskInterface {
			owned[t] = true
		}
	}
	return owned
}

// shutdownWhere shuts down the initialized tasks matching gone together with
// the tasks depending on them, in reverse init order, and returns how many
// were shut down. Dependants are initialized again once their dependencies
// are back.
func (k *Kernel) shutdownWhere(gone func(lifecycleRecord) bool) int {
	stopped := make(map[strid.ID64]bool)
	dependant := make(map[strid.ID64]bool)
	for _, rec := range k.initialized {
		id := TaskID(rec.name)
		if gone(rec) {
			stopped[id] = true
			continue
		}
		for _, dep := range rec.task.Depends {
			if stopped[dep] {
				stopped[id] = true
				dependant[id] = true
				break
			}
		}
	}
	if len(stopped) == 0 {
		return 0
	}

	for i := len(k.initialized) - 1; i >= 0; i-- {
		rec := k.initialized[i]
		id := TaskID(rec.name)
		if !stopped[id] {
			continue
		}
		if dependant[id] {
			k.logger.Warn("lifecycle task shut down, a dependency went away", "task", rec.name)
		}
		k.shutdownTask(rec)
	}

	kept := k.initialized[:0:0]
	for _, rec := range k.initialized {
		if !stopped[TaskID(rec.name)] {
			kept = append(kept, rec)
		}
	}
	k.initialized = kept
	return len(stopped)
}

// LifecycleTasks returns the names of initialized lifecycle tasks in init
// order.
func (k *Kernel) LifecycleTasks() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	names := make([]string, len(k.initialized))
	for i, rec := range k.initialized {
		names[i] = rec.name
	}
	return names
}

func (k *Kernel) createTypes() error {
	var errs []error
	for _, ct := range apidb.ImplsOf[CreateTypes](k.reg, CreateTypesInterface) {
		if ct.Create == nil {
			continue
		}
		if err := ct.Create(k.db); err != nil {
			errs = append(errs, fmt.Errorf("create types %s: %w", ct.Name, err))
		}
	}
	return errors.Join(errs...)
}

// syncLifecycle brings initialized tasks in line with the registry: tasks
// that disappeared are shut down, new ones are initialized in dependency
// order, surviving names adopt their current registration. Pending tasks
// that cannot be ordered stay uninitialized. Their problems fail the call
// only when inScope reports one of them; a nil inScope covers every task.
func (k *Kernel) syncLifecycle(inScope func(*Task) bool) error {
	if inScope == nil {
		inScope = func(*Task) bool { return true }
	}
	current := apidb.ImplsOf[Task](k.reg, TaskInterface)

	present := make(map[string]*Task, len(current))
	for _, t := range current {
		present[t.Name] = t
	}
	k.shutdownWhere(func(rec lifecycleRecord) bool { return present[rec.name] == nil })

	ready := make(map[strid.ID64]bool, len(k.initialized))
	for i, rec := range k.initialized {
		k.initialized[i].task = present[rec.name]
		ready[TaskID(rec.name)] = true
	}

	var pending []*Task
	for _, t := range current {
		if !ready[TaskID(t.Name)] {
			pending = append(pending, t)
		}
	}
	ordered, blocked, err := orderLifecycle(pending, ready)
	if err != nil {
		if slices.ContainsFunc(blocked, inScope) {
			k.logger.Error("lifecycle tasks cannot be ordered", "error", err)
			return err
		}
		k.logger.Warn("lifecycle tasks left uninitialized", "error", err)
	}

	failed := make(map[strid.ID64]bool)
	for _, t := range ordered {
		if slices.ContainsFunc(t.Depends, func(d strid.ID64) bool { return failed[d] }) {
			failed[TaskID(t.Name)] = true
			if inScope(t) {
				return &TaskError{Task: t.Name, Err: ErrDependencyFailed}
			}
			continue
		}
		if t.Init != nil {
			err := k.exec.lifecycle(t.Name, OpInit, func() error { return t.Init(k.db) })
			if err != nil {
				k.logger.Error("lifecycle task init failed", "task", t.Name, "error", err)
				if inScope(t) {
					return &TaskError{Task: t.Name, Err: err}
				}
				failed[TaskID(t.Name)] = true
				continue
			}
		}
		k.initialized = append(k.initialized, lifecycleRecord{name: t.Name, task: t})
		k.logger.Debug("lifecycle task initialized", "task", t.Name)
	}
	return nil
}

func (k *Kernel) shutdownTask(rec lifecycleRecord) {
	if rec.task.Shutdown == nil {
		return
	}
	err := k.exec.lifecycle(rec.name, OpShutdown, func() error {
		rec.task.Shutdown()
		return nil
	})
	if err != nil {
		k.logger.Error("lifecycle task shutdown failed", "task", rec.name, "error", err)
	}
}

// Plan returns the current execution order of every phase.
func (k *Kernel) Plan() ([]PhasePlan, []error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p := k.currentPlan()
	return slices.Clone(p.phases), slices.Clone(p.errs)
}

func (k *Kernel) currentPlan() *plan {
	if k.plan != nil && k.plan.version == k.reg.Version() {
		return k.plan
	}
	k.plan = buildPlan(k.reg, k.cfg.Phases)
	k.exec.prune(k.plan.liveTasks())
	for _, err := range k.plan.errs {
		k.logger.Warn("task plan problem", "error", err)
	}
	for _, ph := range k.plan.phases {
		if ph.Err != nil {
			k.logger.Error("phase cannot be ordered", "phase", ph.Name, "error", ph.Err)
		}
	}
	return k.plan
}

// Tick runs one pass over all phases. Phases that cannot be ordered are
// skipped; failing tasks do not stop the tick. The returned error joins every
// configuration error and task failure of the tick.
func (k *Kernel) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	var dt time.Duration
	if !k.last.IsZero() {
		dt = now.Sub(k.last)
	}
	k.last = now
	k.tick++
	tick := k.tick

	defer k.frame.Reset()

	p := k.currentPlan()
	errs := slices.Clone(p.errs)
	for _, ph := range p.phases {
		if ph.Err != nil {
			errs = append(errs, ph.Err)
			continue
		}
		for _, t := range ph.Tasks {
			err := k.exec.update(t.Name, ph.Name, tick, func() error {
				return t.Update(k.frame, k.db, tick, dt)
			})
			switch {
			case err == nil:
			case errors.Is(err, ErrCircuitOpen):
				k.logger.DebugContext(ctx, "task skipped", "task", t.Name, "phase", ph.Name)
			default:
				k.logger.ErrorContext(ctx, "task failed", "task", t.Name, "phase", ph.Name, "tick", tick, "error", err)
				errs = append(errs, &TaskError{Task: t.Name, Phase: ph.Name, Err: err})
			}
		}
	}
	return errors.Join(errs...)
}

// Run ticks every rate until ctx is done or maxTicks ticks have run. A
// maxTicks of zero runs until ctx is done. Tick errors are logged and do not
// stop the loop.
func (k *Kernel) Run(ctx context.Context, rate time.Duration, maxTicks uint64) error {
	k.mu.Lock()
	booted := k.booted
	k.mu.Unlock()
	if !booted {
		return ErrNotBooted
	}
	if rate <= 0 {
		return fmt.Errorf("tick rate must be positive, got %s", rate)
	}

	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	var ran uint64
	for {
		select {
		case <-ctx.Done():
			k.logger.InfoContext(ctx, "tick loop stopped", "ticks", ran)
			return nil
		case <-ticker.C:
			if err := k.Tick(ctx); err != nil && ctx.Err() == nil {
				k.logger.WarnContext(ctx, "tick completed with errors", "tick", k.TickCount(), "error", err)
			}
			ran++
			if maxTicks > 0 && ran >= maxTicks {
				k.logger.InfoContext(ctx, "tick limit reached", "ticks", ran)
				return nil
			}
		}
	}
}
