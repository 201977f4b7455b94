// Package modhost loads, unloads and hot-reloads modules.
//
// A module is an entry function called with load and reload flags. During the
// call it registers APIs, implementations and globals through a registry view
// scoped to the module, so the host can retract all of it when the module
// unloads or fails to load.
package modhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/modkernel/internal/alloc"
	"github.com/felixgeelhaar/modkernel/internal/apidb"
	"github.com/felixgeelhaar/modkernel/internal/toposort"
)

// EntryFunc is a module's single entry point. It is called with load=true
// when the module loads and load=false when it unloads; reload is set when
// the call is half of a hot reload.
type EntryFunc func(api apidb.API, a alloc.Allocator, load, reload bool) error

// Desc describes a module.
type Desc struct {
	Name        string
	Description string
	// Depends lists modules that must load first.
	Depends []string
	Entry   EntryFunc
}

func (d Desc) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidModule)
	}
	if d.Entry == nil {
		return fmt.Errorf("%w: %s has no entry function", ErrInvalidModule, d.Name)
	}
	return nil
}

// Status is the state of a module.
type Status string

const (
	StatusUnloaded Status = "unloaded"
	StatusLoading  Status = "loading"
	StatusLoaded   Status = "loaded"
	StatusFailed   Status = "failed"
)

// Hooks let the kernel react to module transitions.
type Hooks struct {
	// OnLoaded runs after the entry function succeeded. An error fails the
	// load.
	OnLoaded func(ctx context.Context, module string, reload bool) error
	// OnUnloading runs before the entry function is called with load=false.
	OnUnloading func(ctx context.Context, module string, reload bool)
}

// Options configures a Host.
type Options struct {
	// KeepGlobalsOnUnload keeps a module's globals after a plain unload so a
	// later load finds them again.
	KeepGlobalsOnUnload bool
	// Allocator is passed to entry functions. Defaults to alloc.Heap.
	Allocator alloc.Allocator
	Hooks     Hooks
}

// ModuleInfo is a read-only view of a module record.
type ModuleInfo struct {
	Name        string
	Description string
	Depends     []string
	Status      Status
	Generation  uuid.UUID
	Loads       int
	LoadedAt    time.Time
	Err         error
	Manifest    *Manifest
}

type record struct {
	desc       Desc
	manifest   *Manifest
	closer     io.Closer
	status     Status
	generation uuid.UUID
	loads      int
	loadedAt   time.Time
	loadSeq    uint64
	err        error
	// resume is set while a failed reload leaves the previous generation's
	// globals in place; the next load continues from them.
	resume bool
}

// Host owns the module records. Module transitions are serialized.
type Host struct {
	mu      sync.Mutex
	reg     *apidb.DB
	opts    Options
	modules map[string]*record
	order   []string
	loaders map[string]Loader
	seq     uint64
	logger  *slog.Logger
}

// New creates a host registering modules into reg.
func New(reg *apidb.DB, logger *slog.Logger, opts Options) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Allocator == nil {
		opts.Allocator = alloc.Heap{}
	}
	return &Host{
		reg:     reg,
		opts:    opts,
		modules: make(map[string]*record),
		loaders: make(map[string]Loader),
		logger:  logger,
	}
}

// SetHooks replaces the transition hooks.
func (h *Host) SetHooks(hooks Hooks) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.Hooks = hooks
}

// Register records desc as an available, unloaded module.
func (h *Host) Register(desc Desc) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registerLocked(desc, nil, nil)
}

func (h *Host) registerLocked(desc Desc, m *Manifest, closer io.Closer) error {
	if err := desc.validate(); err != nil {
		return err
	}
	if _, exists := h.modules[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, desc.Name)
	}
	h.modules[desc.Name] = &record{desc: desc, manifest: m, closer: closer, status: StatusUnloaded}
	h.order = append(h.order, desc.Name)

	h.logger.Debug("module registered", "module", desc.Name)
	return nil
}

// Unregister removes an unloaded module and releases its artifact.
func (h *Host) Unregister(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.modules[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	if rec.status == StatusLoaded {
		return &ModuleError{Module: name, Op: "unregister", Err: ErrAlreadyLoaded}
	}
	delete(h.modules, name)
	for i, n := range h.order {
		if n == name {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	return closeArtifact(rec)
}

// Load loads a registered module.
func (h *Host) Load(ctx context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.modules[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	if rec.status == StatusLoaded {
		return &ModuleError{Module: name, Op: "load", Err: ErrAlreadyLoaded}
	}
	return h.loadLocked(ctx, rec, rec.resume)
}

func (h *Host) loadLocked(ctx context.Context, rec *record, reload bool) error {
	name := rec.desc.Name
	rec.status = StatusLoading
	start := time.Now()

	view := h.reg.ForModule(name)
	err := callEntry(rec.desc.Entry, view, h.opts.Allocator, true, reload)
	if err == nil && h.opts.Hooks.OnLoaded != nil {
		if err = h.opts.Hooks.OnLoaded(ctx, name, reload); err != nil && h.opts.Hooks.OnUnloading != nil {
			h.opts.Hooks.OnUnloading(ctx, name, false)
		}
	}
	if err != nil {
		stats := h.reg.Retract(name, !reload)
		rec.status = StatusFailed
		rec.err = err
		rec.resume = reload
		h.logger.ErrorContext(ctx, "module load failed",
			"module", name,
			"reload", reload,
			"error", err,
			"retracted_apis", stats.APIs,
			"retracted_impls", stats.Impls,
			"retracted_globals", stats.Globals,
		)
		return &ModuleError{Module: name, Op: "load", Err: err}
	}

	h.seq++
	rec.status = StatusLoaded
	rec.err = nil
	rec.resume = false
	rec.generation = uuid.New()
	rec.loads++
	rec.loadedAt = time.Now()
	rec.loadSeq = h.seq

	h.logger.InfoContext(ctx, "module loaded",
		"module", name,
		"reload", reload,
		"generation", rec.generation.String(),
		"duration", time.Since(start),
	)
	return nil
}

// Unload unloads a loaded module and retracts everything it registered.
func (h *Host) Unload(ctx context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.modules[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	if rec.status != StatusLoaded {
		return &ModuleError{Module: name, Op: "unload", Err: ErrNotLoaded}
	}
	return h.unloadLocked(ctx, rec, false)
}

func (h *Host) unloadLocked(ctx context.Context, rec *record, reload bool) error {
	name := rec.desc.Name
	if h.opts.Hooks.OnUnloading != nil {
		h.opts.Hooks.OnUnloading(ctx, name, reload)
	}

	err := callEntry(rec.desc.Entry, h.reg.ForModule(name), h.opts.Allocator, false, reload)

	dropGlobals := !reload && !h.opts.KeepGlobalsOnUnload
	stats := h.reg.Retract(name, dropGlobals)
	rec.status = StatusUnloaded

	h.logger.InfoContext(ctx, "module unloaded",
		"module", name,
		"reload", reload,
		"retracted_apis", stats.APIs,
		"retracted_impls", stats.Impls,
		"retracted_globals", stats.Globals,
	)
	if err != nil {
		h.logger.WarnContext(ctx, "module entry failed during unload", "module", name, "error", err)
		return &ModuleError{Module: name, Op: "unload", Err: err}
	}
	return nil
}

// Reload replaces a module's code with desc. The old code is unloaded with
// reload set, which keeps the module's globals, then desc is loaded with
// reload set. A module that is not loaded is simply loaded with the new code,
// unless its last reload failed, in which case it still loads as a reload.
func (h *Host) Reload(ctx context.Context, desc Desc) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reloadLocked(ctx, desc, nil, nil)
}

func (h *Host) reloadLocked(ctx context.Context, desc Desc, m *Manifest, closer io.Closer) error {
	if err := desc.validate(); err != nil {
		return err
	}
	rec, ok := h.modules[desc.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, desc.Name)
	}

	wasLoaded := rec.status == StatusLoaded
	if wasLoaded {
		if err := h.unloadLocked(ctx, rec, true); err != nil {
			h.logger.WarnContext(ctx, "old module code failed to unload cleanly", "module", desc.Name, "error", err)
		}
	}

	old := rec.closer
	rec.desc = desc
	if m != nil {
		rec.manifest = m
	}
	if closer != nil {
		rec.closer = closer
		if old != nil {
			if err := old.Close(); err != nil {
				h.logger.WarnContext(ctx, "failed to release old module artifact", "module", desc.Name, "error", err)
			}
		}
	}

	return h.loadLocked(ctx, rec, wasLoaded || rec.resume)
}

// LoadAll loads every registered, unloaded module in dependency order.
// Modules whose dependencies fail or are missing are not loaded. The
// returned error joins every failure.
func (h *Host) LoadAll(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	nodes := make([]toposort.Node[string], 0, len(h.order))
	for _, name := range h.order {
		rec := h.modules[name]
		nodes = append(nodes, toposort.Node[string]{Key: name, Name: name, Depends: rec.desc.Depends})
	}
	order, err := toposort.Sort(nodes)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDependency, err)
	}

	var errs []error
	for _, idx := range order {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		rec := h.modules[nodes[idx].Key]
		if rec.status == StatusLoaded {
			continue
		}
		if dep := h.unmetDependency(rec); dep != "" {
			err := fmt.Errorf("%w: %s is not loaded", ErrDependency, dep)
			rec.status = StatusFailed
			rec.err = err
			errs = append(errs, &ModuleError{Module: rec.desc.Name, Op: "load", Err: err})
			continue
		}
		if err := h.loadLocked(ctx, rec, rec.resume); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Host) unmetDependency(rec *record) string {
	for _, dep := range rec.desc.Depends {
		if d, ok := h.modules[dep]; !ok || d.status != StatusLoaded {
			return dep
		}
	}
	return ""
}

// UnloadAll unloads every loaded module, most recently loaded first.
func (h *Host) UnloadAll(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var loaded []*record
	for _, rec := range h.modules {
		if rec.status == StatusLoaded {
			loaded = append(loaded, rec)
		}
	}
	// Reverse load order.
	for i := 1; i < len(loaded); i++ {
		for j := i; j > 0 && loaded[j].loadSeq > loaded[j-1].loadSeq; j-- {
			loaded[j], loaded[j-1] = loaded[j-1], loaded[j]
		}
	}

	var errs []error
	for _, rec := range loaded {
		if err := h.unloadLocked(ctx, rec, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close unloads every module and releases every artifact.
func (h *Host) Close(ctx context.Context) error {
	err := h.UnloadAll(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()
	errs := []error{err}
	for _, name := range h.order {
		errs = append(errs, closeArtifact(h.modules[name]))
	}
	return errors.Join(errs...)
}

// Module returns the record of one module.
func (h *Host) Module(name string) (ModuleInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.modules[name]
	if !ok {
		return ModuleInfo{}, false
	}
	return rec.info(), true
}

// Modules returns every record in registration order.
func (h *Host) Modules() []ModuleInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ModuleInfo, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, h.modules[name].info())
	}
	return out
}

func (r *record) info() ModuleInfo {
	return ModuleInfo{
		Name:        r.desc.Name,
		Description: r.desc.Description,
		Depends:     append([]string(nil), r.desc.Depends...),
		Status:      r.status,
		Generation:  r.generation,
		Loads:       r.loads,
		LoadedAt:    r.loadedAt,
		Err:         r.err,
		Manifest:    r.manifest,
	}
}

func closeArtifact(rec *record) error {
	if rec == nil || rec.closer == nil {
		return nil
	}
	c := rec.closer
	rec.closer = nil
	return c.Close()
}

func callEntry(entry EntryFunc, api apidb.API, a alloc.Allocator, load, reload bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrModulePanic, r)
		}
	}()
	return entry(api, a, load, reload)
}
