// Package bar is a sample module consuming foo. It keeps a counter in a
// global that survives hot reload and mirrors its state into an object of
// the bar_state type.
package bar

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/modkernel/internal/alloc"
	"github.com/felixgeelhaar/modkernel/internal/apidb"
	"github.com/felixgeelhaar/modkernel/internal/builtin/core"
	"github.com/felixgeelhaar/modkernel/internal/builtin/foo"
	"github.com/felixgeelhaar/modkernel/internal/cdb"
	"github.com/felixgeelhaar/modkernel/internal/kernel"
	"github.com/felixgeelhaar/modkernel/internal/modhost"
)

// ModuleName is the name bar registers under.
const ModuleName = "bar"

// Task names.
const (
	KernelTaskName = "barKernelTask"
	UpdateTaskName = "BarUpdate"
)

// StateTypeName is the type of the object mirroring bar's state.
const StateTypeName = "bar_state"

// State property indices.
const (
	PropVar1 uint32 = iota
	PropLastFoo
	PropTick
	PropLabel
)

// StateType is the definition of bar_state.
var StateType = cdb.TypeDef{
	Name: StateTypeName,
	Props: []cdb.PropDef{
		{Index: PropVar1, Name: "var1", Kind: cdb.KindU32},
		{Index: PropLastFoo, Name: "last_foo", Kind: cdb.KindF32},
		{Index: PropTick, Name: "tick", Kind: cdb.KindU64},
		{Index: PropLabel, Name: "label", Kind: cdb.KindStr, Default: cdb.Str("bar")},
	},
}

// G is bar's global state. It outlives reloads.
type G struct {
	Var1  uint32
	State cdb.ObjID
}

// Options configures the module.
type Options struct {
	// SpamLog logs every update.
	SpamLog bool
}

type module struct {
	opts Options
	reg  apidb.API
	db   *cdb.DB
	g    *G
	log  *core.LogAPI

	createTypes kernel.CreateTypes
	task        kernel.Task
	update      kernel.TaskUpdate
	properties  cdb.PropertiesAspect
	aspectOn    bool
}

// Module returns the bar module.
func Module(opts Options) modhost.Desc {
	m := &module{opts: opts}
	m.createTypes = kernel.CreateTypes{
		Name: ModuleName,
		Create: func(db *cdb.DB) error {
			_, err := db.RegisterType(StateType)
			return err
		},
	}
	m.task = kernel.Task{
		Name:     KernelTaskName,
		Init:     m.init,
		Shutdown: m.shutdown,
	}
	m.update = kernel.TaskUpdate{
		Name:   UpdateTaskName,
		Update: m.tick,
	}
	m.properties = cdb.PropertiesAspect{UIProperties: m.renderProperties}

	return modhost.Desc{
		Name:        ModuleName,
		Description: "sample API consumer",
		Depends:     []string{core.ModuleName, foo.ModuleName},
		Entry:       m.entry,
	}
}

func (m *module) entry(reg apidb.API, _ alloc.Allocator, load, reload bool) error {
	m.reg = reg
	if load {
		logs, err := apidb.GetAPIOf[core.LogAPI](reg, core.ModuleName, apidb.LangGo)
		if err != nil {
			return fmt.Errorf("log api: %w", err)
		}
		ids, err := apidb.GetAPIOf[core.StridAPI](reg, core.ModuleName, apidb.LangGo)
		if err != nil {
			return fmt.Errorf("strid api: %w", err)
		}
		m.log = logs
		m.update.Phase = ids.Strid64(kernel.OnUpdate)
	}

	g, err := apidb.GlobalOf(reg, ModuleName, "_g", G{})
	if err != nil {
		return err
	}
	m.g = g

	if load && reload {
		m.log.Info(ModuleName, "reloaded with var1=%d", g.Var1)
	}

	if err := reg.ImplOrRemove(ModuleName, kernel.CreateTypesInterface, &m.createTypes, load); err != nil {
		return err
	}
	if err := reg.ImplOrRemove(ModuleName, kernel.TaskInterface, &m.task, load); err != nil {
		return err
	}
	if err := reg.ImplOrRemove(ModuleName, kernel.TaskUpdateInterface, &m.update, load); err != nil {
		return err
	}

	// A state object kept across reload gets its aspect from the new code
	// here, since init does not run again.
	if !g.State.IsZero() && load != m.aspectOn {
		return m.setAspect(g.State.Type, load)
	}
	return nil
}

func (m *module) setAspect(t cdb.TypeIdx, on bool) error {
	if err := cdb.RegisterAspect(m.reg, ModuleName, cdb.PropertiesAspectName, t, &m.properties, on); err != nil {
		return err
	}
	m.aspectOn = on
	return nil
}

// init creates the state object once; after a reload the object from the
// previous code is reused.
func (m *module) init(db *cdb.DB) error {
	m.db = db
	t, ok := db.TypeByName(StateTypeName)
	if !ok {
		return fmt.Errorf("%w: %s", cdb.ErrUnknownType, StateTypeName)
	}
	if m.g.State.IsZero() || !db.Exists(m.g.State) {
		obj, err := db.Create(t)
		if err != nil {
			return err
		}
		m.g.State = obj
	}
	if m.aspectOn {
		return nil
	}
	return m.setAspect(t, true)
}

func (m *module) shutdown() {
	if m.db == nil || m.g == nil || m.g.State.IsZero() {
		return
	}
	if m.aspectOn {
		if err := m.setAspect(m.g.State.Type, false); err != nil {
			m.log.Warn(ModuleName, "remove aspect: %v", err)
		}
	}
	if err := m.db.Destroy(m.g.State); err != nil {
		m.log.Warn(ModuleName, "destroy state: %v", err)
	}
	m.g.State = cdb.ObjID{}
}

func (m *module) tick(_ alloc.Allocator, db *cdb.DB, tick uint64, _ time.Duration) error {
	m.db = db
	api, err := apidb.GetAPIOf[foo.API](m.reg, foo.ModuleName, apidb.LangGo)
	if err != nil {
		return fmt.Errorf("foo api: %w", err)
	}
	a := api.Foo(42)
	if m.opts.SpamLog {
		m.log.Info(ModuleName, "foo(42) => %f", a)
		m.log.Info(ModuleName, "g.var1 => %d", m.g.Var1)
	}
	m.g.Var1++

	if m.g.State.IsZero() {
		return nil
	}
	if err := db.SetU32(m.g.State, PropVar1, m.g.Var1); err != nil {
		return err
	}
	if err := db.SetF32(m.g.State, PropLastFoo, a); err != nil {
		return err
	}
	return db.SetU64(m.g.State, PropTick, tick)
}

func (m *module) renderProperties(_ alloc.Allocator, db *cdb.DB, obj cdb.ObjID, args cdb.PropertiesArgs) error {
	var1, err := db.GetU32(obj, PropVar1)
	if err != nil {
		return err
	}
	last, err := db.GetF32(obj, PropLastFoo)
	if err != nil {
		return err
	}
	tick, err := db.GetU64(obj, PropTick)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(args.Out, "bar: var1=%d foo=%.1f at tick %d\n", var1, last, tick)
	return err
}
