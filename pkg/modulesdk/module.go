package modulesdk

import (
	"fmt"
	"sync"
	"time"
)

// UpdateFunc runs once per kernel tick.
type UpdateFunc func(tick uint64, dt time.Duration) error

type task struct {
	info     TaskInfo
	update   UpdateFunc
	init     func() error
	shutdown func() error
}

// BaseModule is a Module assembled from task callbacks. Calls are
// serialized.
type BaseModule struct {
	mu    sync.Mutex
	info  Info
	tasks map[string]*task
	err   error
}

var _ Module = (*BaseModule)(nil)

// NewBaseModule creates an empty module.
func NewBaseModule(name, version, description string) *BaseModule {
	return &BaseModule{
		info:  Info{Name: name, Version: version, Description: description},
		tasks: make(map[string]*task),
	}
}

func (m *BaseModule) add(t *task) *BaseModule {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.tasks[t.info.Name]; dup {
		if m.err == nil {
			m.err = fmt.Errorf("%w: %s", ErrDuplicateTask, t.info.Name)
		}
		return m
	}
	m.tasks[t.info.Name] = t
	m.info.Tasks = append(m.info.Tasks, t.info)
	return m
}

// OnUpdate declares an update task running in phase after depends.
func (m *BaseModule) OnUpdate(phase, name string, fn UpdateFunc, depends ...string) *BaseModule {
	return m.add(&task{
		info:   TaskInfo{Name: name, Phase: phase, Depends: depends},
		update: fn,
	})
}

// OnLifecycle declares a lifecycle task. Either callback may be nil.
func (m *BaseModule) OnLifecycle(name string, init, shutdown func() error, depends ...string) *BaseModule {
	return m.add(&task{
		info:     TaskInfo{Name: name, Depends: depends, Lifecycle: true},
		init:     init,
		shutdown: shutdown,
	})
}

// Describe reports the declared tasks. It fails if a task was declared
// twice.
func (m *BaseModule) Describe() (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Info{}, m.err
	}
	info := m.info
	info.Tasks = append([]TaskInfo(nil), m.info.Tasks...)
	return info, nil
}

func (m *BaseModule) lookup(name string, lifecycle bool) (*task, error) {
	t, ok := m.tasks[name]
	if !ok || t.info.Lifecycle != lifecycle {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return t, nil
}

func (m *BaseModule) Update(name string, tick uint64, dt time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.lookup(name, false)
	if err != nil {
		return err
	}
	if t.update == nil {
		return nil
	}
	return t.update(tick, dt)
}

func (m *BaseModule) Init(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.lookup(name, true)
	if err != nil || t.init == nil {
		return err
	}
	return t.init()
}

func (m *BaseModule) Shutdown(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.lookup(name, true)
	if err != nil || t.shutdown == nil {
		return err
	}
	return t.shutdown()
}
