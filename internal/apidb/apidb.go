// Package apidb is the capability registry shared by every module.
//
// Modules publish named API tables, contribute implementations to named
// interfaces and keep persistent globals that survive hot reload. Every
// mutation is attributed to an owning module so the host can retract all of
// it when the module goes away.
package apidb

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/felixgeelhaar/modkernel/internal/strid"
)

// Language tags for API slots.
const (
	LangGo  = "go"
	LangC   = "c"
	LangZig = "zig"
)

// API is the registry surface handed to every module entry point.
type API interface {
	SetAPI(module, language, name string, api any, size uint32)
	GetAPI(module, language, name string, size uint32) (any, error)
	RemoveAPI(module, language, name string)
	SetOrRemove(module, language, name string, api any, size uint32, load, reload bool)

	GlobalVar(module, name string, size int, def []byte) ([]byte, error)
	GlobalValue(module, name string, def any) (any, error)

	Impl(module, iface string, impl any) error
	RemoveImpl(module, iface string, impl any)
	ImplOrRemove(module, iface string, impl any, load bool) error
	GetFirstImpl(iface string) *ImplIter
}

// Key identifies an API slot.
type Key struct {
	Module   string
	Language string
	Name     string
}

func (k Key) String() string {
	return k.Module + "/" + k.Language + "/" + k.Name
}

func (k Key) valid() bool {
	return k.Module != "" && k.Language != "" && k.Name != ""
}

type apiSlot struct {
	api   any
	size  uint32
	owner string
}

type globalKey struct {
	module string
	name   string
}

type globalSlot struct {
	size int
	data any
}

// DB is the in-memory registry. Mutations are serialized; readers run
// concurrently and iterate over snapshots.
type DB struct {
	mu      sync.RWMutex
	apis    map[Key]*apiSlot
	ifaces  map[strid.ID64]*implList
	globals map[globalKey]*globalSlot
	seq     uint64
	version uint64
	logger  *slog.Logger
}

var _ API = (*DB)(nil)

// New creates an empty registry.
func New(logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{
		apis:    make(map[Key]*apiSlot),
		ifaces:  make(map[strid.ID64]*implList),
		globals: make(map[globalKey]*globalSlot),
		logger:  logger,
	}
}

// Version increases on every mutation.
func (db *DB) Version() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.version
}

// SetAPI inserts or replaces an API slot. The module argument is recorded as
// the owner.
func (db *DB) SetAPI(module, language, name string, api any, size uint32) {
	db.setAPI(module, Key{Module: module, Language: language, Name: name}, api, size)
}

func (db *DB) setAPI(owner string, key Key, api any, size uint32) {
	if !key.valid() || owner == "" {
		db.logger.Error("set api rejected", "key", key.String(), "owner", owner, "error", ErrInvalidKey)
		return
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.apis[key] = &apiSlot{api: api, size: size, owner: owner}
	db.version++

	db.logger.Debug("api set", "key", key.String(), "size", size, "owner", owner)
}

// GetAPI returns the API stored under the key. It fails with ErrNotFound when
// absent and with a *SizeMismatchError when size differs from the registered
// size.
func (db *DB) GetAPI(module, language, name string, size uint32) (any, error) {
	key := Key{Module: module, Language: language, Name: name}
	if !key.valid() {
		return nil, ErrInvalidKey
	}

	db.mu.RLock()
	slot, ok := db.apis[key]
	db.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if slot.size != size {
		return nil, &SizeMismatchError{Key: key, Expected: size, Actual: slot.size}
	}
	return slot.api, nil
}

// RemoveAPI deletes a slot. Removing an absent slot is a no-op.
func (db *DB) RemoveAPI(module, language, name string) {
	key := Key{Module: module, Language: language, Name: name}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.apis[key]; !ok {
		return
	}
	delete(db.apis, key)
	db.version++

	db.logger.Debug("api removed", "key", key.String())
}

// SetOrRemove registers the API when load is set and retracts it otherwise.
// An unload for reload still retracts; only globals survive a reload.
func (db *DB) SetOrRemove(module, language, name string, api any, size uint32, load, reload bool) {
	if load {
		db.SetAPI(module, language, name, api, size)
		return
	}
	db.RemoveAPI(module, language, name)
}

// APIInfo describes a registered API slot.
type APIInfo struct {
	Key   Key
	Size  uint32
	Owner string
}

// APIs returns every registered slot sorted by key.
func (db *DB) APIs() []APIInfo {
	db.mu.RLock()
	defer db.mu.RUnlock()

	infos := make([]APIInfo, 0, len(db.apis))
	for k, s := range db.apis {
		infos = append(infos, APIInfo{Key: k, Size: s.size, Owner: s.owner})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Key.String() < infos[j].Key.String()
	})
	return infos
}

// ForModule returns a registry view that attributes every mutation to owner,
// whatever module name the caller passes.
func (db *DB) ForModule(owner string) *View {
	return &View{db: db, owner: owner}
}
