package apidb

import (
	"reflect"
	"sort"

	"github.com/felixgeelhaar/modkernel/internal/strid"
)

type implEntry struct {
	impl  any
	owner string
	seq   uint64
	live  bool
}

// implList is the implementation multiset of one interface: a slot vector
// with a free-list. Registration order is kept through seq.
type implList struct {
	name    string
	entries []implEntry
	free    []int
	count   int
}

func (l *implList) add(e implEntry) {
	e.live = true
	if n := len(l.free); n > 0 {
		idx := l.free[n-1]
		l.free = l.free[:n-1]
		l.entries[idx] = e
	} else {
		l.entries = append(l.entries, e)
	}
	l.count++
}

func (l *implList) removeAt(idx int) {
	l.entries[idx] = implEntry{}
	l.free = append(l.free, idx)
	l.count--
}

// removeImpl removes one occurrence of impl, the earliest registered.
func (l *implList) removeImpl(impl any) bool {
	found := -1
	for i, e := range l.entries {
		if e.live && e.impl == impl && (found < 0 || e.seq < l.entries[found].seq) {
			found = i
		}
	}
	if found < 0 {
		return false
	}
	l.removeAt(found)
	return true
}

func (l *implList) snapshot() []any {
	live := make([]implEntry, 0, l.count)
	for _, e := range l.entries {
		if e.live {
			live = append(live, e)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].seq < live[j].seq })

	out := make([]any, len(live))
	for i, e := range live {
		out[i] = e.impl
	}
	return out
}

func validImpl(impl any) bool {
	if impl == nil {
		return false
	}
	v := reflect.ValueOf(impl)
	return v.Kind() == reflect.Pointer && !v.IsNil()
}

// Impl adds impl to the interface's implementation multiset. impl must be a
// non-nil pointer; removal matches by pointer identity.
func (db *DB) Impl(module, iface string, impl any) error {
	return db.impl(module, iface, impl)
}

func (db *DB) impl(owner, iface string, impl any) error {
	if owner == "" || iface == "" {
		return ErrInvalidKey
	}
	if !validImpl(impl) {
		return ErrInvalidImpl
	}

	id := strid.Sum64(iface)

	db.mu.Lock()
	defer db.mu.Unlock()

	list, ok := db.ifaces[id]
	if !ok {
		list = &implList{name: iface}
		db.ifaces[id] = list
	}
	db.seq++
	list.add(implEntry{impl: impl, owner: owner, seq: db.seq})
	db.version++

	db.logger.Debug("impl added", "interface", iface, "owner", owner, "count", list.count)
	return nil
}

// RemoveImpl removes one entry whose pointer equals impl. Removing an absent
// entry is a no-op.
func (db *DB) RemoveImpl(module, iface string, impl any) {
	if iface == "" || !validImpl(impl) {
		return
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	list, ok := db.ifaces[strid.Sum64(iface)]
	if !ok {
		return
	}
	if list.removeImpl(impl) {
		db.version++
		db.logger.Debug("impl removed", "interface", iface, "module", module, "count", list.count)
	}
}

// ImplOrRemove adds impl when load is set and removes it otherwise.
func (db *DB) ImplOrRemove(module, iface string, impl any, load bool) error {
	if load {
		return db.Impl(module, iface, impl)
	}
	db.RemoveImpl(module, iface, impl)
	return nil
}

// GetFirstImpl returns a cursor on the first implementation of iface, or nil
// when there is none. The cursor walks a snapshot taken by this call.
func (db *DB) GetFirstImpl(iface string) *ImplIter {
	impls := db.Impls(iface)
	if len(impls) == 0 {
		return nil
	}
	return &ImplIter{impls: impls}
}

// Impls returns a snapshot of the implementations of iface in registration
// order.
func (db *DB) Impls(iface string) []any {
	db.mu.RLock()
	defer db.mu.RUnlock()

	list, ok := db.ifaces[strid.Sum64(iface)]
	if !ok {
		return nil
	}
	return list.snapshot()
}

// InterfaceInfo describes an interface with at least one implementation.
type InterfaceInfo struct {
	Name  string
	ID    strid.ID64
	Count int
}

// Interfaces returns every interface that has implementations, sorted by name.
func (db *DB) Interfaces() []InterfaceInfo {
	db.mu.RLock()
	defer db.mu.RUnlock()

	infos := make([]InterfaceInfo, 0, len(db.ifaces))
	for id, l := range db.ifaces {
		if l.count == 0 {
			continue
		}
		infos = append(infos, InterfaceInfo{Name: l.name, ID: id, Count: l.count})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// ImplIter is a cursor over an implementation snapshot. Next and Prev return
// nil when the walk runs off either end.
type ImplIter struct {
	impls []any
	pos   int
}

// Interface returns the implementation under the cursor.
func (it *ImplIter) Interface() any {
	return it.impls[it.pos]
}

// Next returns a cursor on the following implementation.
func (it *ImplIter) Next() *ImplIter {
	if it.pos+1 >= len(it.impls) {
		return nil
	}
	return &ImplIter{impls: it.impls, pos: it.pos + 1}
}

// Prev returns a cursor on the preceding implementation.
func (it *ImplIter) Prev() *ImplIter {
	if it.pos == 0 {
		return nil
	}
	return &ImplIter{impls: it.impls, pos: it.pos - 1}
}
