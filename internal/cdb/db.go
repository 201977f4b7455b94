package cdb

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/felixgeelhaar/modkernel/internal/strid"
)

type typeEntry struct {
	idx     TypeIdx
	hash    strid.ID32
	def     TypeDef
	nextID  uint32
	objects map[uint32]*object
}

type owner struct {
	parent ObjID
	prop   uint32
}

type object struct {
	id    ObjID
	props []Value
	owner *owner
}

// refSite is one property slot that references an object.
type refSite struct {
	from ObjID
	prop uint32
}

// DB is the object store. All methods are safe for concurrent use.
type DB struct {
	mu      sync.RWMutex
	types   []*typeEntry // index 0 is "no type"
	byHash  map[strid.ID32]TypeIdx
	inbound map[ObjID]map[refSite]int
	logger  *slog.Logger
}

// New creates an empty store.
func New(logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{
		types:   []*typeEntry{nil},
		byHash:  make(map[strid.ID32]TypeIdx),
		inbound: make(map[ObjID]map[refSite]int),
		logger:  logger,
	}
}

// RegisterType registers def and returns its index. Registering an identical
// definition again returns the existing index.
func (db *DB) RegisterType(def TypeDef) (TypeIdx, error) {
	if err := def.validate(); err != nil {
		return 0, err
	}
	def = cloneTypeDef(def)
	hash := def.Hash()

	db.mu.Lock()
	defer db.mu.Unlock()

	if idx, ok := db.byHash[hash]; ok {
		existing := db.types[idx]
		if existing.def.Name != def.Name {
			return 0, &TypeConflictError{Name: def.Name, Reason: fmt.Sprintf("name hash collides with %s", existing.def.Name)}
		}
		if reason := existing.def.diff(def); reason != "" {
			return 0, &TypeConflictError{Name: def.Name, Reason: reason}
		}
		return idx, nil
	}

	idx := TypeIdx(len(db.types))
	db.types = append(db.types, &typeEntry{
		idx:     idx,
		hash:    hash,
		def:     def,
		objects: make(map[uint32]*object),
	})
	db.byHash[hash] = idx

	db.logger.Debug("type registered", "type", def.Name, "index", idx, "properties", len(def.Props))
	return idx, nil
}

func cloneTypeDef(def TypeDef) TypeDef {
	props := make([]PropDef, len(def.Props))
	copy(props, def.Props)
	return TypeDef{Name: def.Name, Props: props}
}

// TypeByName returns the index of the named type.
func (db *DB) TypeByName(name string) (TypeIdx, bool) {
	return db.TypeByHash(strid.Sum32(name))
}

// TypeByHash returns the index of the type whose name hashes to h.
func (db *DB) TypeByHash(h strid.ID32) (TypeIdx, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	idx, ok := db.byHash[h]
	return idx, ok
}

// TypeDefOf returns the definition of type t.
func (db *DB) TypeDefOf(t TypeIdx) (TypeDef, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	te, err := db.typeLocked(t)
	if err != nil {
		return TypeDef{}, err
	}
	return cloneTypeDef(te.def), nil
}

// Types returns the indices of all registered types in registration order.
func (db *DB) Types() []TypeIdx {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]TypeIdx, 0, len(db.types)-1)
	for _, te := range db.types[1:] {
		out = append(out, te.idx)
	}
	return out
}

func (db *DB) typeLocked(t TypeIdx) (*typeEntry, error) {
	if t == 0 || int(t) >= len(db.types) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
	return db.types[t], nil
}

// Create makes a new object of type t with every property at its default.
func (db *DB) Create(t TypeIdx) (ObjID, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	te, err := db.typeLocked(t)
	if err != nil {
		return ObjID{}, err
	}

	te.nextID++
	id := ObjID{ID: te.nextID, Type: t}
	props := make([]Value, len(te.def.Props))
	for i, p := range te.def.Props {
		if p.Default.Kind() != KindNone {
			props[i] = p.Default
			continue
		}
		props[i] = Zero(p.Kind)
	}
	te.objects[id.ID] = &object{id: id, props: props}
	return id, nil
}

// Exists reports whether obj is live.
func (db *DB) Exists(obj ObjID) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.objectLocked(obj) != nil
}

// TypeOf returns the type of a live object.
func (db *DB) TypeOf(obj ObjID) (TypeIdx, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.objectLocked(obj) == nil {
		return 0, fmt.Errorf("%w: %s", ErrObjectNotFound, obj)
	}
	return obj.Type, nil
}

// Objects returns the live objects of type t ordered by id.
func (db *DB) Objects(t TypeIdx) ([]ObjID, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	te, err := db.typeLocked(t)
	if err != nil {
		return nil, err
	}
	out := make([]ObjID, 0, len(te.objects))
	for _, o := range te.objects {
		out = append(out, o.id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Owner returns the object and property that own obj. ok is false for root
// objects.
func (db *DB) Owner(obj ObjID) (parent ObjID, prop uint32, ok bool, err error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	o := db.objectLocked(obj)
	if o == nil {
		return ObjID{}, 0, false, fmt.Errorf("%w: %s", ErrObjectNotFound, obj)
	}
	if o.owner == nil {
		return ObjID{}, 0, false, nil
	}
	return o.owner.parent, o.owner.prop, true, nil
}

func (db *DB) objectLocked(obj ObjID) *object {
	if obj.Type == 0 || int(obj.Type) >= len(db.types) {
		return nil
	}
	return db.types[obj.Type].objects[obj.ID]
}

// Destroy removes obj, every sub-object it owns, and every reference to any
// of them.
func (db *DB) Destroy(obj ObjID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	o := db.objectLocked(obj)
	if o == nil {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, obj)
	}
	if o.owner != nil {
		db.detachLocked(o.owner.parent, o.owner.prop, obj)
	}
	n := db.destroyLocked(o)

	db.logger.Debug("object destroyed", "object", obj.String(), "destroyed", n)
	return nil
}

// destroyLocked removes o and its owned subtree and returns how many objects
// were removed. The caller detaches o from its owner.
func (db *DB) destroyLocked(o *object) int {
	delete(db.types[o.id.Type].objects, o.id.ID)
	n := 1

	def := db.types[o.id.Type].def
	for i, p := range def.Props {
		v := o.props[i]
		switch p.Kind {
		case KindSubObject:
			if child := db.objectLocked(v.obj); child != nil {
				n += db.destroyLocked(child)
			}
		case KindSubObjectSet:
			for _, id := range v.set {
				if child := db.objectLocked(id); child != nil {
					n += db.destroyLocked(child)
				}
			}
		case KindReference:
			db.unlinkLocked(v.obj, refSite{from: o.id, prop: uint32(i)})
		case KindReferenceSet:
			for _, id := range v.set {
				db.unlinkLocked(id, refSite{from: o.id, prop: uint32(i)})
			}
		}
	}

	for site := range db.inbound[o.id] {
		from := db.objectLocked(site.from)
		if from == nil {
			continue
		}
		v := &from.props[site.prop]
		switch v.kind {
		case KindReference:
			v.obj = ObjID{}
		case KindReferenceSet:
			v.set = removeID(v.set, o.id)
		}
	}
	delete(db.inbound, o.id)
	return n
}

// detachLocked removes child from the owning slot of parent without
// destroying it.
func (db *DB) detachLocked(parent ObjID, prop uint32, child ObjID) {
	p := db.objectLocked(parent)
	if p == nil {
		return
	}
	v := &p.props[prop]
	switch v.kind {
	case KindSubObject:
		if v.obj == child {
			v.obj = ObjID{}
		}
	case KindSubObjectSet:
		v.set = removeID(v.set, child)
	}
}

func (db *DB) linkLocked(target ObjID, site refSite) {
	if target.IsZero() {
		return
	}
	sites := db.inbound[target]
	if sites == nil {
		sites = make(map[refSite]int)
		db.inbound[target] = sites
	}
	sites[site]++
}

func (db *DB) unlinkLocked(target ObjID, site refSite) {
	sites := db.inbound[target]
	if sites == nil {
		return
	}
	if sites[site] <= 1 {
		delete(sites, site)
	} else {
		sites[site]--
	}
	if len(sites) == 0 {
		delete(db.inbound, target)
	}
}

func removeID(ids []ObjID, id ObjID) []ObjID {
	for i, x := range ids {
		if x == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func containsID(ids []ObjID, id ObjID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
