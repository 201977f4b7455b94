package apidb

import (
	"fmt"
	"reflect"
	"sort"
)

// GlobalVar returns the byte region stored under (module, name). The first
// request allocates size bytes and copies def into them; later requests
// return the same region and ignore def. The region is never moved or
// resized.
func (db *DB) GlobalVar(module, name string, size int, def []byte) ([]byte, error) {
	if module == "" || name == "" {
		return nil, ErrInvalidKey
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrGlobalSizeMismatch, size)
	}

	key := globalKey{module: module, name: name}

	db.mu.RLock()
	slot, ok := db.globals[key]
	db.mu.RUnlock()
	if ok {
		return slot.bytes(key, size)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if slot, ok := db.globals[key]; ok {
		return slot.bytes(key, size)
	}

	data := make([]byte, size)
	copy(data, def)
	db.globals[key] = &globalSlot{size: size, data: data}
	db.version++

	db.logger.Debug("global created", "module", module, "name", name, "size", size)
	return data, nil
}

func (s *globalSlot) bytes(key globalKey, size int) ([]byte, error) {
	data, ok := s.data.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s holds %T", ErrGlobalTypeMismatch, key.module, key.name, s.data)
	}
	if s.size != size {
		return nil, fmt.Errorf("%w: %s/%s created with %d bytes, requested %d",
			ErrGlobalSizeMismatch, key.module, key.name, s.size, size)
	}
	return data, nil
}

// GlobalValue is the typed form of GlobalVar. The first request stores a
// pointer to a copy of def; every later request returns that same pointer.
// def fixes the Go type of the global.
func (db *DB) GlobalValue(module, name string, def any) (any, error) {
	if module == "" || name == "" || def == nil {
		return nil, ErrInvalidKey
	}

	key := globalKey{module: module, name: name}
	typ := reflect.TypeOf(def)

	db.mu.Lock()
	defer db.mu.Unlock()

	if slot, ok := db.globals[key]; ok {
		if reflect.TypeOf(slot.data) != reflect.PointerTo(typ) {
			return nil, fmt.Errorf("%w: %s/%s holds %T, requested *%s",
				ErrGlobalTypeMismatch, module, name, slot.data, typ)
		}
		return slot.data, nil
	}

	ptr := reflect.New(typ)
	ptr.Elem().Set(reflect.ValueOf(def))
	db.globals[key] = &globalSlot{size: int(typ.Size()), data: ptr.Interface()}
	db.version++

	db.logger.Debug("global created", "module", module, "name", name, "type", typ.String())
	return ptr.Interface(), nil
}

// GlobalInfo describes a persistent global.
type GlobalInfo struct {
	Module string
	Name   string
	Size   int
}

// Globals returns every global sorted by module then name.
func (db *DB) Globals() []GlobalInfo {
	db.mu.RLock()
	defer db.mu.RUnlock()

	infos := make([]GlobalInfo, 0, len(db.globals))
	for k, s := range db.globals {
		infos = append(infos, GlobalInfo{Module: k.module, Name: k.name, Size: s.size})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Module != infos[j].Module {
			return infos[i].Module < infos[j].Module
		}
		return infos[i].Name < infos[j].Name
	})
	return infos
}
