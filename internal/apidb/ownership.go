package apidb

import "sort"

// ImplRef names one implementation entry.
type ImplRef struct {
	Interface string
	Impl      any
}

// Ownership is everything one module currently has in the registry.
type Ownership struct {
	APIs    []Key
	Impls   []ImplRef
	Globals []string
}

// Empty reports whether the module owns nothing.
func (o Ownership) Empty() bool {
	return len(o.APIs) == 0 && len(o.Impls) == 0 && len(o.Globals) == 0
}

// Owned returns what owner has registered.
func (db *DB) Owned(owner string) Ownership {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var o Ownership
	for k, s := range db.apis {
		if s.owner == owner {
			o.APIs = append(o.APIs, k)
		}
	}
	sort.Slice(o.APIs, func(i, j int) bool { return o.APIs[i].String() < o.APIs[j].String() })

	for _, l := range db.ifaces {
		for _, e := range l.entries {
			if e.live && e.owner == owner {
				o.Impls = append(o.Impls, ImplRef{Interface: l.name, Impl: e.impl})
			}
		}
	}
	sort.SliceStable(o.Impls, func(i, j int) bool { return o.Impls[i].Interface < o.Impls[j].Interface })

	for k := range db.globals {
		if k.module == owner {
			o.Globals = append(o.Globals, k.name)
		}
	}
	sort.Strings(o.Globals)
	return o
}

// RetractStats counts what Retract removed.
type RetractStats struct {
	APIs    int
	Impls   int
	Globals int
}

// Retract removes every API slot and implementation entry owned by owner in
// one step. Globals stored under owner are dropped only when dropGlobals is
// set, so a reload keeps them.
func (db *DB) Retract(owner string, dropGlobals bool) RetractStats {
	db.mu.Lock()
	defer db.mu.Unlock()

	var stats RetractStats
	for k, s := range db.apis {
		if s.owner == owner {
			delete(db.apis, k)
			stats.APIs++
		}
	}

	for _, l := range db.ifaces {
		for i, e := range l.entries {
			if e.live && e.owner == owner {
				l.removeAt(i)
				stats.Impls++
			}
		}
	}

	if dropGlobals {
		for k := range db.globals {
			if k.module == owner {
				delete(db.globals, k)
				stats.Globals++
			}
		}
	}

	if stats != (RetractStats{}) {
		db.version++
	}

	db.logger.Debug("module retracted",
		"module", owner,
		"apis", stats.APIs,
		"impls", stats.Impls,
		"globals", stats.Globals,
	)
	return stats
}
