package cdb

import "fmt"

// propLocked resolves a property of a live object and checks its kind.
func (db *DB) propLocked(obj ObjID, prop uint32, want Kind) (*object, PropDef, error) {
	o := db.objectLocked(obj)
	if o == nil {
		return nil, PropDef{}, fmt.Errorf("%w: %s", ErrObjectNotFound, obj)
	}
	def := db.types[obj.Type].def
	if int(prop) >= len(def.Props) {
		return nil, PropDef{}, fmt.Errorf("%w: %s has no property %d", ErrPropertyNotFound, def.Name, prop)
	}
	p := def.Props[prop]
	if want != KindNone && p.Kind != want {
		return nil, PropDef{}, &TypeMismatchError{
			Obj:      obj,
			Prop:     prop,
			PropName: p.Name,
			Expected: p.Kind.String(),
			Actual:   want.String(),
		}
	}
	return o, p, nil
}

// PropIndex returns the index of the named property of type t.
func (db *DB) PropIndex(t TypeIdx, name string) (uint32, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	te, err := db.typeLocked(t)
	if err != nil {
		return 0, err
	}
	p, ok := te.def.Prop(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s.%s", ErrPropertyNotFound, te.def.Name, name)
	}
	return p.Index, nil
}

// Get returns the value of any property.
func (db *DB) Get(obj ObjID, prop uint32) (Value, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	o, _, err := db.propLocked(obj, prop, KindNone)
	if err != nil {
		return Value{}, err
	}
	v := o.props[prop]
	v.set = v.Set()
	return v, nil
}

// Set stores a scalar, string or blob value. Object-valued properties are
// changed through SetSubObject, SetReference and the set operations.
func (db *DB) Set(obj ObjID, prop uint32, v Value) error {
	if v.kind.IsObject() || !v.kind.Valid() {
		return fmt.Errorf("%w: cannot set a %s value directly", ErrTypeMismatch, v.kind)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	o, _, err := db.propLocked(obj, prop, v.kind)
	if err != nil {
		return err
	}
	if v.kind == KindBlob {
		v = Blob(v.blob)
	}
	o.props[prop] = v
	return nil
}

func (db *DB) get(obj ObjID, prop uint32, k Kind) (Value, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	o, _, err := db.propLocked(obj, prop, k)
	if err != nil {
		return Value{}, err
	}
	return o.props[prop], nil
}

func (db *DB) GetBool(obj ObjID, prop uint32) (bool, error) {
	v, err := db.get(obj, prop, KindBool)
	return v.Bool(), err
}

func (db *DB) SetBool(obj ObjID, prop uint32, x bool) error {
	return db.Set(obj, prop, Bool(x))
}

func (db *DB) GetU64(obj ObjID, prop uint32) (uint64, error) {
	v, err := db.get(obj, prop, KindU64)
	return v.U64(), err
}

func (db *DB) SetU64(obj ObjID, prop uint32, x uint64) error {
	return db.Set(obj, prop, U64(x))
}

func (db *DB) GetI64(obj ObjID, prop uint32) (int64, error) {
	v, err := db.get(obj, prop, KindI64)
	return v.I64(), err
}

func (db *DB) SetI64(obj ObjID, prop uint32, x int64) error {
	return db.Set(obj, prop, I64(x))
}

func (db *DB) GetU32(obj ObjID, prop uint32) (uint32, error) {
	v, err := db.get(obj, prop, KindU32)
	return v.U32(), err
}

func (db *DB) SetU32(obj ObjID, prop uint32, x uint32) error {
	return db.Set(obj, prop, U32(x))
}

func (db *DB) GetI32(obj ObjID, prop uint32) (int32, error) {
	v, err := db.get(obj, prop, KindI32)
	return v.I32(), err
}

func (db *DB) SetI32(obj ObjID, prop uint32, x int32) error {
	return db.Set(obj, prop, I32(x))
}

func (db *DB) GetF32(obj ObjID, prop uint32) (float32, error) {
	v, err := db.get(obj, prop, KindF32)
	return v.F32(), err
}

func (db *DB) SetF32(obj ObjID, prop uint32, x float32) error {
	return db.Set(obj, prop, F32(x))
}

func (db *DB) GetF64(obj ObjID, prop uint32) (float64, error) {
	v, err := db.get(obj, prop, KindF64)
	return v.F64(), err
}

func (db *DB) SetF64(obj ObjID, prop uint32, x float64) error {
	return db.Set(obj, prop, F64(x))
}

func (db *DB) GetStr(obj ObjID, prop uint32) (string, error) {
	v, err := db.get(obj, prop, KindStr)
	return v.Str(), err
}

func (db *DB) SetStr(obj ObjID, prop uint32, x string) error {
	return db.Set(obj, prop, Str(x))
}

// GetBlob returns a copy of the blob.
func (db *DB) GetBlob(obj ObjID, prop uint32) ([]byte, error) {
	v, err := db.get(obj, prop, KindBlob)
	return v.Blob(), err
}

func (db *DB) SetBlob(obj ObjID, prop uint32, x []byte) error {
	return db.Set(obj, prop, Blob(x))
}

// GetSubObject returns the owned sub-object, or the zero ObjID when empty.
func (db *DB) GetSubObject(obj ObjID, prop uint32) (ObjID, error) {
	v, err := db.get(obj, prop, KindSubObject)
	return v.obj, err
}

// GetReference returns the referenced object, or the zero ObjID when the
// reference is empty or its target was destroyed.
func (db *DB) GetReference(obj ObjID, prop uint32) (ObjID, error) {
	v, err := db.get(obj, prop, KindReference)
	return v.obj, err
}

// checkTargetLocked validates an object about to be stored in p.
func (db *DB) checkTargetLocked(obj ObjID, p PropDef, target ObjID) (*object, error) {
	t := db.objectLocked(target)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, target)
	}
	if !p.TypeHash.IsZero() && db.types[target.Type].hash != p.TypeHash {
		return nil, &TypeMismatchError{
			Obj:      obj,
			Prop:     p.Index,
			PropName: p.Name,
			Expected: "type " + p.TypeHash.String(),
			Actual:   "type " + db.types[target.Type].def.Name,
		}
	}
	return t, nil
}

// adoptLocked makes parent own child through prop.
func (db *DB) adoptLocked(parent ObjID, prop uint32, child *object) error {
	if child.owner != nil {
		return fmt.Errorf("%w: %s is owned by %s", ErrAlreadyOwned, child.id, child.owner.parent)
	}
	for cur := parent; !cur.IsZero(); {
		if cur == child.id {
			return fmt.Errorf("%w: %s", ErrOwnershipCycle, child.id)
		}
		o := db.objectLocked(cur)
		if o == nil || o.owner == nil {
			break
		}
		cur = o.owner.parent
	}
	child.owner = &owner{parent: parent, prop: prop}
	return nil
}

// SetSubObject makes child the sub-object of obj. The previous sub-object,
// if any, is destroyed. A zero child clears the property.
func (db *DB) SetSubObject(obj ObjID, prop uint32, child ObjID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	o, p, err := db.propLocked(obj, prop, KindSubObject)
	if err != nil {
		return err
	}
	old := o.props[prop].obj
	if old == child && !child.IsZero() {
		return nil
	}

	if !child.IsZero() {
		c, err := db.checkTargetLocked(obj, p, child)
		if err != nil {
			return err
		}
		if err := db.adoptLocked(obj, prop, c); err != nil {
			return err
		}
	}

	o.props[prop].obj = child
	if prev := db.objectLocked(old); prev != nil {
		db.destroyLocked(prev)
	}
	return nil
}

// SetReference points obj's reference property at target. A zero target
// clears it.
func (db *DB) SetReference(obj ObjID, prop uint32, target ObjID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	o, p, err := db.propLocked(obj, prop, KindReference)
	if err != nil {
		return err
	}
	if !target.IsZero() {
		if _, err := db.checkTargetLocked(obj, p, target); err != nil {
			return err
		}
	}

	site := refSite{from: obj, prop: prop}
	db.unlinkLocked(o.props[prop].obj, site)
	o.props[prop].obj = target
	db.linkLocked(target, site)
	return nil
}
