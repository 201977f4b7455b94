package cdb

import "fmt"

func (db *DB) setPropLocked(obj ObjID, prop uint32) (*object, PropDef, error) {
	o, p, err := db.propLocked(obj, prop, KindNone)
	if err != nil {
		return nil, PropDef{}, err
	}
	if !p.Kind.IsSet() {
		return nil, PropDef{}, &TypeMismatchError{
			Obj:      obj,
			Prop:     prop,
			PropName: p.Name,
			Expected: p.Kind.String(),
			Actual:   "set",
		}
	}
	return o, p, nil
}

// AddToSet adds member to a subobject or reference set. Adding a member that
// is already present is a no-op. Adding to a subobject set transfers
// ownership of member to obj.
func (db *DB) AddToSet(obj ObjID, prop uint32, member ObjID) error {
	if member.IsZero() {
		return fmt.Errorf("%w: zero member", ErrObjectNotFound)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	o, p, err := db.setPropLocked(obj, prop)
	if err != nil {
		return err
	}
	m, err := db.checkTargetLocked(obj, p, member)
	if err != nil {
		return err
	}
	v := &o.props[prop]
	if containsID(v.set, member) {
		return nil
	}

	if p.Kind == KindSubObjectSet {
		if err := db.adoptLocked(obj, prop, m); err != nil {
			return err
		}
	} else {
		db.linkLocked(member, refSite{from: obj, prop: prop})
	}
	v.set = append(v.set, member)
	return nil
}

// RemoveFromSet removes member from a set. Removing from a subobject set
// destroys the member. Removing an absent member is a no-op.
func (db *DB) RemoveFromSet(obj ObjID, prop uint32, member ObjID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	o, p, err := db.setPropLocked(obj, prop)
	if err != nil {
		return err
	}
	v := &o.props[prop]
	if !containsID(v.set, member) {
		return nil
	}
	v.set = removeID(v.set, member)

	if p.Kind == KindSubObjectSet {
		if m := db.objectLocked(member); m != nil {
			db.destroyLocked(m)
		}
		return nil
	}
	db.unlinkLocked(member, refSite{from: obj, prop: prop})
	return nil
}

// SetMembers returns the members of a set in insertion order.
func (db *DB) SetMembers(obj ObjID, prop uint32) ([]ObjID, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	o, _, err := db.setPropLocked(obj, prop)
	if err != nil {
		return nil, err
	}
	return o.props[prop].Set(), nil
}

// SetContains reports whether member is in the set.
func (db *DB) SetContains(obj ObjID, prop uint32, member ObjID) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	o, _, err := db.setPropLocked(obj, prop)
	if err != nil {
		return false, err
	}
	return containsID(o.props[prop].set, member), nil
}
