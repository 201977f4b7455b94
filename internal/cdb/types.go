// Package cdb is the typed object store shared by all modules.
//
// Objects are instances of registered types. A type is an ordered list of
// property definitions addressed by stable index. Properties hold scalars,
// strings, blobs, owned sub-objects, non-owning references, or sets of either.
// Modules extend how a type is presented through aspects registered in the
// capability registry, not by changing the type.
package cdb

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/modkernel/internal/strid"
)

// Kind is the primitive or composite kind of a property.
type Kind uint8

const (
	KindNone         Kind = 0
	KindBool         Kind = 1
	KindU64          Kind = 2
	KindI64          Kind = 3
	KindU32          Kind = 4
	KindI32          Kind = 5
	KindF32          Kind = 6
	KindF64          Kind = 7
	KindStr          Kind = 8
	KindBlob         Kind = 9
	KindSubObject    Kind = 10
	KindReference    Kind = 11
	KindSubObjectSet Kind = 12
	KindReferenceSet Kind = 13
)

var kindNames = [...]string{
	KindNone:         "none",
	KindBool:         "bool",
	KindU64:          "u64",
	KindI64:          "i64",
	KindU32:          "u32",
	KindI32:          "i32",
	KindF32:          "f32",
	KindF64:          "f64",
	KindStr:          "str",
	KindBlob:         "blob",
	KindSubObject:    "subobject",
	KindReference:    "reference",
	KindSubObjectSet: "subobject_set",
	KindReferenceSet: "reference_set",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind parses a kind name as produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s && Kind(k) != KindNone {
			return Kind(k), nil
		}
	}
	return KindNone, fmt.Errorf("%w: unknown kind %q", ErrInvalidTypeDef, s)
}

// Valid reports whether k is a usable property kind.
func (k Kind) Valid() bool {
	return k > KindNone && k <= KindReferenceSet
}

// IsObject reports whether the kind stores object ids.
func (k Kind) IsObject() bool {
	return k >= KindSubObject && k <= KindReferenceSet
}

// IsSet reports whether the kind is a set kind.
func (k Kind) IsSet() bool {
	return k == KindSubObjectSet || k == KindReferenceSet
}

// Owning reports whether the kind owns the objects it stores.
func (k Kind) Owning() bool {
	return k == KindSubObject || k == KindSubObjectSet
}

// TypeIdx is the process-local index of a registered type. Zero is "none".
type TypeIdx uint32

// ObjID identifies an object. The zero value means "no object".
type ObjID struct {
	ID   uint32
	Type TypeIdx
}

// IsZero reports whether id refers to no object.
func (id ObjID) IsZero() bool {
	return id.ID == 0 && id.Type == 0
}

func (id ObjID) String() string {
	return fmt.Sprintf("%d:%d", id.Type, id.ID)
}

// PropDef describes one property.
type PropDef struct {
	// Index is the stable address of the property and must equal its
	// position in the type definition.
	Index uint32
	Name  string
	Kind  Kind
	// TypeHash forces the type of objects stored in subobject and reference
	// properties. Zero allows any type.
	TypeHash strid.ID32
	// Default is applied at creation. Its kind must match Kind; object kinds
	// have no default.
	Default Value
}

// TypeDef describes a type.
type TypeDef struct {
	Name  string
	Props []PropDef
}

// Hash returns the interned identifier of the type name.
func (d TypeDef) Hash() strid.ID32 {
	return strid.Sum32(d.Name)
}

// Prop returns the property named name.
func (d TypeDef) Prop(name string) (PropDef, bool) {
	for _, p := range d.Props {
		if p.Name == name {
			return p, true
		}
	}
	return PropDef{}, false
}

func (d TypeDef) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: missing type name", ErrInvalidTypeDef)
	}

	seen := make(map[string]bool, len(d.Props))
	for i, p := range d.Props {
		if p.Index != uint32(i) {
			return fmt.Errorf("%w: %s.%s has index %d at position %d", ErrInvalidTypeDef, d.Name, p.Name, p.Index, i)
		}
		if p.Name == "" {
			return fmt.Errorf("%w: %s property %d has no name", ErrInvalidTypeDef, d.Name, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: %s.%s declared twice", ErrInvalidTypeDef, d.Name, p.Name)
		}
		seen[p.Name] = true

		if !p.Kind.Valid() {
			return fmt.Errorf("%w: %s.%s has invalid kind %s", ErrInvalidTypeDef, d.Name, p.Name, p.Kind)
		}
		if !p.TypeHash.IsZero() && !p.Kind.IsObject() {
			return fmt.Errorf("%w: %s.%s forces a type on a %s property", ErrInvalidTypeDef, d.Name, p.Name, p.Kind)
		}
		if p.Default.Kind() != KindNone {
			if p.Kind.IsObject() {
				return fmt.Errorf("%w: %s.%s: %s properties have no default", ErrInvalidTypeDef, d.Name, p.Name, p.Kind)
			}
			if p.Default.Kind() != p.Kind {
				return fmt.Errorf("%w: %s.%s default is %s, property is %s", ErrInvalidTypeDef, d.Name, p.Name, p.Default.Kind(), p.Kind)
			}
		}
	}
	return nil
}

// diff returns why two definitions of the same type differ, or "" when they
// are identical.
func (d TypeDef) diff(other TypeDef) string {
	if len(d.Props) != len(other.Props) {
		return fmt.Sprintf("%d properties registered, %d requested", len(d.Props), len(other.Props))
	}
	for i := range d.Props {
		a, b := d.Props[i], other.Props[i]
		switch {
		case a.Name != b.Name:
			return fmt.Sprintf("property %d named %q, requested %q", i, a.Name, b.Name)
		case a.Kind != b.Kind:
			return fmt.Sprintf("property %s is %s, requested %s", a.Name, a.Kind, b.Kind)
		case a.TypeHash != b.TypeHash:
			return fmt.Sprintf("property %s forces type %s, requested %s", a.Name, a.TypeHash, b.TypeHash)
		case !a.Default.Equal(b.Default):
			return fmt.Sprintf("property %s default differs", a.Name)
		}
	}
	return ""
}
