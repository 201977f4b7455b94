package cdb

import (
	"bytes"
	"fmt"
	"math"
	"slices"
)

// Value is a property value tagged with its kind. The zero Value has
// KindNone.
type Value struct {
	kind Kind
	bits uint64
	str  string
	blob []byte
	obj  ObjID
	set  []ObjID
}

// Constructors.

func Bool(v bool) Value {
	var bits uint64
	if v {
		bits = 1
	}
	return Value{kind: KindBool, bits: bits}
}

func U64(v uint64) Value  { return Value{kind: KindU64, bits: v} }
func I64(v int64) Value   { return Value{kind: KindI64, bits: uint64(v)} }
func U32(v uint32) Value  { return Value{kind: KindU32, bits: uint64(v)} }
func I32(v int32) Value   { return Value{kind: KindI32, bits: uint64(int64(v))} }
func F32(v float32) Value { return Value{kind: KindF32, bits: uint64(math.Float32bits(v))} }
func F64(v float64) Value { return Value{kind: KindF64, bits: math.Float64bits(v)} }
func Str(v string) Value  { return Value{kind: KindStr, str: v} }

// Blob copies v.
func Blob(v []byte) Value {
	return Value{kind: KindBlob, blob: bytes.Clone(v)}
}

func objectValue(kind Kind, id ObjID) Value {
	return Value{kind: kind, obj: id}
}

func setValue(kind Kind, ids []ObjID) Value {
	return Value{kind: kind, set: slices.Clone(ids)}
}

// Zero returns the zero value of kind k.
func Zero(k Kind) Value {
	return Value{kind: k}
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// Accessors return the zero value of their Go type when the kind differs.

func (v Value) Bool() bool {
	return v.kind == KindBool && v.bits != 0
}

func (v Value) U64() uint64 {
	if v.kind != KindU64 {
		return 0
	}
	return v.bits
}

func (v Value) I64() int64 {
	if v.kind != KindI64 {
		return 0
	}
	return int64(v.bits)
}

func (v Value) U32() uint32 {
	if v.kind != KindU32 {
		return 0
	}
	return uint32(v.bits)
}

func (v Value) I32() int32 {
	if v.kind != KindI32 {
		return 0
	}
	return int32(int64(v.bits))
}

func (v Value) F32() float32 {
	if v.kind != KindF32 {
		return 0
	}
	return math.Float32frombits(uint32(v.bits))
}

func (v Value) F64() float64 {
	if v.kind != KindF64 {
		return 0
	}
	return math.Float64frombits(v.bits)
}

func (v Value) Str() string {
	return v.str
}

// Blob returns a copy of the blob bytes.
func (v Value) Blob() []byte {
	return bytes.Clone(v.blob)
}

// Object returns the object id held by a subobject or reference value.
func (v Value) Object() ObjID {
	return v.obj
}

// Set returns a copy of the members of a set value, in insertion order.
func (v Value) Set() []ObjID {
	return slices.Clone(v.set)
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind &&
		v.bits == o.bits &&
		v.str == o.str &&
		bytes.Equal(v.blob, o.blob) &&
		v.obj == o.obj &&
		slices.Equal(v.set, o.set)
}

// Any returns the value as a plain Go value.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.Bool()
	case KindU64:
		return v.U64()
	case KindI64:
		return v.I64()
	case KindU32:
		return v.U32()
	case KindI32:
		return v.I32()
	case KindF32:
		return v.F32()
	case KindF64:
		return v.F64()
	case KindStr:
		return v.str
	case KindBlob:
		return v.Blob()
	case KindSubObject, KindReference:
		return v.obj
	case KindSubObjectSet, KindReferenceSet:
		return v.Set()
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return "none"
	case KindStr:
		return fmt.Sprintf("%q", v.str)
	case KindBlob:
		return fmt.Sprintf("blob[%d]", len(v.blob))
	case KindSubObject, KindReference:
		if v.obj.IsZero() {
			return "null"
		}
		return v.obj.String()
	}
	return fmt.Sprint(v.Any())
}
