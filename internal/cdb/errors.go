package cdb

import (
	"errors"
	"fmt"
)

// Store errors.
var (
	ErrUnknownType      = errors.New("unknown type")
	ErrObjectNotFound   = errors.New("object not found")
	ErrPropertyNotFound = errors.New("property not found")
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrTypeConflict     = errors.New("conflicting type definition")
	ErrInvalidTypeDef   = errors.New("invalid type definition")
	ErrAlreadyOwned     = errors.New("object already owned")
	ErrOwnershipCycle   = errors.New("object cannot own itself or an ancestor")
	ErrInvalidSchema    = errors.New("invalid schema")
)

// TypeMismatchError reports a property accessed with the wrong kind, or an
// object of the wrong type stored in a property with a forced type.
type TypeMismatchError struct {
	Obj      ObjID
	Prop     uint32
	PropName string
	Expected string
	Actual   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("object %s property %d (%s): expected %s, got %s",
		e.Obj, e.Prop, e.PropName, e.Expected, e.Actual)
}

// Unwrap lets errors.Is match ErrTypeMismatch.
func (e *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}

// TypeConflictError reports a type registered twice with different
// definitions.
type TypeConflictError struct {
	Name   string
	Reason string
}

func (e *TypeConflictError) Error() string {
	return fmt.Sprintf("type %s: %s", e.Name, e.Reason)
}

// Unwrap lets errors.Is match ErrTypeConflict.
func (e *TypeConflictError) Unwrap() error {
	return ErrTypeConflict
}
