package apidb

import (
	"errors"
	"fmt"
)

// Registry errors.
var (
	// ErrNotFound is returned when an API slot is absent.
	ErrNotFound = errors.New("api not found")

	// ErrSizeMismatch is returned when a caller's expected API size differs
	// from the size recorded at registration.
	ErrSizeMismatch = errors.New("api size mismatch")

	// ErrInvalidKey is returned for empty module, language, API or interface names.
	ErrInvalidKey = errors.New("invalid registry key")

	// ErrInvalidImpl is returned when an implementation is not a non-nil pointer.
	ErrInvalidImpl = errors.New("implementation must be a non-nil pointer")

	// ErrGlobalSizeMismatch is returned when a global is requested with a size
	// different from the one it was created with.
	ErrGlobalSizeMismatch = errors.New("global size mismatch")

	// ErrGlobalTypeMismatch is returned when a typed global is requested with
	// a different Go type than it was created with.
	ErrGlobalTypeMismatch = errors.New("global type mismatch")
)

// SizeMismatchError describes a get of an API whose declared size changed.
type SizeMismatchError struct {
	Key      Key
	Expected uint32
	Actual   uint32
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("api %s: expected size %d, registered size %d", e.Key, e.Expected, e.Actual)
}

// Unwrap lets errors.Is match ErrSizeMismatch.
func (e *SizeMismatchError) Unwrap() error {
	return ErrSizeMismatch
}
