package modhost

import (
	"errors"
	"fmt"
)

// Host errors.
var (
	ErrModuleNotFound    = errors.New("module not found")
	ErrAlreadyRegistered = errors.New("module already registered")
	ErrAlreadyLoaded     = errors.New("module already loaded")
	ErrNotLoaded         = errors.New("module not loaded")
	ErrInvalidModule     = errors.New("invalid module")
	ErrModulePanic       = errors.New("module entry panicked")
	ErrDependency        = errors.New("module dependency error")
	ErrNoLoader          = errors.New("no loader for module kind")
	ErrInvalidManifest   = errors.New("invalid module manifest")
	ErrIncompatible      = errors.New("module requires a newer kernel")
)

// ModuleError is returned when a module operation fails.
type ModuleError struct {
	Module string
	Op     string
	Err    error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %s: %s: %v", e.Module, e.Op, e.Err)
}

func (e *ModuleError) Unwrap() error {
	return e.Err
}

// LoadError is returned when a loader cannot open a module artifact.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

// NewLoadError creates a LoadError.
func NewLoadError(path, reason string, err error) *LoadError {
	return &LoadError{Path: path, Reason: reason, Err: err}
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Path, e.Reason)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
