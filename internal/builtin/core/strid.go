package core

import "github.com/felixgeelhaar/modkernel/internal/strid"

// StridAPI interns names into identifiers.
type StridAPI struct {
	Strid32 func(name string) strid.ID32
	Strid64 func(name string) strid.ID64
}

// NewStridAPI returns the identifier API.
func NewStridAPI() *StridAPI {
	return &StridAPI{
		Strid32: strid.Sum32,
		Strid64: strid.Sum64,
	}
}
