// Package foo is a sample module that publishes a small API.
package foo

import (
	"sync/atomic"

	"github.com/felixgeelhaar/modkernel/internal/alloc"
	"github.com/felixgeelhaar/modkernel/internal/apidb"
	"github.com/felixgeelhaar/modkernel/internal/modhost"
)

// ModuleName is the name foo registers under.
const ModuleName = "foo"

// API is the table foo publishes.
type API struct {
	// Foo doubles x.
	Foo func(x float32) float32
	// Calls counts Foo calls since the module first loaded.
	Calls func() uint64
}

// Module returns the foo module.
func Module() modhost.Desc {
	api := &API{}
	return modhost.Desc{
		Name:        ModuleName,
		Description: "sample API provider",
		Entry: func(reg apidb.API, _ alloc.Allocator, load, reload bool) error {
			calls, err := apidb.GlobalOf(reg, ModuleName, "calls", uint64(0))
			if err != nil {
				return err
			}
			api.Foo = func(x float32) float32 {
				atomic.AddUint64(calls, 1)
				return x * 2
			}
			api.Calls = func() uint64 { return atomic.LoadUint64(calls) }
			apidb.SetOrRemoveOf(reg, ModuleName, apidb.LangGo, api, load, reload)
			return nil
		},
	}
}
