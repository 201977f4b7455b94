// Package core is the built-in module every other module builds on. It
// publishes the identifier API and the log API.
package core

import (
	"log/slog"

	"github.com/felixgeelhaar/modkernel/internal/alloc"
	"github.com/felixgeelhaar/modkernel/internal/apidb"
	"github.com/felixgeelhaar/modkernel/internal/modhost"
)

// ModuleName is the name core registers under.
const ModuleName = "core"

// Module returns the core module. Log output goes to logger.
func Module(logger *slog.Logger) modhost.Desc {
	if logger == nil {
		logger = slog.Default()
	}
	strids := NewStridAPI()
	logs := NewLogAPI(logger)

	return modhost.Desc{
		Name:        ModuleName,
		Description: "identifier and log APIs",
		Entry: func(api apidb.API, _ alloc.Allocator, load, reload bool) error {
			apidb.SetOrRemoveOf(api, ModuleName, apidb.LangGo, strids, load, reload)
			apidb.SetOrRemoveOf(api, ModuleName, apidb.LangGo, logs, load, reload)
			return nil
		},
	}
}
