// Package remote is the wire protocol between the kernel and modules running
// as separate processes. It uses go-plugin over net/rpc.
package remote

import (
	"net/rpc"
	"time"

	"github.com/hashicorp/go-plugin"
)

// PluginName is the name a remote module is dispensed under.
const PluginName = "module"

// Handshake must match between the kernel and a module process.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "MODKERNEL_MODULE",
	MagicCookieValue: "modkernel-module-v1",
}

// TaskInfo describes one task offered by a remote module. Lifecycle tasks
// have no phase and receive Init and Shutdown calls; update tasks run every
// tick in Phase.
type TaskInfo struct {
	Name      string
	Phase     string
	Depends   []string
	Lifecycle bool
}

// Info is what a remote module reports about itself.
type Info struct {
	Name        string
	Description string
	Version     string
	Tasks       []TaskInfo
}

// Module is implemented by the module process and proxied to the kernel.
type Module interface {
	Describe() (Info, error)
	Update(task string, tick uint64, dt time.Duration) error
	Init(task string) error
	Shutdown(task string) error
}

// PluginMap returns the go-plugin map serving or dispensing impl.
func PluginMap(impl Module) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{PluginName: &ModulePlugin{Impl: impl}}
}

// ModulePlugin is the plugin.Plugin for modules. Impl is only set on the
// module side.
type ModulePlugin struct {
	Impl Module
}

func (p *ModulePlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &RPCServer{impl: p.Impl}, nil
}

func (p *ModulePlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}
