package modulesdk

import (
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/felixgeelhaar/modkernel/internal/modhost/remote"
)

// Serve runs the module until the kernel disconnects. Call it from main.
func Serve(m Module) {
	name := "module"
	if info, err := m.Describe(); err == nil && info.Name != "" {
		name = info.Name
	}

	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: remote.Handshake,
		Plugins:         remote.PluginMap(m),
		// The kernel parses JSON lines on stderr into its own log.
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:       name,
			Level:      hclog.LevelFromString(os.Getenv("KERNEL_LOG_LEVEL")),
			Output:     os.Stderr,
			JSONFormat: true,
		}),
	})
}
