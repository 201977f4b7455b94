package modhost

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/hashicorp/go-plugin"

	"github.com/felixgeelhaar/modkernel/internal/alloc"
	"github.com/felixgeelhaar/modkernel/internal/apidb"
	"github.com/felixgeelhaar/modkernel/internal/cdb"
	"github.com/felixgeelhaar/modkernel/internal/kernel"
	"github.com/felixgeelhaar/modkernel/internal/modhost/remote"
	"github.com/felixgeelhaar/modkernel/internal/strid"
)

// RemoteLoader runs modules as child processes speaking the remote protocol.
type RemoteLoader struct {
	StartTimeout time.Duration

	logger *slog.Logger
}

// NewRemoteLoader creates a loader for remote modules.
func NewRemoteLoader(logger *slog.Logger) *RemoteLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteLoader{StartTimeout: time.Minute, logger: logger}
}

func (l *RemoteLoader) Kind() string { return KindRemote }

func (l *RemoteLoader) Open(ctx context.Context, m *Manifest) (Desc, io.Closer, error) {
	path, err := prepareArtifact(m)
	if err != nil {
		return Desc{}, nil, err
	}

	// #nosec G204 -- path is validated by resolveArtifact
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  remote.Handshake,
		Plugins:          remote.PluginMap(nil),
		Cmd:              exec.Command(path),
		Logger:           newHclogAdapter(l.logger, m.Name),
		StartTimeout:     l.StartTimeout,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})
	kill := closerFunc(func() error {
		client.Kill()
		return nil
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return Desc{}, nil, NewLoadError(path, "failed to connect", err)
	}
	raw, err := rpcClient.Dispense(remote.PluginName)
	if err != nil {
		client.Kill()
		return Desc{}, nil, NewLoadError(path, "failed to dispense", err)
	}
	mod, ok := raw.(remote.Module)
	if !ok {
		client.Kill()
		return Desc{}, nil, NewLoadError(path, "plugin does not implement the module protocol", ErrInvalidModule)
	}
	info, err := mod.Describe()
	if err != nil {
		client.Kill()
		return Desc{}, nil, NewLoadError(path, "describe failed", err)
	}

	l.logger.InfoContext(ctx, "remote module started", "module", m.Name, "artifact", path, "tasks", len(info.Tasks))
	return RemoteDesc(info, mod, l.logger), kill, nil
}

// RemoteDesc describes a module whose tasks run in another process. Loading
// it registers one proxy task per reported task; the proxies forward the tick
// counter and delta but cannot reach the object store.
func RemoteDesc(info remote.Info, mod remote.Module, logger *slog.Logger) Desc {
	if logger == nil {
		logger = slog.Default()
	}

	type proxy struct {
		iface string
		impl  any
	}
	proxies := make([]proxy, 0, len(info.Tasks))
	for _, t := range info.Tasks {
		name := t.Name
		deps := make([]strid.ID64, len(t.Depends))
		for i, d := range t.Depends {
			deps[i] = kernel.TaskID(d)
		}

		if t.Lifecycle {
			proxies = append(proxies, proxy{iface: kernel.TaskInterface, impl: &kernel.Task{
				Name:    name,
				Depends: deps,
				Init: func(*cdb.DB) error {
					return mod.Init(name)
				},
				Shutdown: func() {
					if err := mod.Shutdown(name); err != nil {
						logger.Warn("remote task shutdown failed", "module", info.Name, "task", name, "error", err)
					}
				},
			}})
			continue
		}
		proxies = append(proxies, proxy{iface: kernel.TaskUpdateInterface, impl: &kernel.TaskUpdate{
			Phase:   kernel.PhaseID(t.Phase),
			Name:    name,
			Depends: deps,
			Update: func(_ alloc.Allocator, _ *cdb.DB, tick uint64, dt time.Duration) error {
				return mod.Update(name, tick, dt)
			},
		}})
	}

	return Desc{
		Name:        info.Name,
		Description: info.Description,
		Entry: func(api apidb.API, _ alloc.Allocator, load, _ bool) error {
			for _, p := range proxies {
				if err := api.ImplOrRemove(info.Name, p.iface, p.impl, load); err != nil {
					return fmt.Errorf("register remote task: %w", err)
				}
			}
			return nil
		},
	}
}
