package remote

import (
	"net/rpc"
	"time"
)

// UpdateArgs are the arguments of an Update call.
type UpdateArgs struct {
	Task string
	Tick uint64
	DT   time.Duration
}

// RPCClient is the kernel side of a remote module.
type RPCClient struct {
	client *rpc.Client
}

func (c *RPCClient) Describe() (Info, error) {
	var info Info
	err := c.client.Call("Plugin.Describe", new(interface{}), &info)
	return info, err
}

func (c *RPCClient) Update(task string, tick uint64, dt time.Duration) error {
	return c.client.Call("Plugin.Update", UpdateArgs{Task: task, Tick: tick, DT: dt}, new(interface{}))
}

func (c *RPCClient) Init(task string) error {
	return c.client.Call("Plugin.Init", task, new(interface{}))
}

func (c *RPCClient) Shutdown(task string) error {
	return c.client.Call("Plugin.Shutdown", task, new(interface{}))
}

// RPCServer serves a Module inside the module process.
type RPCServer struct {
	impl Module
}

func (s *RPCServer) Describe(_ interface{}, resp *Info) error {
	info, err := s.impl.Describe()
	if err != nil {
		return err
	}
	*resp = info
	return nil
}

func (s *RPCServer) Update(args UpdateArgs, _ *interface{}) error {
	return s.impl.Update(args.Task, args.Tick, args.DT)
}

func (s *RPCServer) Init(task string, _ *interface{}) error {
	return s.impl.Init(task)
}

func (s *RPCServer) Shutdown(task string, _ *interface{}) error {
	return s.impl.Shutdown(task)
}
