package hiredis

// Status is delivered to the connect and disconnect callbacks
type Status int

// Connection statuses
const (
	StatusOK  Status = 0
	StatusErr Status = -1
)

func (s Status) String() string {
	if s == StatusOK {
		return "ok"
	}
	return "error"
}

// EventLoop is the caller's scheduler. It is handed back to every callback untouched.
type EventLoop interface{}

// Callbacks binds an AsyncClient to an event loop. Every slot but Cleanup is optional.
type Callbacks struct {
	AddRead  func(c *AsyncClient, loop EventLoop, fd int)
	DelRead  func(c *AsyncClient, loop EventLoop, fd int)
	AddWrite func(c *AsyncClient, loop EventLoop, fd int)
	DelWrite func(c *AsyncClient, loop EventLoop, fd int)
	Cleanup  func(c *AsyncClient, loop EventLoop, fd int)

	Connect    func(c *AsyncClient, loop EventLoop, status Status)
	Disconnect func(c *AsyncClient, loop EventLoop, status Status)
}

// adapter is the per connection state of the event loop binding. Hooks on a nil
// or cleaned up adapter do nothing.
type adapter struct {
	client *AsyncClient
	loop   EventLoop
	cbs    *Callbacks
	fd     int
	done   bool
}

func newAdapter(c *AsyncClient, loop EventLoop, cbs *Callbacks, fd int) (*adapter, error) {
	if cbs == nil || cbs.Cleanup == nil {
		return nil, ErrCallbackMissing
	}
	return &adapter{client: c, loop: loop, cbs: cbs, fd: fd}, nil
}

func (a *adapter) live() bool {
	return a != nil && !a.done
}

func (a *adapter) watchRead() {
	if a.live() && a.cbs.AddRead != nil {
		a.cbs.AddRead(a.client, a.loop, a.fd)
	}
}

func (a *adapter) unwatchRead() {
	if a.live() && a.cbs.DelRead != nil {
		a.cbs.DelRead(a.client, a.loop, a.fd)
	}
}

func (a *adapter) watchWrite() {
	if a.live() && a.cbs.AddWrite != nil {
		a.cbs.AddWrite(a.client, a.loop, a.fd)
	}
}

func (a *adapter) unwatchWrite() {
	if a.live() && a.cbs.DelWrite != nil {
		a.cbs.DelWrite(a.client, a.loop, a.fd)
	}
}

// cleanup fires the Cleanup slot once, then severs the client's reference and
// releases the state
func (a *adapter) cleanup() error {
	if !a.live() {
		return nil
	}
	a.done = true
	client, loop, cbs, fd := a.client, a.loop, a.cbs, a.fd
	if client != nil && client.ad == a {
		client.ad = nil
	}
	a.client, a.loop, a.cbs = nil, nil, nil
	if cbs.Cleanup == nil {
		return ErrCallbackMissing
	}
	cbs.Cleanup(client, loop, fd)
	return nil
}

// onConnect delivers status and returns the client's fault
func (a *adapter) onConnect(status Status) error {
	if a.live() && a.cbs.Connect != nil {
		a.cbs.Connect(a.client, a.loop, status)
	}
	return a.fault()
}

// onDisconnect delivers status and returns the client's fault
func (a *adapter) onDisconnect(status Status) error {
	if a.live() && a.cbs.Disconnect != nil {
		a.cbs.Disconnect(a.client, a.loop, status)
	}
	return a.fault()
}

func (a *adapter) fault() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.fault
}
