package context

import (
	"context"
	"time"
)

// Version information.
var (
	ReleaseVersion = "None"
	BuildTS        = "None"
	GitHash        = "None"
	GitBranch      = "None"
	GitLog         = "None"
	GolangVersion  = "None"
	ConfigFile     = "None"
)

// Mode labels used in logs and metrics
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// ConnContext is the runtime context of a connection
type ConnContext struct {
	ID      int64  // Connection uniq ID
	Network string // tcp or unix
	Addr    string // Remote address
	Mode    string // sync or async
	Created time.Time
	Updated time.Time
	LastCmd string

	// Subscribed and Monitoring mirror the mode of an async connection
	Subscribed bool
	Monitoring bool
}

// NewConnContext new connection context object, id must be uniq
func NewConnContext(id int64, network, addr, mode string) *ConnContext {
	now := time.Now()
	return &ConnContext{
		ID:      id,
		Network: network,
		Addr:    addr,
		Mode:    mode,
		Created: now,
		Updated: now,
	}
}

// Touch records cmd as the last command issued
func (c *ConnContext) Touch(cmd string) {
	c.Updated = time.Now()
	c.LastCmd = cmd
}

// Context carries a connection context along a request
type Context struct {
	context.Context
	Conn *ConnContext
}

// New a context
func New(c *ConnContext) *Context {
	return &Context{Context: context.Background(), Conn: c}
}

// CancelFunc tells an operation to abandon its work
type CancelFunc context.CancelFunc

// WithCancel returns a copy of parent with a new Done channel
func WithCancel(parent *Context) (*Context, CancelFunc) {
	ctx := *parent
	child, cancel := context.WithCancel(parent.Context)
	ctx.Context = child
	return &ctx, CancelFunc(cancel)
}

// WithTimeout returns a copy of parent which is cancelled after timeout
func WithTimeout(parent *Context, timeout time.Duration) (*Context, CancelFunc) {
	ctx := *parent
	child, cancel := context.WithTimeout(parent.Context, timeout)
	ctx.Context = child
	return &ctx, CancelFunc(cancel)
}
