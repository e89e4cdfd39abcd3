// Package hiredis is a client of the redis serialization protocol. Client issues
// commands synchronously with optional pipelining, AsyncClient dispatches replies
// to callbacks and is driven by a caller owned event loop.
package hiredis

import (
	"net"
	"time"

	"github.com/distributedio/hiredis/conf"
	"github.com/distributedio/hiredis/context"
	"github.com/distributedio/hiredis/encoding/resp"
	"github.com/distributedio/hiredis/metrics"
	"go.uber.org/zap"
)

// DefaultDialTimeout bounds Connect
const DefaultDialTimeout = 5 * time.Second

var errNoEndpoint = &UsageError{Message: "connection has no endpoint to reconnect"}

// Cmd is one command of a transaction
type Cmd struct {
	Name string
	Args []interface{}
}

// NewCmd builds a Cmd
func NewCmd(name string, args ...interface{}) Cmd {
	return Cmd{Name: name, Args: args}
}

// Client is a synchronous connection. It is not safe for concurrent use.
type Client struct {
	cfg     *conf.Client
	t       *transport
	pipe    pipeline
	fault   error
	closed  bool
	connCtx *context.ConnContext
}

// Connect dials host:port, port -1 dials the unix socket at host
func Connect(host string, port int) (*Client, error) {
	return Dial(&conf.Client{Host: host, Port: port, DialTimeout: DefaultDialTimeout})
}

// Dial connects with c
func Dial(c *conf.Client) (*Client, error) {
	t, err := dial(c)
	if err != nil {
		network, addr := address(c.Host, c.Port)
		zap.L().Error("dial failed", zap.String("network", network), zap.String("addr", addr), zap.Error(err))
		return nil, Classify(err)
	}
	cli := newClient(t)
	cli.cfg = c
	return cli, nil
}

// NewClient runs a synchronous client over an established connection
func NewClient(conn net.Conn) *Client {
	return newClient(newTransport(conn, 0))
}

func newClient(t *transport) *Client {
	addr := t.conn.RemoteAddr()
	cli := &Client{
		t:       t,
		connCtx: context.NewConnContext(nextConnID(), addr.Network(), addr.String(), context.ModeSync),
	}
	metrics.GetMetrics().ConnectionOnlineGaugeVec.WithLabelValues(context.ModeSync).Inc()
	zap.L().Info("connected", zap.String("addr", cli.connCtx.Addr),
		zap.Int64("clientid", cli.connCtx.ID), zap.String("mode", cli.connCtx.Mode))
	return cli
}

// Context returns the runtime context of the connection
func (c *Client) Context() *context.ConnContext {
	return c.connCtx
}

func (c *Client) usable() error {
	if c.closed {
		return ErrClosed
	}
	return c.fault
}

// fail classifies err and, unless it is a usage error, makes it the sticky fault
func (c *Client) fail(err error) error {
	err = Classify(err)
	if _, ok := err.(*UsageError); ok {
		return err
	}
	c.fault = err
	countFault(c.connCtx, err)
	return err
}

func encode(name string, args []interface{}) ([][]byte, error) {
	argv, err := resp.EncodeCommand(name, args...)
	if err != nil {
		return nil, &UsageError{Message: "invalid command", Err: err}
	}
	return argv, nil
}

// Call sends a command and waits for its reply. An error reply is returned as
// *ReplyError along with the reply value. Call refuses to run while queued
// replies are still pending.
func (c *Client) Call(name string, args ...interface{}) (resp.Value, error) {
	if err := c.usable(); err != nil {
		return resp.Value{}, err
	}
	if c.pipe.pending > 0 {
		return resp.Value{}, ErrPendingReplies
	}
	argv, err := encode(name, args)
	if err != nil {
		return resp.Value{}, err
	}

	start := time.Now()
	traceID := GenerateTraceID()
	c.connCtx.Touch(name)
	logCommand(c.connCtx, traceID, name)
	if err := c.t.Send(resp.AppendCommand(nil, argv)); err != nil {
		return resp.Value{}, c.fail(err)
	}
	v, err := c.read()
	if err != nil {
		return resp.Value{}, err
	}
	metrics.GetMetrics().CommandCallHistogramVec.WithLabelValues(context.ModeSync, commandLabel(name)).Observe(time.Since(start).Seconds())
	return v, replyErr(v)
}

func (c *Client) read() (resp.Value, error) {
	node, err := c.t.Recv()
	if err != nil {
		return resp.Value{}, c.fail(err)
	}
	v, err := resp.Decode(node)
	if err != nil {
		return resp.Value{}, c.fail(err)
	}
	countReply(v)
	return v, nil
}

// Queue sends a command without waiting for its reply
func (c *Client) Queue(name string, args ...interface{}) error {
	if err := c.usable(); err != nil {
		return err
	}
	argv, err := encode(name, args)
	if err != nil {
		return err
	}
	return c.queue([][][]byte{argv})
}

// queue writes a batch of commands in one write and counts their replies
func (c *Client) queue(batch [][][]byte) error {
	var buf []byte
	for i, argv := range batch {
		if err := c.pipe.enqueue(); err != nil {
			c.pipe.pending -= i
			return err
		}
		buf = resp.AppendCommand(buf, argv)
		c.connCtx.Touch(string(argv[0]))
		logCommand(c.connCtx, GenerateTraceID(), string(argv[0]))
	}
	if err := c.t.Send(buf); err != nil {
		c.pipe.pending -= len(batch)
		return c.fail(err)
	}
	metrics.GetMetrics().PendingGauge.Add(float64(len(batch)))
	return nil
}

// Pending returns the number of replies queued and not taken yet
func (c *Client) Pending() int {
	return c.pipe.pending
}

// TakeReply waits for the reply of the oldest queued command. The pending slot
// is consumed even when the reply is an error.
func (c *Client) TakeReply() (resp.Value, error) {
	if err := c.usable(); err != nil {
		return resp.Value{}, err
	}
	if err := c.pipe.ensure(); err != nil {
		return resp.Value{}, err
	}
	v, err := c.read()
	if err != nil {
		return resp.Value{}, err
	}
	c.pipe.dequeue()
	metrics.GetMetrics().PendingGauge.Dec()
	return v, replyErr(v)
}

// TakeAll takes every pending reply in order. Error replies are collected as
// values, a connection fault stops draining.
func (c *Client) TakeAll() ([]resp.Value, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	if err := c.pipe.ensure(); err != nil {
		return nil, err
	}
	n := c.pipe.pending
	replies := make([]resp.Value, 0, n)
	for i := 0; i < n; i++ {
		v, err := c.TakeReply()
		if err != nil {
			if _, ok := err.(*ReplyError); !ok {
				return replies, err
			}
		}
		replies = append(replies, v)
	}
	return replies, nil
}

// Transaction runs cmds inside MULTI/EXEC and returns every reply, the last one
// holding the results. No command is sent if any fails to encode.
func (c *Client) Transaction(cmds ...Cmd) ([]resp.Value, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	if c.pipe.pending > 0 {
		return nil, ErrPendingReplies
	}
	batch := make([][][]byte, 0, len(cmds)+2)
	batch = append(batch, [][]byte{[]byte("MULTI")})
	for _, cmd := range cmds {
		argv, err := encode(cmd.Name, cmd.Args)
		if err != nil {
			return nil, err
		}
		batch = append(batch, argv)
	}
	batch = append(batch, [][]byte{[]byte("EXEC")})
	if err := c.queue(batch); err != nil {
		return nil, err
	}
	return c.TakeAll()
}

// Get is a shorthand of GET key
func (c *Client) Get(key string) (resp.Value, error) {
	return c.Call("GET", key)
}

// Set is a shorthand of SET key value
func (c *Client) Set(key string, value interface{}) error {
	_, err := c.Call("SET", key, value)
	return err
}

// Commands lists the command names the server reports through COMMAND
func (c *Client) Commands() ([]string, error) {
	v, err := c.Call("COMMAND")
	if err != nil {
		return nil, err
	}
	if v.Kind != resp.KindArray {
		return nil, c.fail(resp.ErrInvalidProtocol)
	}
	names := make([]string, 0, len(v.Elems))
	for _, e := range v.Elems {
		switch e.Kind {
		case resp.KindArray:
			if len(e.Elems) > 0 {
				if name, ok := e.Elems[0].Text(); ok {
					names = append(names, name)
				}
			}
		case resp.KindMap:
			for _, p := range e.Pairs {
				if key, _ := p.Key.Text(); key == "name" {
					if name, ok := p.Value.Text(); ok {
						names = append(names, name)
					}
				}
			}
		}
	}
	return names, nil
}

// Reconnect drops the connection and dials the same endpoint again. Pending
// replies and the fault are forgotten.
func (c *Client) Reconnect() error {
	if c.cfg == nil {
		return errNoEndpoint
	}
	if !c.closed {
		c.Close()
	}
	t, err := dial(c.cfg)
	if err != nil {
		return c.fail(err)
	}
	addr := t.conn.RemoteAddr()
	c.t = t
	c.fault = nil
	c.closed = false
	c.connCtx = context.NewConnContext(nextConnID(), addr.Network(), addr.String(), context.ModeSync)
	metrics.GetMetrics().ConnectionOnlineGaugeVec.WithLabelValues(context.ModeSync).Inc()
	zap.L().Info("reconnected", zap.String("addr", c.connCtx.Addr), zap.Int64("clientid", c.connCtx.ID))
	return nil
}

// Healthy reports the connection is open and has no fault
func (c *Client) Healthy() bool {
	return c.usable() == nil
}

// Close closes the connection, closing twice returns ErrClosed
func (c *Client) Close() error {
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	if c.pipe.pending > 0 {
		metrics.GetMetrics().PendingGauge.Sub(float64(c.pipe.pending))
	}
	c.pipe.reset()
	metrics.GetMetrics().ConnectionOnlineGaugeVec.WithLabelValues(context.ModeSync).Dec()
	zap.L().Info("close connection", zap.String("addr", c.connCtx.Addr),
		zap.Int64("clientid", c.connCtx.ID), zap.String("command", c.connCtx.LastCmd))
	return c.t.Close()
}
