package hiredis

import (
	"net"

	"github.com/distributedio/hiredis/conf"
	"github.com/distributedio/hiredis/context"
	"github.com/distributedio/hiredis/encoding/resp"
	"github.com/distributedio/hiredis/metrics"
	"go.uber.org/zap"
)

// AsyncClient is a connection driven by an event loop. Replies are delivered to
// the callbacks given to Queue in the order the commands were sent. All methods
// must be called from the goroutine running the loop.
type AsyncClient struct {
	t   AsyncTransport
	ad  *adapter
	tbl *table
	fd  int

	fault         error
	connected     bool
	closed        bool
	disconnecting bool
	freeing       bool
	inCallback    bool
	reading       bool
	writing       bool

	connCtx *context.ConnContext
}

// AsyncConnect dials host:port, port -1 dials the unix socket at host, and binds
// the connection to loop through cbs
func AsyncConnect(cbs *Callbacks, loop EventLoop, host string, port int) (*AsyncClient, error) {
	return AsyncDial(&conf.Client{Host: host, Port: port, DialTimeout: DefaultDialTimeout}, cbs, loop)
}

// AsyncDial connects with c and binds the connection to loop through cbs
func AsyncDial(c *conf.Client, cbs *Callbacks, loop EventLoop) (*AsyncClient, error) {
	if cbs == nil || cbs.Cleanup == nil {
		return nil, ErrCallbackMissing
	}
	t, err := dial(c)
	if err != nil {
		network, addr := address(c.Host, c.Port)
		zap.L().Error("dial failed", zap.String("network", network), zap.String("addr", addr), zap.Error(err))
		return nil, Classify(err)
	}
	cli, err := NewAsyncClient(t, cbs, loop)
	if err != nil {
		t.Close()
		return nil, err
	}
	return cli, nil
}

// NewAsyncClient binds t to loop through cbs. The write side is watched right
// away, the first writable event completes the connection.
func NewAsyncClient(t AsyncTransport, cbs *Callbacks, loop EventLoop) (*AsyncClient, error) {
	network, addr := "", ""
	if ra, ok := t.(interface{ RemoteAddr() net.Addr }); ok && ra.RemoteAddr() != nil {
		network, addr = ra.RemoteAddr().Network(), ra.RemoteAddr().String()
	}
	c := &AsyncClient{
		t:       t,
		tbl:     newTable(),
		fd:      t.Fd(),
		connCtx: context.NewConnContext(nextConnID(), network, addr, context.ModeAsync),
	}
	ad, err := newAdapter(c, loop, cbs, c.fd)
	if err != nil {
		return nil, err
	}
	c.ad = ad
	metrics.GetMetrics().ConnectionOnlineGaugeVec.WithLabelValues(context.ModeAsync).Inc()
	zap.L().Info("connected", zap.String("addr", addr),
		zap.Int64("clientid", c.connCtx.ID), zap.String("mode", c.connCtx.Mode))
	c.watchWrite()
	return c, nil
}

// Fd returns the descriptor the event loop watches
func (c *AsyncClient) Fd() int {
	return c.fd
}

// Context returns the runtime context of the connection
func (c *AsyncClient) Context() *context.ConnContext {
	return c.connCtx
}

// Pending returns the number of ordered replies not received yet
func (c *AsyncClient) Pending() int {
	return len(c.tbl.ordered)
}

// Closed reports the connection is torn down
func (c *AsyncClient) Closed() bool {
	return c.closed
}

func (c *AsyncClient) watchRead() {
	if !c.reading {
		c.reading = true
		c.ad.watchRead()
	}
}

func (c *AsyncClient) watchWrite() {
	if !c.writing {
		c.writing = true
		c.ad.watchWrite()
	}
}

func (c *AsyncClient) unwatchWrite() {
	if c.writing {
		c.writing = false
		c.ad.unwatchWrite()
	}
}

// Queue sends a command, fn receives its reply. A nil fn sends the command
// fire and forget, its reply is read and discarded. subscribe and psubscribe
// take exactly one channel or pattern and fn serves every message of it.
func (c *AsyncClient) Queue(fn ReplyFunc, name string, args ...interface{}) error {
	if c.closed {
		return ErrClosed
	}
	if c.disconnecting || c.freeing {
		return ErrDisconnecting
	}
	if c.fault != nil {
		return c.fault
	}
	argv, err := encode(name, args)
	if err != nil {
		return err
	}
	if err := c.tbl.register(name, argv[1:], fn); err != nil {
		return err
	}
	c.connCtx.Touch(name)
	c.connCtx.Subscribed = c.tbl.subscribed
	c.connCtx.Monitoring = c.tbl.monitoring
	logCommand(c.connCtx, GenerateTraceID(), name)

	c.t.Append(resp.AppendCommand(nil, argv))
	c.watchWrite()
	return nil
}

func (c *AsyncClient) handleConnect() error {
	c.connected = true
	if err := c.ad.onConnect(StatusOK); err != nil {
		return err
	}
	if c.freeing {
		return c.teardown(StatusOK)
	}
	return nil
}

// HandleWritable is called by the event loop when the socket accepts writes.
// The first call completes the connection. A returned error means the
// connection failed and has been torn down.
func (c *AsyncClient) HandleWritable() error {
	if c.closed {
		return nil
	}
	if !c.connected {
		if err := c.handleConnect(); err != nil || c.closed {
			return err
		}
	}
	done, err := c.t.Flush()
	if err != nil {
		return c.abort(err)
	}
	if done {
		c.unwatchWrite()
	} else {
		c.watchWrite()
	}
	c.watchRead()
	return nil
}

// HandleReadable is called by the event loop when the socket has data. Every
// complete reply read is dispatched before it returns. A returned error means
// the connection failed and has been torn down.
func (c *AsyncClient) HandleReadable() error {
	if c.closed {
		return nil
	}
	if !c.connected {
		if err := c.handleConnect(); err != nil || c.closed {
			return err
		}
	}
	if _, err := c.t.ReadAvailable(); err != nil {
		if err == ErrWouldBlock {
			return nil
		}
		return c.abort(err)
	}
	for {
		node, err := c.t.Next()
		if err == resp.ErrIncomplete {
			break
		}
		if err != nil {
			return c.abort(err)
		}
		v, err := resp.Decode(node)
		if err != nil {
			return c.abort(err)
		}
		countReply(v)
		c.dispatch(v)
		if c.freeing {
			return c.teardown(StatusOK)
		}
	}
	if c.disconnecting && c.tbl.idle() {
		return c.teardown(StatusOK)
	}
	return nil
}

func (c *AsyncClient) dispatch(v resp.Value) {
	tk, reason := c.tbl.match(v)
	c.connCtx.Subscribed = c.tbl.subscribed
	if tk == nil {
		metrics.GetMetrics().DroppedReplyCounterVec.WithLabelValues(reason).Inc()
		if env := zap.L().Check(zap.DebugLevel, "drop reply"); env != nil {
			env.Write(zap.String("addr", c.connCtx.Addr),
				zap.Int64("clientid", c.connCtx.ID),
				zap.String("reason", reason),
				zap.String("kind", v.Kind.String()))
		}
		return
	}
	c.inCallback = true
	tk.fire(v, replyErr(v))
	c.inCallback = false
}

// Disconnect closes the connection once every ordered reply has arrived. New
// commands are refused from now on. Called from a callback it takes effect
// after the callback returns.
func (c *AsyncClient) Disconnect() error {
	if c.closed {
		return ErrClosed
	}
	c.disconnecting = true
	if !c.inCallback && c.tbl.idle() {
		return c.teardown(StatusOK)
	}
	return nil
}

// Close tears the connection down now, pending callbacks receive ErrClosed.
// Called from a callback it takes effect after the callback returns.
func (c *AsyncClient) Close() error {
	if c.closed {
		return ErrClosed
	}
	if c.inCallback {
		c.freeing = true
		return nil
	}
	return c.teardown(StatusOK)
}

func (c *AsyncClient) abort(err error) error {
	err = Classify(err)
	c.fault = err
	countFault(c.connCtx, err)
	return c.teardown(StatusErr)
}

// teardown fails every outstanding callback, tells the loop and releases the
// adapter, in that order. It returns the connection fault, or the cleanup
// failure when the Cleanup slot went missing.
func (c *AsyncClient) teardown(status Status) error {
	if c.closed {
		return c.fault
	}
	c.closed = true

	c.inCallback = true
	c.tbl.cancelAll(ErrClosed)
	c.inCallback = false

	var err error
	if c.connected {
		err = c.ad.onDisconnect(status)
	} else {
		err = c.ad.onConnect(StatusErr)
	}
	if cerr := c.ad.cleanup(); cerr != nil && err == nil {
		err = cerr
	}

	metrics.GetMetrics().ConnectionOnlineGaugeVec.WithLabelValues(context.ModeAsync).Dec()
	zap.L().Info("close connection", zap.String("addr", c.connCtx.Addr),
		zap.Int64("clientid", c.connCtx.ID), zap.String("status", status.String()),
		zap.String("command", c.connCtx.LastCmd))
	if cerr := c.t.Close(); cerr != nil && err == nil && c.fault == nil {
		zap.L().Debug("close transport failed", zap.Int64("clientid", c.connCtx.ID), zap.Error(cerr))
	}
	if err != nil {
		return err
	}
	return c.fault
}
