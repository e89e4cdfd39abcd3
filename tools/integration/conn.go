package integration

import (
	"bytes"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/distributedio/hiredis/context"
	"github.com/distributedio/hiredis/encoding/resp"
	"go.uber.org/zap"
)

type conn struct {
	srv *Server
	ctx *context.ConnContext
	nc  net.Conn
	rd  *resp.Reader

	wmu       sync.Mutex
	closeOnce sync.Once

	// touched by the serving goroutine only
	multi    bool
	dirty    bool
	queued   [][][]byte
	channels map[string]bool
	patterns map[string]bool
}

func newConn(s *Server, ctx *context.ConnContext, nc net.Conn) *conn {
	return &conn{
		srv:      s,
		ctx:      ctx,
		nc:       nc,
		rd:       resp.NewReader(nc, 0),
		channels: make(map[string]bool),
		patterns: make(map[string]bool),
	}
}

// Write to conn and log error if needed
func (c *conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	n, err := c.nc.Write(p)
	if err != nil {
		zap.L().Debug("write net failed", zap.String("addr", c.ctx.Addr),
			zap.Int64("clientid", c.ctx.ID),
			zap.Bool("multi", c.multi),
			zap.String("command", c.ctx.LastCmd))
		c.close()
	}
	return n, err
}

// push writes an out of band frame such as a published message
func (c *conn) push(frame []byte) {
	c.Write(frame)
}

func (c *conn) close() {
	c.closeOnce.Do(func() { c.nc.Close() })
}

func (c *conn) subscriptions() int {
	return len(c.channels) + len(c.patterns)
}

type request struct {
	argv [][]byte
	err  error
}

func (c *conn) serve() error {
	rootCtx, rootCancel := context.WithCancel(context.New(c.ctx))
	defer rootCancel()

	// Use a separate goroutine to keep reading commands
	// then we can detect a closed connection as soon as possible.
	reqc := make(chan request, 128)
	go func() {
		for {
			argv, err := c.readCommand()
			select {
			case reqc <- request{argv: argv, err: err}:
			case <-rootCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		var req request
		select {
		case <-rootCtx.Done():
			c.close()
			return nil
		case req = <-reqc:
		}
		if req.err != nil {
			c.close()
			if req.err == io.EOF {
				return nil
			}
			return req.err
		}
		if len(req.argv) == 0 {
			continue
		}

		out := &bytes.Buffer{}
		ctx := &Context{
			Name:    strings.ToLower(string(req.argv[0])),
			Args:    req.argv[1:],
			Out:     out,
			Conn:    c,
			Context: rootCtx,
		}
		c.ctx.Touch(ctx.Name)
		if env := zap.L().Check(zap.DebugLevel, "recv client command"); env != nil {
			env.Write(zap.String("addr", c.ctx.Addr),
				zap.Int64("clientid", c.ctx.ID),
				zap.String("command", ctx.Name))
		}
		quit := Call(ctx)
		if out.Len() > 0 {
			if _, err := c.Write(out.Bytes()); err != nil {
				return err
			}
		}
		if quit {
			rootCancel()
		}
	}
}

// readCommand reads a request, an array of bulk strings
func (c *conn) readCommand() ([][]byte, error) {
	node, err := c.rd.ReadNode()
	if err != nil {
		return nil, err
	}
	if node.Type != resp.TypeArray {
		return nil, resp.ErrInvalidProtocol
	}
	argv := make([][]byte, len(node.Elems))
	for i, e := range node.Elems {
		if e.Type != resp.TypeBulkString || e.Null {
			return nil, resp.ErrInvalidProtocol
		}
		argv[i] = append([]byte(nil), e.Str...)
	}
	return argv, nil
}
