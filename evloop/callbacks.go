package evloop

import (
	"github.com/distributedio/hiredis"
	"github.com/distributedio/hiredis/conf"
	"go.uber.org/zap"
)

func loopOf(loop hiredis.EventLoop) *Loop {
	l, _ := loop.(*Loop)
	return l
}

func readProc(c *hiredis.AsyncClient) FileProc {
	return func(l *Loop, fd int, mask Mask) {
		if err := c.HandleReadable(); err != nil {
			zap.L().Debug("handle readable failed", zap.Int("fd", fd),
				zap.Int64("clientid", c.Context().ID), zap.Error(err))
		}
	}
}

func writeProc(c *hiredis.AsyncClient) FileProc {
	return func(l *Loop, fd int, mask Mask) {
		if err := c.HandleWritable(); err != nil {
			zap.L().Debug("handle writable failed", zap.Int("fd", fd),
				zap.Int64("clientid", c.Context().ID), zap.Error(err))
		}
	}
}

func watch(mask Mask, proc func(c *hiredis.AsyncClient) FileProc) func(*hiredis.AsyncClient, hiredis.EventLoop, int) {
	return func(c *hiredis.AsyncClient, loop hiredis.EventLoop, fd int) {
		l := loopOf(loop)
		if l == nil {
			return
		}
		if err := l.CreateFileEvent(fd, mask, proc(c)); err != nil {
			zap.L().Error("create file event failed", zap.Int("fd", fd), zap.Error(err))
		}
	}
}

func unwatch(mask Mask) func(*hiredis.AsyncClient, hiredis.EventLoop, int) {
	return func(c *hiredis.AsyncClient, loop hiredis.EventLoop, fd int) {
		if l := loopOf(loop); l != nil {
			l.DeleteFileEvent(fd, mask)
		}
	}
}

// DefaultCallbacks binds an AsyncClient to a *Loop. The loop stops when the
// connection fails to connect or is disconnected.
func DefaultCallbacks() *hiredis.Callbacks {
	return &hiredis.Callbacks{
		AddRead:  watch(Readable, readProc),
		DelRead:  unwatch(Readable),
		AddWrite: watch(Writable, writeProc),
		DelWrite: unwatch(Writable),
		Cleanup:  unwatch(Readable | Writable),
		Connect: func(c *hiredis.AsyncClient, loop hiredis.EventLoop, status hiredis.Status) {
			if status != hiredis.StatusOK {
				zap.L().Warn("connect failed", zap.String("addr", c.Context().Addr))
				if l := loopOf(loop); l != nil {
					l.Stop()
				}
			}
		},
		Disconnect: func(c *hiredis.AsyncClient, loop hiredis.EventLoop, status hiredis.Status) {
			zap.L().Info("disconnected", zap.String("addr", c.Context().Addr),
				zap.String("status", status.String()))
			if l := loopOf(loop); l != nil {
				l.Stop()
			}
		},
	}
}

// Connect dials host:port and drives the connection with l
func Connect(l *Loop, host string, port int) (*hiredis.AsyncClient, error) {
	return hiredis.AsyncConnect(DefaultCallbacks(), l, host, port)
}

// Dial connects with c and drives the connection with l
func Dial(l *Loop, c *conf.Client) (*hiredis.AsyncClient, error) {
	return hiredis.AsyncDial(c, DefaultCallbacks(), l)
}
