package hiredis

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/distributedio/hiredis/encoding/resp"
	"github.com/distributedio/hiredis/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	wbuf    []byte
	out     bytes.Buffer
	in      *resp.Reader
	inbox   [][]byte
	readErr error
	stalled bool
	closed  int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: resp.NewReader(bytes.NewReader(nil), 0)}
}

func (f *fakeTransport) Append(p []byte) { f.wbuf = append(f.wbuf, p...) }

func (f *fakeTransport) Flush() (bool, error) {
	if f.stalled {
		return false, nil
	}
	f.out.Write(f.wbuf)
	f.wbuf = nil
	return true, nil
}

func (f *fakeTransport) ReadAvailable() (int, error) {
	if len(f.inbox) == 0 {
		if f.readErr != nil {
			return 0, f.readErr
		}
		return 0, ErrWouldBlock
	}
	p := f.inbox[0]
	f.inbox = f.inbox[1:]
	return len(p), f.in.Feed(p)
}

func (f *fakeTransport) Next() (*resp.Node, error) { return f.in.Next() }

func (f *fakeTransport) Fd() int { return 7 }

func (f *fakeTransport) Close() error {
	f.closed++
	return nil
}

func (f *fakeTransport) reply(s string) {
	f.inbox = append(f.inbox, []byte(s))
}

type hooks struct {
	events []string
}

func (h *hooks) callbacks() *Callbacks {
	return &Callbacks{
		AddRead:  func(c *AsyncClient, loop EventLoop, fd int) { h.events = append(h.events, "addRead") },
		DelRead:  func(c *AsyncClient, loop EventLoop, fd int) { h.events = append(h.events, "delRead") },
		AddWrite: func(c *AsyncClient, loop EventLoop, fd int) { h.events = append(h.events, "addWrite") },
		DelWrite: func(c *AsyncClient, loop EventLoop, fd int) { h.events = append(h.events, "delWrite") },
		Cleanup:  func(c *AsyncClient, loop EventLoop, fd int) { h.events = append(h.events, "cleanup") },
		Connect: func(c *AsyncClient, loop EventLoop, status Status) {
			h.events = append(h.events, "connect:"+status.String())
		},
		Disconnect: func(c *AsyncClient, loop EventLoop, status Status) {
			h.events = append(h.events, "disconnect:"+status.String())
		},
	}
}

func (h *hooks) count(event string) int {
	n := 0
	for _, e := range h.events {
		if e == event {
			n++
		}
	}
	return n
}

type collector struct {
	values []resp.Value
	errs   []error
}

func (c *collector) fn(v resp.Value, err error) {
	c.values = append(c.values, v)
	c.errs = append(c.errs, err)
}

func (c *collector) texts() []string {
	var out []string
	for _, v := range c.values {
		if s, ok := v.Text(); ok {
			out = append(out, s)
		} else {
			out = append(out, v.String())
		}
	}
	return out
}

func newTestAsync(t *testing.T) (*AsyncClient, *fakeTransport, *hooks) {
	ft := newFakeTransport()
	h := &hooks{}
	c, err := NewAsyncClient(ft, h.callbacks(), "loop")
	require.NoError(t, err)
	require.NoError(t, c.HandleWritable())
	return c, ft, h
}

func dropped(reason string) float64 {
	return testutil.ToFloat64(metrics.GetMetrics().DroppedReplyCounterVec.WithLabelValues(reason))
}

func TestAsync_Connect(t *testing.T) {
	ft := newFakeTransport()
	h := &hooks{}
	c, err := NewAsyncClient(ft, h.callbacks(), "loop")
	require.NoError(t, err)
	assert.Equal(t, 7, c.Fd())
	assert.Equal(t, []string{"addWrite"}, h.events)

	assert.NoError(t, c.HandleWritable())
	assert.Equal(t, []string{"addWrite", "connect:ok", "delWrite", "addRead"}, h.events)

	// queueing watches the write side again, once
	assert.NoError(t, c.Queue(nil, "PING"))
	assert.NoError(t, c.Queue(nil, "PING"))
	assert.Equal(t, 1, h.count("connect:ok"))
	assert.Equal(t, 2, h.count("addWrite"))

	ft.stalled = true
	assert.NoError(t, c.HandleWritable())
	assert.Equal(t, 1, h.count("delWrite"))
	ft.stalled = false
	assert.NoError(t, c.HandleWritable())
	assert.Equal(t, 2, h.count("delWrite"))
	assert.Equal(t, "*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n", ft.out.String())
}

func TestAsync_MissingCleanup(t *testing.T) {
	_, err := NewAsyncClient(newFakeTransport(), &Callbacks{}, nil)
	assert.Equal(t, ErrCallbackMissing, err)
	_, err = NewAsyncClient(newFakeTransport(), nil, nil)
	assert.Equal(t, ErrCallbackMissing, err)
}

func TestAsync_OrderedCallbacks(t *testing.T) {
	c, ft, _ := newTestAsync(t)
	got := &collector{}

	require.NoError(t, c.Queue(got.fn, "GET", "a"))
	require.NoError(t, c.Queue(nil, "SET", "b", 2))
	require.NoError(t, c.Queue(got.fn, "GET", "c"))
	assert.Equal(t, 3, c.Pending())
	require.NoError(t, c.HandleWritable())

	before := dropped(metrics.DropNoCallback)
	ft.reply("$1\r\n1\r\n+OK\r\n$1\r\n3\r\n")
	require.NoError(t, c.HandleReadable())
	assert.Equal(t, []string{"1", "3"}, got.texts())
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, before+1, dropped(metrics.DropNoCallback))
}

func TestAsync_PartialReply(t *testing.T) {
	c, ft, _ := newTestAsync(t)
	got := &collector{}
	require.NoError(t, c.Queue(got.fn, "GET", "a"))

	ft.reply("$5\r\nhel")
	require.NoError(t, c.HandleReadable())
	assert.Empty(t, got.values)
	ft.reply("lo\r\n")
	require.NoError(t, c.HandleReadable())
	assert.Equal(t, []string{"hello"}, got.texts())

	// nothing to read
	require.NoError(t, c.HandleReadable())
}

func TestAsync_ErrorReply(t *testing.T) {
	c, ft, _ := newTestAsync(t)
	got := &collector{}
	require.NoError(t, c.Queue(got.fn, "INCR", "s"))
	ft.reply("-ERR value is not an integer\r\n")
	require.NoError(t, c.HandleReadable())

	require.Len(t, got.values, 1)
	assert.True(t, got.values[0].IsError())
	var re *ReplyError
	assert.True(t, errors.As(got.errs[0], &re))
	assert.Equal(t, "ERR value is not an integer", re.Message)
	assert.False(t, c.Closed())
}

func TestAsync_SubscribeThenUnsubscribe(t *testing.T) {
	c, ft, _ := newTestAsync(t)
	news := &collector{}

	require.NoError(t, c.Queue(news.fn, "SUBSCRIBE", "news"))
	assert.True(t, c.Context().Subscribed)
	ft.reply("*3\r\n$9\r\nsubscribe\r\n$4\r\nnews\r\n:1\r\n" +
		"*3\r\n$7\r\nmessage\r\n$4\r\nnews\r\n$2\r\nhi\r\n")
	require.NoError(t, c.HandleReadable())
	require.Len(t, news.values, 2)
	assert.Equal(t, "hi", string(news.values[1].Elems[2].Bytes))

	require.NoError(t, c.Queue(nil, "unsubscribe", "news"))
	before := dropped(metrics.DropNoTicket)
	ft.reply("*3\r\n$7\r\nmessage\r\n$4\r\nnews\r\n$4\r\nlate\r\n" +
		"*3\r\n$11\r\nunsubscribe\r\n$4\r\nnews\r\n:0\r\n")
	require.NoError(t, c.HandleReadable())
	assert.Len(t, news.values, 2)
	assert.Equal(t, before+2, dropped(metrics.DropNoTicket))
	assert.False(t, c.Context().Subscribed)

	// back to ordered replies
	got := &collector{}
	require.NoError(t, c.Queue(got.fn, "PING"))
	ft.reply("+PONG\r\n")
	require.NoError(t, c.HandleReadable())
	assert.Equal(t, []string{"PONG"}, got.texts())
}

func TestAsync_UnsubscribeCallback(t *testing.T) {
	c, ft, _ := newTestAsync(t)
	require.NoError(t, c.Queue(nil, "psubscribe", "n*"))
	confirm := &collector{}
	require.NoError(t, c.Queue(confirm.fn, "punsubscribe", "n*"))

	ft.reply("*3\r\n$10\r\npsubscribe\r\n$2\r\nn*\r\n:1\r\n" +
		"*3\r\n$12\r\npunsubscribe\r\n$2\r\nn*\r\n:0\r\n")
	require.NoError(t, c.HandleReadable())
	assert.Equal(t, 1, len(confirm.values))
	assert.Equal(t, "punsubscribe", string(confirm.values[0].Elems[0].Bytes))
}

func TestAsync_PatternMessage(t *testing.T) {
	c, ft, _ := newTestAsync(t)
	got := &collector{}
	require.NoError(t, c.Queue(got.fn, "PSUBSCRIBE", "news.*"))
	ft.reply("*3\r\n$10\r\npsubscribe\r\n$6\r\nnews.*\r\n:1\r\n" +
		"*4\r\n$8\r\npmessage\r\n$6\r\nnews.*\r\n$7\r\nnews.it\r\n$1\r\nx\r\n")
	require.NoError(t, c.HandleReadable())
	require.Len(t, got.values, 2)
	assert.Equal(t, "news.it", string(got.values[1].Elems[2].Bytes))
}

func TestAsync_SubscribeArity(t *testing.T) {
	c, ft, _ := newTestAsync(t)
	assert.Equal(t, ErrMultiTopic, c.Queue(nil, "subscribe", "a", "b"))
	assert.Equal(t, ErrMultiTopic, c.Queue(nil, "SUBSCRIBE"))
	assert.Equal(t, ErrMultiTopic, c.Queue(nil, "psubscribe"))
	assert.Empty(t, ft.wbuf)
	assert.False(t, c.Context().Subscribed)
}

func TestAsync_ModeBarrier(t *testing.T) {
	c, ft, _ := newTestAsync(t)
	list := &collector{}
	sub := &collector{}

	// the reply of LRANGE looks like a message but belongs to LRANGE
	require.NoError(t, c.Queue(list.fn, "LRANGE", "l", 0, -1))
	require.NoError(t, c.Queue(sub.fn, "SUBSCRIBE", "ch"))
	ft.reply("*3\r\n$7\r\nmessage\r\n$2\r\nch\r\n$1\r\nx\r\n" +
		"*3\r\n$9\r\nsubscribe\r\n$2\r\nch\r\n:1\r\n")
	require.NoError(t, c.HandleReadable())

	require.Len(t, list.values, 1)
	assert.Equal(t, resp.KindArray, list.values[0].Kind)
	require.Len(t, sub.values, 1)
	assert.Equal(t, "subscribe", string(sub.values[0].Elems[0].Bytes))
}

func TestAsync_PingWhileSubscribed(t *testing.T) {
	c, ft, _ := newTestAsync(t)
	sub := &collector{}
	ping := &collector{}
	require.NoError(t, c.Queue(sub.fn, "subscribe", "ch"))
	require.NoError(t, c.Queue(ping.fn, "PING"))
	ft.reply("*3\r\n$9\r\nsubscribe\r\n$2\r\nch\r\n:1\r\n" +
		"*2\r\n$4\r\npong\r\n$0\r\n\r\n")
	require.NoError(t, c.HandleReadable())
	assert.Len(t, sub.values, 1)
	require.Len(t, ping.values, 1)
	assert.Equal(t, "pong", string(ping.values[0].Elems[0].Bytes))
}

func TestAsync_Monitor(t *testing.T) {
	c, ft, _ := newTestAsync(t)
	mon := &collector{}
	require.NoError(t, c.Queue(mon.fn, "MONITOR"))
	assert.True(t, c.Context().Monitoring)
	ft.reply("+OK\r\n+1339518083.107412 [0 127.0.0.1:60866] \"keys\" \"*\"\r\n")
	require.NoError(t, c.HandleReadable())
	assert.Equal(t, []string{"OK", "1339518083.107412 [0 127.0.0.1:60866] \"keys\" \"*\""}, mon.texts())
}

func TestAsync_DisconnectWaitsForReplies(t *testing.T) {
	c, ft, h := newTestAsync(t)
	got := &collector{}
	require.NoError(t, c.Queue(got.fn, "PING"))

	assert.NoError(t, c.Disconnect())
	assert.False(t, c.Closed())
	assert.Equal(t, ErrDisconnecting, c.Queue(got.fn, "PING"))

	ft.reply("+PONG\r\n")
	assert.NoError(t, c.HandleReadable())
	assert.Equal(t, []string{"PONG"}, got.texts())
	assert.True(t, c.Closed())
	assert.Equal(t, 1, h.count("disconnect:ok"))
	assert.Equal(t, 1, h.count("cleanup"))
	assert.Equal(t, 1, ft.closed)
	assert.Equal(t, ErrClosed, c.Disconnect())
}

func TestAsync_DisconnectInCallback(t *testing.T) {
	c, ft, h := newTestAsync(t)
	var order []string
	require.NoError(t, c.Queue(func(v resp.Value, err error) {
		order = append(order, "first")
		assert.NoError(t, c.Disconnect())
		assert.False(t, c.Closed())
	}, "PING"))
	require.NoError(t, c.Queue(func(v resp.Value, err error) {
		assert.NoError(t, err)
		order = append(order, "second")
	}, "PING"))

	ft.reply("+PONG\r\n+PONG\r\n")
	assert.NoError(t, c.HandleReadable())
	assert.Equal(t, []string{"first", "second"}, order)
	assert.True(t, c.Closed())
	assert.Equal(t, []string{"disconnect:ok", "cleanup"}, h.events[len(h.events)-2:])
}

func TestAsync_CloseInCallback(t *testing.T) {
	c, ft, h := newTestAsync(t)
	second := &collector{}
	require.NoError(t, c.Queue(func(v resp.Value, err error) {
		assert.NoError(t, c.Close())
		assert.False(t, c.Closed())
	}, "PING"))
	require.NoError(t, c.Queue(second.fn, "PING"))

	ft.reply("+PONG\r\n+PONG\r\n")
	assert.NoError(t, c.HandleReadable())
	assert.True(t, c.Closed())
	require.Len(t, second.errs, 1)
	assert.Equal(t, ErrClosed, second.errs[0])
	assert.Equal(t, 1, h.count("cleanup"))
}

func TestAsync_CloseCancelsEverything(t *testing.T) {
	c, _, h := newTestAsync(t)
	get := &collector{}
	sub := &collector{}
	require.NoError(t, c.Queue(get.fn, "GET", "a"))
	require.NoError(t, c.Queue(sub.fn, "SUBSCRIBE", "a"))

	before := dropped(metrics.DropCancelled)
	assert.NoError(t, c.Close())
	assert.Equal(t, before+2, dropped(metrics.DropCancelled))
	assert.Equal(t, []error{ErrClosed}, get.errs)
	assert.Equal(t, []error{ErrClosed}, sub.errs)
	assert.Nil(t, c.ad)
	assert.Equal(t, 1, h.count("cleanup"))

	assert.Equal(t, ErrClosed, c.Close())
	assert.Equal(t, ErrClosed, c.Queue(nil, "PING"))
	assert.NoError(t, c.HandleReadable())
	assert.Equal(t, 1, h.count("cleanup"))
	assert.Len(t, get.errs, 1)
}

func TestAsync_ReadFault(t *testing.T) {
	c, ft, h := newTestAsync(t)
	got := &collector{}
	require.NoError(t, c.Queue(got.fn, "GET", "a"))
	ft.readErr = io.EOF

	err := c.HandleReadable()
	assert.Equal(t, ErrEOF, err)
	assert.True(t, c.Closed())
	assert.Equal(t, []error{ErrClosed}, got.errs)
	assert.Equal(t, []string{"disconnect:error", "cleanup"}, h.events[len(h.events)-2:])
	assert.Equal(t, ErrClosed, c.Queue(nil, "PING"))
}

func TestAsync_ProtocolFault(t *testing.T) {
	c, ft, _ := newTestAsync(t)
	require.NoError(t, c.Queue(nil, "GET", "a"))
	ft.reply("?bad\r\n")
	err := c.HandleReadable()
	assert.True(t, errors.Is(err, ErrProtocol))
	assert.Equal(t, KindProtocol, KindOf(err))
}

func TestAsync_CloseBeforeConnect(t *testing.T) {
	ft := newFakeTransport()
	h := &hooks{}
	c, err := NewAsyncClient(ft, h.callbacks(), nil)
	require.NoError(t, err)
	assert.NoError(t, c.Close())
	assert.Equal(t, []string{"addWrite", "connect:error", "cleanup"}, h.events)
}

func TestAsync_CleanupLost(t *testing.T) {
	c, _, h := newTestAsync(t)
	c.ad.cbs.Cleanup = nil
	assert.Equal(t, ErrCallbackMissing, c.Close())
	assert.True(t, c.Closed())
	assert.Nil(t, c.ad)
	assert.Equal(t, 0, h.count("cleanup"))
}

func TestAdapter_Cleanup(t *testing.T) {
	h := &hooks{}
	c := &AsyncClient{tbl: newTable()}
	ad, err := newAdapter(c, "loop", h.callbacks(), 3)
	require.NoError(t, err)
	c.ad = ad

	assert.NoError(t, ad.cleanup())
	assert.Nil(t, c.ad)
	assert.NoError(t, ad.cleanup())
	assert.Equal(t, []string{"cleanup"}, h.events)

	// hooks of a released adapter do nothing
	ad.watchRead()
	ad.watchWrite()
	ad.unwatchRead()
	ad.unwatchWrite()
	assert.NoError(t, ad.onDisconnect(StatusOK))
	assert.Equal(t, []string{"cleanup"}, h.events)

	var none *adapter
	none.watchRead()
	assert.NoError(t, none.cleanup())
}

func TestAdapter_OptionalSlots(t *testing.T) {
	c := &AsyncClient{tbl: newTable(), fault: ErrEOF}
	ad, err := newAdapter(c, nil, &Callbacks{Cleanup: func(*AsyncClient, EventLoop, int) {}}, 3)
	require.NoError(t, err)
	ad.watchRead()
	ad.unwatchWrite()
	assert.Equal(t, ErrEOF, ad.onConnect(StatusErr))
	assert.Equal(t, ErrEOF, ad.onDisconnect(StatusErr))
}
