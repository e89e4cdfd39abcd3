package evloop

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/distributedio/hiredis"
	"github.com/distributedio/hiredis/encoding/resp"
	"github.com/distributedio/hiredis/tools/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func runServer(t *testing.T) (*integration.Server, string, int) {
	srv, err := integration.Run("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { srv.Stop() })
	host, port, err := net.SplitHostPort(srv.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return srv, host, p
}

// runLoop runs l and fails the test if it does not stop in time
func runLoop(t *testing.T, l *Loop) {
	errc := make(chan error, 1)
	go func() { errc <- l.Run() }()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		l.Stop()
		t.Fatal("event loop did not stop")
	}
}

func TestLoop_Post(t *testing.T) {
	l := New()
	var order []int
	l.Post(func() { order = append(order, 1) })
	l.Post(func() {
		order = append(order, 2)
		l.Post(func() {
			order = append(order, 3)
			l.Stop()
		})
	})
	runLoop(t, l)
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.True(t, l.Stopped())
	assert.Equal(t, ErrStopped, l.Run())
}

func TestLoop_FileEvent(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	l := New()
	var got []byte
	require.NoError(t, l.CreateFileEvent(fds[0], Readable, func(l *Loop, fd int, mask Mask) {
		buf := make([]byte, 16)
		n, err := unix.Read(fd, buf)
		assert.NoError(t, err)
		got = append(got, buf[:n]...)
		l.DeleteFileEvent(fd, Readable)
		l.Stop()
	}))
	assert.Equal(t, Readable, l.FileEvents(fds[0]))

	_, err := unix.Write(fds[1], []byte("ping"))
	require.NoError(t, err)
	runLoop(t, l)
	assert.Equal(t, "ping", string(got))
	assert.Equal(t, None, l.FileEvents(fds[0]))
}

func TestLoop_FileEventMasks(t *testing.T) {
	l := New()
	proc := func(*Loop, int, Mask) {}
	assert.Equal(t, unix.EBADF, l.CreateFileEvent(-1, Readable, proc))

	require.NoError(t, l.CreateFileEvent(7, Readable, proc))
	require.NoError(t, l.CreateFileEvent(7, Writable, proc))
	assert.Equal(t, Readable|Writable, l.FileEvents(7))
	l.DeleteFileEvent(7, Writable)
	assert.Equal(t, Readable, l.FileEvents(7))
	l.DeleteFileEvent(7, Readable|Writable)
	assert.Equal(t, None, l.FileEvents(7))

	l.Stop()
	assert.Equal(t, ErrStopped, l.CreateFileEvent(7, Readable, proc))
}

func TestConnect(t *testing.T) {
	_, host, port := runServer(t)
	l := New()
	c, err := Connect(l, host, port)
	require.NoError(t, err)

	var replies []resp.Value
	collect := func(v resp.Value, err error) {
		assert.NoError(t, err)
		replies = append(replies, v)
	}
	require.NoError(t, c.Queue(collect, "SET", "key", "value"))
	require.NoError(t, c.Queue(collect, "GET", "key"))
	require.NoError(t, c.Queue(func(v resp.Value, err error) {
		collect(v, err)
		assert.NoError(t, c.Disconnect())
	}, "PING"))

	runLoop(t, l)
	assert.Equal(t, []resp.Value{
		resp.StatusValue("OK"),
		resp.BulkValue("value"),
		resp.StatusValue("PONG"),
	}, replies)
	assert.True(t, c.Closed())
	assert.Equal(t, None, l.FileEvents(c.Fd()))
}

func TestConnect_Subscribe(t *testing.T) {
	_, host, port := runServer(t)
	l := New()
	c, err := Connect(l, host, port)
	require.NoError(t, err)

	var frames []resp.Value
	var cancelled error
	require.NoError(t, c.Queue(func(v resp.Value, err error) {
		if err != nil {
			cancelled = err
			return
		}
		frames = append(frames, v)
		kind, _ := v.Elems[0].Text()
		switch kind {
		case "subscribe":
			go func() {
				pub, err := hiredis.Connect(host, port)
				if err != nil {
					return
				}
				defer pub.Close()
				pub.Call("PUBLISH", "news", "hello")
			}()
		case "message":
			c.Close()
		}
	}, "SUBSCRIBE", "news"))

	runLoop(t, l)
	assert.Equal(t, []resp.Value{
		resp.ArrayValue(resp.BulkValue("subscribe"), resp.BulkValue("news"), resp.IntValue(1)),
		resp.ArrayValue(resp.BulkValue("message"), resp.BulkValue("news"), resp.BulkValue("hello")),
	}, frames)
	assert.Equal(t, hiredis.ErrClosed, cancelled)
	assert.True(t, c.Closed())
}

func TestConnect_ServerGone(t *testing.T) {
	srv, host, port := runServer(t)
	l := New()
	c, err := Connect(l, host, port)
	require.NoError(t, err)

	pinged := false
	var cancelled error
	require.NoError(t, c.Queue(func(v resp.Value, err error) {
		assert.NoError(t, err)
		pinged = true
		srv.Kick()
	}, "PING"))
	require.NoError(t, c.Queue(func(v resp.Value, err error) {
		cancelled = err
	}, "DEBUG", "SLEEP", "1"))

	runLoop(t, l)
	assert.True(t, pinged)
	assert.Equal(t, hiredis.ErrClosed, cancelled)
	assert.True(t, c.Closed())
}
