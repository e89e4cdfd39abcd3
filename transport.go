package hiredis

import (
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/distributedio/hiredis/conf"
	"github.com/distributedio/hiredis/encoding/resp"
)

const readChunk = 16 * 1024

// AsyncTransport is the byte pipe under an AsyncClient. Appended bytes are
// buffered until Flush writes them without blocking.
type AsyncTransport interface {
	// Append buffers an encoded request
	Append(p []byte)
	// Flush writes as much of the buffer as the socket takes, done reports an empty buffer
	Flush() (done bool, err error)
	// ReadAvailable reads what the socket holds, ErrWouldBlock if nothing
	ReadAvailable() (int, error)
	// Next parses one buffered frame, resp.ErrIncomplete if none is complete
	Next() (*resp.Node, error)
	// Fd returns the socket descriptor handed to the event loop
	Fd() int
	Close() error
}

// transport owns a connection and its read buffer
type transport struct {
	conn         net.Conn
	raw          syscall.RawConn
	rd           *resp.Reader
	wbuf         []byte
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// address resolves host and port, port -1 means host is a unix socket path
func address(host string, port int) (network, addr string) {
	if port == -1 {
		return "unix", host
	}
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 6379
	}
	return "tcp", net.JoinHostPort(host, strconv.Itoa(port))
}

func dial(c *conf.Client) (*transport, error) {
	network, addr := address(c.Host, c.Port)
	conn, err := net.DialTimeout(network, addr, c.DialTimeout)
	if err != nil {
		return nil, err
	}
	t := newTransport(conn, c.MaxReplyBytes)
	t.readTimeout = c.ReadTimeout
	t.writeTimeout = c.WriteTimeout
	return t, nil
}

func newTransport(conn net.Conn, limit int) *transport {
	t := &transport{conn: conn, rd: resp.NewReader(conn, limit)}
	if sc, ok := conn.(syscall.Conn); ok {
		if raw, err := sc.SyscallConn(); err == nil {
			t.raw = raw
		}
	}
	return t
}

// Send writes p, blocking
func (t *transport) Send(p []byte) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := t.conn.Write(p)
	return err
}

// Recv blocks until a whole frame arrives
func (t *transport) Recv() (*resp.Node, error) {
	if t.readTimeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
			return nil, err
		}
	}
	return t.rd.ReadNode()
}

func (t *transport) Append(p []byte) {
	t.wbuf = append(t.wbuf, p...)
}

func (t *transport) Flush() (bool, error) {
	for len(t.wbuf) > 0 {
		n, err := t.writeNonblock(t.wbuf)
		if n > 0 {
			t.wbuf = t.wbuf[:copy(t.wbuf, t.wbuf[n:])]
		}
		if err == ErrWouldBlock {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

func (t *transport) ReadAvailable() (int, error) {
	p, err := t.rd.Space(readChunk)
	if err != nil {
		return 0, err
	}
	n, err := t.readNonblock(p)
	if n > 0 {
		t.rd.Commit(n)
	}
	return n, err
}

func (t *transport) Next() (*resp.Node, error) {
	return t.rd.Next()
}

func (t *transport) Fd() int {
	fd := -1
	if t.raw != nil {
		t.raw.Control(func(s uintptr) { fd = int(s) })
	}
	return fd
}

func (t *transport) Close() error {
	return t.conn.Close()
}

func (t *transport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}
