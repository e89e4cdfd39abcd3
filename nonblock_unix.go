//go:build unix

package hiredis

import (
	"io"

	"golang.org/x/sys/unix"
)

// readNonblock reads straight from the descriptor, which the runtime keeps in
// non-blocking mode. The callback always reports done so the poller never parks.
func (t *transport) readNonblock(p []byte) (int, error) {
	if t.raw == nil {
		return t.readDeadline(p)
	}
	var n int
	var operr error
	if err := t.raw.Read(func(fd uintptr) bool {
		n, operr = unix.Read(int(fd), p)
		return true
	}); err != nil {
		return 0, err
	}
	switch {
	case operr == unix.EAGAIN || operr == unix.EWOULDBLOCK:
		return 0, ErrWouldBlock
	case operr == unix.EINTR:
		return 0, ErrWouldBlock
	case operr != nil:
		return 0, operr
	case n == 0:
		return 0, io.EOF
	}
	return n, nil
}

func (t *transport) writeNonblock(p []byte) (int, error) {
	if t.raw == nil {
		return t.writeDeadline(p)
	}
	var n int
	var operr error
	if err := t.raw.Write(func(fd uintptr) bool {
		n, operr = unix.Write(int(fd), p)
		return true
	}); err != nil {
		return 0, err
	}
	switch {
	case operr == unix.EAGAIN || operr == unix.EWOULDBLOCK || operr == unix.EINTR:
		return 0, ErrWouldBlock
	case operr != nil:
		return 0, operr
	}
	return n, nil
}
