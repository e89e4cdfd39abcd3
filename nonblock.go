package hiredis

import (
	"errors"
	"os"
	"time"
)

// pollInterval bounds a read or write on connections that expose no descriptor
const pollInterval = time.Millisecond

func (t *transport) readDeadline(p []byte) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
		return 0, err
	}
	n, err := t.conn.Read(p)
	t.conn.SetReadDeadline(time.Time{})
	if n == 0 && errors.Is(err, os.ErrDeadlineExceeded) {
		return 0, ErrWouldBlock
	}
	if n > 0 {
		return n, nil
	}
	return n, err
}

func (t *transport) writeDeadline(p []byte) (int, error) {
	if err := t.conn.SetWriteDeadline(time.Now().Add(pollInterval)); err != nil {
		return 0, err
	}
	n, err := t.conn.Write(p)
	t.conn.SetWriteDeadline(time.Time{})
	if errors.Is(err, os.ErrDeadlineExceeded) {
		if n > 0 {
			return n, nil
		}
		return 0, ErrWouldBlock
	}
	return n, err
}
