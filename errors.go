package hiredis

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/distributedio/hiredis/encoding/resp"
)

// ErrorKind is the category of a failure
type ErrorKind int

// Error categories, in classification order
const (
	KindNone ErrorKind = iota
	KindTransport
	KindEOF
	KindProtocol
	KindOutOfMemory
	KindClient
	KindReply
	KindUsage
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransport:
		return "transport"
	case KindEOF:
		return "eof"
	case KindProtocol:
		return "protocol"
	case KindOutOfMemory:
		return "oom"
	case KindClient:
		return "client"
	case KindReply:
		return "reply"
	case KindUsage:
		return "usage"
	}
	return "unknown"
}

var (
	// ErrEOF is reported when the server closed the connection
	ErrEOF = errors.New("connection closed by server")

	// ErrProtocol is reported when the server sent malformed data
	ErrProtocol = errors.New("protocol error")

	// ErrOutOfMemory is reported when a reply does not fit into the read buffer
	ErrOutOfMemory = errors.New("out of memory")

	// ErrWouldBlock is returned by non-blocking reads when no data is available
	ErrWouldBlock = errors.New("operation would block")
)

// Usage errors, always returned unwrapped
var (
	ErrClosed          = &UsageError{Message: "closed stream"}
	ErrNothingQueued   = &UsageError{Message: "nothing queued yet"}
	ErrMultiTopic      = &UsageError{Message: "subscribe takes exactly one channel or pattern"}
	ErrDisconnecting   = &UsageError{Message: "connection is disconnecting"}
	ErrPendingOverflow = &UsageError{Message: "too many pending replies"}
	ErrPendingReplies  = &UsageError{Message: "replies are pending, take them first"}
	ErrCallbackMissing = &UsageError{Message: "cleanup callback is required"}
)

// TransportError is an operating system level failure
type TransportError struct {
	Op   string
	Code syscall.Errno
	Err  error
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// ClientError is any failure that fits no other category, timeouts included
type ClientError struct {
	Err error
}

func (e *ClientError) Error() string { return e.Err.Error() }

func (e *ClientError) Unwrap() error { return e.Err }

// ReplyError is an error reply sent by the server
type ReplyError struct {
	Message string
}

func (e *ReplyError) Error() string { return e.Message }

// UsageError reports an operation issued in the wrong state or with wrong arguments
type UsageError struct {
	Message string
	Err     error
}

func (e *UsageError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *UsageError) Unwrap() error { return e.Err }

// Classify maps a raw failure to the error taxonomy. Errors already classified
// are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch err.(type) {
	case *TransportError, *ClientError, *ReplyError, *UsageError:
		return err
	}
	if errors.Is(err, ErrEOF) || errors.Is(err, ErrProtocol) || errors.Is(err, ErrOutOfMemory) {
		return err
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		op := ""
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			op = opErr.Op
		}
		return &TransportError{Op: op, Code: errno, Err: err}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrEOF
	}
	if errors.Is(err, resp.ErrInvalidProtocol) {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if errors.Is(err, resp.ErrTooLarge) {
		return fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}
	return &ClientError{Err: err}
}

// KindOf returns the category of err, classifying it first
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	err = Classify(err)
	var (
		te *TransportError
		ce *ClientError
		re *ReplyError
		ue *UsageError
	)
	switch {
	case errors.As(err, &te):
		return KindTransport
	case errors.Is(err, ErrEOF):
		return KindEOF
	case errors.Is(err, ErrProtocol):
		return KindProtocol
	case errors.Is(err, ErrOutOfMemory):
		return KindOutOfMemory
	case errors.As(err, &re):
		return KindReply
	case errors.As(err, &ue):
		return KindUsage
	case errors.As(err, &ce):
		return KindClient
	}
	return KindClient
}

// replyErr converts a top level Error value to *ReplyError
func replyErr(v resp.Value) error {
	if v.IsError() {
		return &ReplyError{Message: string(v.Bytes)}
	}
	return nil
}
