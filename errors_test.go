package hiredis

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/distributedio/hiredis/encoding/resp"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	opErr := &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}
	err := Classify(opErr)
	var te *TransportError
	if assert.True(t, errors.As(err, &te)) {
		assert.Equal(t, syscall.ECONNRESET, te.Code)
		assert.Equal(t, "read", te.Op)
	}
	assert.Equal(t, KindTransport, KindOf(opErr))

	assert.Equal(t, ErrEOF, Classify(io.EOF))
	assert.Equal(t, ErrEOF, Classify(fmt.Errorf("read: %w", io.ErrUnexpectedEOF)))

	err = Classify(resp.ErrInvalidProtocol)
	assert.True(t, errors.Is(err, ErrProtocol))
	assert.Equal(t, KindProtocol, KindOf(resp.ErrInvalidProtocol))

	assert.True(t, errors.Is(Classify(resp.ErrTooLarge), ErrOutOfMemory))
	assert.Equal(t, KindOutOfMemory, KindOf(resp.ErrTooLarge))

	err = Classify(errors.New("something else"))
	assert.IsType(t, &ClientError{}, err)
	assert.Equal(t, KindClient, KindOf(err))

	timeout := &net.OpError{Op: "read", Net: "tcp", Err: os.ErrDeadlineExceeded}
	assert.Equal(t, KindClient, KindOf(timeout))
}

func TestClassify_Precedence(t *testing.T) {
	// an errno wins even when the chain also carries EOF
	err := fmt.Errorf("%w: %v", syscall.EPIPE, io.EOF)
	assert.Equal(t, KindTransport, KindOf(err))
}

func TestClassify_Passthrough(t *testing.T) {
	assert.Nil(t, Classify(nil))
	assert.Equal(t, KindNone, KindOf(nil))
	assert.True(t, ErrClosed == Classify(ErrClosed))
	assert.Equal(t, KindUsage, KindOf(ErrNothingQueued))

	re := &ReplyError{Message: "ERR x"}
	assert.True(t, re == Classify(re))
	assert.Equal(t, KindReply, KindOf(re))
	assert.Equal(t, "closed stream", ErrClosed.Error())
}

func TestPipeline(t *testing.T) {
	p := &pipeline{}
	assert.Equal(t, ErrNothingQueued, p.ensure())
	assert.NoError(t, p.enqueue())
	assert.NoError(t, p.enqueue())
	assert.Equal(t, 2, p.pending)
	assert.NoError(t, p.ensure())
	p.dequeue()
	p.dequeue()
	p.dequeue()
	assert.Equal(t, 0, p.pending)
	assert.Equal(t, ErrNothingQueued, p.ensure())

	p.pending = math.MaxInt32
	assert.Equal(t, ErrPendingOverflow, p.enqueue())
	assert.Equal(t, math.MaxInt32, p.pending)
}
