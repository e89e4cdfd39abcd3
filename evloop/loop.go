// Package evloop is a small single goroutine event loop able to drive
// hiredis.AsyncClient connections. Every callback runs on the goroutine calling
// Run, a helper goroutine only waits for descriptors to become ready.
package evloop

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Mask selects the readiness a file event waits for
type Mask int

// Event masks
const (
	None     Mask = 0
	Readable Mask = 1
	Writable Mask = 2
)

// FileProc is called on the loop goroutine when fd is ready for mask
type FileProc func(l *Loop, fd int, mask Mask)

// ErrStopped is returned when the loop is used after Stop
var ErrStopped = errors.New("event loop stopped")

// pollTimeout bounds how long the poller sleeps before noticing new events
const pollTimeout = 10 * time.Millisecond

type fileEvent struct {
	mask  Mask
	rproc FileProc
	wproc FileProc
}

type ready struct {
	fd      int
	revents int16
}

// Loop multiplexes file events and posted functions onto one goroutine
type Loop struct {
	mu      sync.Mutex
	events  map[int]*fileEvent
	posted  []func()
	wake    chan struct{}
	done    chan struct{}
	stopped sync.Once
	running bool
}

// New creates a loop, call Run to start it
func New() *Loop {
	return &Loop{
		events: make(map[int]*fileEvent),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// CreateFileEvent registers proc for fd becoming ready for mask. Registering
// again replaces the proc of the given mask.
func (l *Loop) CreateFileEvent(fd int, mask Mask, proc FileProc) error {
	if fd < 0 {
		return unix.EBADF
	}
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fe, ok := l.events[fd]
	if !ok {
		fe = &fileEvent{}
		l.events[fd] = fe
	}
	fe.mask |= mask
	if mask&Readable != 0 {
		fe.rproc = proc
	}
	if mask&Writable != 0 {
		fe.wproc = proc
	}
	return nil
}

// DeleteFileEvent stops watching fd for mask
func (l *Loop) DeleteFileEvent(fd int, mask Mask) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fe, ok := l.events[fd]
	if !ok {
		return
	}
	fe.mask &^= mask
	if mask&Readable != 0 {
		fe.rproc = nil
	}
	if mask&Writable != 0 {
		fe.wproc = nil
	}
	if fe.mask == None {
		delete(l.events, fd)
	}
}

// FileEvents returns the mask registered for fd
func (l *Loop) FileEvents(fd int) Mask {
	l.mu.Lock()
	defer l.mu.Unlock()
	if fe, ok := l.events[fd]; ok {
		return fe.mask
	}
	return None
}

// Post schedules fn on the loop goroutine, it is safe to call from anywhere
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run processes events until Stop is called
func (l *Loop) Run() error {
	if l.Stopped() {
		return ErrStopped
	}
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.New("event loop is already running")
	}
	l.running = true
	l.mu.Unlock()

	go l.poll()
	for {
		select {
		case <-l.done:
			return nil
		case <-l.wake:
		}
		l.mu.Lock()
		posted := l.posted
		l.posted = nil
		l.mu.Unlock()
		for _, fn := range posted {
			fn()
			select {
			case <-l.done:
				return nil
			default:
			}
		}
	}
}

// Stop makes Run return after the callback in progress
func (l *Loop) Stop() {
	l.stopped.Do(func() { close(l.done) })
}

// Done is closed when the loop is stopped
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Stopped reports Stop has been called
func (l *Loop) Stopped() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *Loop) snapshot() []unix.PollFd {
	l.mu.Lock()
	defer l.mu.Unlock()
	fds := make([]unix.PollFd, 0, len(l.events))
	for fd, fe := range l.events {
		var events int16
		if fe.mask&Readable != 0 {
			events |= unix.POLLIN
		}
		if fe.mask&Writable != 0 {
			events |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	return fds
}

// poll waits for readiness and hands every batch to the loop goroutine, it does
// not poll again before the batch is processed
func (l *Loop) poll() {
	for {
		select {
		case <-l.done:
			return
		default:
		}
		fds := l.snapshot()
		if len(fds) == 0 {
			select {
			case <-l.done:
				return
			case <-time.After(pollTimeout):
			}
			continue
		}
		n, err := unix.Poll(fds, int(pollTimeout/time.Millisecond))
		if err == unix.EINTR || n == 0 {
			continue
		}
		if err != nil {
			zap.L().Error("poll failed", zap.Int("fds", len(fds)), zap.Error(err))
			continue
		}
		batch := make([]ready, 0, n)
		for _, pfd := range fds {
			if pfd.Revents != 0 {
				batch = append(batch, ready{fd: int(pfd.Fd), revents: pfd.Revents})
			}
		}
		ack := make(chan struct{})
		l.Post(func() {
			defer close(ack)
			l.fire(batch)
		})
		select {
		case <-ack:
		case <-l.done:
			return
		}
	}
}

func (l *Loop) fire(batch []ready) {
	const failed = unix.POLLERR | unix.POLLHUP | unix.POLLNVAL
	for _, r := range batch {
		if r.revents&(unix.POLLIN|failed) != 0 {
			if proc := l.proc(r.fd, Readable); proc != nil {
				proc(l, r.fd, Readable)
			}
		}
		if l.Stopped() {
			return
		}
		// the read proc may have removed the event
		if r.revents&(unix.POLLOUT|failed) != 0 {
			if proc := l.proc(r.fd, Writable); proc != nil {
				proc(l, r.fd, Writable)
			}
		}
		if l.Stopped() {
			return
		}
	}
}

func (l *Loop) proc(fd int, mask Mask) FileProc {
	l.mu.Lock()
	defer l.mu.Unlock()
	fe, ok := l.events[fd]
	if !ok || fe.mask&mask == 0 {
		return nil
	}
	if mask == Readable {
		return fe.rproc
	}
	return fe.wproc
}
