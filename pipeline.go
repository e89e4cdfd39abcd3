package hiredis

import "math"

// pipeline counts the replies owed by the server on a synchronous connection
type pipeline struct {
	pending int
}

func (p *pipeline) enqueue() error {
	if p.pending == math.MaxInt32 {
		return ErrPendingOverflow
	}
	p.pending++
	return nil
}

func (p *pipeline) ensure() error {
	if p.pending == 0 {
		return ErrNothingQueued
	}
	return nil
}

func (p *pipeline) dequeue() {
	if p.pending > 0 {
		p.pending--
	}
}

func (p *pipeline) reset() {
	p.pending = 0
}
