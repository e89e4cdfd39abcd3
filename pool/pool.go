// Package pool keeps a set of synchronous clients to one endpoint for reuse
// across goroutines.
package pool

import (
	"context"
	"errors"

	"github.com/distributedio/hiredis"
	"github.com/distributedio/hiredis/conf"
	commons "github.com/jolestar/go-commons-pool/v2"
	"go.uber.org/zap"
)

var errTypeMismatch = errors.New("pooled object is not a client")

// factory implements commons.PooledObjectFactory over hiredis.Client
type factory struct {
	cfg *conf.Client
}

func (f *factory) MakeObject(ctx context.Context) (*commons.PooledObject, error) {
	c, err := hiredis.Dial(f.cfg)
	if err != nil {
		return nil, err
	}
	return commons.NewPooledObject(c), nil
}

func (f *factory) DestroyObject(ctx context.Context, object *commons.PooledObject) error {
	c, ok := object.Object.(*hiredis.Client)
	if !ok {
		return errTypeMismatch
	}
	if err := c.Close(); err != nil && err != hiredis.ErrClosed {
		return err
	}
	return nil
}

// ValidateObject rejects clients with a fault
func (f *factory) ValidateObject(ctx context.Context, object *commons.PooledObject) bool {
	c, ok := object.Object.(*hiredis.Client)
	return ok && c.Healthy()
}

func (f *factory) ActivateObject(ctx context.Context, object *commons.PooledObject) error {
	return nil
}

// PassivateObject drains the replies left behind by the borrower
func (f *factory) PassivateObject(ctx context.Context, object *commons.PooledObject) error {
	c, ok := object.Object.(*hiredis.Client)
	if !ok {
		return errTypeMismatch
	}
	if c.Pending() == 0 {
		return nil
	}
	_, err := c.TakeAll()
	return err
}

// Pool lends clients connected with the same configuration
type Pool struct {
	p *commons.ObjectPool
}

// New creates a pool dialing with c and sized by pc
func New(ctx context.Context, c *conf.Client, pc *conf.Pool) *Pool {
	cfg := commons.NewDefaultPoolConfig()
	cfg.MaxTotal = pc.MaxTotal
	cfg.MaxIdle = pc.MaxIdle
	cfg.MinIdle = pc.MinIdle
	cfg.TestOnBorrow = true
	cfg.TestOnReturn = true
	return &Pool{p: commons.NewObjectPool(ctx, &factory{cfg: c}, cfg)}
}

// Get borrows a client, it blocks while the pool is exhausted until ctx is done
func (p *Pool) Get(ctx context.Context) (*hiredis.Client, error) {
	obj, err := p.p.BorrowObject(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := obj.(*hiredis.Client)
	if !ok {
		return nil, errTypeMismatch
	}
	return c, nil
}

// Put gives c back, a broken client is dropped instead
func (p *Pool) Put(ctx context.Context, c *hiredis.Client) error {
	if !c.Healthy() {
		zap.L().Debug("drop broken client", zap.String("addr", c.Context().Addr),
			zap.Int64("clientid", c.Context().ID))
		return p.p.InvalidateObject(ctx, c)
	}
	return p.p.ReturnObject(ctx, c)
}

// Do runs fn with a borrowed client and puts it back afterwards
func (p *Pool) Do(ctx context.Context, fn func(c *hiredis.Client) error) error {
	c, err := p.Get(ctx)
	if err != nil {
		return err
	}
	ferr := fn(c)
	if err := p.Put(ctx, c); err != nil {
		zap.L().Warn("put client back failed", zap.Error(err))
	}
	return ferr
}

// Active returns the number of clients lent out
func (p *Pool) Active() int {
	return p.p.GetNumActive()
}

// Idle returns the number of clients waiting in the pool
func (p *Pool) Idle() int {
	return p.p.GetNumIdle()
}

// Close destroys every idle client, lent clients are destroyed when put back
func (p *Pool) Close(ctx context.Context) {
	p.p.Close(ctx)
}
