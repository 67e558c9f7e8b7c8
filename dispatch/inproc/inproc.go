// Package inproc runs dispatch jobs in goroutines of the current process.
package inproc

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/pkg/errors"

	"github.com/pure-golang/bikerental/dispatch"
	"github.com/pure-golang/bikerental/logger"
)

var _ dispatch.Dispatcher = (*Dispatcher)(nil)

// Dispatcher starts one goroutine per job. Jobs outlive the request that
// dispatched them but keep its values (logger, trace).
type Dispatcher struct {
	handler dispatch.Handler

	mx       sync.Mutex
	wg       sync.WaitGroup
	inflight int
	closed   bool
}

func New(handler dispatch.Handler) *Dispatcher {
	return &Dispatcher{handler: handler}
}

func (d *Dispatcher) Dispatch(ctx context.Context, job dispatch.Job) error {
	d.mx.Lock()
	defer d.mx.Unlock()

	if d.closed {
		return dispatch.ErrClosed
	}
	d.inflight++
	d.wg.Add(1)

	go d.run(context.WithoutCancel(ctx), job)
	return nil
}

func (d *Dispatcher) run(ctx context.Context, job dispatch.Job) {
	defer d.wg.Done()
	defer func() {
		d.mx.Lock()
		d.inflight--
		d.mx.Unlock()
	}()
	defer func() {
		if p := recover(); p != nil {
			logger.FromContext(ctx).
				With("panic", p).
				With("stack", string(debug.Stack())).
				With("rental_id", job.Record.RentalID).
				Error("Panic recovered from dispatch job")
		}
	}()

	if err := d.handler(ctx, job); err != nil {
		logger.FromContextWithErr(ctx, err).Error("Dispatch job failed", "rental_id", job.Record.RentalID)
	}
}

// InFlight returns the number of running jobs.
func (d *Dispatcher) InFlight() int {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.inflight
}

func (d *Dispatcher) Close(ctx context.Context) error {
	d.mx.Lock()
	d.closed = true
	d.mx.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		n := d.InFlight()
		logger.FromContext(ctx).Warn("Abandoning notification jobs", "count", n)
		return errors.Wrapf(ctx.Err(), "%d job(s) abandoned", n)
	}
}
