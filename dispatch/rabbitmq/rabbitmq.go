// Package rabbitmq carries dispatch jobs through a durable RabbitMQ queue.
package rabbitmq

import (
	"context"
	"sync"

	"github.com/pure-golang/bikerental/dispatch"
)

type Config struct {
	URL      string `envconfig:"RABBITMQ_URL"`
	Queue    string `envconfig:"RABBITMQ_QUEUE" default:"booking-notifications"`
	Prefetch int    `envconfig:"RABBITMQ_PREFETCH" default:"1"`
}

var _ dispatch.Dispatcher = (*Dispatcher)(nil)

// Dispatcher publishes jobs. They are processed by a Subscriber, in this
// process or in a separate worker.
type Dispatcher struct {
	publisher *Publisher

	mx     sync.RWMutex
	closed bool
}

func NewDispatcher(publisher *Publisher) *Dispatcher {
	return &Dispatcher{publisher: publisher}
}

func (d *Dispatcher) Dispatch(ctx context.Context, job dispatch.Job) error {
	d.mx.RLock()
	defer d.mx.RUnlock()

	if d.closed {
		return dispatch.ErrClosed
	}
	return d.publisher.Publish(ctx, job)
}

// Close stops publishing. Published jobs stay in the queue.
func (d *Dispatcher) Close(context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()

	d.closed = true
	return nil
}
