package rabbitmq

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pure-golang/bikerental/retry"
)

var ErrConnectionClosed = errors.New("connection is closed manually")

// Dialer owns the AMQP connection and restores it after a failure.
type Dialer struct {
	uri     string
	conn    *amqp.Connection
	options *DialerOptions
	mx      sync.Mutex
}

// DialerOptions set dialer params.
type DialerOptions struct {
	// RetryPolicy of reconnection. Defaults to retry.NewDefaultCapped.
	RetryPolicy retry.Policy
	Logger      *slog.Logger
}

func NewDialer(uri string, options *DialerOptions) *Dialer {
	if options == nil {
		options = new(DialerOptions)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	options.Logger = options.Logger.WithGroup("rabbitmq")

	if options.RetryPolicy == nil {
		options.RetryPolicy = retry.NewDefaultCapped()
	}

	return &Dialer{
		uri:     uri,
		options: options,
	}
}

func (d *Dialer) Connect() error {
	d.options.Logger.Debug("Dialing...")

	d.mx.Lock()
	defer d.mx.Unlock()

	conn, err := amqp.DialConfig(d.uri, amqp.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to dial")
	}

	ch := conn.NotifyClose(make(chan *amqp.Error, 1))
	d.conn = conn
	d.options.Logger.Debug("Connection is stable")
	go d.handleReconnect(ch)
	return nil
}

func (d *Dialer) Channel() (*amqp.Channel, error) {
	d.mx.Lock()
	defer d.mx.Unlock()

	if d.conn == nil {
		return nil, ErrConnectionClosed
	}

	channel, err := d.conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open channel")
	}
	return channel, nil
}

// DeclareQueue declares a durable queue named name.
func (d *Dialer) DeclareQueue(name string) error {
	channel, err := d.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = channel.Close() }()

	if _, err := channel.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return errors.Wrapf(err, "failed to declare queue %q", name)
	}
	return nil
}

func (d *Dialer) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()

	if d.conn == nil {
		return nil
	}
	if err := d.conn.Close(); err != nil {
		return errors.Wrap(err, "failed to close RabbitMQ connection")
	}
	d.conn = nil
	return nil
}

// handleReconnect waits for a connection failure and dials again until the policy gives up.
func (d *Dialer) handleReconnect(ch chan *amqp.Error) {
	err, ok := <-ch
	if !ok {
		d.options.Logger.Debug("Shutdown")
		return
	}

	d.options.Logger.With("error", err.Error()).Warn("Disconnected")

	for attempt := 1; ; attempt++ {
		err := d.Connect()
		if err == nil {
			return
		}

		delay, stop := d.options.RetryPolicy.TryNum(attempt)
		if stop {
			d.options.Logger.With("error", err.Error()).Error("Cannot connect to rabbitmq, giving up")
			return
		}
		d.options.Logger.With("error", err.Error(), "retry_in", delay.String()).Error("Failed to connect")

		time.Sleep(delay)
	}
}
