package rabbitmq

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/bikerental/dispatch"
)

const (
	contentTypeJSON = "application/json"
	headerRentalID  = "x-rental-id"
)

type DeliveryMode uint8

const (
	Transient  = DeliveryMode(amqp.Transient)
	Persistent = DeliveryMode(amqp.Persistent)
)

// PublisherConfig - config that can be passed to Publisher constructor.
type PublisherConfig struct {
	Exchange, RoutingKey string
	DeliveryMode         DeliveryMode
	MessageTTL           time.Duration // precision to milliseconds
}

// Publisher sends jobs as JSON messages. The channel is reopened lazily after it closes.
type Publisher struct {
	mx      sync.Mutex
	dialer  *Dialer
	cfg     PublisherConfig
	channel *amqp.Channel
	closed  <-chan *amqp.Error
}

func NewPublisher(dialer *Dialer, cfg PublisherConfig) *Publisher {
	if cfg.DeliveryMode == 0 {
		cfg.DeliveryMode = Persistent
	}

	closed := make(chan *amqp.Error, 1)
	close(closed)

	return &Publisher{
		dialer: dialer,
		cfg:    cfg,
		closed: closed,
	}
}

// Publish jobs to the queue. Method is sync.
func (p *Publisher) Publish(ctx context.Context, jobs ...dispatch.Job) error {
	p.mx.Lock()
	defer p.mx.Unlock()

	select {
	case <-p.closed:
		channel, err := p.dialer.Channel()
		if err != nil {
			return err
		}
		p.channel = channel
		p.closed = p.channel.NotifyClose(make(chan *amqp.Error, 1))
	default:
	}

	for _, job := range jobs {
		if err := p.publish(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, job dispatch.Job) error {
	ctx, span := tracer.Start(ctx, "RabbitMQ.Publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	msg, err := p.message(ctx, job)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(
		attribute.String("id", msg.MessageId),
		attribute.String("exchange", p.cfg.Exchange),
		attribute.String("key", p.cfg.RoutingKey),
		attribute.String("rental_id", job.Record.RentalID),
	)

	if err := p.channel.PublishWithContext(ctx, p.cfg.Exchange, p.cfg.RoutingKey, false, false, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrap(err, "failed to publish job")
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (p *Publisher) message(ctx context.Context, job dispatch.Job) (amqp.Publishing, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, errors.Wrap(err, "failed to encode job")
	}

	msg := amqp.Publishing{
		ContentType:  contentTypeJSON,
		MessageId:    uuid.NewString(),
		DeliveryMode: uint8(p.cfg.DeliveryMode),
		Timestamp:    time.Now(),
		Body:         body,
		Headers:      amqp.Table{headerRentalID: job.Record.RentalID},
	}
	if p.cfg.MessageTTL > 0 {
		msg.Expiration = strconv.FormatInt(p.cfg.MessageTTL.Milliseconds(), 10)
	}

	otel.GetTextMapPropagator().Inject(ctx, tableCarrier(msg.Headers))
	return msg, nil
}
