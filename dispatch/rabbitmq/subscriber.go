package rabbitmq

import (
	"context"
	"encoding/json"
	"log/slog"
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
	"github.com/pure-golang/bikerental/logger"
)

const ConsumeRetryInterval = 5 * time.Second

// Subscriber consumes jobs one at a time.
// A handler error is logged and the delivery acked: sends were already
// retried by the mailer. Undecodable messages are rejected.
type Subscriber struct {
	name      string
	queueName string
	prefetch  int
	wg        sync.WaitGroup
	dialer    *Dialer
	close     chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

func NewSubscriber(dialer *Dialer, queueName string, prefetch int) *Subscriber {
	name := uuid.NewString()
	return &Subscriber{
		name:      name,
		queueName: queueName,
		prefetch:  prefetch,
		dialer:    dialer,
		logger:    dialer.options.Logger.With("subscriber", name, "queue", queueName),
		close:     make(chan struct{}),
	}
}

// Listen blocks until Close is called, resubscribing after channel failures.
func (s *Subscriber) Listen(handler dispatch.Handler) {
	s.wg.Add(1)
	defer s.wg.Done()

	s.logger.Info("Listening...")
	for {
		needRestart, err := s.listen(handler)
		if !needRestart {
			return
		}
		if err != nil {
			s.logger.With("error", err.Error()).Error("Subscription failed")
		}

		select {
		case <-s.close:
			return
		case <-time.After(ConsumeRetryInterval):
		}
	}
}

func (s *Subscriber) listen(handler dispatch.Handler) (bool, error) {
	channel, err := s.dialer.Channel()
	if err != nil {
		return true, errors.Wrap(err, "failed to make channel")
	}
	defer func() {
		_ = channel.Close()
	}()
	notifyClose := channel.NotifyClose(make(chan *amqp.Error, 1))

	if err := channel.Qos(s.prefetch, 0, false); err != nil {
		return true, errors.Wrap(err, "failed to set prefetch count")
	}

	deliveries, err := channel.Consume(s.queueName, s.name, false, false, false, false, nil)
	if err != nil {
		return true, errors.Wrapf(err, "failed to start consuming from %q", s.queueName)
	}

	closing := s.close
	for {
		select {
		case <-closing:
			// Deliveries are drained until the server confirms the cancel.
			if err := channel.Cancel(s.name, false); err != nil {
				return false, errors.Wrapf(err, "cancel consumer %q", s.name)
			}
			closing = nil
		case amqpErr := <-notifyClose:
			if amqpErr != nil {
				return true, errors.Wrap(amqpErr, "channel is closed")
			}
		case delivery, ok := <-deliveries:
			if !ok {
				return false, nil
			}
			if err := s.handleDelivery(delivery, handler); err != nil {
				return true, err
			}
		}
	}
}

func (s *Subscriber) Close() error {
	s.logger.Info("Closing subscriber...")
	s.closeOnce.Do(func() { close(s.close) })
	s.wg.Wait()
	return nil
}

func (s *Subscriber) handleDelivery(delivery amqp.Delivery, handler dispatch.Handler) error {
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), tableCarrier(delivery.Headers))
	ctx, span := tracer.Start(ctx, s.queueName, trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	span.SetAttributes(
		attribute.String("id", delivery.MessageId),
		attribute.String("consumer_name", s.name),
	)

	log := s.logger.With("message_id", delivery.MessageId)
	if traceID := span.SpanContext().TraceID(); traceID.IsValid() {
		log = log.With("trace_id", traceID.String())
	}
	ctx = logger.NewContext(ctx, log)

	var job dispatch.Job
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		log.With("error", err.Error()).Error("Rejecting undecodable job")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if err := delivery.Reject(false); err != nil {
			return errors.Wrap(err, "failed to reject")
		}
		return nil
	}
	span.SetAttributes(attribute.String("rental_id", job.Record.RentalID))

	if err := handler(ctx, job); err != nil {
		log.With("error", err.Error()).Error("Handle job", "rental_id", job.Record.RentalID)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if err := delivery.Ack(false); err != nil {
		return errors.Wrap(err, "failed to ack")
	}
	return nil
}
