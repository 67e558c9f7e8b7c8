package smtp

import (
	"context"
	"crypto/tls"
	"net"
	"net/smtp"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/bikerental/mail"
)

var _ mail.Sender = (*Sender)(nil)

// Sender implements mail.Sender using net/smtp.
// A new connection is opened for every email so concurrent sends do not block each other.
type Sender struct {
	mx        sync.RWMutex
	cfg       Config
	tlsConfig *tls.Config
	now       func() time.Time
	closed    bool
}

// SenderOptions contains options for creating a Sender.
type SenderOptions struct {
	// TLSConfig overrides the client TLS configuration.
	TLSConfig *tls.Config
	// Now is the clock used for the Date header.
	Now func() time.Time
}

// NewSender creates a new SMTP Sender.
func NewSender(cfg Config, options *SenderOptions) *Sender {
	if options == nil {
		options = new(SenderOptions)
	}

	tlsConfig := options.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.Insecure, // #nosec G402 -- controlled by config
			MinVersion:         tls.VersionTLS12,
		}
	}

	now := options.Now
	if now == nil {
		now = time.Now
	}

	return &Sender{
		cfg:       cfg,
		tlsConfig: tlsConfig,
		now:       now,
	}
}

// Send delivers a single email and returns its Message-ID.
func (s *Sender) Send(ctx context.Context, email mail.Email) (string, error) {
	ctx, span := tracer.Start(ctx, "SMTP.Send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("smtp.subject", email.Subject),
		attribute.Int("smtp.to_count", len(email.To)),
		attribute.Int("smtp.cc_count", len(email.Cc)),
		attribute.Int("smtp.bcc_count", len(email.Bcc)),
		attribute.String("smtp.host", s.cfg.Host),
		attribute.Int("smtp.port", s.cfg.Port),
		attribute.Bool("smtp.implicit_tls", s.cfg.ImplicitTLS()),
	)

	s.mx.RLock()
	closed := s.closed
	s.mx.RUnlock()
	if closed {
		span.SetStatus(codes.Error, mail.ErrClosed.Error())
		return "", mail.ErrClosed
	}

	if email.From.IsZero() {
		email.From = s.cfg.SenderAddress()
	}
	if err := email.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	messageID := mail.NewMessageID(email.From.Address)
	msg := buildMessage(email, messageID, s.now())

	if err := s.deliver(ctx, email.From.Address, email.Recipients(), msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", errors.Wrap(err, "failed to send email")
	}

	span.SetAttributes(attribute.String("smtp.message_id", messageID))
	span.SetStatus(codes.Ok, "")
	return messageID, nil
}

// Verify connects and authenticates without sending anything.
func (s *Sender) Verify(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "SMTP.Verify", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	client, stop, err := s.connect(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer stop()
	defer client.Close()

	if err := client.Quit(); err != nil {
		return errors.Wrap(err, "failed to quit")
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *Sender) deliver(ctx context.Context, from string, to []string, msg []byte) error {
	client, stop, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer stop()
	defer client.Close()

	if err := client.Mail(from); err != nil {
		return errors.Wrap(err, "failed to set sender")
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			return errors.Wrapf(err, "failed to set recipient: %s", addr)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return errors.Wrap(err, "failed to get data writer")
	}
	if _, err := writer.Write(msg); err != nil {
		_ = writer.Close()
		return errors.Wrap(err, "failed to write message")
	}
	// The server accepts or rejects the message on close.
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, "message rejected")
	}

	// The message is accepted at this point.
	_ = client.Quit()
	return nil
}

// connect dials the server, upgrades to TLS and authenticates.
// stop releases the context watcher and must be called when done.
func (s *Sender) connect(ctx context.Context) (*smtp.Client, func() bool, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	dialer := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to SMTP server")
	}

	var deadline time.Time
	if s.cfg.Timeout > 0 {
		deadline = time.Now().Add(s.cfg.Timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if !deadline.IsZero() {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})

	if s.cfg.ImplicitTLS() {
		conn = tls.Client(conn, s.tlsConfig)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		stop()
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, "failed to start SMTP session")
	}

	if !s.cfg.ImplicitTLS() {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(s.tlsConfig); err != nil {
				stop()
				_ = client.Close()
				return nil, nil, errors.Wrap(err, "failed to start TLS")
			}
		}
	}

	if s.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
			if err := client.Auth(auth); err != nil {
				stop()
				_ = client.Close()
				return nil, nil, errors.Wrap(err, "failed to authenticate")
			}
		}
	}

	return client, stop, nil
}

// Close closes the sender. Sends in flight are not interrupted.
func (s *Sender) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.closed = true
	return nil
}
