// Package sendgrid implements mail.Sender over the SendGrid v3 HTTP API.
package sendgrid

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	sg "github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/bikerental/mail"
)

const sendEndpoint = "/v3/mail/send"

var tracer = otel.Tracer("github.com/pure-golang/bikerental/mail/sendgrid")

var _ mail.Sender = (*Sender)(nil)

// Config contains SendGrid parameters.
type Config struct {
	APIKey   string `envconfig:"SENDGRID_API_KEY"`
	Host     string `envconfig:"SENDGRID_HOST"` // defaults to https://api.sendgrid.com
	From     string `envconfig:"SENDGRID_FROM"`
	FromName string `envconfig:"SENDGRID_FROM_NAME"`
}

func (c Config) Enabled() bool {
	return c.APIKey != ""
}

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sendgrid: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Sender sends emails via SendGrid.
type Sender struct {
	mx     sync.RWMutex
	cfg    Config
	closed bool
}

func NewSender(cfg Config) *Sender {
	return &Sender{cfg: cfg}
}

// Send posts the email and returns the X-Message-Id assigned by SendGrid.
func (s *Sender) Send(ctx context.Context, email mail.Email) (string, error) {
	ctx, span := tracer.Start(ctx, "SendGrid.Send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("sendgrid.subject", email.Subject),
		attribute.Int("sendgrid.to_count", len(email.To)),
	)

	s.mx.RLock()
	closed := s.closed
	s.mx.RUnlock()
	if closed {
		span.SetStatus(codes.Error, mail.ErrClosed.Error())
		return "", mail.ErrClosed
	}

	if email.From.IsZero() {
		email.From = mail.Address{Name: s.cfg.FromName, Address: s.cfg.From}
	}
	if err := email.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	// sendgrid.Client stores the body on itself, so each send gets its own client.
	request := sg.GetRequest(s.cfg.APIKey, sendEndpoint, s.cfg.Host)
	request.Method = "POST"
	client := &sg.Client{Request: request}

	resp, err := client.SendWithContext(ctx, buildMessage(email))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", errors.Wrap(err, "failed to send email")
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := &StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var messageID string
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}
	span.SetStatus(codes.Ok, "")
	return messageID, nil
}

func (s *Sender) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.closed = true
	return nil
}

func buildMessage(email mail.Email) *sgmail.SGMailV3 {
	m := sgmail.NewV3Mail()
	m.SetFrom(toEmail(email.From))
	m.Subject = email.Subject

	p := sgmail.NewPersonalization()
	p.AddTos(toEmails(email.To)...)
	if len(email.Cc) > 0 {
		p.AddCCs(toEmails(email.Cc)...)
	}
	if len(email.Bcc) > 0 {
		p.AddBCCs(toEmails(email.Bcc)...)
	}
	m.AddPersonalizations(p)

	if !email.ReplyTo.IsZero() {
		m.SetReplyTo(toEmail(email.ReplyTo))
	}
	for k, v := range email.Headers {
		m.SetHeader(k, v)
	}

	// SendGrid requires text/plain to come before text/html.
	if email.Text != "" {
		m.AddContent(sgmail.NewContent("text/plain", email.Text))
	}
	if email.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", email.HTML))
	}
	return m
}

func toEmail(a mail.Address) *sgmail.Email {
	return sgmail.NewEmail(a.Name, a.Address)
}

func toEmails(list []mail.Address) []*sgmail.Email {
	out := make([]*sgmail.Email, 0, len(list))
	for _, a := range list {
		if !a.IsZero() {
			out = append(out, toEmail(a))
		}
	}
	return out
}
