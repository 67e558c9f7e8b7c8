// Package mailer sends one templated email to one recipient with retries
// and reports the outcome as a Result.
package mailer

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/pure-golang/bikerental/logger"
	"github.com/pure-golang/bikerental/mail"
	"github.com/pure-golang/bikerental/retry"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
)

const (
	ReasonDisabled       = "email_disabled"
	ReasonTransportError = "transport_error"
)

// ReasonMissing is the Result reason when the recipient of role is empty.
func ReasonMissing(role Role) string {
	return string(role) + "_email_missing"
}

// Message is one email to one recipient.
type Message struct {
	Role     Role
	RentalID string
	To       string
	Cc       []string
	ReplyTo  string
	Subject  string
	HTML     string
	Text     string
}

// Result is the outcome of a Send call.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
}

// Mailer is safe for concurrent use.
type Mailer struct {
	sender    mail.Sender
	policy    retry.Policy
	from      mail.Address
	audit     AuditLog
	retryOpts []retry.Option
}

type Option func(*Mailer)

// WithPolicy replaces the default 3 attempts / 1s, 2s backoff policy.
func WithPolicy(p retry.Policy) Option {
	return func(m *Mailer) {
		m.policy = p
	}
}

// WithFrom sets the From address. Transports fall back to their own default when unset.
func WithFrom(from mail.Address) Option {
	return func(m *Mailer) {
		m.from = from
	}
}

// WithAuditLog stores every terminal outcome that reached the transport.
func WithAuditLog(a AuditLog) Option {
	return func(m *Mailer) {
		m.audit = a
	}
}

// WithRetryOptions passes extra options to retry.Do.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(m *Mailer) {
		m.retryOpts = append(m.retryOpts, opts...)
	}
}

// New creates a Mailer. A nil sender means email is disabled.
func New(sender mail.Sender, opts ...Option) *Mailer {
	m := &Mailer{
		sender: sender,
		policy: retry.NewDefaultExponential(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Disabled returns a Mailer that never sends.
func Disabled() *Mailer {
	return New(nil)
}

func (m *Mailer) Enabled() bool {
	return m != nil && m.sender != nil
}

// Send delivers msg through the retry policy.
// Disabled transport and empty recipient are reported in Result with a nil error.
// A transport failure after the last attempt is reported in Result and returned.
func (m *Mailer) Send(ctx context.Context, msg Message) (Result, error) {
	if !m.Enabled() {
		return Result{Reason: ReasonDisabled}, nil
	}
	if msg.To == "" {
		return Result{Reason: ReasonMissing(msg.Role)}, nil
	}

	email := m.email(msg)
	log := logger.FromContext(ctx).With(
		"recipient", msg.To,
		"subject", msg.Subject,
		"rental_id", msg.RentalID,
		"role", string(msg.Role),
	)

	opts := append([]retry.Option{retry.WithObserver(observe(log, msg.Role))}, m.retryOpts...)
	var (
		last    int
		lastErr error
	)
	id, err := retry.Do(ctx, m.policy, func(ctx context.Context, attempt int) (string, error) {
		id, err := m.sender.Send(ctx, email)
		last, lastErr = attempt, err
		return id, err
	}, opts...)

	var res Result
	if err != nil {
		res = Result{Reason: ReasonTransportError, Error: lastErr.Error(), Attempts: last}
		err = errors.Wrapf(err, "failed to send %s email", msg.Role)
	} else {
		res = Result{Success: true, MessageID: id, Attempts: last}
	}

	m.record(ctx, msg, res)
	return res, err
}

func (m *Mailer) email(msg Message) mail.Email {
	e := mail.Email{
		From:    m.from,
		To:      []mail.Address{{Address: msg.To}},
		ReplyTo: mail.Address{Address: msg.ReplyTo},
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	}
	for _, cc := range msg.Cc {
		if cc != "" && cc != msg.To {
			e.Cc = append(e.Cc, mail.Address{Address: cc})
		}
	}
	return e
}

func (m *Mailer) record(ctx context.Context, msg Message, res Result) {
	if m.audit == nil {
		return
	}

	entry := AuditEntry{
		RentalID:  msg.RentalID,
		Recipient: msg.To,
		Role:      msg.Role,
		Subject:   msg.Subject,
		Status:    StatusSent,
		MessageID: res.MessageID,
		Error:     res.Error,
		Attempts:  res.Attempts,
	}
	if !res.Success {
		entry.Status = StatusFailed
	}

	if err := m.audit.Record(ctx, entry); err != nil {
		logger.FromContextWithErr(ctx, err).Warn("Failed to store email log",
			"rental_id", msg.RentalID,
			"role", string(msg.Role),
		)
	}
}

func observe(log *slog.Logger, role Role) retry.Observer {
	return func(ctx context.Context, e retry.Event) {
		switch e.Phase {
		case retry.PhaseAttempting:
			countAttempt(ctx, role)
			log.Info("Sending email", "status", "attempting", "attempt", e.Attempt)
		case retry.PhaseSucceeded:
			countSent(ctx, role)
			log.Info("Email sent", "status", "sent", "attempt", e.Attempt)
		case retry.PhaseFailed:
			countFailed(ctx, role)
			l := log.With("status", "failed", "attempt", e.Attempt, "error", e.Err.Error())
			if e.Delay > 0 {
				l.Warn("Email attempt failed, retrying", "retry_in", e.Delay.String())
				return
			}
			l.Error("Email attempt failed, giving up")
		}
	}
}
