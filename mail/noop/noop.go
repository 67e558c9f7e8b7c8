package noop

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pure-golang/bikerental/mail"
)

var _ mail.Sender = (*Sender)(nil)

// Sender discards emails. Used in development and tests.
type Sender struct {
	mx     sync.Mutex
	sent   int
	closed bool
}

func NewSender() *Sender {
	return &Sender{}
}

// Send validates the email, logs it at debug level and drops it.
func (n *Sender) Send(ctx context.Context, email mail.Email) (string, error) {
	n.mx.Lock()
	defer n.mx.Unlock()

	if n.closed {
		return "", mail.ErrClosed
	}
	if err := email.Validate(); err != nil {
		return "", err
	}

	n.sent++
	id := mail.NewMessageID(email.From.Address)
	slog.Default().Debug("Email discarded",
		"to", email.Recipients(),
		"subject", email.Subject,
		"message_id", id,
	)
	return id, nil
}

// Sent returns the number of discarded emails.
func (n *Sender) Sent() int {
	n.mx.Lock()
	defer n.mx.Unlock()
	return n.sent
}

func (n *Sender) Close() error {
	n.mx.Lock()
	defer n.mx.Unlock()
	n.closed = true
	return nil
}
