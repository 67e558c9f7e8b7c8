// Package mail describes a single outgoing email and the transports delivering it.
package mail

import (
	"context"
	"io"
	netmail "net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrClosed       = errors.New("sender is closed")
	ErrNoSender     = errors.New("no from address specified")
	ErrNoRecipients = errors.New("no recipients specified")
)

// Sender delivers one email and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, email Email) (messageID string, err error)
	io.Closer
}

// Email represents an email message.
type Email struct {
	From    Address
	To      []Address
	Cc      []Address
	Bcc     []Address
	ReplyTo Address
	Subject string

	Headers map[string]string

	Text string // plain text body
	HTML string // HTML body, optional
}

// Address represents an email address.
type Address struct {
	Name    string // "Jane Doe"
	Address string // "jane@example.com"
}

func (a Address) IsZero() bool {
	return a.Address == ""
}

// String formats the address for a message header.
func (a Address) String() string {
	if a.Name == "" {
		return a.Address
	}
	return (&netmail.Address{Name: a.Name, Address: a.Address}).String()
}

// Recipients returns every envelope recipient address.
func (e Email) Recipients() []string {
	all := make([]string, 0, len(e.To)+len(e.Cc)+len(e.Bcc))
	for _, list := range [][]Address{e.To, e.Cc, e.Bcc} {
		for _, a := range list {
			if a.Address != "" {
				all = append(all, a.Address)
			}
		}
	}
	return all
}

// Validate checks that the email can be put on the wire.
func (e Email) Validate() error {
	if e.From.IsZero() {
		return ErrNoSender
	}
	if len(e.Recipients()) == 0 {
		return ErrNoRecipients
	}
	return nil
}

// NewMessageID returns an RFC 5322 Message-ID in the sender's domain.
func NewMessageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}
