// Package notifier sends the emails triggered by a booking.
package notifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pure-golang/bikerental/booking"
	"github.com/pure-golang/bikerental/mailer"
	"github.com/pure-golang/bikerental/render"
)

// ReasonRenderError is the Result reason when the email could not be built.
const ReasonRenderError = "render_error"

// RoleError is a failure of the email sent to one role.
type RoleError struct {
	Role  mailer.Role `json:"role"`
	Error string      `json:"error"`
}

// Result aggregates the customer and owner outcomes of one Notify call.
type Result struct {
	Customer mailer.Result `json:"customer"`
	Owner    mailer.Result `json:"owner"`
	Errors   []RoleError   `json:"errors,omitempty"`
}

// Log writes a one-line summary of r.
func (r Result) Log(l *slog.Logger, rentalID string) {
	attrs := []any{
		"rental_id", rentalID,
		"customer_sent", r.Customer.Success,
		"owner_sent", r.Owner.Success,
	}
	if r.Customer.Reason != "" {
		attrs = append(attrs, "customer_reason", r.Customer.Reason)
	}
	if r.Owner.Reason != "" {
		attrs = append(attrs, "owner_reason", r.Owner.Reason)
	}

	if len(r.Errors) > 0 {
		attrs = append(attrs, "errors", r.Errors)
		l.Warn("Booking notifications finished with errors", attrs...)
		return
	}
	l.Info("Booking notifications finished", attrs...)
}

type Option func(*Notifier)

// WithDefaultOwner sets the owner address used when Notify gets none.
func WithDefaultOwner(addr string) Option {
	return func(n *Notifier) {
		n.defaultOwner = addr
	}
}

// WithAdmin sets the recipient of contact, test and agreement copies.
func WithAdmin(addr string) Option {
	return func(n *Notifier) {
		n.admin = addr
	}
}

// Notifier is safe for concurrent use.
type Notifier struct {
	mailer       *mailer.Mailer
	renderer     *render.Renderer
	defaultOwner string
	admin        string
}

func New(m *mailer.Mailer, r *render.Renderer, opts ...Option) *Notifier {
	n := &Notifier{
		mailer:   m,
		renderer: r,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether emails can be sent at all.
func (n *Notifier) Enabled() bool {
	return n.mailer.Enabled()
}

// Admin returns the configured admin address.
func (n *Notifier) Admin() string {
	return n.admin
}

// Notify sends the customer confirmation and the owner notification concurrently.
// Customer replies go to the support address, owner replies to the customer.
// One failing send never cancels the other. Notify never returns an error:
// every failure is reported in Result.
func (n *Notifier) Notify(ctx context.Context, rec booking.Record, ownerEmail string) Result {
	if ownerEmail == "" {
		ownerEmail = n.defaultOwner
	}

	var (
		res Result
		wg  sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		res.Customer = n.send(ctx, mailer.RoleCustomer, rec.Customer.Email, n.renderer.Branding().SupportEmail, n.renderer.CustomerConfirmation, rec)
	}()
	go func() {
		defer wg.Done()
		res.Owner = n.send(ctx, mailer.RoleOwner, ownerEmail, rec.Customer.Email, n.renderer.OwnerNotification, rec)
	}()
	wg.Wait()

	for _, r := range []struct {
		role mailer.Role
		res  mailer.Result
	}{
		{mailer.RoleCustomer, res.Customer},
		{mailer.RoleOwner, res.Owner},
	} {
		if r.res.Error != "" {
			res.Errors = append(res.Errors, RoleError{Role: r.role, Error: r.res.Error})
		}
	}
	return res
}

func (n *Notifier) send(
	ctx context.Context,
	role mailer.Role,
	to string,
	replyTo string,
	build func(booking.Record) (render.Content, error),
	rec booking.Record,
) mailer.Result {
	content, err := build(rec)
	if err != nil {
		return mailer.Result{Reason: ReasonRenderError, Error: err.Error()}
	}

	// Transport errors are already in the result.
	res, _ := n.mailer.Send(ctx, mailer.Message{
		Role:     role,
		RentalID: rec.RentalID,
		To:       to,
		ReplyTo:  replyTo,
		Subject:  content.Subject,
		HTML:     content.HTML,
		Text:     content.Text,
	})
	return res
}

// SendAgreement emails the rental agreement to the customer with the admin in copy.
func (n *Notifier) SendAgreement(ctx context.Context, rec booking.Record) (mailer.Result, error) {
	content, err := n.renderer.Agreement(rec)
	if err != nil {
		return mailer.Result{Reason: ReasonRenderError, Error: err.Error()}, err
	}

	msg := mailer.Message{
		Role:     mailer.RoleCustomer,
		RentalID: rec.RentalID,
		To:       rec.Customer.Email,
		Subject:  content.Subject,
		HTML:     content.HTML,
		Text:     content.Text,
	}
	if n.admin != "" {
		msg.Cc = []string{n.admin}
	}
	return n.mailer.Send(ctx, msg)
}

// SendContact forwards a contact form message to the admin, replying to the visitor.
func (n *Notifier) SendContact(ctx context.Context, cm render.ContactMessage) (mailer.Result, error) {
	content, err := n.renderer.Contact(cm)
	if err != nil {
		return mailer.Result{Reason: ReasonRenderError, Error: err.Error()}, err
	}

	return n.mailer.Send(ctx, mailer.Message{
		Role:    mailer.RoleAdmin,
		To:      n.admin,
		ReplyTo: cm.Email,
		Subject: content.Subject,
		HTML:    content.HTML,
		Text:    content.Text,
	})
}

// SendTest sends the SMTP test message to the admin.
func (n *Notifier) SendTest(ctx context.Context) (mailer.Result, error) {
	content, err := n.renderer.Test()
	if err != nil {
		return mailer.Result{Reason: ReasonRenderError, Error: err.Error()}, err
	}

	return n.mailer.Send(ctx, mailer.Message{
		Role:    mailer.RoleAdmin,
		To:      n.admin,
		Subject: content.Subject,
		HTML:    content.HTML,
		Text:    content.Text,
	})
}
