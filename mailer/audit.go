package mailer

import "context"

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// AuditEntry is the terminal outcome of one Send that reached the transport.
type AuditEntry struct {
	RentalID  string
	Recipient string
	Role      Role
	Subject   string
	Status    string
	MessageID string
	Error     string
	Attempts  int
}

// AuditLog stores AuditEntry values. A failing AuditLog never changes the Send result.
type AuditLog interface {
	Record(ctx context.Context, e AuditEntry) error
}
