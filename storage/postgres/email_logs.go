package postgres

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/bikerental/mailer"
)

var _ mailer.AuditLog = (*EmailLogs)(nil)

// EmailLog is one stored email outcome.
type EmailLog struct {
	ID        int64     `db:"id" json:"id"`
	RentalID  string    `db:"rental_id" json:"rentalId"`
	Recipient string    `db:"recipient" json:"recipient"`
	Role      string    `db:"role" json:"role"`
	Subject   string    `db:"subject" json:"subject"`
	Status    string    `db:"status" json:"status"`
	MessageID string    `db:"message_id" json:"messageId"`
	Error     string    `db:"error" json:"error"`
	Attempts  int       `db:"attempts" json:"attempts"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// EmailLogs is the email_logs repository.
type EmailLogs struct {
	db *Connection
}

func NewEmailLogs(db *Connection) *EmailLogs {
	return &EmailLogs{db: db}
}

// Record implements mailer.AuditLog.
func (l *EmailLogs) Record(ctx context.Context, e mailer.AuditEntry) error {
	_, err := l.db.Exec(ctx, `
INSERT INTO email_logs (rental_id, recipient, role, subject, status, message_id, error, attempts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.RentalID, e.Recipient, string(e.Role), e.Subject, e.Status, e.MessageID, e.Error, e.Attempts)
	return errors.Wrap(err, "failed to store email log")
}

// ListByRental returns the logs of a rental, oldest first.
func (l *EmailLogs) ListByRental(ctx context.Context, rentalID string) ([]EmailLog, error) {
	var logs []EmailLog
	err := l.db.Select(ctx, &logs, `SELECT * FROM email_logs WHERE rental_id = $1 ORDER BY id`, rentalID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list email logs")
	}
	return logs, nil
}
