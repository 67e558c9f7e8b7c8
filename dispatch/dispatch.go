// Package dispatch hands accepted bookings to background notification.
package dispatch

import (
	"context"

	"github.com/pkg/errors"

	"github.com/pure-golang/bikerental/booking"
	"github.com/pure-golang/bikerental/logger"
	"github.com/pure-golang/bikerental/notifier"
)

var ErrClosed = errors.New("dispatcher is closed")

// Job is one booking waiting for its notification emails.
type Job struct {
	Record     booking.Record `json:"record"`
	OwnerEmail string         `json:"ownerEmail,omitempty"`
}

// Handler processes a Job.
type Handler func(ctx context.Context, job Job) error

// Dispatcher runs jobs without making the caller wait for them.
type Dispatcher interface {
	// Dispatch accepts the job. It returns before the job is processed.
	Dispatch(ctx context.Context, job Job) error
	// Close stops accepting jobs and waits for accepted ones until ctx is done.
	Close(ctx context.Context) error
}

// NotifyHandler sends the booking emails of a job and logs the outcome.
// Email failures are part of the logged result, so the handler never fails.
func NotifyHandler(n *notifier.Notifier) Handler {
	return func(ctx context.Context, job Job) error {
		res := n.Notify(ctx, job.Record, job.OwnerEmail)
		res.Log(logger.FromContext(ctx), job.Record.RentalID)
		return nil
	}
}
