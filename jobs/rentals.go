package jobs

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/bikerental/logger"
)

// RentalSweepName is the job name used in logs and spans.
const RentalSweepName = "rental-sweep"

// RentalCompleter is implemented by storage/postgres.Rentals.
type RentalCompleter interface {
	CompleteFinished(ctx context.Context, today time.Time) (int64, error)
}

// RentalSweep marks pending and confirmed rentals whose end date is
// before today (UTC) as completed.
func RentalSweep(store RentalCompleter, now func() time.Time) Func {
	if now == nil {
		now = time.Now
	}

	return func(ctx context.Context) error {
		today := now().UTC()
		n, err := store.CompleteFinished(ctx, today)
		if err != nil {
			return errors.Wrap(err, "failed to complete finished rentals")
		}

		completedRentals.Add(ctx, n)
		if n > 0 {
			logger.FromContext(ctx).Info("Rentals completed", "count", n, "today", today.Format(time.DateOnly))
		}
		return nil
	}
}
