package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/pure-golang/bikerental/booking"
	"github.com/pure-golang/bikerental/dispatch"
	"github.com/pure-golang/bikerental/logger"
	"github.com/pure-golang/bikerental/storage/postgres"
)

type submitResponse struct {
	RentalID   string         `json:"rentalId"`
	DatabaseID int64          `json:"databaseId"`
	TotalDays  int            `json:"totalDays"`
	TotalPrice float64        `json:"totalPrice"`
	Status     booking.Status `json:"status"`
}

// submitRental stores the booking, answers 201 and then hands the booking to
// the dispatcher. Email outcomes never change the response.
func (a *API) submitRental(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	claim, replay, err := a.claimIdempotencyKey(ctx, r.Header.Get(IdempotencyHeader))
	if err != nil {
		logger.FromContextWithErr(ctx, err).Error("Failed to check idempotency key")
		writeError(w, http.StatusInternalServerError, "Internal server error occurred")
		return
	}
	if replay != nil {
		replay.write(w)
		return
	}
	committed := false
	defer func() {
		if !committed {
			claim.release(context.WithoutCancel(ctx))
		}
	}()

	var sub booking.Submission
	if err := decodeJSON(w, r, a.cfg.MaxBodyBytes, &sub); err != nil {
		writeDecodeError(w, err)
		return
	}

	if err := a.validator.Validate(sub); err != nil {
		var verr *booking.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, envelope{
				Success: false,
				Message: "Validation failed",
				Errors:  verr.Fields,
			})
			return
		}
		logger.FromContextWithErr(ctx, err).Error("Failed to validate rental")
		writeError(w, http.StatusInternalServerError, "Internal server error occurred")
		return
	}

	now := a.opts.Now()
	rentalID, err := booking.NewRentalID(now)
	if err != nil {
		logger.FromContextWithErr(ctx, err).Error("Failed to generate rental id")
		writeError(w, http.StatusInternalServerError, "Internal server error occurred")
		return
	}
	rec, err := sub.Record(rentalID, now)
	if err != nil {
		logger.FromContextWithErr(ctx, err).Error("Failed to build rental")
		writeError(w, http.StatusInternalServerError, "Internal server error occurred")
		return
	}

	rental, err := a.opts.Rentals.Create(ctx, rec)
	if err != nil {
		logger.FromContextWithErr(ctx, err).Error("Failed to store rental")
		writeError(w, http.StatusInternalServerError, "Internal server error occurred")
		return
	}

	log = log.With("rental_id", rental.RentalID)
	log.Info("Rental saved", "bike", rental.Bike.Title, "total_days", rental.TotalDays)
	rentalsSubmitted.Add(ctx, 1)

	body, err := json.Marshal(envelope{
		Success: true,
		Message: "Rental application submitted successfully",
		Data: submitResponse{
			RentalID:   rental.RentalID,
			DatabaseID: rental.ID,
			TotalDays:  rental.TotalDays,
			TotalPrice: rental.TotalPrice,
			Status:     booking.StatusPending,
		},
	})
	if err != nil {
		logger.FromContextWithErr(ctx, err).Error("Failed to encode response")
		writeError(w, http.StatusInternalServerError, "Internal server error occurred")
		return
	}

	committed = true
	claim.commit(context.WithoutCancel(ctx), http.StatusCreated, body)
	writeRaw(w, http.StatusCreated, body)

	// The request context ends with the response; the job must outlive it.
	job := dispatch.Job{Record: rental.Record}
	if err := a.opts.Dispatcher.Dispatch(context.WithoutCancel(ctx), job); err != nil {
		logger.FromContextWithErr(ctx, err).
			With("rental_id", rental.RentalID).
			Error("Failed to dispatch booking emails")
	}
}

func (a *API) listRentals(w http.ResponseWriter, r *http.Request) {
	rentals, err := a.opts.Rentals.List(r.Context())
	if err != nil {
		logger.FromContextWithErr(r.Context(), err).Error("Failed to list rentals")
		writeError(w, http.StatusInternalServerError, "Failed to fetch rentals")
		return
	}
	if rentals == nil {
		rentals = []postgres.Rental{}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: rentals})
}

func (a *API) getRental(w http.ResponseWriter, r *http.Request) {
	rental, ok := a.loadRental(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: rental})
}

func (a *API) sendAgreement(w http.ResponseWriter, r *http.Request) {
	rental, ok := a.loadRental(w, r)
	if !ok {
		return
	}

	res, err := a.opts.Notifier.SendAgreement(r.Context(), rental.Record)
	a.writeMailOutcome(w, r, res, err, "Agreement email sent", "Failed to send agreement email")
}

// loadRental writes the error response itself when it returns false.
func (a *API) loadRental(w http.ResponseWriter, r *http.Request) (postgres.Rental, bool) {
	rentalID := chi.URLParam(r, "rentalID")

	rental, err := a.opts.Rentals.GetByRentalID(r.Context(), rentalID)
	if errors.Is(err, postgres.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Rental not found")
		return postgres.Rental{}, false
	}
	if err != nil {
		logger.FromContextWithErr(r.Context(), err).With("rental_id", rentalID).Error("Failed to get rental")
		writeError(w, http.StatusInternalServerError, "Failed to fetch rental")
		return postgres.Rental{}, false
	}
	return rental, true
}
