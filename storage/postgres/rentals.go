package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/bikerental/booking"
)

const (
	rentalIDConstraint = "rentals_rental_id_key"
	maxIDAttempts      = 3
)

// Rental is a stored booking.
type Rental struct {
	ID int64 `json:"id"`
	booking.Record
	UpdatedAt time.Time `json:"updatedAt"`
}

type rentalRow struct {
	ID               int64     `db:"id"`
	RentalID         string    `db:"rental_id"`
	BikeTitle        string    `db:"bike_title"`
	BikePrice        float64   `db:"bike_price"`
	BikeImage        string    `db:"bike_image"`
	FirstName        string    `db:"first_name"`
	LastName         string    `db:"last_name"`
	Email            string    `db:"email"`
	Phone            string    `db:"phone"`
	Age              int       `db:"age"`
	Address          string    `db:"address"`
	Aadhar           string    `db:"aadhar"`
	PAN              string    `db:"pan"`
	License          string    `db:"license"`
	StartDate        time.Time `db:"start_date"`
	EndDate          time.Time `db:"end_date"`
	Purpose          string    `db:"purpose"`
	Experience       string    `db:"experience"`
	SpecialRequests  string    `db:"special_requests"`
	EmergencyContact string    `db:"emergency_contact"`
	EmergencyPhone   string    `db:"emergency_phone"`
	TotalDays        int       `db:"total_days"`
	TotalPrice       float64   `db:"total_price"`
	Status           string    `db:"status"`
	SubmittedAt      time.Time `db:"submitted_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func newRentalRow(rec booking.Record) rentalRow {
	status := rec.Status
	if status == "" {
		status = booking.StatusPending
	}
	return rentalRow{
		RentalID:         rec.RentalID,
		BikeTitle:        rec.Bike.Title,
		BikePrice:        rec.Bike.Price,
		BikeImage:        rec.Bike.Image,
		FirstName:        rec.Customer.FirstName,
		LastName:         rec.Customer.LastName,
		Email:            rec.Customer.Email,
		Phone:            rec.Customer.Phone,
		Age:              rec.Customer.Age,
		Address:          rec.Customer.Address,
		Aadhar:           rec.Customer.Documents.Aadhar,
		PAN:              rec.Customer.Documents.PAN,
		License:          rec.Customer.Documents.License,
		StartDate:        rec.Period.StartDate,
		EndDate:          rec.Period.EndDate,
		Purpose:          rec.Period.Purpose,
		Experience:       rec.Period.Experience,
		SpecialRequests:  rec.Period.SpecialRequests,
		EmergencyContact: rec.Customer.EmergencyContact.Name,
		EmergencyPhone:   rec.Customer.EmergencyContact.Phone,
		TotalDays:        rec.TotalDays,
		TotalPrice:       rec.TotalPrice,
		Status:           string(status),
	}
}

func (r rentalRow) rental() Rental {
	return Rental{
		ID: r.ID,
		Record: booking.Record{
			RentalID: r.RentalID,
			Customer: booking.Customer{
				FirstName:        r.FirstName,
				LastName:         r.LastName,
				Email:            r.Email,
				Phone:            r.Phone,
				Age:              r.Age,
				Address:          r.Address,
				Documents:        booking.Documents{Aadhar: r.Aadhar, PAN: r.PAN, License: r.License},
				EmergencyContact: booking.EmergencyContact{Name: r.EmergencyContact, Phone: r.EmergencyPhone},
			},
			Bike: booking.Bike{Title: r.BikeTitle, Price: r.BikePrice, Image: r.BikeImage},
			Period: booking.Period{
				StartDate:       r.StartDate.UTC(),
				EndDate:         r.EndDate.UTC(),
				Purpose:         r.Purpose,
				Experience:      r.Experience,
				SpecialRequests: r.SpecialRequests,
			},
			TotalDays:  r.TotalDays,
			TotalPrice: r.TotalPrice,
			Status:     booking.Status(r.Status),
			CreatedAt:  r.SubmittedAt,
		},
		UpdatedAt: r.UpdatedAt,
	}
}

const insertRental = `
INSERT INTO rentals (
    rental_id, bike_title, bike_price, bike_image,
    first_name, last_name, email, phone, age, address,
    aadhar, pan, license,
    start_date, end_date, purpose, experience, special_requests,
    emergency_contact, emergency_phone,
    total_days, total_price, status
) VALUES (
    :rental_id, :bike_title, :bike_price, :bike_image,
    :first_name, :last_name, :email, :phone, :age, :address,
    :aadhar, :pan, :license,
    :start_date, :end_date, :purpose, :experience, :special_requests,
    :emergency_contact, :emergency_phone,
    :total_days, :total_price, :status
)
RETURNING id, submitted_at, updated_at`

const selectRentals = `SELECT * FROM rentals`

// Rentals is the rentals repository.
type Rentals struct {
	db    *Connection
	newID func(now time.Time) (string, error)
}

func NewRentals(db *Connection) *Rentals {
	return &Rentals{db: db, newID: booking.NewRentalID}
}

// Create stores rec. A rental id collision is resolved by generating a new id.
func (r *Rentals) Create(ctx context.Context, rec booking.Record) (Rental, error) {
	for attempt := 1; ; attempt++ {
		row := newRentalRow(rec)

		var inserted struct {
			ID          int64     `db:"id"`
			SubmittedAt time.Time `db:"submitted_at"`
			UpdatedAt   time.Time `db:"updated_at"`
		}
		err := r.db.NamedGet(ctx, &inserted, insertRental, row)
		if err == nil {
			row.ID, row.SubmittedAt, row.UpdatedAt = inserted.ID, inserted.SubmittedAt, inserted.UpdatedAt
			return row.rental(), nil
		}
		if !IsUniqueViolation(err, rentalIDConstraint) || attempt == maxIDAttempts {
			return Rental{}, errors.Wrap(err, "failed to create rental")
		}

		id, idErr := r.newID(time.Now())
		if idErr != nil {
			return Rental{}, idErr
		}
		rec.RentalID = id
	}
}

// List returns all rentals, newest first.
func (r *Rentals) List(ctx context.Context) ([]Rental, error) {
	var rows []rentalRow
	if err := r.db.Select(ctx, &rows, selectRentals+` ORDER BY submitted_at DESC, id DESC`); err != nil {
		return nil, errors.Wrap(err, "failed to list rentals")
	}

	rentals := make([]Rental, len(rows))
	for i, row := range rows {
		rentals[i] = row.rental()
	}
	return rentals, nil
}

// GetByRentalID returns ErrNotFound for an unknown id.
func (r *Rentals) GetByRentalID(ctx context.Context, rentalID string) (Rental, error) {
	var row rentalRow
	err := r.db.Get(ctx, &row, selectRentals+` WHERE rental_id = $1`, rentalID)
	if errors.Is(err, sql.ErrNoRows) {
		return Rental{}, ErrNotFound
	}
	if err != nil {
		return Rental{}, errors.Wrap(err, "failed to get rental")
	}
	return row.rental(), nil
}

// CompleteFinished marks pending and confirmed rentals whose end date is
// before today's date as completed. It returns the number of updated rentals.
func (r *Rentals) CompleteFinished(ctx context.Context, today time.Time) (int64, error) {
	res, err := r.db.Exec(ctx, `
UPDATE rentals
SET status = $1, updated_at = NOW()
WHERE status IN ($2, $3) AND end_date < $4::date`,
		booking.StatusCompleted, booking.StatusPending, booking.StatusConfirmed, today.Format(booking.DateLayout))
	if err != nil {
		return 0, errors.Wrap(err, "failed to complete finished rentals")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count completed rentals")
	}
	return n, nil
}
