// Package booking holds the rental record that flows from submission to notification.
package booking

import (
	"strings"
	"time"
)

// DateLayout is the wire format of rental dates.
const DateLayout = "2006-01-02"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Record is an accepted rental submission.
type Record struct {
	RentalID   string    `json:"rentalId"`
	Customer   Customer  `json:"customer"`
	Bike       Bike      `json:"bike"`
	Period     Period    `json:"period"`
	TotalDays  int       `json:"totalDays"`
	TotalPrice float64   `json:"totalPrice"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Customer struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	// Age is 0 when not provided.
	Age     int    `json:"age,omitempty"`
	Address string `json:"address,omitempty"`

	Documents        Documents        `json:"documents"`
	EmergencyContact EmergencyContact `json:"emergencyContact"`
}

// FullName joins first and last name.
func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Documents are identity documents collected with the booking.
type Documents struct {
	Aadhar  string `json:"aadhar,omitempty"`
	PAN     string `json:"pan,omitempty"`
	License string `json:"license,omitempty"`
}

type EmergencyContact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type Bike struct {
	Title string `json:"title"`
	// Price is the daily rate.
	Price float64 `json:"price"`
	Image string  `json:"image,omitempty"`
}

type Period struct {
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
	Purpose         string    `json:"purpose,omitempty"`
	Experience      string    `json:"experience,omitempty"`
	SpecialRequests string    `json:"specialRequests,omitempty"`
}

// HasExtras reports whether any optional trip detail was given.
func (p Period) HasExtras() bool {
	return p.Purpose != "" || p.Experience != "" || p.SpecialRequests != ""
}
