package booking

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPayload = `{
	"bike": {"title": "Mountain Explorer", "price": "35", "image": "/bikes/mtb.jpg"},
	"customer": {
		"firstName": "Jane", "lastName": "Doe", "email": " jane@example.com ",
		"phone": "98765 43210", "age": 28, "address": "12 Lake Road",
		"aadhar": "123412341234", "pan": "abcde1234f", "license": "DL-42"
	},
	"rental": {"startDate": "2024-08-01", "endDate": "2024-08-08", "purpose": "Touring", "experience": "intermediate"},
	"additional": {"emergencyContact": "John Doe", "emergencyPhone": "9876543211", "specialRequests": "Helmet size L"}
}`

func decode(t *testing.T, payload string) Submission {
	t.Helper()
	var s Submission
	require.NoError(t, json.Unmarshal([]byte(payload), &s))
	return s
}

func TestValidator_Valid(t *testing.T) {
	s := decode(t, validPayload)
	assert.NoError(t, NewValidator().Validate(s))
}

func TestValidator_Invalid(t *testing.T) {
	s := decode(t, `{
		"bike": {"title": "", "price": -1},
		"customer": {"firstName": "", "lastName": "Doe", "email": "not-an-email", "phone": "123", "age": 16, "aadhar": "12", "pan": "XYZ"},
		"rental": {"startDate": "2024/08/01", "endDate": ""},
		"additional": {"emergencyPhone": "12"}
	}`)

	err := NewValidator().Validate(s)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "is required", verr.Fields["bike.title"])
	assert.Equal(t, "must be at least 0", verr.Fields["bike.price"])
	assert.Equal(t, "is required", verr.Fields["customer.firstName"])
	assert.Equal(t, "must be a valid email address", verr.Fields["customer.email"])
	assert.Equal(t, "must contain exactly 10 digits", verr.Fields["customer.phone"])
	assert.Equal(t, "must be at least 18", verr.Fields["customer.age"])
	assert.Equal(t, "must be exactly 12 characters", verr.Fields["customer.aadhar"])
	assert.Equal(t, "must be a valid PAN (e.g. ABCDE1234F)", verr.Fields["customer.pan"])
	assert.Equal(t, "must be a date in YYYY-MM-DD format", verr.Fields["rental.startDate"])
	assert.Equal(t, "is required", verr.Fields["rental.endDate"])
	assert.Equal(t, "must contain exactly 10 digits", verr.Fields["additional.emergencyPhone"])
	assert.NotContains(t, verr.Fields, "customer.lastName")
	assert.Contains(t, err.Error(), "invalid submission: ")
}

func TestValidator_EndBeforeStart(t *testing.T) {
	s := decode(t, validPayload)
	s.Rental.StartDate = "2024-08-08"
	s.Rental.EndDate = "2024-08-01"

	err := NewValidator().Validate(s)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, map[string]string{"rental.endDate": "must not be before the start date"}, verr.Fields)
}

func TestValidator_PriceLimits(t *testing.T) {
	tests := []struct {
		name  string
		price Number
		want  string
	}{
		{"daily rate above column limit", 1e9, "must be at most 99999999.99"},
		{"total above column limit", 20_000_000, "total price must not exceed 99999999.99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := decode(t, validPayload)
			s.Bike.Price = tt.price

			err := NewValidator().Validate(s)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, map[string]string{"bike.price": tt.want}, verr.Fields)
		})
	}

	t.Run("total at the limit", func(t *testing.T) {
		s := decode(t, validPayload)
		s.Rental.EndDate = s.Rental.StartDate
		s.Bike.Price = MaxAmount
		assert.NoError(t, NewValidator().Validate(s))
	})
}

func TestValidator_SameDayAllowed(t *testing.T) {
	s := decode(t, validPayload)
	s.Rental.EndDate = s.Rental.StartDate
	assert.NoError(t, NewValidator().Validate(s))
}

func TestValidator_OptionalFieldsMayBeEmpty(t *testing.T) {
	s := decode(t, `{
		"bike": {"title": "City Cruiser", "price": 20},
		"customer": {"firstName": "Ann", "lastName": "Lee", "email": "ann@example.com", "phone": "9876543210"},
		"rental": {"startDate": "2024-08-01", "endDate": "2024-08-02"}
	}`)
	assert.NoError(t, NewValidator().Validate(s))
}

func TestSubmission_Record(t *testing.T) {
	s := decode(t, validPayload)
	now := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

	rec, err := s.Record("BR-TEST-00001", now)
	require.NoError(t, err)

	assert.Equal(t, "BR-TEST-00001", rec.RentalID)
	assert.Equal(t, "jane@example.com", rec.Customer.Email)
	assert.Equal(t, 28, rec.Customer.Age)
	assert.Equal(t, "ABCDE1234F", rec.Customer.Documents.PAN)
	assert.Equal(t, "John Doe", rec.Customer.EmergencyContact.Name)
	assert.Equal(t, 35.0, rec.Bike.Price)
	assert.Equal(t, "Helmet size L", rec.Period.SpecialRequests)
	assert.Equal(t, 7, rec.TotalDays)
	assert.InDelta(t, 245.0, rec.TotalPrice, 0.001)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, now, rec.CreatedAt)
}

func TestSubmission_Record_BadDate(t *testing.T) {
	s := decode(t, validPayload)
	s.Rental.StartDate = "soon"

	_, err := s.Record("BR-1", time.Now())
	assert.Error(t, err)
}
