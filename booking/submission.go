package booking

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Submission is the rental form payload.
type Submission struct {
	Bike       BikeInput       `json:"bike"`
	Customer   CustomerInput   `json:"customer"`
	Rental     RentalInput     `json:"rental"`
	Additional AdditionalInput `json:"additional"`
}

type BikeInput struct {
	Title string `json:"title" validate:"required,max=200"`
	Price Number `json:"price" validate:"gte=0,lte=99999999.99"`
	Image string `json:"image" validate:"max=500"`
}

type CustomerInput struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,phone"`
	Age       Number `json:"age" validate:"omitempty,gte=18,lte=120"`
	Address   string `json:"address" validate:"max=500"`
	Aadhar    string `json:"aadhar" validate:"omitempty,numeric,len=12"`
	PAN       string `json:"pan" validate:"omitempty,pan"`
	License   string `json:"license" validate:"max=50"`
}

type RentalInput struct {
	StartDate  string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate    string `json:"endDate" validate:"required,datetime=2006-01-02"`
	Purpose    string `json:"purpose" validate:"max=200"`
	Experience string `json:"experience" validate:"max=100"`
}

type AdditionalInput struct {
	EmergencyContact string `json:"emergencyContact" validate:"max=100"`
	EmergencyPhone   string `json:"emergencyPhone" validate:"omitempty,phone"`
	SpecialRequests  string `json:"specialRequests" validate:"max=1000"`
}

// Number accepts both JSON numbers and numeric strings.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return errors.Errorf("invalid number %q", s)
		}
		*n = Number(f)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.Errorf("invalid number %s", data)
	}
	*n = Number(f)
	return nil
}

// ValidationError maps payload fields (dotted json paths) to messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "invalid submission: " + strings.Join(parts, "; ")
}

var (
	panRegex   = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	phoneStrip = regexp.MustCompile(`[\s\-().]`)
	digits10   = regexp.MustCompile(`^[0-9]{10}$`)
)

// Validator checks submissions.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("pan", func(fl validator.FieldLevel) bool {
		return panRegex.MatchString(strings.ToUpper(fl.Field().String()))
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return digits10.MatchString(phoneStrip.ReplaceAllString(fl.Field().String(), ""))
	})

	return &Validator{validate: v}
}

// Validate checks field rules, that the rental does not end before it starts
// and that the total price fits MaxAmount.
func (v *Validator) Validate(s Submission) error {
	s = s.normalize()
	fields := make(map[string]string)

	if err := v.validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return errors.Wrap(err, "failed to validate submission")
		}
		for _, fe := range verrs {
			fields[fieldPath(fe)] = message(fe)
		}
	}

	_, badStart := fields["rental.startDate"]
	_, badEnd := fields["rental.endDate"]
	if !badStart && !badEnd {
		start, _ := time.Parse(DateLayout, s.Rental.StartDate)
		end, _ := time.Parse(DateLayout, s.Rental.EndDate)
		if end.Before(start) {
			fields["rental.endDate"] = "must not be before the start date"
		} else if _, badPrice := fields["bike.price"]; !badPrice {
			if _, total := Quote(start, end, float64(s.Bike.Price)); total > MaxAmount {
				fields["bike.price"] = fmt.Sprintf("total price must not exceed %.2f", MaxAmount)
			}
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Record builds a pending Record from a validated submission.
func (s Submission) Record(rentalID string, now time.Time) (Record, error) {
	s = s.normalize()
	start, err := time.Parse(DateLayout, s.Rental.StartDate)
	if err != nil {
		return Record{}, errors.Wrap(err, "failed to parse start date")
	}
	end, err := time.Parse(DateLayout, s.Rental.EndDate)
	if err != nil {
		return Record{}, errors.Wrap(err, "failed to parse end date")
	}

	price := float64(s.Bike.Price)
	days, total := Quote(start, end, price)

	return Record{
		RentalID: rentalID,
		Customer: Customer{
			FirstName: s.Customer.FirstName,
			LastName:  s.Customer.LastName,
			Email:     s.Customer.Email,
			Phone:     s.Customer.Phone,
			Age:       int(s.Customer.Age),
			Address:   s.Customer.Address,
			Documents: Documents{
				Aadhar:  s.Customer.Aadhar,
				PAN:     s.Customer.PAN,
				License: s.Customer.License,
			},
			EmergencyContact: EmergencyContact{
				Name:  s.Additional.EmergencyContact,
				Phone: s.Additional.EmergencyPhone,
			},
		},
		Bike: Bike{
			Title: s.Bike.Title,
			Price: price,
			Image: s.Bike.Image,
		},
		Period: Period{
			StartDate:       start,
			EndDate:         end,
			Purpose:         s.Rental.Purpose,
			Experience:      s.Rental.Experience,
			SpecialRequests: s.Additional.SpecialRequests,
		},
		TotalDays:  days,
		TotalPrice: total,
		Status:     StatusPending,
		CreatedAt:  now,
	}, nil
}

func (s Submission) normalize() Submission {
	trim := func(fields ...*string) {
		for _, f := range fields {
			*f = strings.TrimSpace(*f)
		}
	}
	trim(&s.Bike.Title,
		&s.Customer.FirstName, &s.Customer.LastName, &s.Customer.Email, &s.Customer.Phone,
		&s.Customer.Address, &s.Customer.Aadhar, &s.Customer.PAN, &s.Customer.License,
		&s.Rental.StartDate, &s.Rental.EndDate,
		&s.Additional.EmergencyContact, &s.Additional.EmergencyPhone)
	s.Customer.PAN = strings.ToUpper(s.Customer.PAN)
	return s
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "phone":
		return "must contain exactly 10 digits"
	case "pan":
		return "must be a valid PAN (e.g. ABCDE1234F)"
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "numeric":
		return "must contain only digits"
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s characters", fe.Param())
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}
