// Package render builds booking emails from embedded html/template files.
package render

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/bikerental/booking"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Branding is the company information printed in every email.
type Branding struct {
	CompanyName    string `envconfig:"COMPANY_NAME" default:"Bike Rental"`
	CompanyWebsite string `envconfig:"COMPANY_WEBSITE" default:"https://bikerental.com"`
	SupportEmail   string `envconfig:"SUPPORT_EMAIL"`
	SupportPhone   string `envconfig:"SUPPORT_PHONE" default:"+1-800-BIKE-RENT"`
}

// Content is a rendered email.
type Content struct {
	Subject string
	HTML    string
	Text    string
}

// ContactMessage is a visitor message from the contact form.
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type Option func(*Renderer)

// WithClock sets the time source used for the copyright year.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		r.now = now
	}
}

// Renderer is safe for concurrent use.
type Renderer struct {
	brand Branding
	tmpl  *template.Template
	now   func() time.Time
}

// New parses the embedded templates. It panics on a malformed template,
// which can only happen with a broken build.
func New(brand Branding, opts ...Option) *Renderer {
	r := &Renderer{
		brand: brand,
		tmpl:  template.Must(template.New("").Funcs(funcs).ParseFS(templatesFS, "templates/*.html")),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Branding returns the company information the renderer was built with.
func (r *Renderer) Branding() Branding {
	return r.brand
}

type view struct {
	Brand      Branding
	Record     booking.Record
	Contact    ContactMessage
	Year       int
	SupportTel string
}

// CustomerConfirmation renders the confirmation sent to the customer.
func (r *Renderer) CustomerConfirmation(rec booking.Record) (Content, error) {
	return r.render("customer_confirmation.html",
		"Booking Confirmation - "+rec.RentalID+" | "+r.brand.CompanyName,
		view{Record: rec})
}

// OwnerNotification renders the new booking alert sent to the owner.
func (r *Renderer) OwnerNotification(rec booking.Record) (Content, error) {
	return r.render("owner_notification.html",
		"New Booking Request - "+rec.RentalID+" | Action Required",
		view{Record: rec})
}

// Agreement renders the rental agreement sent on admin request.
func (r *Renderer) Agreement(rec booking.Record) (Content, error) {
	return r.render("agreement.html", "Rental Agreement - "+rec.RentalID, view{Record: rec})
}

// Contact renders a contact form message addressed to the admin.
func (r *Renderer) Contact(msg ContactMessage) (Content, error) {
	subject := "New Contact Message"
	if msg.Subject != "" {
		subject = "Contact: " + msg.Subject
	}
	return r.render("contact.html", subject, view{Contact: msg})
}

// Test renders the SMTP test message.
func (r *Renderer) Test() (Content, error) {
	return r.render("test.html", "SMTP Test - "+r.brand.CompanyName, view{})
}

func (r *Renderer) render(name, subject string, v view) (Content, error) {
	v.Brand = r.brand
	v.Year = r.now().Year()
	v.SupportTel = stripSpaces(r.brand.SupportPhone)

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, v); err != nil {
		return Content{}, errors.Wrapf(err, "failed to render %s", name)
	}

	html := strings.TrimSpace(buf.String())
	return Content{
		Subject: subject,
		HTML:    html,
		Text:    HTMLToText(html),
	}, nil
}
