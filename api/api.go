// Package api is the HTTP interface of the booking backend.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pure-golang/bikerental/booking"
	"github.com/pure-golang/bikerental/dispatch"
	"github.com/pure-golang/bikerental/httpserver/middleware"
	"github.com/pure-golang/bikerental/kv"
	"github.com/pure-golang/bikerental/kv/noop"
	"github.com/pure-golang/bikerental/notifier"
	"github.com/pure-golang/bikerental/storage/postgres"
)

const EnvProduction = "production"

type Config struct {
	Env            string        `envconfig:"APP_ENV" default:"development"`
	AllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS"`
	AdminJWTSecret string        `envconfig:"ADMIN_JWT_SECRET"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	MaxBodyBytes   int64         `envconfig:"API_MAX_BODY_BYTES" default:"10485760"` // 10MB
}

// RentalStore persists submitted rentals.
type RentalStore interface {
	Create(ctx context.Context, rec booking.Record) (postgres.Rental, error)
	List(ctx context.Context) ([]postgres.Rental, error)
	GetByRentalID(ctx context.Context, rentalID string) (postgres.Rental, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Options are the collaborators of the API. Rentals, Notifier and Dispatcher are required.
type Options struct {
	Rentals    RentalStore
	Notifier   *notifier.Notifier
	Dispatcher dispatch.Dispatcher
	// Idempotency remembers Idempotency-Key responses. Nil disables it.
	Idempotency kv.Store
	// DB is reported by the health check.
	DB Pinger
	// Port is reported by the health check.
	Port int
	Now  func() time.Time
}

type API struct {
	cfg       Config
	opts      Options
	validator *booking.Validator
}

func New(cfg Config, opts Options) *API {
	if opts.Idempotency == nil {
		opts.Idempotency = noop.NewStore()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &API{
		cfg:       cfg,
		opts:      opts,
		validator: booking.NewValidator(),
	}
}

// Routes returns the HTTP handler with every route and middleware mounted.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Monitoring, middleware.Recovery, a.cors())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", a.health)
		r.Post("/rentals", a.submitRental)
		r.Post("/contact", a.contact)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAdmin)
			r.Get("/rentals", a.listRentals)
			r.Get("/rentals/{rentalID}", a.getRental)
			r.Post("/rentals/{rentalID}/send-agreement", a.sendAgreement)
			r.Get("/test-email", a.testEmail)
		})
	})

	return r
}
