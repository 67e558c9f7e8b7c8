package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/bikerental/booking"
	"github.com/pure-golang/bikerental/dispatch"
	"github.com/pure-golang/bikerental/kv"
	"github.com/pure-golang/bikerental/logger"
	"github.com/pure-golang/bikerental/mail"
	"github.com/pure-golang/bikerental/mailer"
	"github.com/pure-golang/bikerental/notifier"
	"github.com/pure-golang/bikerental/render"
	"github.com/pure-golang/bikerental/retry"
	"github.com/pure-golang/bikerental/storage/postgres"
)

func init() {
	logger.InitDefault(logger.Config{
		Provider: logger.ProviderNoop,
		Level:    logger.INFO,
	})
}

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

type memRentals struct {
	mx      sync.Mutex
	rentals []postgres.Rental
	err     error
}

func (m *memRentals) Create(_ context.Context, rec booking.Record) (postgres.Rental, error) {
	m.mx.Lock()
	defer m.mx.Unlock()

	if m.err != nil {
		return postgres.Rental{}, m.err
	}
	rec.CreatedAt = fixedNow
	r := postgres.Rental{ID: int64(len(m.rentals) + 1), Record: rec}
	m.rentals = append(m.rentals, r)
	return r, nil
}

func (m *memRentals) List(context.Context) ([]postgres.Rental, error) {
	m.mx.Lock()
	defer m.mx.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	out := make([]postgres.Rental, 0, len(m.rentals))
	for i := len(m.rentals) - 1; i >= 0; i-- {
		out = append(out, m.rentals[i])
	}
	return out, nil
}

func (m *memRentals) GetByRentalID(_ context.Context, rentalID string) (postgres.Rental, error) {
	m.mx.Lock()
	defer m.mx.Unlock()

	if m.err != nil {
		return postgres.Rental{}, m.err
	}
	for _, r := range m.rentals {
		if r.RentalID == rentalID {
			return r, nil
		}
	}
	return postgres.Rental{}, postgres.ErrNotFound
}

func (m *memRentals) count() int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return len(m.rentals)
}

type recordingDispatcher struct {
	mx   sync.Mutex
	jobs []dispatch.Job
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job dispatch.Job) error {
	d.mx.Lock()
	defer d.mx.Unlock()

	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *recordingDispatcher) Close(context.Context) error { return nil }

func (d *recordingDispatcher) all() []dispatch.Job {
	d.mx.Lock()
	defer d.mx.Unlock()
	return append([]dispatch.Job(nil), d.jobs...)
}

type fakeSender struct {
	mx    sync.Mutex
	sent  []mail.Email
	err   error
	calls int
}

func (s *fakeSender) Send(_ context.Context, email mail.Email) (string, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.calls++
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, email)
	return "<msg-1@bikerental.com>", nil
}

func (s *fakeSender) Close() error { return nil }

// memStore is an in-memory kv.Store without expiry.
type memStore struct {
	mx   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = value
	return true, nil
}

func (s *memStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	v, ok := s.data[key]
	if !ok {
		return "", kv.ErrKeyNotFound
	}
	return v, nil
}

func (s *memStore) Delete(_ context.Context, keys ...string) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *memStore) Ping(context.Context) error { return nil }
func (s *memStore) Close() error               { return nil }

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type testEnv struct {
	api        *API
	handler    http.Handler
	rentals    *memRentals
	dispatcher *recordingDispatcher
	sender     *fakeSender
}

func newTestEnv(t *testing.T, cfg Config, opts ...func(*Options)) *testEnv {
	t.Helper()

	env := &testEnv{
		rentals:    &memRentals{},
		dispatcher: &recordingDispatcher{},
		sender:     &fakeSender{},
	}

	m := mailer.New(env.sender, mailer.WithPolicy(retry.NewExponential(0, retry.DefaultMaxAttempts)))
	r := render.New(render.Branding{CompanyName: "Bike Rental"}, render.WithClock(func() time.Time { return fixedNow }))

	o := Options{
		Rentals:    env.rentals,
		Notifier:   notifier.New(m, r, notifier.WithAdmin("admin@bikerental.com")),
		Dispatcher: env.dispatcher,
		Port:       3002,
		Now:        func() time.Time { return fixedNow },
	}
	for _, fn := range opts {
		fn(&o)
	}

	env.api = New(cfg, o)
	env.handler = env.api.Routes()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

type decoded struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Data      json.RawMessage   `json:"data"`
	Errors    map[string]string `json:"errors"`
	MessageID string            `json:"messageId"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) decoded {
	t.Helper()

	var d decoded
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d), rec.Body.String())
	return d
}

func validSubmission() map[string]any {
	return map[string]any{
		"bike": map[string]any{"title": "Mountain Explorer", "price": "49"},
		"customer": map[string]any{
			"firstName": "Jane",
			"lastName":  "Doe",
			"email":     " jane@example.com ",
			"phone":     "98765 43210",
			"age":       30,
			"pan":       "abcde1234f",
		},
		"rental": map[string]any{
			"startDate": "2024-06-10",
			"endDate":   "2024-06-15",
			"purpose":   "touring",
		},
		"additional": map[string]any{"emergencyContact": "John Doe"},
	}
}

func TestSubmitRental(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodPost, "/api/rentals", validSubmission())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, "Rental application submitted successfully", body.Message)

	var data submitResponse
	require.NoError(t, json.Unmarshal(body.Data, &data))
	assert.True(t, strings.HasPrefix(data.RentalID, "BR-"), data.RentalID)
	assert.Equal(t, int64(1), data.DatabaseID)
	assert.Equal(t, 5, data.TotalDays)
	assert.InDelta(t, 245, data.TotalPrice, 0.001)
	assert.Equal(t, booking.StatusPending, data.Status)

	jobs := env.dispatcher.all()
	require.Len(t, jobs, 1)
	assert.Equal(t, data.RentalID, jobs[0].Record.RentalID)
	assert.Equal(t, "jane@example.com", jobs[0].Record.Customer.Email)
	assert.Equal(t, "ABCDE1234F", jobs[0].Record.Customer.Documents.PAN)
}

func TestSubmitRental_ValidationError(t *testing.T) {
	env := newTestEnv(t, Config{})

	sub := validSubmission()
	sub["customer"].(map[string]any)["email"] = "not-an-email"
	sub["rental"].(map[string]any)["endDate"] = "2024-06-01"

	rec := env.do(t, http.MethodPost, "/api/rentals", sub)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode(t, rec)
	assert.False(t, body.Success)
	assert.Contains(t, body.Errors, "customer.email")
	assert.Contains(t, body.Errors, "rental.endDate")
	assert.Zero(t, env.rentals.count())
	assert.Empty(t, env.dispatcher.all())
}

func TestSubmitRental_PriceTooLarge(t *testing.T) {
	for name, price := range map[string]string{
		"daily rate": "1e9",
		"total":      "20000000",
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, Config{})

			sub := validSubmission()
			sub["bike"].(map[string]any)["price"] = price

			rec := env.do(t, http.MethodPost, "/api/rentals", sub)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			body := decode(t, rec)
			assert.Contains(t, body.Errors, "bike.price")
			assert.Zero(t, env.rentals.count())
		})
	}
}

func TestSubmitRental_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodPost, "/api/rentals", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON payload", decode(t, rec).Message)
}

func TestSubmitRental_TooLarge(t *testing.T) {
	env := newTestEnv(t, Config{MaxBodyBytes: 16})

	rec := env.do(t, http.MethodPost, "/api/rentals", validSubmission())
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSubmitRental_StoreFailure(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.rentals.err = errors.New("connection refused")

	rec := env.do(t, http.MethodPost, "/api/rentals", validSubmission())
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "Internal server error occurred", body.Message)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Empty(t, env.dispatcher.all())
}

func TestSubmitRental_DispatchFailureStillAccepted(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.dispatcher.err = dispatch.ErrClosed

	rec := env.do(t, http.MethodPost, "/api/rentals", validSubmission())
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, env.rentals.count())
}

func TestSubmitRental_Idempotency(t *testing.T) {
	store := newMemStore()
	env := newTestEnv(t, Config{IdempotencyTTL: time.Hour}, func(o *Options) {
		o.Idempotency = store
	})

	first := env.do(t, http.MethodPost, "/api/rentals", validSubmission(), IdempotencyHeader, "key-1")
	require.Equal(t, http.StatusCreated, first.Code)

	second := env.do(t, http.MethodPost, "/api/rentals", validSubmission(), IdempotencyHeader, "key-1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(ReplayedHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	assert.Equal(t, 1, env.rentals.count())
	assert.Len(t, env.dispatcher.all(), 1)

	third := env.do(t, http.MethodPost, "/api/rentals", validSubmission(), IdempotencyHeader, "key-2")
	require.Equal(t, http.StatusCreated, third.Code)
	assert.Empty(t, third.Header().Get(ReplayedHeader))
	assert.Equal(t, 2, env.rentals.count())
}

func TestSubmitRental_IdempotencyReleasedOnFailure(t *testing.T) {
	store := newMemStore()
	env := newTestEnv(t, Config{IdempotencyTTL: time.Hour}, func(o *Options) {
		o.Idempotency = store
	})

	sub := validSubmission()
	sub["customer"].(map[string]any)["email"] = ""
	rec := env.do(t, http.MethodPost, "/api/rentals", sub, IdempotencyHeader, "retry-me")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/rentals", validSubmission(), IdempotencyHeader, "retry-me")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get(ReplayedHeader))
}

func TestSubmitRental_IdempotencyInProgress(t *testing.T) {
	store := newMemStore()
	store.data["idempotency:rentals:busy"] = pendingMarker
	env := newTestEnv(t, Config{IdempotencyTTL: time.Hour}, func(o *Options) {
		o.Idempotency = store
	})

	rec := env.do(t, http.MethodPost, "/api/rentals", validSubmission(), IdempotencyHeader, "busy")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, env.rentals.count())

	rec = env.do(t, http.MethodPost, "/api/rentals", validSubmission(), IdempotencyHeader, strings.Repeat("k", 300))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAndGetRentals(t *testing.T) {
	env := newTestEnv(t, Config{})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/rentals", validSubmission()).Code)
	}

	rec := env.do(t, http.MethodGet, "/api/rentals", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []postgres.Rental
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].ID, "newest first")

	rec = env.do(t, http.MethodGet, "/api/rentals/"+list[1].RentalID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var one postgres.Rental
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &one))
	assert.Equal(t, list[1].RentalID, one.RentalID)

	rec = env.do(t, http.MethodGet, "/api/rentals/BR-UNKNOWN", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Rental not found", decode(t, rec).Message)
}

func TestListRentals_Empty(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodGet, "/api/rentals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String())
}

func TestSendAgreement(t *testing.T) {
	env := newTestEnv(t, Config{})
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/rentals", validSubmission()).Code)
	rentalID := env.dispatcher.all()[0].Record.RentalID

	rec := env.do(t, http.MethodPost, "/api/rentals/"+rentalID+"/send-agreement", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "Agreement email sent", body.Message)
	assert.Equal(t, "<msg-1@bikerental.com>", body.MessageID)

	require.Len(t, env.sender.sent, 1)
	sent := env.sender.sent[0]
	assert.Equal(t, "jane@example.com", sent.To[0].Address)
	require.Len(t, sent.Cc, 1)
	assert.Equal(t, "admin@bikerental.com", sent.Cc[0].Address)
	assert.Contains(t, sent.Subject, rentalID)

	rec = env.do(t, http.MethodPost, "/api/rentals/BR-UNKNOWN/send-agreement", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendAgreement_TransportFailure(t *testing.T) {
	env := newTestEnv(t, Config{})
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/rentals", validSubmission()).Code)
	rentalID := env.dispatcher.all()[0].Record.RentalID
	env.sender.err = errors.New("421 service not available")

	rec := env.do(t, http.MethodPost, "/api/rentals/"+rentalID+"/send-agreement", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to send agreement email", decode(t, rec).Message)
	assert.Equal(t, retry.DefaultMaxAttempts, env.sender.calls)
}

func TestContact(t *testing.T) {
	t.Run("sent to admin", func(t *testing.T) {
		env := newTestEnv(t, Config{})

		rec := env.do(t, http.MethodPost, "/api/contact", map[string]string{
			"name":    "Sam",
			"email":   "sam@example.com",
			"subject": "Group booking",
			"message": "Do you rent 6 bikes?",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "Message sent to admin", decode(t, rec).Message)

		require.Len(t, env.sender.sent, 1)
		sent := env.sender.sent[0]
		assert.Equal(t, "admin@bikerental.com", sent.To[0].Address)
		assert.Equal(t, "sam@example.com", sent.ReplyTo.Address)
	})

	t.Run("missing fields", func(t *testing.T) {
		env := newTestEnv(t, Config{})

		rec := env.do(t, http.MethodPost, "/api/contact", map[string]string{"name": "Sam", "message": " "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Name, email, and message are required", decode(t, rec).Message)
		assert.Zero(t, env.sender.calls)
	})

	t.Run("mail disabled", func(t *testing.T) {
		env := newTestEnv(t, Config{}, func(o *Options) {
			o.Notifier = notifier.New(mailer.Disabled(), render.New(render.Branding{}), notifier.WithAdmin("admin@bikerental.com"))
		})

		rec := env.do(t, http.MethodPost, "/api/contact", map[string]string{
			"name": "Sam", "email": "sam@example.com", "message": "hi",
		})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "Email not configured", decode(t, rec).Message)
	})

	t.Run("admin missing", func(t *testing.T) {
		env := newTestEnv(t, Config{}, func(o *Options) {
			m := mailer.New(&fakeSender{})
			o.Notifier = notifier.New(m, render.New(render.Branding{}))
		})

		rec := env.do(t, http.MethodPost, "/api/contact", map[string]string{
			"name": "Sam", "email": "sam@example.com", "message": "hi",
		})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "Admin email not configured", decode(t, rec).Message)
	})
}

func TestTestEmail(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodGet, "/api/test-email", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "Test email sent", body.Message)
	assert.Equal(t, "<msg-1@bikerental.com>", body.MessageID)
	require.Len(t, env.sender.sent, 1)
	assert.Equal(t, "admin@bikerental.com", env.sender.sent[0].To[0].Address)
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		env := newTestEnv(t, Config{}, func(o *Options) { o.DB = fakePinger{} })

		rec := env.do(t, http.MethodGet, "/api/health", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var res healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, "healthy", res.Status)
		assert.Equal(t, "PostgreSQL", res.Database)
		assert.Equal(t, 3002, res.Port)
		assert.Equal(t, "enabled", res.Mail)
		assert.Equal(t, "2024-06-01T10:00:00Z", res.Timestamp)
	})

	t.Run("database down", func(t *testing.T) {
		env := newTestEnv(t, Config{}, func(o *Options) { o.DB = fakePinger{err: errors.New("dial tcp: refused")} })

		rec := env.do(t, http.MethodGet, "/api/health", nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
	})
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decode(t, rec).Success)

	rec = env.do(t, http.MethodDelete, "/api/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
