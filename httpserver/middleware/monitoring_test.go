package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/bikerental/logger"
)

func init() {
	logger.InitDefault(logger.Config{
		Provider: logger.ProviderNoop,
		Level:    logger.INFO,
	})
}

func TestMonitoring_PutsLoggerIntoContext(t *testing.T) {
	var buf bytes.Buffer
	handler := Monitoring(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusOK)
	}))

	// The request logger derives from the default logger.
	restore := swapDefault(&buf)
	defer restore()

	req := httptest.NewRequest(http.MethodGet, "/api/health?x=1", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(firstLine(buf.Bytes()), &line))
	assert.Equal(t, "inside", line["msg"])
	assert.Equal(t, "GET", line["method"])
	assert.Equal(t, "/api/health", line["path"])
}

func TestMonitoring_TraceIDHeader(t *testing.T) {
	handler := Monitoring(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

	// Without a tracer provider the trace id is all zeros, still 32 hex chars.
	assert.Len(t, rr.Header().Get(TraceIDHeader), 32)
}

func TestMonitoring_BodyPassesThrough(t *testing.T) {
	const reqBody = `{"bike":{"title":"Mountain Explorer"}}`
	const respBody = `{"success":true}`

	handler := Monitoring(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, reqBody, string(body))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(respBody))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/rentals", strings.NewReader(reqBody)))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, respBody, rr.Body.String())
}

func TestRoutePattern(t *testing.T) {
	var pattern string

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			pattern = routePattern(req)
		})
	})
	r.Get("/api/rentals/{rentalID}", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/rentals/BR-1", nil))
	assert.Equal(t, "/api/rentals/{rentalID}", pattern)

	assert.Equal(t, "/plain", routePattern(httptest.NewRequest(http.MethodGet, "/plain", nil)))
}

func TestStatefulRespWriter(t *testing.T) {
	t.Run("write defaults to 200", func(t *testing.T) {
		underlying := httptest.NewRecorder()
		srw := newStatefulRespWriter(underlying)

		n, err := srw.Write([]byte("test"))
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Equal(t, http.StatusOK, srw.status)
		assert.Equal(t, int64(4), srw.written)
	})

	t.Run("first status wins", func(t *testing.T) {
		underlying := httptest.NewRecorder()
		srw := newStatefulRespWriter(underlying)

		srw.WriteHeader(http.StatusCreated)
		srw.WriteHeader(http.StatusInternalServerError)
		assert.Equal(t, http.StatusCreated, srw.status)
		assert.Equal(t, http.StatusCreated, underlying.Code)
	})

	t.Run("counts every write", func(t *testing.T) {
		srw := newStatefulRespWriter(httptest.NewRecorder())
		_, _ = srw.Write([]byte("abc"))
		_, _ = srw.Write([]byte("de"))
		assert.Equal(t, int64(5), srw.written)
	})

	t.Run("unwrap", func(t *testing.T) {
		underlying := httptest.NewRecorder()
		assert.Same(t, underlying, newStatefulRespWriter(underlying).Unwrap())
	})
}
