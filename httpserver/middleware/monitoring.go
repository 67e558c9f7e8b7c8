// Package middleware holds the HTTP middleware shared by every route.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/bikerental/logger"
)

const TraceIDHeader = "X-Trace-Id"

var (
	meter = otel.GetMeterProvider().Meter("github.com/pure-golang/bikerental/httpserver/middleware")
	// nolint:errcheck // Sync OpenTelemetry instruments never return errors
	requestsCount, _       = meter.Int64Counter("http.request_count")
	requestTimeHist, _     = meter.Int64Histogram("http.request_time", metric.WithUnit("ms"))
	requestBodyLenHist, _  = meter.Int64Histogram("http.request_body_len", metric.WithUnit("KB"))
	responseBodyLenHist, _ = meter.Int64Histogram("http.response_body_len", metric.WithUnit("KB"))
	tracer                 = otel.Tracer("github.com/pure-golang/bikerental/httpserver/middleware")
)

// Monitoring traces requests, records HTTP metrics and puts a request logger
// into the context. Spans and metrics are named by the chi route pattern when
// the middleware runs inside a chi router. Bodies are not recorded: rental
// payloads carry identity documents.
func Monitoring(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqTime := time.Now()
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		log := slog.Default().With("method", r.Method, "path", r.URL.Path)
		if span.SpanContext().HasTraceID() {
			log = log.With("trace_id", traceID)
		}
		w.Header().Set(TraceIDHeader, traceID)

		srw := newStatefulRespWriter(w)
		next.ServeHTTP(srw, r.WithContext(logger.NewContext(ctx, log)))

		route := routePattern(r)
		span.SetName(r.Method + " " + route)

		attrs := semconv.NetAttributesFromHTTPRequest("tcp", r)
		attrs = append(attrs, semconv.HTTPServerAttributesFromHTTPRequest("webserver", route, r)...)
		attrs = append(attrs,
			attribute.String("http.request.header.User-Agent", r.UserAgent()),
			attribute.Int("http.response.status", srw.status),
		)
		span.SetAttributes(attrs...)

		metricLabels := []attribute.KeyValue{
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
		}
		requestsCount.Add(ctx, 1, metric.WithAttributes(append(metricLabels,
			attribute.Int("http.response.code", srw.status))...))
		requestTimeHist.Record(ctx, time.Since(reqTime).Milliseconds(), metric.WithAttributes(metricLabels...))
		if r.ContentLength > 0 {
			requestBodyLenHist.Record(ctx, r.ContentLength/1024, metric.WithAttributes(metricLabels...))
		}
		responseBodyLenHist.Record(ctx, srw.written/1024, metric.WithAttributes(metricLabels...))

		log.Debug("Request handled",
			"status", srw.status,
			"duration_ms", time.Since(reqTime).Milliseconds(),
			"origin", r.Header.Get("Origin"),
		)

		if srw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(srw.status))
			return
		}
		span.SetStatus(codes.Ok, "")
	})
}

// routePattern falls back to the raw path outside a chi router.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// statefulRespWriter keeps the sent status and the number of body bytes.
type statefulRespWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func newStatefulRespWriter(w http.ResponseWriter) *statefulRespWriter {
	return &statefulRespWriter{ResponseWriter: w}
}

func (w *statefulRespWriter) WriteHeader(status int) {
	if w.status != 0 {
		return
	}
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statefulRespWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

func (w *statefulRespWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statefulRespWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
