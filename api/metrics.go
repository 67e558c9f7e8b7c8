package api

import "go.opentelemetry.io/otel"

var (
	meter = otel.GetMeterProvider().Meter("github.com/pure-golang/bikerental/api")
	// nolint:errcheck // Sync OpenTelemetry instruments never return errors
	rentalsSubmitted, _ = meter.Int64Counter("rentals.submitted")
)
