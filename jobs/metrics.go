package jobs

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.GetMeterProvider().Meter("github.com/pure-golang/bikerental/jobs")

// nolint:errcheck
var (
	runs, _             = meter.Int64Counter("jobs.runs", metric.WithDescription("Number of job runs"))
	failures, _         = meter.Int64Counter("jobs.failures", metric.WithDescription("Number of failed job runs"))
	completedRentals, _ = meter.Int64Counter("rentals.completed", metric.WithDescription("Number of rentals marked completed by the sweep"))
)
