package mailer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter = otel.GetMeterProvider().Meter("github.com/pure-golang/bikerental/mailer")
	// nolint:errcheck // Sync OpenTelemetry instruments never return errors
	attemptsCount, _ = meter.Int64Counter("email.attempts")
	sentCount, _     = meter.Int64Counter("email.sent")
	failedCount, _   = meter.Int64Counter("email.failed")
)

func roleAttr(role Role) metric.AddOption {
	return metric.WithAttributes(attribute.String("role", string(role)))
}

func countAttempt(ctx context.Context, role Role) {
	attemptsCount.Add(ctx, 1, roleAttr(role))
}

func countSent(ctx context.Context, role Role) {
	sentCount.Add(ctx, 1, roleAttr(role))
}

func countFailed(ctx context.Context, role Role) {
	failedCount.Add(ctx, 1, roleAttr(role))
}
