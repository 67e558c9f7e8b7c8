// Package postgres stores rentals and email logs in PostgreSQL.
package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// Connection wraps sqlx.DB with per-query timeouts and tracing.
type Connection struct {
	*sqlx.DB
	cfg Config
}

// Connect opens the pool, checks it and applies migrations when cfg.Migrate is set.
func Connect(ctx context.Context, cfg Config) (*Connection, error) {
	ctx, span := tracer.Start(ctx, "postgres.Connect")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.host", cfg.Host),
		attribute.Int("db.port", cfg.Port),
		attribute.String("db.name", cfg.Database),
		attribute.String("db.user", cfg.User),
	)

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to connect to PostgreSQL")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	conn := &Connection{DB: db, cfg: cfg}
	if cfg.Migrate {
		if err := Migrate(ctx, db.DB); err != nil {
			span.RecordError(err)
			_ = db.Close()
			return nil, err
		}
	}
	return conn, nil
}

// Ping reports whether the database answers.
func (c *Connection) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	return errors.Wrap(c.DB.PingContext(ctx), "failed to ping PostgreSQL")
}

func (c *Connection) Close() error {
	if err := c.DB.Close(); err != nil {
		return errors.Wrap(err, "failed to close database connection")
	}
	return nil
}
