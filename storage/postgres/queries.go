package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// Get runs query and scans one row into dst. sql.ErrNoRows is returned unwrapped.
func (c *Connection) Get(ctx context.Context, dst any, query string, args ...any) error {
	ctx, cancel := withTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	ctx, span := startSpan(ctx, "Get", query)
	defer span.End()

	if err := c.DB.GetContext(ctx, dst, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		span.RecordError(err)
		return errors.Wrap(err, "failed to execute get query")
	}
	return nil
}

// Select runs query and scans all rows into dst.
func (c *Connection) Select(ctx context.Context, dst any, query string, args ...any) error {
	ctx, cancel := withTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	ctx, span := startSpan(ctx, "Select", query)
	defer span.End()

	if err := c.DB.SelectContext(ctx, dst, query, args...); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to execute select query")
	}
	return nil
}

// Exec runs query without returning rows.
func (c *Connection) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	ctx, span := startSpan(ctx, "Exec", query)
	defer span.End()

	res, err := c.DB.ExecContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to execute query")
	}
	return res, nil
}

// NamedGet binds arg into a :name query and scans one row into dst.
func (c *Connection) NamedGet(ctx context.Context, dst any, query string, arg any) error {
	bound, args, err := c.DB.BindNamed(query, arg)
	if err != nil {
		return errors.Wrap(err, "failed to bind named query")
	}
	return c.Get(ctx, dst, bound, args...)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}
