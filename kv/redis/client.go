package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	rclient "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/codes"

	"github.com/pure-golang/bikerental/kv"
)

var _ kv.Store = (*Client)(nil)

// Client implements kv.Store on top of go-redis.
type Client struct {
	rdb *rclient.Client
	cfg Config
	log *slog.Logger
}

// Connect creates the client and pings the server.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	log := slog.Default().WithGroup("redis")
	log.Debug("connecting to redis", "addr", cfg.Addr)

	client := &Client{
		rdb: rclient.NewClient(&rclient.Options{
			Addr:            cfg.Addr,
			Password:        cfg.Password,
			DB:              cfg.DB,
			MaxRetries:      cfg.MaxRetries,
			MinRetryBackoff: cfg.MinRetryBackoff,
			MaxRetryBackoff: cfg.MaxRetryBackoff,
			DialTimeout:     cfg.DialTimeout,
			ReadTimeout:     cfg.ReadTimeout,
			WriteTimeout:    cfg.WriteTimeout,
			PoolSize:        cfg.PoolSize,
		}),
		cfg: cfg,
		log: log,
	}

	if err := client.Ping(ctx); err != nil {
		_ = client.rdb.Close()
		return nil, err
	}

	log.Info("connected to redis", "addr", cfg.Addr)
	return client, nil
}

func (c *Client) key(k string) string {
	return c.cfg.KeyPrefix + k
}

// Close closes the connection pool. Closing twice is a no-op.
func (c *Client) Close() error {
	_, span := startSpan(context.Background(), "Close", "", c.cfg.DB)
	defer span.End()

	if c.rdb == nil {
		return nil
	}

	err := c.rdb.Close()
	c.rdb = nil
	if err != nil && !errors.Is(err, rclient.ErrClosed) {
		recordError(span, err)
		return errors.Wrap(err, "failed to close redis connection")
	}

	c.log.Debug("redis connection closed")
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, span := startSpan(ctx, "Ping", "", c.cfg.DB)
	defer span.End()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		recordError(span, err)
		return errors.Wrap(err, "failed to ping redis")
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Get returns kv.ErrKeyNotFound for a missing key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	ctx, span := startSpan(ctx, "Get", key, c.cfg.DB)
	defer span.End()

	val, err := c.rdb.Get(ctx, c.key(key)).Result()
	if errors.Is(err, rclient.Nil) {
		recordError(span, kv.ErrKeyNotFound)
		return "", kv.ErrKeyNotFound
	}
	if err != nil {
		recordError(span, err)
		return "", errors.Wrapf(err, "failed to get key %q", key)
	}

	span.SetStatus(codes.Ok, "")
	return val, nil
}

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, span := startSpan(ctx, "Set", key, c.cfg.DB)
	defer span.End()

	if err := c.rdb.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		recordError(span, err)
		return errors.Wrapf(err, "failed to set key %q", key)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, span := startSpan(ctx, "SetNX", key, c.cfg.DB)
	defer span.End()

	ok, err := c.rdb.SetNX(ctx, c.key(key), value, ttl).Result()
	if err != nil {
		recordError(span, err)
		return false, errors.Wrapf(err, "failed to set key %q", key)
	}

	span.SetStatus(codes.Ok, "")
	return ok, nil
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	ctx, span := startSpan(ctx, "Delete", "", c.cfg.DB)
	defer span.End()

	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.key(k)
	}
	if err := c.rdb.Del(ctx, prefixed...).Err(); err != nil {
		recordError(span, err)
		return errors.Wrap(err, "failed to delete keys")
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// TTL returns the remaining lifetime of key.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, span := startSpan(ctx, "TTL", key, c.cfg.DB)
	defer span.End()

	ttl, err := c.rdb.TTL(ctx, c.key(key)).Result()
	if err != nil {
		recordError(span, err)
		return 0, errors.Wrapf(err, "failed to get TTL for key %q", key)
	}

	span.SetStatus(codes.Ok, "")
	return ttl, nil
}
