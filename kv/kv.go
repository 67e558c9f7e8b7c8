// Package kv defines the key-value store used for request idempotency.
package kv

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrKeyNotFound is returned by Get for a missing or expired key.
var ErrKeyNotFound = errors.New("key not found")

type Provider string

const (
	ProviderRedis Provider = "redis"
	ProviderNoop  Provider = "noop" // remembers nothing
)

// Config selects the store implementation. Provider settings live with the provider.
type Config struct {
	Provider Provider `envconfig:"KV_PROVIDER" default:"noop"`
}

type Store interface {
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error

	Ping(ctx context.Context) error
	Close() error
}
