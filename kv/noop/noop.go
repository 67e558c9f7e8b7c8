// Package noop provides a kv.Store that remembers nothing.
package noop

import (
	"context"
	"time"

	"github.com/pure-golang/bikerental/kv"
)

var _ kv.Store = (*Store)(nil)

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// SetNX always succeeds, so every key looks new.
func (s *Store) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return true, nil
}

func (s *Store) Set(context.Context, string, string, time.Duration) error {
	return nil
}

func (s *Store) Get(context.Context, string) (string, error) {
	return "", kv.ErrKeyNotFound
}

func (s *Store) Delete(context.Context, ...string) error {
	return nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}
