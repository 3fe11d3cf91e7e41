// Package store persists the dashboard state as JSON values under fixed keys.
// Backends are interchangeable: in-process memory, Redis and Postgres.
package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// KV is the key-value contract every backend satisfies.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
