// Package kv provides the durable key-value storage the attendance store keeps
// its JSON documents in. Values are opaque bytes; callers own the encoding.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been written or was deleted.
var ErrNotFound = errors.New("key not found")

// Storage is implemented by every backend (file, redis, memory).
// A Set either replaces the whole value or leaves the previous one untouched.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte) error
	Delete(ctx context.Context, key string) error
}
