package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by KV.Get when the key has never been written or
// was deleted.
var ErrNotFound = errors.New("store: key not found")

// KV defines the key-value operations the gallery persists through.
// A value is always replaced as a whole.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	Close() error
}

// Watcher is implemented by backends that can report changes made to a key
// by another process. fn runs on the watcher goroutine.
type Watcher interface {
	Watch(ctx context.Context, key string, fn func()) error
}
