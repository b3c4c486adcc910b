package kvstore

import "errors"

// ErrClosed is returned by stores that have been closed.
var ErrClosed = errors.New("kvstore: store is closed")

// ErrEmptyKey is returned when an operation receives a blank key.
var ErrEmptyKey = errors.New("kvstore: key is required")

// Store persists opaque values under string keys. Implementations must be safe for concurrent use
// and provide read-after-write consistency for a single process.
type Store interface {
	// Get returns the stored value. The boolean reports whether the key exists.
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
	// Keys lists stored keys that start with prefix in lexical order.
	Keys(prefix string) ([]string, error)
	Close() error
}
