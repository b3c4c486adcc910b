package collections

import (
	"context"
	"errors"
	"time"
)

// ErrWatchUnsupported is returned by Mirror.Watch when no live subscription is available.
var ErrWatchUnsupported = errors.New("collections: live subscription not supported")

// Backend is the storage strategy behind a Mirror.
type Backend[T any] interface {
	List(ctx context.Context) ([]T, error)
	// Create stores item and returns it with its assigned identifier.
	Create(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, id string, patch Patch) error
	Delete(ctx context.Context, id string) error
}

// Watcher is implemented by backends that push full-collection snapshots. Watch blocks until ctx
// is cancelled or the subscription fails.
type Watcher[T any] interface {
	Watch(ctx context.Context, fn func([]T)) error
}

// LocalBackend adapts a LocalStore to the Backend interface.
func LocalBackend[T any](store *LocalStore[T]) Backend[T] {
	return localBackend[T]{store: store}
}

type localBackend[T any] struct {
	store *LocalStore[T]
}

func (b localBackend[T]) List(context.Context) ([]T, error) {
	res := b.store.Load()
	switch {
	case res.Usable(), res.Status == StatusAbsent:
		return nonNil(res.Items), nil
	case res.Status == StatusUnreadable:
		return nil, res.Err
	default:
		return []T{}, nil
	}
}

func (b localBackend[T]) Create(_ context.Context, item T) (T, error) {
	return b.store.Add(item)
}

func (b localBackend[T]) Update(_ context.Context, id string, patch Patch) error {
	return b.store.Update(id, patch)
}

func (b localBackend[T]) Delete(_ context.Context, id string) error {
	return b.store.Remove(id)
}

// Op names a collection mutation.
type Op string

const (
	OpAdd     Op = "add"
	OpUpdate  Op = "update"
	OpRemove  Op = "remove"
	OpRefresh Op = "refresh"
)

// ChangeEvent describes a committed mutation.
type ChangeEvent struct {
	Collection string    `json:"collection"`
	Op         Op        `json:"op"`
	ID         string    `json:"id,omitempty"`
	State      State     `json:"state"`
	OccurredAt time.Time `json:"occurredAt"`
}

// ChangeNotifier receives committed mutations. Failures are logged and never undo the mutation.
type ChangeNotifier interface {
	NotifyChange(ctx context.Context, event ChangeEvent) error
}

// ChangeNotifierFunc adapts a function to ChangeNotifier.
type ChangeNotifierFunc func(context.Context, ChangeEvent) error

// NotifyChange calls f.
func (f ChangeNotifierFunc) NotifyChange(ctx context.Context, event ChangeEvent) error {
	return f(ctx, event)
}

type notFoundError interface {
	IsNotFound() bool
}

func isNotFound(err error) bool {
	var nf notFoundError
	return errors.As(err, &nf) && nf.IsNotFound()
}
