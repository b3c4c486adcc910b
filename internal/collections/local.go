package collections

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/xtruel/roma-map-revamp/internal/platform/kvstore"
)

// IDGenerator returns a new unique, time-ordered record identifier.
type IDGenerator func() string

// NewULID generates identifiers from the current time.
func NewULID() string {
	return ulid.Make().String()
}

// LocalOption customises a LocalStore.
type LocalOption func(*localOptions)

type localOptions struct {
	ids IDGenerator
}

// WithIDGenerator overrides identifier assignment for records added without an id.
func WithIDGenerator(gen IDGenerator) LocalOption {
	return func(o *localOptions) {
		if gen != nil {
			o.ids = gen
		}
	}
}

// LocalStore persists one collection under a fixed key of a key-value store.
type LocalStore[T any] struct {
	kv     kvstore.Store
	key    string
	schema Schema[T]
	ids    IDGenerator

	mu sync.Mutex
}

// NewLocalStore binds schema to key within kv.
func NewLocalStore[T any](kv kvstore.Store, key string, schema Schema[T], opts ...LocalOption) (*LocalStore[T], error) {
	if kv == nil {
		return nil, errors.New("collections: key-value store is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("collections: storage key is required")
	}
	if err := schema.check(); err != nil {
		return nil, err
	}
	options := localOptions{ids: NewULID}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return &LocalStore[T]{kv: kv, key: key, schema: schema, ids: options.ids}, nil
}

// Key returns the storage key.
func (s *LocalStore[T]) Key() string { return s.key }

// Schema returns the collection schema.
func (s *LocalStore[T]) Schema() Schema[T] { return s.schema }

// Load reads and classifies the stored value.
func (s *LocalStore[T]) Load() DecodeResult[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get returns the stored collection, or an empty one when the value is absent or unusable.
func (s *LocalStore[T]) Get() []T {
	res := s.Load()
	if !res.Usable() {
		return []T{}
	}
	return res.Items
}

// Set replaces the stored collection.
func (s *LocalStore[T]) Set(items []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(items)
}

// Add prepends item, assigning an identifier when it has none, and returns the stored record.
func (s *LocalStore[T]) Add(item T) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(s.schema.ID(item)) == "" {
		item = s.schema.WithID(item, s.ids())
	}
	if s.schema.Validate != nil {
		if err := s.schema.Validate(item); err != nil {
			return item, err
		}
	}
	current := s.current()
	if s.schema.indexOf(current, s.schema.ID(item)) >= 0 {
		return item, fmt.Errorf("%w: %s", ErrDuplicateID, s.schema.ID(item))
	}
	next := make([]T, 0, len(current)+1)
	next = append(next, item)
	next = append(next, current...)
	if err := s.write(next); err != nil {
		return item, err
	}
	return item, nil
}

// Update merges patch into the record with id. Missing records are ignored.
func (s *LocalStore[T]) Update(id string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.current()
	idx := s.schema.indexOf(current, id)
	if idx < 0 {
		return nil
	}
	updated, err := ApplyPatch(current[idx], patch)
	if err != nil {
		return err
	}
	updated = s.schema.WithID(updated, id)
	if s.schema.Validate != nil {
		if err := s.schema.Validate(updated); err != nil {
			return err
		}
	}
	next := append([]T(nil), current...)
	next[idx] = updated
	return s.write(next)
}

// Remove deletes the record with id. Missing records are ignored.
func (s *LocalStore[T]) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.current()
	if s.schema.indexOf(current, id) < 0 {
		return nil
	}
	next := make([]T, 0, len(current)-1)
	for _, item := range current {
		if s.schema.ID(item) != id {
			next = append(next, item)
		}
	}
	return s.write(next)
}

// Clear deletes the stored value so the next mount seeds it again.
func (s *LocalStore[T]) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(s.key); err != nil {
		return fmt.Errorf("collections: clear %s: %w", s.key, err)
	}
	return nil
}

// Raw returns the stored bytes without interpretation.
func (s *LocalStore[T]) Raw() ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Get(s.key)
}

func (s *LocalStore[T]) load() DecodeResult[T] {
	raw, found, err := s.kv.Get(s.key)
	if err != nil {
		return DecodeResult[T]{Status: StatusUnreadable, Err: err}
	}
	if !found {
		return DecodeResult[T]{Status: StatusAbsent}
	}
	return decodeValue(raw, s.schema)
}

func (s *LocalStore[T]) current() []T {
	res := s.load()
	if !res.Usable() {
		return []T{}
	}
	return res.Items
}

func (s *LocalStore[T]) write(items []T) error {
	data, err := encodeEnvelope(s.schema.Version, items)
	if err != nil {
		return err
	}
	if err := s.kv.Put(s.key, data); err != nil {
		return fmt.Errorf("collections: write %s: %w", s.key, err)
	}
	return nil
}
