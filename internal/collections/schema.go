// Package collections persists named record collections locally and mirrors them to an optional
// remote document store.
package collections

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingID is returned when a persisted record has no identifier.
	ErrMissingID = errors.New("collections: record id is required")
	// ErrDuplicateID is returned when two records of one collection share an identifier.
	ErrDuplicateID = errors.New("collections: duplicate record id")
)

// Schema describes how records of one collection are identified, versioned and validated.
type Schema[T any] struct {
	// Name identifies the collection in logs, change events and the remote store.
	Name string
	// Version is the current envelope version. Stored envelopes with another version are stale.
	Version int
	// ID extracts the record identifier.
	ID func(T) string
	// WithID returns a copy of the record carrying id.
	WithID func(T, string) T
	// Validate rejects records that must not be loaded. Optional.
	Validate func(T) error
}

func (s Schema[T]) check() error {
	var missing []string
	if strings.TrimSpace(s.Name) == "" {
		missing = append(missing, "Name")
	}
	if s.Version <= 0 {
		missing = append(missing, "Version")
	}
	if s.ID == nil {
		missing = append(missing, "ID")
	}
	if s.WithID == nil {
		missing = append(missing, "WithID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("collections: schema missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func (s Schema[T]) validateAll(items []T) error {
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		id := strings.TrimSpace(s.ID(item))
		if id == "" {
			return fmt.Errorf("item %d: %w", i, ErrMissingID)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("item %q: %w", id, ErrDuplicateID)
		}
		seen[id] = struct{}{}
		if s.Validate != nil {
			if err := s.Validate(item); err != nil {
				return fmt.Errorf("item %q: %w", id, err)
			}
		}
	}
	return nil
}

func (s Schema[T]) indexOf(items []T, id string) int {
	for i, item := range items {
		if s.ID(item) == id {
			return i
		}
	}
	return -1
}

// without returns items minus the record with id, reusing the backing array.
func (s Schema[T]) without(items []T, id string) []T {
	out := items[:0]
	for _, item := range items {
		if s.ID(item) != id {
			out = append(out, item)
		}
	}
	return out
}
