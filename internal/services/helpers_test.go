package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/xtruel/roma-map-revamp/internal/collections"
	"github.com/xtruel/roma-map-revamp/internal/domain"
	"github.com/xtruel/roma-map-revamp/internal/platform/kvstore"
)

var fixedNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func testSync(kv kvstore.Store) SyncDeps {
	if kv == nil {
		kv = kvstore.NewMemoryStore()
	}
	return SyncDeps{
		Store:     kv,
		KeyPrefix: "roma_",
		Clock:     func() time.Time { return fixedNow },
	}
}

// memoryBackend is a remote backend whose writes can be made to fail.
type memoryBackend[T any] struct {
	mu       sync.Mutex
	items    []T
	id       func(T) string
	withID   func(T, string) T
	next     int
	listErr  error
	writeErr error
}

func newMemoryBackend[T any](schema collections.Schema[T], items ...T) *memoryBackend[T] {
	return &memoryBackend[T]{items: items, id: schema.ID, withID: schema.WithID}
}

func (b *memoryBackend[T]) List(context.Context) ([]T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]T(nil), b.items...), nil
}

func (b *memoryBackend[T]) Create(_ context.Context, item T) (T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return item, b.writeErr
	}
	if b.id(item) == "" {
		b.next++
		item = b.withID(item, "remote-"+strconv.Itoa(b.next))
	}
	b.items = append([]T{item}, b.items...)
	return item, nil
}

func (b *memoryBackend[T]) Update(_ context.Context, id string, patch collections.Patch) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	for i, item := range b.items {
		if b.id(item) == id {
			updated, err := collections.ApplyPatch(item, patch)
			if err != nil {
				return err
			}
			b.items[i] = b.withID(updated, id)
		}
	}
	return nil
}

func (b *memoryBackend[T]) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return b.writeErr
	}
	out := b.items[:0]
	for _, item := range b.items {
		if b.id(item) != id {
			out = append(out, item)
		}
	}
	b.items = out
	return nil
}

var errRemoteDown = errors.New("remote unavailable")

func newTestPackages(t *testing.T, sync SyncDeps) PackageService {
	t.Helper()
	svc, err := NewPackageService(PackageServiceDeps{Sync: sync})
	if err != nil {
		t.Fatalf("new package service: %v", err)
	}
	return svc
}

func newTestPlaces(t *testing.T, sync SyncDeps) PlaceService {
	t.Helper()
	svc, err := NewPlaceService(PlaceServiceDeps{Sync: sync})
	if err != nil {
		t.Fatalf("new place service: %v", err)
	}
	return svc
}

func restaurantID(t *testing.T, places PlaceService) string {
	t.Helper()
	restaurants := places.ByCategory(context.Background(), domain.CategoryRestaurants)
	if len(restaurants) == 0 {
		t.Fatalf("no restaurant in defaults")
	}
	return restaurants[0].ID
}
