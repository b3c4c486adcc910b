package collections

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xtruel/roma-map-revamp/internal/platform/kvstore"
)

type place struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Lat      float64 `json:"lat"`
}

var placeSchema = Schema[place]{
	Name:    "places",
	Version: 2,
	ID:      func(p place) string { return p.ID },
	WithID: func(p place, id string) place {
		p.ID = id
		return p
	},
	Validate: func(p place) error {
		if strings.TrimSpace(p.Name) == "" {
			return errors.New("name is required")
		}
		return nil
	},
}

func sequentialIDs(prefix string) IDGenerator {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func newTestStore(kv kvstore.Store) *LocalStore[place] {
	if kv == nil {
		kv = kvstore.NewMemoryStore()
	}
	store, err := NewLocalStore(kv, "roma_places", placeSchema, WithIDGenerator(sequentialIDs("local-")))
	if err != nil {
		panic(err)
	}
	return store
}

type fakeRemote struct {
	mu       sync.Mutex
	items    []place
	listErr  error
	writeErr error
	nextID   int
	calls    []string
}

func (f *fakeRemote) List(context.Context) ([]place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "list")
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]place(nil), f.items...), nil
}

func (f *fakeRemote) Create(_ context.Context, item place) (place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create")
	if f.writeErr != nil {
		return place{}, f.writeErr
	}
	f.nextID++
	item.ID = fmt.Sprintf("doc-%d", f.nextID)
	f.items = append([]place{item}, f.items...)
	return item, nil
}

func (f *fakeRemote) Update(_ context.Context, id string, patch Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update")
	if f.writeErr != nil {
		return f.writeErr
	}
	for i, item := range f.items {
		if item.ID == id {
			updated, err := ApplyPatch(item, patch)
			if err != nil {
				return err
			}
			f.items[i] = updated
			return nil
		}
	}
	return notFound{}
}

func (f *fakeRemote) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete")
	if f.writeErr != nil {
		return f.writeErr
	}
	out := f.items[:0]
	for _, item := range f.items {
		if item.ID != id {
			out = append(out, item)
		}
	}
	f.items = out
	return nil
}

type notFound struct{}

func (notFound) Error() string    { return "not found" }
func (notFound) IsNotFound() bool { return true }

type failingKV struct {
	kvstore.Store
	putErr error
}

func (f *failingKV) Put(key string, value []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.Store.Put(key, value)
}
