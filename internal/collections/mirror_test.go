package collections

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xtruel/roma-map-revamp/internal/platform/kvstore"
)

func TestMirrorLocalOnlyLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(nil)
	if err := store.Set([]place{{ID: "a", Name: "Colosseo"}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	m := NewMirror(store, nil)
	if m.State() != StateUninitialized {
		t.Fatalf("expected uninitialized, got %s", m.State())
	}
	m.Open(ctx)
	if m.State() != StateLocalOnly || m.Loading() || m.Configured() {
		t.Fatalf("unexpected state %s", m.State())
	}

	id, ok := m.Add(ctx, place{Name: "Trevi"})
	if !ok || id == "" {
		t.Fatalf("expected add to succeed, err=%s", m.Err())
	}
	items := m.Items()
	if len(items) != 2 || items[0].ID != id {
		t.Fatalf("expected new place first, got %+v", items)
	}
	if stored := store.Get(); len(stored) != 2 || stored[0].ID != id {
		t.Fatalf("expected local store to hold new place, got %+v", stored)
	}

	if !m.Update(ctx, "a", Patch{"category": "monumenti"}) {
		t.Fatalf("update failed: %s", m.Err())
	}
	if got, _ := m.Find("a"); got.Category != "monumenti" {
		t.Fatalf("expected patched category, got %+v", got)
	}
	if !m.Remove(ctx, id) {
		t.Fatalf("remove failed: %s", m.Err())
	}
	if got := m.Items(); len(got) != 1 {
		t.Fatalf("expected one item, got %+v", got)
	}
}

func TestMirrorRemoteSyncedMutationsWriteCache(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: []place{{ID: "doc-r", Name: "Pantheon"}}}
	store := newTestStore(nil)
	m := NewMirror[place](store, remote)
	m.Open(ctx)
	if m.State() != StateRemoteSynced {
		t.Fatalf("expected remote synced, got %s (%s)", m.State(), m.Err())
	}
	if cached := store.Get(); len(cached) != 1 || cached[0].ID != "doc-r" {
		t.Fatalf("expected initial load cached, got %+v", cached)
	}

	id, ok := m.Add(ctx, place{Name: "Trevi"})
	if !ok || id != "doc-1" {
		t.Fatalf("expected remote id, got %q ok=%v", id, ok)
	}
	if cached := store.Get(); len(cached) != 2 || cached[0].ID != "doc-1" {
		t.Fatalf("expected cache to include new doc first, got %+v", cached)
	}

	if !m.Update(ctx, "doc-r", Patch{"name": "Pantheon di Agrippa"}) {
		t.Fatalf("update failed: %s", m.Err())
	}
	if got, _ := m.Find("doc-r"); got.Name != "Pantheon di Agrippa" {
		t.Fatalf("expected in-memory update, got %+v", got)
	}
	if !m.Remove(ctx, "doc-1") {
		t.Fatalf("remove failed: %s", m.Err())
	}
	if cached := store.Get(); len(cached) != 1 {
		t.Fatalf("expected cache to drop removed doc, got %+v", cached)
	}
}

func TestMirrorRemoteFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: []place{{ID: "doc-r", Name: "Pantheon"}}}
	store := newTestStore(nil)
	m := NewMirror[place](store, remote)
	m.Open(ctx)

	remote.writeErr = errors.New("permission denied")
	before := store.Get()

	id, ok := m.Add(ctx, place{Name: "Trevi"})
	if ok || id != "" {
		t.Fatalf("expected failed add, got id=%q", id)
	}
	if !strings.Contains(m.Err(), "permission denied") {
		t.Fatalf("expected error message, got %q", m.Err())
	}
	if got := m.Items(); len(got) != 1 {
		t.Fatalf("expected in-memory collection unchanged, got %+v", got)
	}
	if after := store.Get(); len(after) != len(before) {
		t.Fatalf("expected cache unchanged, got %+v", after)
	}
	if m.Update(ctx, "doc-r", Patch{"name": "x"}) || m.Remove(ctx, "doc-r") {
		t.Fatalf("expected mutations to fail")
	}
	if got, _ := m.Find("doc-r"); got.Name != "Pantheon" {
		t.Fatalf("expected record unchanged, got %+v", got)
	}

	remote.writeErr = nil
	if _, ok := m.Add(ctx, place{Name: "Trevi"}); !ok {
		t.Fatalf("expected add to recover: %s", m.Err())
	}
	if m.Err() != "" {
		t.Fatalf("expected error cleared, got %q", m.Err())
	}
}

func TestMirrorDegradesWhenRemoteLoadFails(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(nil)
	if err := store.Set([]place{{ID: "cached", Name: "Colosseo"}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	remote := &fakeRemote{listErr: errors.New("unavailable")}
	m := NewMirror[place](store, remote)
	m.Open(ctx)

	if m.State() != StateDegradedLocal {
		t.Fatalf("expected degraded, got %s", m.State())
	}
	if m.Err() == "" {
		t.Fatalf("expected load error to be reported")
	}
	if got := m.Items(); len(got) != 1 || got[0].ID != "cached" {
		t.Fatalf("expected cached items, got %+v", got)
	}

	remote.listErr = nil
	id, ok := m.Add(ctx, place{Name: "Trevi"})
	if !ok || id != "local-1" {
		t.Fatalf("expected local add in degraded mode, got %q ok=%v", id, ok)
	}
	for _, call := range remote.calls {
		if call == "create" {
			t.Fatalf("degraded mirror must not write remotely")
		}
	}
	if !m.Refresh(ctx) || m.State() != StateDegradedLocal {
		t.Fatalf("expected degraded mode to be sticky, got %s", m.State())
	}
}

func TestMirrorUpdateMissingRecordIsNoop(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: []place{{ID: "doc-r", Name: "Pantheon"}}}
	m := NewMirror[place](newTestStore(nil), remote)
	m.Open(ctx)
	if !m.Update(ctx, "ghost", Patch{"name": "x"}) {
		t.Fatalf("expected no-op success, err=%s", m.Err())
	}
	if got := m.Items(); len(got) != 1 || got[0].Name != "Pantheon" {
		t.Fatalf("unexpected items %+v", got)
	}
}

func TestMirrorUpdateDropsRecordDeletedRemotely(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: []place{{ID: "doc-r", Name: "Pantheon"}, {ID: "doc-x", Name: "Trevi"}}}
	store := newTestStore(nil)
	var events []ChangeEvent
	m := NewMirror[place](store, remote, WithNotifier(ChangeNotifierFunc(func(_ context.Context, e ChangeEvent) error {
		events = append(events, e)
		return nil
	})))
	m.Open(ctx)

	remote.mu.Lock()
	remote.items = remote.items[:1]
	remote.mu.Unlock()

	if !m.Update(ctx, "doc-x", Patch{"name": "Fontana di Trevi"}) {
		t.Fatalf("expected vanished record update to succeed, err=%s", m.Err())
	}
	if _, ok := m.Find("doc-x"); ok {
		t.Fatalf("expected vanished record dropped from memory, got %+v", m.Items())
	}
	if cached := store.Get(); len(cached) != 1 || cached[0].ID != "doc-r" {
		t.Fatalf("expected cache to drop vanished record, got %+v", cached)
	}
	if m.Err() != "" {
		t.Fatalf("expected no error, got %s", m.Err())
	}
	if len(events) != 1 || events[0].Op != OpRemove || events[0].ID != "doc-x" {
		t.Fatalf("expected one remove event, got %+v", events)
	}
}

func TestMirrorRefreshReplacesFromRemote(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: []place{{ID: "doc-r", Name: "Pantheon"}}}
	store := newTestStore(nil)
	m := NewMirror[place](store, remote)
	m.Open(ctx)

	remote.mu.Lock()
	remote.items = append(remote.items, place{ID: "doc-x", Name: "Ara Pacis"})
	remote.mu.Unlock()

	if !m.Refresh(ctx) {
		t.Fatalf("refresh failed: %s", m.Err())
	}
	if len(m.Items()) != 2 || len(store.Get()) != 2 {
		t.Fatalf("expected refreshed items in memory and cache")
	}

	remote.listErr = errors.New("offline")
	if m.Refresh(ctx) {
		t.Fatalf("expected refresh failure")
	}
	if len(m.Items()) != 2 {
		t.Fatalf("expected items kept after failed refresh")
	}
}

func TestMirrorCacheWriteFailureDoesNotFailRemoteMutation(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{Store: kvstore.NewMemoryStore()}
	remote := &fakeRemote{}
	m := NewMirror[place](newTestStore(kv), remote)
	m.Open(ctx)

	kv.putErr = errors.New("disk full")
	if _, ok := m.Add(ctx, place{Name: "Trevi"}); !ok {
		t.Fatalf("expected remote add to succeed despite cache failure")
	}
	if len(m.Items()) != 1 {
		t.Fatalf("expected in-memory commit")
	}
}

func TestMirrorNotifiesCommittedChanges(t *testing.T) {
	ctx := context.Background()
	var (
		mu     sync.Mutex
		events []ChangeEvent
	)
	notifier := ChangeNotifierFunc(func(_ context.Context, e ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
		return nil
	})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMirror(newTestStore(nil), nil, WithNotifier(notifier), WithClock(func() time.Time { return now }))
	m.Open(ctx)

	id, _ := m.Add(ctx, place{Name: "Trevi"})
	m.Remove(ctx, id)
	if _, ok := m.Add(ctx, place{}); ok {
		t.Fatalf("expected invalid add to fail")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("expected two events, got %+v", events)
	}
	if events[0].Op != OpAdd || events[0].ID != id || events[0].State != StateLocalOnly || !events[0].OccurredAt.Equal(now) {
		t.Fatalf("unexpected event %+v", events[0])
	}
	if events[1].Op != OpRemove || events[1].Collection != "places" {
		t.Fatalf("unexpected event %+v", events[1])
	}
}

func TestMirrorRemoteTimeout(t *testing.T) {
	ctx := context.Background()
	remote := &blockingRemote{fakeRemote: &fakeRemote{}}
	m := NewMirror[place](newTestStore(nil), remote, WithRemoteTimeout(20*time.Millisecond))
	m.Open(ctx)
	if m.State() != StateDegradedLocal {
		t.Fatalf("expected degraded after timeout, got %s", m.State())
	}
}

type blockingRemote struct {
	*fakeRemote
}

func (b *blockingRemote) List(ctx context.Context) ([]place, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type watchingRemote struct {
	*fakeRemote
	snapshots chan []place
}

func (w *watchingRemote) Watch(ctx context.Context, fn func([]place)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-w.snapshots:
			fn(snap)
		}
	}
}

func TestMirrorWatchAppliesSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	remote := &watchingRemote{fakeRemote: &fakeRemote{}, snapshots: make(chan []place)}
	store := newTestStore(nil)
	m := NewMirror[place](store, remote)

	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	remote.snapshots <- []place{{ID: "s1", Name: "Circo Massimo"}}
	remote.snapshots <- []place{{ID: "s1", Name: "Circo Massimo"}, {ID: "s2", Name: "Ara Pacis"}}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch: %v", err)
	}
	if got := m.Items(); len(got) != 2 {
		t.Fatalf("expected latest snapshot, got %+v", got)
	}
	if cached := store.Get(); len(cached) != 2 {
		t.Fatalf("expected snapshot cached, got %+v", cached)
	}
}

func TestMirrorWatchUnsupported(t *testing.T) {
	m := NewMirror(newTestStore(nil), nil)
	if err := m.Watch(context.Background()); !errors.Is(err, ErrWatchUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}
