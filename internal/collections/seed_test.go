package collections

import (
	"fmt"
	"testing"

	"github.com/xtruel/roma-map-revamp/internal/platform/kvstore"
)

func defaultPlaces(n int) []place {
	out := make([]place, n)
	for i := range out {
		out[i] = place{ID: fmt.Sprintf("p%d", i+1), Name: fmt.Sprintf("Place %d", i+1)}
	}
	return out
}

func TestSeedCreatesDefaultsWhenAbsent(t *testing.T) {
	store := newTestStore(nil)
	items, report, err := Seed(store, defaultPlaces(3), SeedPolicy{LegacyMinLength: 3})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if report.Outcome != SeedCreated || report.Found != StatusAbsent || len(items) != 3 {
		t.Fatalf("unexpected report %+v items=%d", report, len(items))
	}
	if res := store.Load(); res.Status != StatusOK || len(res.Items) != 3 {
		t.Fatalf("expected stored envelope, got %+v", res)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	store := newTestStore(kv)
	if _, _, err := Seed(store, defaultPlaces(3), SeedPolicy{}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	first, _, _ := kv.Get("roma_places")
	_, report, err := Seed(store, defaultPlaces(3), SeedPolicy{})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	second, _, _ := kv.Get("roma_places")
	if report.Outcome != SeedKept || string(first) != string(second) {
		t.Fatalf("expected unchanged value, outcome=%s", report.Outcome)
	}
}

func TestSeedReplacesShortLegacyArray(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	store := newTestStore(kv)
	raw := `[{"id":"1","name":"a"},{"id":"2","name":"b"},{"id":"3","name":"c"},{"id":"4","name":"d"},{"id":"5","name":"e"},{"id":"6","name":"f"}]`
	if err := kv.Put("roma_places", []byte(raw)); err != nil {
		t.Fatalf("put: %v", err)
	}
	items, report, err := Seed(store, defaultPlaces(14), SeedPolicy{LegacyMinLength: 10})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if report.Outcome != SeedReplaced || report.Found != StatusLegacy || len(items) != 14 {
		t.Fatalf("unexpected report %+v items=%d", report, len(items))
	}
	if got := store.Get(); len(got) != 14 {
		t.Fatalf("expected 14 stored items, got %d", len(got))
	}
}

func TestSeedAdoptsLongLegacyArray(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	store := newTestStore(kv)
	if err := kv.Put("roma_places", []byte(`[{"id":"x","name":"kept"},{"id":"y","name":"kept too"}]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	items, report, err := Seed(store, defaultPlaces(5), SeedPolicy{LegacyMinLength: 2})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if report.Outcome != SeedAdopted || len(items) != 2 || items[0].ID != "x" {
		t.Fatalf("unexpected report %+v items=%+v", report, items)
	}
	if res := store.Load(); res.Status != StatusOK {
		t.Fatalf("expected rewrapped envelope, got %s", res.Status)
	}
}

func TestSeedReplacesOlderVersionRegardlessOfLength(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	store := newTestStore(kv)
	value, err := encodeEnvelope(1, defaultPlaces(40))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := kv.Put("roma_places", value); err != nil {
		t.Fatalf("put: %v", err)
	}
	items, report, err := Seed(store, defaultPlaces(3), SeedPolicy{LegacyMinLength: 1})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if report.Found != StatusVersionMismatch || report.Outcome != SeedReplaced || len(items) != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestSeedReplacesCorruptValue(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	store := newTestStore(kv)
	if err := kv.Put("roma_places", []byte("{broken")); err != nil {
		t.Fatalf("put: %v", err)
	}
	_, report, err := Seed(store, defaultPlaces(2), SeedPolicy{})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if report.Found != StatusCorrupt || report.Outcome != SeedReplaced {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestSeedRejectsInvalidDefaults(t *testing.T) {
	store := newTestStore(nil)
	if _, _, err := Seed(store, []place{{ID: "a"}}, SeedPolicy{}); err == nil {
		t.Fatalf("expected defaults validation error")
	}
}
