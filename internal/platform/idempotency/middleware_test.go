package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xtruel/roma-map-revamp/internal/platform/kvstore"
	"github.com/xtruel/roma-map-revamp/internal/platform/requestctx"
)

var fixedTime = time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *kvstore.MemoryStore) {
	t.Helper()
	kv := kvstore.NewMemoryStore()
	store, err := NewStore(kv)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, kv
}

func checkoutRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/checkout", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestMiddleware_MissingHeaderPassesThrough(t *testing.T) {
	store, _ := newTestStore(t)
	calls := 0
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("", `{}`))
	}
	if calls != 2 {
		t.Fatalf("expected both requests to reach the handler, got %d", calls)
	}
}

func TestMiddleware_RequiredHeader(t *testing.T) {
	store, _ := newTestStore(t)
	handler := Middleware(store, WithRequiredKey())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be invoked when header is missing")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, checkoutRequest("", `{}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency_key_required")
}

func TestMiddleware_ReplaysStoredResponse(t *testing.T) {
	store, _ := newTestStore(t)
	calls := 0
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"orderNumber":"ORD-1"}`))
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, checkoutRequest("abc-123", `{"packageId":"p1"}`))
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, checkoutRequest("abc-123", `{"packageId":"p1"}`))

	if calls != 1 {
		t.Fatalf("expected handler once, got %d", calls)
	}
	if rr1.Code != http.StatusCreated || rr2.Code != http.StatusCreated {
		t.Fatalf("unexpected statuses %d %d", rr1.Code, rr2.Code)
	}
	if rr2.Header().Get(replayHeaderName) != "true" {
		t.Fatal("expected replay header on second response")
	}
	if rr2.Body.String() != rr1.Body.String() {
		t.Fatalf("expected identical bodies, got %q and %q", rr1.Body.String(), rr2.Body.String())
	}
	if rr2.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected stored content type, got %q", rr2.Header().Get("Content-Type"))
	}
}

func TestMiddleware_FingerprintMismatch(t *testing.T) {
	store, _ := newTestStore(t)
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("abc", `{"packageId":"p1"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, checkoutRequest("abc", `{"packageId":"p2"}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddleware_KeysScopedPerVisitor(t *testing.T) {
	store, _ := newTestStore(t)
	calls := 0
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for _, visitor := range []string{"v1", "v2"} {
		req := checkoutRequest("same-key", `{}`)
		req = req.WithContext(requestctx.WithVisitorID(req.Context(), visitor))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected separate visitors to be processed independently, got %d calls", calls)
	}
}

func TestMiddleware_ServerErrorReleasesKey(t *testing.T) {
	store, _ := newTestStore(t)
	calls := 0
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, checkoutRequest("retry", `{}`))
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, checkoutRequest("retry", `{}`))

	if rr1.Code != http.StatusBadGateway || rr2.Code != http.StatusCreated || calls != 2 {
		t.Fatalf("expected retry after failure, got %d %d calls=%d", rr1.Code, rr2.Code, calls)
	}
}

func TestStore_PendingAndCleanup(t *testing.T) {
	store, kv := newTestStore(t)
	ctx := context.Background()

	res, err := store.Reserve(ctx, "k", "fp", fixedTime, time.Minute)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected new reservation, got %+v %v", res, err)
	}
	res, err = store.Reserve(ctx, "k", "fp", fixedTime.Add(time.Second), time.Minute)
	if err != nil || res.State != ReservationStatePending {
		t.Fatalf("expected pending reservation, got %+v %v", res, err)
	}

	removed, err := store.CleanupExpired(ctx, fixedTime.Add(2*time.Minute), 0)
	if err != nil || removed != 1 {
		t.Fatalf("expected one expired record removed, got %d %v", removed, err)
	}
	keys, _ := kv.Keys(KeyPrefix)
	if len(keys) != 0 {
		t.Fatalf("expected no records left, got %v", keys)
	}

	res, err = store.Reserve(ctx, "k", "other", fixedTime.Add(3*time.Minute), time.Minute)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected expired key to be reusable, got %+v %v", res, err)
	}
}

func assertErrorResponse(t *testing.T, body []byte, code string) {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if payload["error"] != code {
		t.Fatalf("expected error code %s, got %v", code, payload["error"])
	}
}
