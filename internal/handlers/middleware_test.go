package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/xtruel/roma-map-revamp/internal/platform/requestctx"
)

func visitorEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(requestctx.VisitorID(r.Context())))
	})
}

func TestVisitorMiddlewareMintsCookie(t *testing.T) {
	handler := VisitorMiddleware(true)(visitorEcho())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	id := rr.Body.String()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected minted uuid, got %q", id)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != visitorCookieName || cookies[0].Value != id {
		t.Fatalf("expected visitor cookie, got %+v", cookies)
	}
	if !cookies[0].Secure || !cookies[0].HttpOnly {
		t.Fatalf("expected secure http-only cookie")
	}
}

func TestVisitorMiddlewareReusesIdentifiers(t *testing.T) {
	handler := VisitorMiddleware(false)(visitorEcho())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: visitorCookieName, Value: testVisitor})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Body.String() != testVisitor || len(rr.Result().Cookies()) != 0 {
		t.Fatalf("expected cookie visitor reused, got %q", rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(visitorHeaderName, testVisitor)
	req.AddCookie(&http.Cookie{Name: visitorCookieName, Value: uuid.NewString()})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Body.String() != testVisitor {
		t.Fatalf("expected header to win, got %q", rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: visitorCookieName, Value: "not-a-uuid"})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Body.String() == "not-a-uuid" || len(rr.Result().Cookies()) != 1 {
		t.Fatalf("expected invalid cookie replaced")
	}
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := CORSMiddleware([]string{"https://romaclub.it/"})(next)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/public/checkout", nil)
	req.Header.Set("Origin", "https://romaclub.it")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://romaclub.it" {
		t.Fatalf("unexpected allow origin %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/public/matches", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected foreign origin to get no CORS headers")
	}
}
