package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xtruel/roma-map-revamp/internal/collections"
	"github.com/xtruel/roma-map-revamp/internal/services"
)

func TestHealthHandlersHealthz(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(90 * time.Second)
	handlers := NewHealthHandlers(
		WithHealthBuildInfo(BuildInfo{
			Version:     "1.2.0",
			CommitSHA:   "abc123",
			Environment: "prod",
			StartedAt:   start,
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	rr := httptest.NewRecorder()
	handlers.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body map[string]any
	decodeBody(t, rr, &body)
	if body["status"] != healthStatusOK {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	if body["version"] != "1.2.0" || body["commitSha"] != "abc123" || body["environment"] != "prod" {
		t.Fatalf("unexpected build info: %v", body)
	}
	if body["uptime"] != "1m30s" {
		t.Fatalf("expected uptime 1m30s, got %v", body["uptime"])
	}
}

func TestHealthHandlersReadyzReportsDegradedCollections(t *testing.T) {
	handlers := NewHealthHandlers(
		WithReadinessChecks(ReadinessCheck{Name: "store", Check: func(context.Context) error { return nil }}),
		WithCollectionStatuses(func() []services.CollectionStatus {
			return []services.CollectionStatus{
				{Name: "matches", State: collections.StateRemoteSynced},
				{Name: "places", State: collections.StateDegradedLocal, Error: "remote unavailable"},
			}
		}),
	)

	rr := httptest.NewRecorder()
	handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Status      string                      `json:"status"`
		Checks      map[string]map[string]any   `json:"checks"`
		Collections []services.CollectionStatus `json:"collections"`
	}
	decodeBody(t, rr, &body)
	if body.Status != healthStatusDegraded {
		t.Fatalf("expected degraded, got %s", body.Status)
	}
	if body.Checks["store"]["status"] != healthStatusOK {
		t.Fatalf("expected store check ok, got %v", body.Checks)
	}
	if len(body.Collections) != 2 || body.Collections[1].Error != "remote unavailable" {
		t.Fatalf("unexpected collections: %+v", body.Collections)
	}
}

func TestHealthHandlersReadyzFailure(t *testing.T) {
	handlers := NewHealthHandlers(
		WithReadinessChecks(
			ReadinessCheck{Name: "store", Check: func(context.Context) error { return errors.New("bolt: database not open") }},
			ReadinessCheck{Name: "skipped"},
		),
	)

	rr := httptest.NewRecorder()
	handlers.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var body map[string]any
	decodeBody(t, rr, &body)
	if body["status"] != healthStatusError {
		t.Fatalf("expected error status, got %v", body["status"])
	}
	checks := body["checks"].(map[string]any)
	if _, ok := checks["skipped"]; ok {
		t.Fatalf("nil check must be skipped: %v", checks)
	}
}
