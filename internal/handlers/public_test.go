package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/xtruel/roma-map-revamp/internal/domain"
	"github.com/xtruel/roma-map-revamp/internal/services"
)

const testVisitor = "5f0c6f52-8f7b-4a43-9b0b-1f8d0a4a9c11"

func TestPublicPlacesByCategory(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/public/places?category=ristoranti", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Items []domain.Place `json:"items"`
	}
	decodeBody(t, rr, &body)
	if len(body.Items) != 3 {
		t.Fatalf("expected 3 restaurants, got %d", len(body.Items))
	}
	for _, p := range body.Items {
		if p.Category != domain.CategoryRestaurants {
			t.Fatalf("unexpected category %s", p.Category)
		}
	}

	rr = env.do(t, http.MethodGet, "/api/v1/public/places?category=spiagge", nil)
	if rr.Code != http.StatusBadRequest || errorCodeOf(t, rr) != "invalid_category" {
		t.Fatalf("expected invalid_category, got %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/v1/public/places", nil)
	decodeBody(t, rr, &body)
	if len(body.Items) != 30 {
		t.Fatalf("expected all 30 places, got %d", len(body.Items))
	}
}

func TestPublicPlaceCategories(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/public/places/categories", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Items []services.CategorySummary `json:"items"`
	}
	decodeBody(t, rr, &body)
	counts := map[domain.PlaceCategory]int{}
	for _, c := range body.Items {
		counts[c.ID] = c.Count
	}
	if counts[domain.CategoryMonuments] != 7 || counts[domain.CategoryRestaurants] != 3 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestPublicArticleBySlug(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/public/articles/roma-lazio-il-derby-della-capitale", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var view services.ArticleView
	decodeBody(t, rr, &view)
	if view.Slug != "roma-lazio-il-derby-della-capitale" || view.HTML == "" {
		t.Fatalf("unexpected article view: %+v", view)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/public/articles/non-esiste", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestPublicMatchesViews(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/public/matches?view=upcoming", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Items []domain.Match `json:"items"`
	}
	decodeBody(t, rr, &body)
	for _, m := range body.Items {
		if m.Date < "2026-10-19" {
			t.Fatalf("past match %s in upcoming view", m.Date)
		}
	}

	rr = env.do(t, http.MethodGet, "/api/v1/public/matches?view=yesterday", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown view, got %d", rr.Code)
	}
}

func TestPublicFeedbackFlow(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/v1/public/feedback/article/1"

	rr := env.do(t, http.MethodPost, path, map[string]any{"name": "Marco", "rating": 5, "comment": "Grande articolo"}, withHeader(visitorHeaderName, testVisitor))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created domain.Feedback
	decodeBody(t, rr, &created)
	if created.ID == "" || created.Name != "Marco" || created.Date != "2026-10-19T09:30:00Z" {
		t.Fatalf("unexpected feedback: %+v", created)
	}

	rr = env.do(t, http.MethodPost, path+"/"+created.ID+":like", nil, withHeader(visitorHeaderName, testVisitor))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var liked struct {
		Item  domain.Feedback `json:"item"`
		Liked bool            `json:"liked"`
	}
	decodeBody(t, rr, &liked)
	if !liked.Liked || liked.Item.Likes != 1 {
		t.Fatalf("expected like recorded, got %+v", liked)
	}

	rr = env.do(t, http.MethodGet, path, nil, withHeader(visitorHeaderName, testVisitor))
	var thread struct {
		Items   []domain.Feedback      `json:"items"`
		Summary domain.FeedbackSummary `json:"summary"`
		Liked   []string               `json:"liked"`
	}
	decodeBody(t, rr, &thread)
	if len(thread.Items) != 1 || len(thread.Liked) != 1 || thread.Liked[0] != created.ID {
		t.Fatalf("unexpected thread: %+v", thread)
	}

	rr = env.do(t, http.MethodPost, path+"/"+created.ID+":like", nil, withHeader(visitorHeaderName, testVisitor))
	decodeBody(t, rr, &liked)
	if liked.Liked || liked.Item.Likes != 0 {
		t.Fatalf("expected like removed, got %+v", liked)
	}
}

func TestPublicFeedbackUsesSignedInName(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/v1/public/feedback/site/home", map[string]any{"rating": 4, "comment": "Ottimo"}, withBearer(env.adminToken(t)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created domain.Feedback
	decodeBody(t, rr, &created)
	if created.Name != "Admin" {
		t.Fatalf("expected signed-in name, got %q", created.Name)
	}
}

func TestPublicFeedbackRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		path string
		body any
	}{
		{"unknown entity", "/api/v1/public/feedback/stadium/1", map[string]any{"name": "A", "rating": 3, "comment": "ok"}},
		{"bad id", "/api/v1/public/feedback/article/bad.id", map[string]any{"name": "A", "rating": 3, "comment": "ok"}},
		{"missing name", "/api/v1/public/feedback/article/1", map[string]any{"rating": 3, "comment": "ok"}},
		{"rating out of range", "/api/v1/public/feedback/article/1", map[string]any{"name": "A", "rating": 9, "comment": "ok"}},
		{"unknown field", "/api/v1/public/feedback/article/1", map[string]any{"name": "A", "rating": 3, "comment": "ok", "likes": 99}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, tc.path, tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestPublicCheckoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	packages := env.do(t, http.MethodGet, "/api/v1/public/packages", nil)
	var catalogue struct {
		Items []domain.PackageItem `json:"items"`
	}
	decodeBody(t, packages, &catalogue)
	if len(catalogue.Items) == 0 {
		t.Fatalf("expected active packages")
	}
	pkg := catalogue.Items[0]

	body := map[string]any{
		"packageId": pkg.ID,
		"quantity":  2,
		"customer":  map[string]any{"email": "tifoso@example.com", "firstName": "Ada", "lastName": "Rossi", "phone": "+39 06 1"},
	}
	first := env.do(t, http.MethodPost, "/api/v1/public/checkout", body, withHeader("Idempotency-Key", "chk-1"), withHeader(visitorHeaderName, testVisitor))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}
	var result services.CheckoutResult
	decodeBody(t, first, &result)
	if result.Order.Status != domain.OrderConfirmed || result.Order.PaymentProvider != "simulated" {
		t.Fatalf("unexpected order: %+v", result.Order)
	}
	if !strings.HasPrefix(result.RedirectURL, "https://roma.test/grazie?order=ORD-") {
		t.Fatalf("unexpected redirect %q", result.RedirectURL)
	}

	replay := env.do(t, http.MethodPost, "/api/v1/public/checkout", body, withHeader("Idempotency-Key", "chk-1"), withHeader(visitorHeaderName, testVisitor))
	if replay.Code != http.StatusCreated || replay.Header().Get("X-Idempotent-Replay") == "" {
		t.Fatalf("expected replayed response, got %d headers %v", replay.Code, replay.Header())
	}
	if summary := env.orders.Summary(context.Background()); summary.Total != 1 {
		t.Fatalf("expected a single order, got %d", summary.Total)
	}

	rr := env.do(t, http.MethodPost, "/api/v1/public/orders/"+result.Order.ID+":confirm", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on confirm, got %d", rr.Code)
	}
}

func TestPublicCheckoutValidation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/v1/public/checkout", map[string]any{"quantity": 1})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without package, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/public/checkout", map[string]any{
		"packageId": "missing",
		"quantity":  1,
		"customer":  map[string]any{"email": "tifoso@example.com", "firstName": "Ada", "lastName": "Rossi"},
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown package, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/api/v1/public/checkout", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", rr.Code)
	}
}

func TestPublicNextMatchFromDefaults(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/public/matches/next", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var next domain.Match
	decodeBody(t, rr, &next)
	if next.ID != "1" || next.Date != "2026-11-08" || next.AwayTeam != "Lazio" {
		t.Fatalf("expected the earliest fixture, got %+v", next)
	}

	if err := env.matches.Delete(context.Background(), "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rr = env.do(t, http.MethodGet, "/api/v1/public/matches/next", nil)
	decodeBody(t, rr, &next)
	if next.ID != "2" || next.Date != "2026-11-22" {
		t.Fatalf("expected the following fixture, got %+v", next)
	}
}
