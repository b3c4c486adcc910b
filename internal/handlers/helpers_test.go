package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xtruel/roma-map-revamp/internal/payments"
	"github.com/xtruel/roma-map-revamp/internal/platform/auth"
	"github.com/xtruel/roma-map-revamp/internal/platform/idempotency"
	"github.com/xtruel/roma-map-revamp/internal/platform/kvstore"
	"github.com/xtruel/roma-map-revamp/internal/platform/storage"
	"github.com/xtruel/roma-map-revamp/internal/services"
)

var testNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

const (
	testAdminEmail    = "admin@romaclub.it"
	testAdminPassword = "forza-roma-1927"
)

type testEnv struct {
	router   chi.Router
	admin    *AdminHandlers
	issuer   *auth.LocalIssuer
	matches  services.MatchService
	places   services.PlaceService
	feedback services.FeedbackService
	orders   services.OrderService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	kv := kvstore.NewMemoryStore()
	clock := func() time.Time { return testNow }
	sync := services.SyncDeps{Store: kv, KeyPrefix: "roma_", Clock: clock}

	matches, err := services.NewMatchService(services.MatchServiceDeps{Sync: sync})
	if err != nil {
		t.Fatalf("matches: %v", err)
	}
	packages, err := services.NewPackageService(services.PackageServiceDeps{Sync: sync})
	if err != nil {
		t.Fatalf("packages: %v", err)
	}
	articles, err := services.NewArticleService(services.ArticleServiceDeps{Sync: sync})
	if err != nil {
		t.Fatalf("articles: %v", err)
	}
	places, err := services.NewPlaceService(services.PlaceServiceDeps{Sync: sync})
	if err != nil {
		t.Fatalf("places: %v", err)
	}
	sponsors, err := services.NewSponsorService(services.SponsorServiceDeps{Sync: sync, Places: places})
	if err != nil {
		t.Fatalf("sponsors: %v", err)
	}
	feedback, err := services.NewFeedbackService(services.FeedbackServiceDeps{Sync: sync})
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	manager, err := payments.NewManager(map[string]payments.Provider{
		payments.ProviderSimulated: payments.NewSimulatedProvider(clock),
	})
	if err != nil {
		t.Fatalf("payments: %v", err)
	}
	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Sync:     sync,
		Packages: packages,
		Payments: manager,
		URLs:     services.CheckoutURLs{Success: "https://roma.test/grazie?order={ORDER}", Cancel: "https://roma.test/checkout"},
	})
	if err != nil {
		t.Fatalf("orders: %v", err)
	}

	issuer, err := auth.NewLocalIssuer(auth.Credentials{Email: testAdminEmail, Password: testAdminPassword, Name: "Admin"}, "0123456789abcdef0123", time.Hour, auth.WithLocalClock(clock))
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	idem, err := idempotency.NewStore(kv)
	if err != nil {
		t.Fatalf("idempotency: %v", err)
	}
	authn := auth.NewAuthenticator(issuer)

	public := NewPublicHandlers(PublicDeps{
		Matches:             matches,
		Packages:            packages,
		Articles:            articles,
		Places:              places,
		Sponsors:            sponsors,
		Feedback:            feedback,
		Orders:              orders,
		CheckoutMiddlewares: []func(http.Handler) http.Handler{idempotency.Middleware(idem, idempotency.WithClock(clock))},
		FeedbackMiddlewares: []func(http.Handler) http.Handler{authn.OptionalIdentity()},
	})
	admin := NewAdminHandlers(AdminDeps{
		Authenticator: authn,
		Issuer:        issuer,
		Matches:       matches,
		Packages:      packages,
		Articles:      articles,
		Places:        places,
		Sponsors:      sponsors,
		Orders:        orders,
		Feedback:      feedback,
		Images:        storage.NewImageStore(storage.WithMaxBytes(1024)),
	})

	router := NewRouter(
		WithMiddlewares(VisitorMiddleware(false)),
		WithPublicRoutes(public.Routes),
		WithAdminRoutes(admin.Routes),
		WithHealthHandlers(NewHealthHandlers(WithHealthClock(clock), WithCollectionStatuses(admin.Statuses))),
	)
	return &testEnv{
		router:   router,
		admin:    admin,
		issuer:   issuer,
		matches:  matches,
		places:   places,
		feedback: feedback,
		orders:   orders,
	}
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	session, err := e.issuer.Login(testAdminEmail, testAdminPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return session.Token
}

type requestOption func(*http.Request)

func withHeader(name, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(name, value) }
}

func withBearer(token string) requestOption {
	return withHeader("Authorization", "Bearer "+token)
}

func (e *testEnv) do(t *testing.T, method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func errorCodeOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	decodeBody(t, rr, &body)
	code, _ := body["error"].(string)
	return code
}
