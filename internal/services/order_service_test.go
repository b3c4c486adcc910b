package services

import (
	"context"
	"errors"
	"testing"

	"github.com/xtruel/roma-map-revamp/internal/domain"
	"github.com/xtruel/roma-map-revamp/internal/payments"
)

type stubGateway struct {
	session  payments.CheckoutSession
	details  payments.PaymentDetails
	err      error
	requests []payments.CheckoutSessionRequest
	lookups  []string
}

func (g *stubGateway) CreateCheckoutSession(_ context.Context, provider string, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return payments.CheckoutSession{}, g.err
	}
	session := g.session
	if session.Provider == "" {
		session.Provider = provider
	}
	return session, nil
}

func (g *stubGateway) LookupPayment(_ context.Context, provider string, req payments.LookupRequest) (payments.PaymentDetails, error) {
	g.lookups = append(g.lookups, provider+":"+req.SessionID)
	return g.details, g.err
}

var testCustomer = domain.Customer{Email: " Tifoso@Example.com ", FirstName: "Francesco", LastName: "Totti", Phone: "+39 06 10"}

func newTestOrders(t *testing.T, gateway PaymentGateway) (OrderService, PackageService) {
	t.Helper()
	sync := testSync(nil)
	packages := newTestPackages(t, sync)
	orders, err := NewOrderService(OrderServiceDeps{
		Sync:     sync,
		Packages: packages,
		Payments: gateway,
		URLs:     CheckoutURLs{Success: "https://roma.test/ok?order={ORDER}", Cancel: "https://roma.test/ko"},
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return orders, packages
}

func firstActivePackage(t *testing.T, packages PackageService) domain.PackageItem {
	t.Helper()
	active := packages.Active(context.Background())
	if len(active) == 0 {
		t.Fatalf("no active package")
	}
	return active[0]
}

func TestCheckoutWithSimulatedProviderConfirms(t *testing.T) {
	ctx := context.Background()
	mgr, err := payments.NewManager(map[string]payments.Provider{
		payments.ProviderSimulated: payments.NewSimulatedProvider(nil),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	orders, packages := newTestOrders(t, mgr)
	pkg := firstActivePackage(t, packages)

	result, err := orders.Checkout(ctx, CheckoutCommand{PackageID: pkg.ID, Quantity: 3, Customer: testCustomer})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	order := result.Order
	if order.Status != domain.OrderConfirmed || order.Quantity != 3 {
		t.Fatalf("unexpected order %+v", order)
	}
	if order.Number != "ORD-1792402200000" {
		t.Fatalf("unexpected order number %s", order.Number)
	}
	if want := pkg.Price * 3; order.Total != want {
		t.Fatalf("expected total %.2f, got %.2f", want, order.Total)
	}
	if order.Customer.Email != "tifoso@example.com" || order.PaymentProvider != payments.ProviderSimulated {
		t.Fatalf("unexpected order details %+v", order)
	}
	if result.RedirectURL != "https://roma.test/ok?order=ORD-1792402200000" {
		t.Fatalf("unexpected redirect %s", result.RedirectURL)
	}

	summary := orders.Summary(ctx)
	if summary.Total != 1 || summary.Confirmed != 1 || summary.Revenue != order.Total {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestCheckoutValidation(t *testing.T) {
	ctx := context.Background()
	gateway := &stubGateway{}
	orders, packages := newTestOrders(t, gateway)
	pkg := firstActivePackage(t, packages)

	cases := map[string]CheckoutCommand{
		"zero quantity": {PackageID: pkg.ID, Quantity: 0, Customer: testCustomer},
		"too many":      {PackageID: pkg.ID, Quantity: 11, Customer: testCustomer},
		"missing name":  {PackageID: pkg.ID, Quantity: 1, Customer: domain.Customer{Email: "a@b.it"}},
		"invalid email": {PackageID: pkg.ID, Quantity: 1, Customer: domain.Customer{Email: "nope", FirstName: "A", LastName: "B"}},
	}
	for name, cmd := range cases {
		if _, err := orders.Checkout(ctx, cmd); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}

	if _, err := orders.Checkout(ctx, CheckoutCommand{PackageID: "missing", Quantity: 1, Customer: testCustomer}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown package, got %v", err)
	}

	if _, err := packages.Update(ctx, pkg.ID, Patch{"active": false}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := orders.Checkout(ctx, CheckoutCommand{PackageID: pkg.ID, Quantity: 1, Customer: testCustomer}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected inactive package to be rejected, got %v", err)
	}
	if len(gateway.requests) != 0 {
		t.Fatalf("expected no payment session for rejected checkouts")
	}
}

func TestCheckoutPendingThenConfirmPayment(t *testing.T) {
	ctx := context.Background()
	gateway := &stubGateway{session: payments.CheckoutSession{
		ID:          "cs_1",
		Provider:    payments.ProviderStripe,
		RedirectURL: "https://checkout.stripe.test/cs_1",
		Status:      payments.StatusPending,
	}}
	orders, packages := newTestOrders(t, gateway)
	pkg := firstActivePackage(t, packages)

	result, err := orders.Checkout(ctx, CheckoutCommand{PackageID: pkg.ID, Quantity: 1, Customer: testCustomer, IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.Order.Status != domain.OrderPending || result.RedirectURL != "https://checkout.stripe.test/cs_1" {
		t.Fatalf("unexpected result %+v", result)
	}
	req := gateway.requests[0]
	if req.Items[0].Amount != payments.MinorUnits(pkg.Price) || req.IdempotencyKey != "k1" || req.Currency != "eur" {
		t.Fatalf("unexpected session request %+v", req)
	}

	gateway.details = payments.PaymentDetails{Status: payments.StatusSucceeded}
	confirmed, err := orders.ConfirmPayment(ctx, result.Order.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != domain.OrderConfirmed {
		t.Fatalf("expected confirmed order, got %s", confirmed.Status)
	}
	if gateway.lookups[0] != "stripe:cs_1" {
		t.Fatalf("unexpected lookup %v", gateway.lookups)
	}

	if _, err := orders.ConfirmPayment(ctx, result.Order.ID); err != nil {
		t.Fatalf("confirm again: %v", err)
	}
	if len(gateway.lookups) != 1 {
		t.Fatalf("expected confirmed orders not to be looked up again")
	}
}

func TestCheckoutPaymentFailure(t *testing.T) {
	gateway := &stubGateway{err: errors.New("psp down")}
	orders, packages := newTestOrders(t, gateway)
	pkg := firstActivePackage(t, packages)

	if _, err := orders.Checkout(context.Background(), CheckoutCommand{PackageID: pkg.ID, Quantity: 1, Customer: testCustomer}); err == nil {
		t.Fatalf("expected checkout error")
	}
	if got := len(orders.List(context.Background(), OrderFilter{})); got != 0 {
		t.Fatalf("expected no order recorded, got %d", got)
	}
}

func TestOrderAdminOperations(t *testing.T) {
	ctx := context.Background()
	gateway := &stubGateway{session: payments.CheckoutSession{ID: "cs_1", Status: payments.StatusSucceeded}}
	orders, packages := newTestOrders(t, gateway)
	pkg := firstActivePackage(t, packages)

	result, err := orders.Checkout(ctx, CheckoutCommand{PackageID: pkg.ID, Quantity: 2, Customer: testCustomer})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	id := result.Order.ID

	if got := orders.List(ctx, OrderFilter{Query: "totti"}); len(got) != 1 {
		t.Fatalf("expected search by customer name, got %d", len(got))
	}
	if got := orders.List(ctx, OrderFilter{Status: domain.OrderPending}); len(got) != 0 {
		t.Fatalf("expected no pending orders, got %d", len(got))
	}

	if _, err := orders.UpdateStatus(ctx, id, "shipped"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid status error, got %v", err)
	}
	cancelled, err := orders.UpdateStatus(ctx, id, domain.OrderCancelled)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if cancelled.Status != domain.OrderCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if revenue := orders.Summary(ctx).Revenue; revenue != 0 {
		t.Fatalf("expected cancelled orders excluded from revenue, got %.2f", revenue)
	}

	if err := orders.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := orders.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
