package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubSessions struct {
	params  *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
	err     error
}

func (s *stubSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.params = params
	return s.session, s.err
}

func (s *stubSessions) Get(_ string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.params = params
	return s.session, s.err
}

func TestStripeProviderCreateCheckoutSession(t *testing.T) {
	expires := time.Date(2025, 5, 1, 11, 0, 0, 0, time.UTC)
	stub := &stubSessions{session: &stripe.CheckoutSession{
		ID:            "cs_test_1",
		URL:           "https://checkout.stripe.test/cs_test_1",
		ExpiresAt:     expires.Unix(),
		PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
		Status:        stripe.CheckoutSessionStatusOpen,
	}}
	provider, err := NewStripeProvider(StripeProviderConfig{sessions: stub})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Reference:      "ORD-1",
		Currency:       "EUR",
		CustomerEmail:  "tifoso@example.com",
		SuccessURL:     "https://example.test/ok",
		CancelURL:      "https://example.test/ko",
		IdempotencyKey: "idem-1",
		Metadata:       map[string]string{"orderNumber": "ORD-1"},
		Items:          []CheckoutLineItem{{Name: "Tour Olimpico", Amount: 2500, Quantity: 3, SKU: "pkg-1"}},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if session.ID != "cs_test_1" || session.Status != StatusPending || !session.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected session %+v", session)
	}
	p := stub.params
	if p == nil || len(p.LineItems) != 1 {
		t.Fatalf("expected one line item, got %+v", p)
	}
	line := p.LineItems[0]
	if *line.Quantity != 3 || *line.PriceData.UnitAmount != 2500 || *line.PriceData.Currency != "eur" {
		t.Fatalf("unexpected line item %+v", line)
	}
	if *p.ClientReferenceID != "ORD-1" || *p.CustomerEmail != "tifoso@example.com" {
		t.Fatalf("expected reference and email to be forwarded")
	}
	if p.IdempotencyKey == nil || *p.IdempotencyKey != "idem-1" {
		t.Fatalf("expected idempotency key to be forwarded")
	}
	if p.PaymentIntentData.Metadata["orderNumber"] != "ORD-1" {
		t.Fatalf("expected metadata on payment intent")
	}
}

func TestStripeProviderRequiresLineItems(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{sessions: &stubSessions{}})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{}); err == nil {
		t.Fatalf("expected error without line items")
	}
}

func TestStripeProviderLookupPayment(t *testing.T) {
	stub := &stubSessions{session: &stripe.CheckoutSession{
		ID:            "cs_test_1",
		AmountTotal:   7500,
		Currency:      stripe.CurrencyEUR,
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_1"},
	}}
	provider, err := NewStripeProvider(StripeProviderConfig{sessions: stub})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	details, err := provider.LookupPayment(context.Background(), LookupRequest{SessionID: "cs_test_1"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if details.Status != StatusSucceeded || details.IntentID != "pi_1" || details.Amount != 7500 || details.Currency != "EUR" {
		t.Fatalf("unexpected details %+v", details)
	}
}

func TestStripeProviderLookupMissingSession(t *testing.T) {
	stub := &stubSessions{err: &stripe.Error{Code: stripe.ErrorCodeResourceMissing}}
	provider, err := NewStripeProvider(StripeProviderConfig{sessions: stub})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := provider.LookupPayment(context.Background(), LookupRequest{SessionID: "cs_gone"}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionStatusExpired(t *testing.T) {
	got := sessionStatus(&stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusExpired, PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid})
	if got != StatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
}

func TestNewStripeProviderRequiresKey(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
