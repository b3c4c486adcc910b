package payments

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SimulatedProvider settles every checkout immediately. It backs deployments without a PSP
// account, where orders are confirmed on submission.
type SimulatedProvider struct {
	clock func() time.Time

	mu       sync.RWMutex
	sessions map[string]PaymentDetails
}

// NewSimulatedProvider constructs a SimulatedProvider. A nil clock uses time.Now.
func NewSimulatedProvider(clock func() time.Time) *SimulatedProvider {
	if clock == nil {
		clock = time.Now
	}
	return &SimulatedProvider{clock: clock, sessions: make(map[string]PaymentDetails)}
}

// CreateCheckoutSession records a paid session and returns the success URL as redirect target.
func (p *SimulatedProvider) CreateCheckoutSession(_ context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if len(req.Items) == 0 {
		return CheckoutSession{}, fmt.Errorf("simulated: at least one line item is required")
	}
	now := p.clock().UTC()
	id := "sim_" + strings.ToLower(ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String())

	p.mu.Lock()
	p.sessions[id] = PaymentDetails{
		Provider:  ProviderSimulated,
		SessionID: id,
		Status:    StatusSucceeded,
		Amount:    req.Total(),
		Currency:  strings.ToUpper(req.Currency),
	}
	p.mu.Unlock()

	return CheckoutSession{
		ID:          id,
		Provider:    ProviderSimulated,
		RedirectURL: req.SuccessURL,
		Status:      StatusSucceeded,
		ExpiresAt:   now.Add(defaultSessionTTL),
	}, nil
}

// LookupPayment returns the details recorded for a session created by this provider.
func (p *SimulatedProvider) LookupPayment(_ context.Context, req LookupRequest) (PaymentDetails, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	details, ok := p.sessions[strings.TrimSpace(req.SessionID)]
	if !ok {
		return PaymentDetails{}, fmt.Errorf("%w: %s", ErrSessionNotFound, req.SessionID)
	}
	return details, nil
}
