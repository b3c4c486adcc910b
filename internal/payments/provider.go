// Package payments creates checkout sessions for package orders with a payment service provider.
package payments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or PSP confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the PSP reports the payment as collected.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the session expired or was abandoned.
	StatusFailed Status = "failed"
)

const (
	ProviderStripe    = "stripe"
	ProviderSimulated = "simulated"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrSessionNotFound is returned by providers that do not know a session id.
	ErrSessionNotFound = errors.New("payments: checkout session not found")
)

// CheckoutLineItem describes a single line item to include in a checkout session.
type CheckoutLineItem struct {
	Name        string
	Description string
	SKU         string
	Quantity    int64
	// Amount is the unit price in minor units.
	Amount   int64
	Currency string
}

// CheckoutSessionRequest captures the payload required to create a checkout session.
type CheckoutSessionRequest struct {
	Reference      string
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Locale         string
	Metadata       map[string]string
	IdempotencyKey string
	Items          []CheckoutLineItem
}

// Total sums the line items in minor units.
func (r CheckoutSessionRequest) Total() int64 {
	var total int64
	for _, item := range r.Items {
		total += item.Amount * max(item.Quantity, 1)
	}
	return total
}

// CheckoutSession represents the PSP session returned to the client.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	Status      Status
	ExpiresAt   time.Time
}

// LookupRequest identifies a session for reconciliation.
type LookupRequest struct {
	SessionID string
}

// PaymentDetails normalises PSP specific fields for storage.
type PaymentDetails struct {
	Provider  string
	SessionID string
	IntentID  string
	Status    Status
	Amount    int64
	Currency  string
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error)
}

// Manager routes requests to a registered provider.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when a request names none.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = normalizeKey(provider)
	}
}

// NewManager constructs a Manager over the supplied providers. Stripe is the default when
// registered.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	registered := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := normalizeKey(k)
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		registered[key] = v
	}
	m := &Manager{providers: registered}
	if _, ok := registered[ProviderStripe]; ok {
		m.defaultProvider = ProviderStripe
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// DefaultProvider returns the key used when a request names no provider.
func (m *Manager) DefaultProvider() string {
	key, _, err := m.resolve("")
	if err != nil {
		return ""
	}
	return key
}

func (m *Manager) resolve(preferred string) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, ErrUnsupportedProvider
	}
	if key := normalizeKey(preferred); key != "" {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, key)
	}
	if p, ok := m.providers[m.defaultProvider]; ok {
		return m.defaultProvider, p, nil
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateCheckoutSession delegates to the named provider, or the default one when empty.
func (m *Manager) CreateCheckoutSession(ctx context.Context, provider string, req CheckoutSessionRequest) (CheckoutSession, error) {
	key, p, err := m.resolve(provider)
	if err != nil {
		return CheckoutSession{}, err
	}
	session, err := p.CreateCheckoutSession(ctx, req)
	if err != nil {
		return CheckoutSession{}, err
	}
	session.Provider = key
	return session, nil
}

// LookupPayment delegates to the named provider.
func (m *Manager) LookupPayment(ctx context.Context, provider string, req LookupRequest) (PaymentDetails, error) {
	key, p, err := m.resolve(provider)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := p.LookupPayment(ctx, req)
	if err != nil {
		return PaymentDetails{}, err
	}
	details.Provider = key
	return details, nil
}

// MinorUnits converts a decimal amount to minor currency units.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
