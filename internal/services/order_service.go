package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xtruel/roma-map-revamp/internal/collections"
	"github.com/xtruel/roma-map-revamp/internal/domain"
	"github.com/xtruel/roma-map-revamp/internal/payments"
)

const (
	minOrderQuantity = 1
	maxOrderQuantity = 10
	defaultCurrency  = "eur"
)

var (
	// ErrOrderPackagesMissing signals that the package catalogue dependency is absent.
	ErrOrderPackagesMissing = errors.New("order service: package service is not configured")
	// ErrOrderPaymentsMissing signals that the payment manager dependency is absent.
	ErrOrderPaymentsMissing = errors.New("order service: payment manager is not configured")
)

// PaymentGateway creates and inspects checkout sessions.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, provider string, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	LookupPayment(ctx context.Context, provider string, req payments.LookupRequest) (payments.PaymentDetails, error)
}

// CheckoutURLs are the PSP return targets. "{ORDER}" is replaced by the order number.
type CheckoutURLs struct {
	Success string
	Cancel  string
}

// OrderServiceDeps groups constructor parameters for the order service.
type OrderServiceDeps struct {
	Sync     SyncDeps
	Remote   collections.Backend[domain.Order]
	Packages PackageService
	Payments PaymentGateway
	URLs     CheckoutURLs
	Currency string
}

type orderService struct {
	*Collection[domain.Order]
	packages PackageService
	payments PaymentGateway
	urls     CheckoutURLs
	currency string
	clock    func() time.Time
	logger   *zap.Logger
}

// NewOrderService mounts the order collection.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Packages == nil {
		return nil, ErrOrderPackagesMissing
	}
	if deps.Payments == nil {
		return nil, ErrOrderPaymentsMissing
	}
	coll, err := mountCollection(deps.Sync, collectionDef[domain.Order]{
		schema:   OrderSchema,
		key:      deps.Sync.key(CollectionOrders),
		defaults: []domain.Order{},
		policy:   userDataSeedPolicy,
		remote:   deps.Remote,
	})
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}
	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	logger := deps.Sync.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &orderService{
		Collection: coll,
		packages:   deps.Packages,
		payments:   deps.Payments,
		urls:       deps.URLs,
		currency:   currency,
		clock:      deps.Sync.clock(),
		logger:     logger.Named("orders"),
	}, nil
}

// Checkout validates the purchase, opens a payment session and records the order. Orders paid
// immediately are confirmed; the rest stay pending until ConfirmPayment.
func (s *orderService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	if cmd.Quantity < minOrderQuantity || cmd.Quantity > maxOrderQuantity {
		return CheckoutResult{}, fmt.Errorf("%w: quantity must be between %d and %d", ErrInvalidInput, minOrderQuantity, maxOrderQuantity)
	}
	customer := normalizeCustomer(cmd.Customer)
	if err := domain.ValidateCustomer(customer); err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	pkg, err := s.packages.Get(ctx, cmd.PackageID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if !pkg.Active {
		return CheckoutResult{}, fmt.Errorf("%w: package %s is not on sale", ErrInvalidInput, pkg.ID)
	}

	now := s.clock()
	number := fmt.Sprintf("ORD-%d", now.UnixMilli())
	total := math.Round(pkg.Price*float64(cmd.Quantity)*100) / 100

	session, err := s.payments.CreateCheckoutSession(ctx, cmd.Provider, payments.CheckoutSessionRequest{
		Reference:      number,
		Currency:       s.currency,
		CustomerEmail:  customer.Email,
		SuccessURL:     strings.ReplaceAll(s.urls.Success, "{ORDER}", number),
		CancelURL:      strings.ReplaceAll(s.urls.Cancel, "{ORDER}", number),
		Locale:         "it",
		IdempotencyKey: cmd.IdempotencyKey,
		Metadata:       map[string]string{"orderNumber": number, "packageId": pkg.ID},
		Items: []payments.CheckoutLineItem{{
			Name:        pkg.Name,
			Description: pkg.Description,
			SKU:         pkg.ID,
			Quantity:    int64(cmd.Quantity),
			Amount:      payments.MinorUnits(pkg.Price),
		}},
	})
	if err != nil {
		s.logger.Warn("checkout session failed", zap.String("order", number), zap.Error(err))
		return CheckoutResult{}, fmt.Errorf("order service: checkout: %w", err)
	}

	status := domain.OrderPending
	if session.Status == payments.StatusSucceeded {
		status = domain.OrderConfirmed
	}
	order, err := s.Create(ctx, domain.Order{
		Number: number,
		Package: domain.OrderPackage{
			ID:          pkg.ID,
			Name:        pkg.Name,
			Price:       pkg.Price,
			Description: pkg.Description,
		},
		Quantity:        cmd.Quantity,
		Total:           total,
		Customer:        customer,
		Date:            now.UTC().Format(time.RFC3339),
		Status:          status,
		PaymentRef:      session.ID,
		PaymentProvider: session.Provider,
	})
	if err != nil {
		s.logger.Error("order not recorded after payment session", zap.String("order", number), zap.String("session", session.ID), zap.Error(err))
		return CheckoutResult{}, err
	}
	return CheckoutResult{Order: order, SessionID: session.ID, RedirectURL: session.RedirectURL}, nil
}

// ConfirmPayment reconciles a pending order with its payment session.
func (s *orderService) ConfirmPayment(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return order, err
	}
	if order.Status != domain.OrderPending || order.PaymentRef == "" {
		return order, nil
	}
	details, err := s.payments.LookupPayment(ctx, order.PaymentProvider, payments.LookupRequest{SessionID: order.PaymentRef})
	if err != nil {
		return order, fmt.Errorf("order service: confirm %s: %w", order.Number, err)
	}
	switch details.Status {
	case payments.StatusSucceeded:
		return s.UpdateStatus(ctx, order.ID, domain.OrderConfirmed)
	case payments.StatusFailed:
		return s.UpdateStatus(ctx, order.ID, domain.OrderCancelled)
	default:
		return order, nil
	}
}

// List returns orders matching filter, newest first.
func (s *orderService) List(ctx context.Context, filter OrderFilter) []domain.Order {
	return domain.FilterOrders(s.Collection.List(ctx), filter.Status, filter.Query)
}

func (s *orderService) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error) {
	parsed, ok := domain.ParseOrderStatus(string(status))
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: status %q is not supported", ErrInvalidInput, status)
	}
	return s.Update(ctx, id, collections.Patch{"status": parsed})
}

func (s *orderService) Summary(ctx context.Context) OrderSummary {
	orders := s.Collection.List(ctx)
	summary := OrderSummary{Total: len(orders), Revenue: domain.ConfirmedRevenue(orders)}
	for _, o := range orders {
		switch o.Status {
		case domain.OrderConfirmed:
			summary.Confirmed++
		case domain.OrderPending:
			summary.Pending++
		case domain.OrderCancelled:
			summary.Cancelled++
		}
	}
	return summary
}

func normalizeCustomer(c domain.Customer) domain.Customer {
	return domain.Customer{
		Email:     strings.ToLower(strings.TrimSpace(c.Email)),
		FirstName: strings.TrimSpace(c.FirstName),
		LastName:  strings.TrimSpace(c.LastName),
		Phone:     strings.TrimSpace(c.Phone),
	}
}
