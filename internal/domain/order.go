package domain

import (
	"net/mail"
	"strings"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderConfirmed OrderStatus = "confirmed"
	OrderPending   OrderStatus = "pending"
	OrderCancelled OrderStatus = "cancelled"
)

// ParseOrderStatus validates raw.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	switch s := OrderStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case OrderConfirmed, OrderPending, OrderCancelled:
		return s, true
	}
	return "", false
}

// OrderPackage snapshots the purchased package.
type OrderPackage struct {
	ID          string  `json:"id,omitempty" firestore:"id,omitempty"`
	Name        string  `json:"name" firestore:"name"`
	Price       float64 `json:"price" firestore:"price"`
	Description string  `json:"description" firestore:"description"`
}

// Customer holds buyer contact details.
type Customer struct {
	Email     string `json:"email" firestore:"email"`
	FirstName string `json:"firstName" firestore:"firstName"`
	LastName  string `json:"lastName" firestore:"lastName"`
	Phone     string `json:"phone" firestore:"phone"`
}

// FullName joins first and last name.
func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Order is a package purchase.
type Order struct {
	ID       string       `json:"id" firestore:"-"`
	Number   string       `json:"number" firestore:"number"`
	Package  OrderPackage `json:"package" firestore:"package"`
	Quantity int          `json:"quantity" firestore:"quantity"`
	Total    float64      `json:"total" firestore:"total"`
	Customer Customer     `json:"customer" firestore:"customer"`
	Date     string       `json:"date" firestore:"date"`
	Status   OrderStatus  `json:"status" firestore:"status"`

	PaymentRef      string `json:"paymentRef,omitempty" firestore:"paymentRef,omitempty"`
	PaymentProvider string `json:"paymentProvider,omitempty" firestore:"paymentProvider,omitempty"`
}

// ValidateOrder checks quantity, totals, status and contact details.
func ValidateOrder(o Order) error {
	if strings.TrimSpace(o.Package.Name) == "" {
		return invalid("package.name", "is required")
	}
	if o.Quantity < 1 {
		return invalid("quantity", "must be at least 1")
	}
	if o.Total < 0 {
		return invalid("total", "must not be negative")
	}
	if _, ok := ParseOrderStatus(string(o.Status)); !ok {
		return invalid("status", "%q is not supported", o.Status)
	}
	return ValidateCustomer(o.Customer)
}

// ValidateCustomer requires a name and a well-formed email.
func ValidateCustomer(c Customer) error {
	if strings.TrimSpace(c.FirstName) == "" || strings.TrimSpace(c.LastName) == "" {
		return invalid("customer", "name is required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(c.Email)); err != nil {
		return invalid("customer.email", "is not a valid address")
	}
	return nil
}

// ConfirmedRevenue sums the totals of confirmed orders.
func ConfirmedRevenue(orders []Order) float64 {
	var total float64
	for _, o := range orders {
		if o.Status == OrderConfirmed {
			total += o.Total
		}
	}
	return total
}

// FilterOrders narrows orders by status and a case-insensitive search over number, customer
// name, email and package name.
func FilterOrders(orders []Order, status OrderStatus, query string) []Order {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if status != "" && o.Status != status {
			continue
		}
		if query != "" {
			haystack := strings.ToLower(strings.Join([]string{
				o.Number, o.Customer.FullName(), o.Customer.Email, o.Package.Name,
			}, " "))
			if !strings.Contains(haystack, query) {
				continue
			}
		}
		out = append(out, o)
	}
	return out
}
