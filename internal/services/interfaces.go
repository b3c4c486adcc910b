package services

import (
	"context"

	"github.com/xtruel/roma-map-revamp/internal/collections"
	"github.com/xtruel/roma-map-revamp/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Match          = domain.Match
	PackageItem    = domain.PackageItem
	PackageType    = domain.PackageType
	Article        = domain.Article
	Place          = domain.Place
	PlaceCategory  = domain.PlaceCategory
	Feedback       = domain.Feedback
	Order          = domain.Order
	OrderStatus    = domain.OrderStatus
	Customer       = domain.Customer
	SponsorDetails = domain.SponsorDetails
	Restaurant     = domain.Restaurant
	Patch          = collections.Patch
)

// Synced is implemented by every mounted collection.
type Synced interface {
	Open(ctx context.Context)
	Refresh(ctx context.Context) error
	Watch(ctx context.Context) error
	Reset(ctx context.Context) (collections.SeedReport, error)
	Export() ([]byte, bool, error)
	Status() CollectionStatus
}

// Catalog is the record-level surface shared by the admin-editable collections.
type Catalog[T any] interface {
	Synced
	List(ctx context.Context) []T
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, id string, patch Patch) (T, error)
	Delete(ctx context.Context, id string) error
}

// MatchService exposes the fixture calendar.
type MatchService interface {
	Catalog[Match]
	Upcoming(ctx context.Context) []Match
	Next(ctx context.Context) (Match, bool)
	Home(ctx context.Context) []Match
}

// PackageService exposes the package catalogue.
type PackageService interface {
	Catalog[PackageItem]
	Active(ctx context.Context) []PackageItem
	OfType(ctx context.Context, kind PackageType) []PackageItem
	Popular(ctx context.Context) []PackageItem
}

// ArticleView is an article with its body rendered to sanitised HTML.
type ArticleView struct {
	Article
	HTML string `json:"html"`
}

// ArticleService exposes news articles.
type ArticleService interface {
	Catalog[Article]
	Published(ctx context.Context) []Article
	Featured(ctx context.Context) []Article
	Search(ctx context.Context, category, query string) []Article
	BySlug(ctx context.Context, slug string) (ArticleView, error)
	Render(article Article) (ArticleView, error)
}

// CategorySummary is a place category with the number of places in it.
type CategorySummary struct {
	domain.CategoryInfo
	Count int `json:"count"`
}

// PlaceService exposes the points of interest on the map.
type PlaceService interface {
	Catalog[Place]
	ByCategory(ctx context.Context, category PlaceCategory) []Place
	Categories(ctx context.Context) []CategorySummary
}

// SponsorUpdate carries the two halves of a sponsor save: place fields and overlay details.
type SponsorUpdate struct {
	Place   Patch          `json:"place,omitempty"`
	Details SponsorDetails `json:"details"`
}

// SponsorService manages the partner overlay on restaurant places.
type SponsorService interface {
	Synced
	Restaurants(ctx context.Context) []Restaurant
	Sponsors(ctx context.Context) []Restaurant
	Save(ctx context.Context, placeID string, update SponsorUpdate) (Restaurant, error)
}

// FeedbackRef addresses one feedback thread.
type FeedbackRef struct {
	Type domain.EntityType
	ID   string
}

// FeedbackThread is a thread with its aggregate.
type FeedbackThread struct {
	Items   []Feedback             `json:"items"`
	Summary domain.FeedbackSummary `json:"summary"`
}

// SubmitFeedbackCommand creates a feedback entry. AuthorName, when set, comes from an
// authenticated identity and takes precedence over Name.
type SubmitFeedbackCommand struct {
	Name       string
	AuthorName string
	Avatar     string
	Rating     int
	Comment    string

	// Authenticated callers without any name are recorded as anonymous.
	Authenticated bool
}

// FeedbackService manages per-entity feedback threads.
type FeedbackService interface {
	Thread(ctx context.Context, ref FeedbackRef) (FeedbackThread, error)
	Submit(ctx context.Context, ref FeedbackRef, cmd SubmitFeedbackCommand) (Feedback, error)
	ToggleLike(ctx context.Context, ref FeedbackRef, feedbackID, visitorID string) (Feedback, error)
	Threads() []CollectionStatus
}

// CheckoutCommand purchases a package.
type CheckoutCommand struct {
	PackageID      string
	Quantity       int
	Customer       Customer
	Provider       string
	IdempotencyKey string
}

// CheckoutResult is the created order and where to send the buyer next.
type CheckoutResult struct {
	Order       Order  `json:"order"`
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// OrderFilter narrows the admin order listing.
type OrderFilter struct {
	Status OrderStatus
	Query  string
}

// OrderSummary aggregates the order book.
type OrderSummary struct {
	Total     int     `json:"total"`
	Confirmed int     `json:"confirmed"`
	Pending   int     `json:"pending"`
	Cancelled int     `json:"cancelled"`
	Revenue   float64 `json:"revenue"`
}

// OrderService handles checkout and the admin order book.
type OrderService interface {
	Synced
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
	ConfirmPayment(ctx context.Context, orderID string) (Order, error)
	List(ctx context.Context, filter OrderFilter) []Order
	Get(ctx context.Context, id string) (Order, error)
	UpdateStatus(ctx context.Context, id string, status OrderStatus) (Order, error)
	Delete(ctx context.Context, id string) error
	Summary(ctx context.Context) OrderSummary
}
