package services

import (
	"github.com/xtruel/roma-map-revamp/internal/collections"
	"github.com/xtruel/roma-map-revamp/internal/domain"
)

// Collection names double as storage key suffixes and Firestore collection names.
const (
	CollectionMatches  = "matches"
	CollectionPackages = "packages"
	CollectionArticles = "articles"
	CollectionPlaces   = "places"
	CollectionOrders   = "orders"
	CollectionSponsors = "sponsor_restaurants"
	feedbackPrefix     = "feedback_"
)

// Seed policies per domain. Schema versions are bumped whenever the shipped defaults change shape.
var (
	MatchSeedPolicy   = collections.SeedPolicy{LegacyMinLength: 8}
	PackageSeedPolicy = collections.SeedPolicy{LegacyMinLength: 10}
	ArticleSeedPolicy = collections.SeedPolicy{LegacyMinLength: 3}
	PlaceSeedPolicy   = collections.SeedPolicy{LegacyMinLength: 30}
	// Collections without shipped defaults adopt every legacy array.
	userDataSeedPolicy = collections.SeedPolicy{}
)

// MatchSchema identifies and validates fixtures.
var MatchSchema = collections.Schema[domain.Match]{
	Name:    CollectionMatches,
	Version: 1,
	ID:      func(m domain.Match) string { return m.ID },
	WithID: func(m domain.Match, id string) domain.Match {
		m.ID = id
		return m
	},
	Validate: domain.ValidateMatch,
}

// PackageSchema identifies and validates packages.
var PackageSchema = collections.Schema[domain.PackageItem]{
	Name:    CollectionPackages,
	Version: 1,
	ID:      func(p domain.PackageItem) string { return p.ID },
	WithID: func(p domain.PackageItem, id string) domain.PackageItem {
		p.ID = id
		return p
	},
	Validate: domain.ValidatePackage,
}

// ArticleSchema identifies and validates articles.
var ArticleSchema = collections.Schema[domain.Article]{
	Name:    CollectionArticles,
	Version: 1,
	ID:      func(a domain.Article) string { return a.ID },
	WithID: func(a domain.Article, id string) domain.Article {
		a.ID = id
		return a
	},
	Validate: domain.ValidateArticle,
}

// PlaceSchema identifies and validates map places.
var PlaceSchema = collections.Schema[domain.Place]{
	Name:    CollectionPlaces,
	Version: 1,
	ID:      func(p domain.Place) string { return p.ID },
	WithID: func(p domain.Place, id string) domain.Place {
		p.ID = id
		return p
	},
	Validate: domain.ValidatePlace,
}

// OrderSchema identifies and validates orders.
var OrderSchema = collections.Schema[domain.Order]{
	Name:    CollectionOrders,
	Version: 1,
	ID:      func(o domain.Order) string { return o.ID },
	WithID: func(o domain.Order, id string) domain.Order {
		o.ID = id
		return o
	},
	Validate: domain.ValidateOrder,
}

// SponsorSchema identifies overlay entries by place id.
var SponsorSchema = collections.Schema[domain.SponsorDetails]{
	Name:    CollectionSponsors,
	Version: 1,
	ID:      func(d domain.SponsorDetails) string { return d.ID },
	WithID: func(d domain.SponsorDetails, id string) domain.SponsorDetails {
		d.ID = id
		return d
	},
}

// FeedbackSchema returns the schema of one feedback thread.
func FeedbackSchema(ref FeedbackRef) collections.Schema[domain.Feedback] {
	return collections.Schema[domain.Feedback]{
		Name:    ref.CollectionName(),
		Version: 1,
		ID:      func(f domain.Feedback) string { return f.ID },
		WithID: func(f domain.Feedback, id string) domain.Feedback {
			f.ID = id
			return f
		},
		Validate: domain.ValidateFeedback,
	}
}
