package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xtruel/roma-map-revamp/internal/collections"
	"github.com/xtruel/roma-map-revamp/internal/domain"
)

// ErrPlaceServiceMissing signals that the sponsor service has no place service.
var ErrPlaceServiceMissing = errors.New("sponsor service: place service is not configured")

// SponsorServiceDeps groups constructor parameters for the sponsor service.
type SponsorServiceDeps struct {
	Sync   SyncDeps
	Remote collections.Backend[domain.SponsorDetails]
	Places PlaceService
}

type sponsorService struct {
	*Collection[domain.SponsorDetails]
	places PlaceService
	logger *zap.Logger
}

// NewSponsorService mounts the sponsor overlay collection.
func NewSponsorService(deps SponsorServiceDeps) (SponsorService, error) {
	if deps.Places == nil {
		return nil, ErrPlaceServiceMissing
	}
	coll, err := mountCollection(deps.Sync, collectionDef[domain.SponsorDetails]{
		schema:   SponsorSchema,
		key:      deps.Sync.key(CollectionSponsors),
		defaults: []domain.SponsorDetails{},
		policy:   userDataSeedPolicy,
		remote:   deps.Remote,
	})
	if err != nil {
		return nil, fmt.Errorf("sponsor service: %w", err)
	}
	logger := deps.Sync.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sponsorService{Collection: coll, places: deps.Places, logger: logger.Named("sponsors")}, nil
}

// Restaurants joins restaurant places with their overlay, sponsors first.
func (s *sponsorService) Restaurants(ctx context.Context) []domain.Restaurant {
	return domain.JoinRestaurants(s.places.List(ctx), s.List(ctx))
}

// Sponsors returns only the restaurants flagged as partners.
func (s *sponsorService) Sponsors(ctx context.Context) []domain.Restaurant {
	all := s.Restaurants(ctx)
	out := make([]domain.Restaurant, 0, len(all))
	for _, r := range all {
		if r.IsSponsor {
			out = append(out, r)
		}
	}
	return out
}

// Save updates the restaurant place and then its overlay entry. The two writes are independent:
// a failed overlay write leaves the place update in place.
func (s *sponsorService) Save(ctx context.Context, placeID string, update SponsorUpdate) (domain.Restaurant, error) {
	placeID = strings.TrimSpace(placeID)
	place, err := s.places.Get(ctx, placeID)
	if err != nil {
		return domain.Restaurant{}, err
	}
	if place.Category != domain.CategoryRestaurants {
		return domain.Restaurant{}, fmt.Errorf("%w: place %s is not a restaurant", ErrInvalidInput, placeID)
	}

	if len(update.Place) > 0 {
		if _, isCategory := update.Place["category"]; isCategory {
			return domain.Restaurant{}, fmt.Errorf("%w: category cannot change through a sponsor save", ErrInvalidInput)
		}
		if place, err = s.places.Update(ctx, placeID, update.Place); err != nil {
			return domain.Restaurant{}, err
		}
	}

	details := update.Details
	details.ID = placeID
	if _, err := s.Get(ctx, placeID); errors.Is(err, ErrNotFound) {
		_, err = s.Create(ctx, details)
		if err != nil {
			s.logger.Warn("sponsor overlay write failed after place update", zap.String("placeId", placeID), zap.Error(err))
			return domain.Restaurant{}, err
		}
	} else {
		patch := collections.Patch{
			"phone":        details.Phone,
			"website":      details.Website,
			"openingHours": details.OpeningHours,
			"discount":     details.Discount,
			"isSponsor":    details.IsSponsor,
		}
		if _, err := s.Update(ctx, placeID, patch); err != nil {
			s.logger.Warn("sponsor overlay write failed after place update", zap.String("placeId", placeID), zap.Error(err))
			return domain.Restaurant{}, err
		}
	}

	joined := domain.JoinRestaurants([]domain.Place{place}, s.List(ctx))
	if len(joined) == 0 {
		return domain.Restaurant{}, fmt.Errorf("%w: restaurant %s", ErrNotFound, placeID)
	}
	return joined[0], nil
}
