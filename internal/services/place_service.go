package services

import (
	"context"
	"fmt"

	"github.com/xtruel/roma-map-revamp/internal/collections"
	"github.com/xtruel/roma-map-revamp/internal/domain"
	"github.com/xtruel/roma-map-revamp/internal/seed"
)

// PlaceServiceDeps groups constructor parameters for the place service.
type PlaceServiceDeps struct {
	Sync     SyncDeps
	Remote   collections.Backend[domain.Place]
	Defaults []domain.Place
}

type placeService struct {
	*Collection[domain.Place]
}

// NewPlaceService mounts the place collection.
func NewPlaceService(deps PlaceServiceDeps) (PlaceService, error) {
	defaults := deps.Defaults
	if defaults == nil {
		var err error
		if defaults, err = seed.Places(); err != nil {
			return nil, fmt.Errorf("place service: %w", err)
		}
	}
	coll, err := mountCollection(deps.Sync, collectionDef[domain.Place]{
		schema:   PlaceSchema,
		key:      deps.Sync.key(CollectionPlaces),
		defaults: defaults,
		policy:   PlaceSeedPolicy,
		remote:   deps.Remote,
	})
	if err != nil {
		return nil, fmt.Errorf("place service: %w", err)
	}
	return &placeService{Collection: coll}, nil
}

func (s *placeService) ByCategory(ctx context.Context, category domain.PlaceCategory) []domain.Place {
	return domain.PlacesByCategory(s.List(ctx), category)
}

// Categories returns the catalogue in display order with per-category counts.
func (s *placeService) Categories(ctx context.Context) []CategorySummary {
	counts := domain.CountByCategory(s.List(ctx))
	catalogue := domain.PlaceCategories()
	out := make([]CategorySummary, 0, len(catalogue))
	for _, info := range catalogue {
		out = append(out, CategorySummary{CategoryInfo: info, Count: counts[info.ID]})
	}
	return out
}
