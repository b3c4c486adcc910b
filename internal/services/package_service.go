package services

import (
	"context"
	"fmt"

	"github.com/xtruel/roma-map-revamp/internal/collections"
	"github.com/xtruel/roma-map-revamp/internal/domain"
	"github.com/xtruel/roma-map-revamp/internal/seed"
)

// PackageServiceDeps groups constructor parameters for the package service.
type PackageServiceDeps struct {
	Sync     SyncDeps
	Remote   collections.Backend[domain.PackageItem]
	Defaults []domain.PackageItem
}

type packageService struct {
	*Collection[domain.PackageItem]
}

// NewPackageService mounts the package collection.
func NewPackageService(deps PackageServiceDeps) (PackageService, error) {
	defaults := deps.Defaults
	if defaults == nil {
		var err error
		if defaults, err = seed.Packages(); err != nil {
			return nil, fmt.Errorf("package service: %w", err)
		}
	}
	coll, err := mountCollection(deps.Sync, collectionDef[domain.PackageItem]{
		schema:   PackageSchema,
		key:      deps.Sync.key(CollectionPackages),
		defaults: defaults,
		policy:   PackageSeedPolicy,
		remote:   deps.Remote,
	})
	if err != nil {
		return nil, fmt.Errorf("package service: %w", err)
	}
	return &packageService{Collection: coll}, nil
}

func (s *packageService) Active(ctx context.Context) []domain.PackageItem {
	return domain.ActivePackages(s.List(ctx))
}

func (s *packageService) OfType(ctx context.Context, kind domain.PackageType) []domain.PackageItem {
	return domain.PackagesOfType(s.List(ctx), kind)
}

func (s *packageService) Popular(ctx context.Context) []domain.PackageItem {
	return domain.PopularPackages(s.List(ctx))
}
