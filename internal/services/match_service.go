package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xtruel/roma-map-revamp/internal/collections"
	"github.com/xtruel/roma-map-revamp/internal/domain"
	"github.com/xtruel/roma-map-revamp/internal/seed"
)

// MatchServiceDeps groups constructor parameters for the match service. Nil Defaults load the
// embedded fixture list.
type MatchServiceDeps struct {
	Sync     SyncDeps
	Remote   collections.Backend[domain.Match]
	Defaults []domain.Match
}

type matchService struct {
	*Collection[domain.Match]
	clock func() time.Time
}

// NewMatchService mounts the match collection.
func NewMatchService(deps MatchServiceDeps) (MatchService, error) {
	defaults := deps.Defaults
	if defaults == nil {
		var err error
		if defaults, err = seed.Matches(); err != nil {
			return nil, fmt.Errorf("match service: %w", err)
		}
	}
	coll, err := mountCollection(deps.Sync, collectionDef[domain.Match]{
		schema:   MatchSchema,
		key:      deps.Sync.key(CollectionMatches),
		defaults: defaults,
		policy:   MatchSeedPolicy,
		remote:   deps.Remote,
	})
	if err != nil {
		return nil, fmt.Errorf("match service: %w", err)
	}
	svc := &matchService{Collection: coll, clock: deps.Sync.clock()}
	if outcome := coll.seed.Outcome; outcome == collections.SeedCreated || outcome == collections.SeedReplaced {
		if _, ok := domain.NextMatch(defaults, svc.clock()); !ok {
			coll.logger.Warn("default fixtures have no upcoming match; replace the dataset and bump the matches schema version",
				zap.Int("count", len(defaults)),
				zap.String("today", domain.Today(svc.clock())),
			)
		}
	}
	return svc, nil
}

func (s *matchService) Upcoming(ctx context.Context) []domain.Match {
	return domain.UpcomingMatches(s.List(ctx), s.clock())
}

func (s *matchService) Next(ctx context.Context) (domain.Match, bool) {
	return domain.NextMatch(s.List(ctx), s.clock())
}

func (s *matchService) Home(ctx context.Context) []domain.Match {
	return domain.HomeMatches(s.List(ctx))
}
