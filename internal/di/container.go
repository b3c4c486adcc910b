package di

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"

	"github.com/xtruel/roma-map-revamp/internal/collections"
	"github.com/xtruel/roma-map-revamp/internal/domain"
	"github.com/xtruel/roma-map-revamp/internal/payments"
	"github.com/xtruel/roma-map-revamp/internal/platform/config"
	pfirestore "github.com/xtruel/roma-map-revamp/internal/platform/firestore"
	"github.com/xtruel/roma-map-revamp/internal/platform/kvstore"
	"github.com/xtruel/roma-map-revamp/internal/services"
)

// Services exposes the domain services mounted by the container.
type Services struct {
	Matches  services.MatchService
	Packages services.PackageService
	Articles services.ArticleService
	Places   services.PlaceService
	Sponsors services.SponsorService
	Feedback services.FeedbackService
	Orders   services.OrderService
	Payments *payments.Manager
}

// Deps are the process-level resources the container builds services on. Store is required;
// Firestore is optional and only used when remote mirroring is enabled.
type Deps struct {
	Store     kvstore.Store
	Firestore *pfirestore.Provider
	Notifier  collections.ChangeNotifier
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Container aggregates configuration and services for the application runtime.
type Container struct {
	Config   config.Config
	Services Services

	logger   *zap.Logger
	remote   bool
	watchers sync.WaitGroup
	backoff  gax.Backoff
}

// defaultWatchBackoff paces restarts of failed snapshot listeners.
var defaultWatchBackoff = gax.Backoff{Initial: time.Second, Max: time.Minute, Multiplier: 2}

// NewContainer wires every collection service according to cfg.
func NewContainer(_ context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Store == nil {
		return nil, services.ErrStoreMissing
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	var provider *pfirestore.Provider
	if cfg.RemoteEnabled() {
		provider = deps.Firestore
		if provider == nil {
			logger.Warn("firestore project configured without a provider; collections stay local")
		}
	}

	syncDeps := services.SyncDeps{
		Store:         deps.Store,
		KeyPrefix:     cfg.Local.KeyPrefix,
		Logger:        logger.Named("collections"),
		Notifier:      deps.Notifier,
		RemoteTimeout: cfg.Sync.RemoteTimeout,
		Clock:         clock,
	}

	svc, err := buildServices(cfg, syncDeps, provider, clock, logger)
	if err != nil {
		return nil, err
	}
	return &Container{
		Config:   cfg,
		Services: svc,
		logger:   logger,
		remote:   provider != nil,
		backoff:  defaultWatchBackoff,
	}, nil
}

func buildServices(cfg config.Config, syncDeps services.SyncDeps, provider *pfirestore.Provider, clock func() time.Time, logger *zap.Logger) (Services, error) {
	var svc Services

	matchRemote, err := remoteBackend(provider, services.MatchSchema)
	if err != nil {
		return Services{}, fmt.Errorf("build match backend: %w", err)
	}
	if svc.Matches, err = services.NewMatchService(services.MatchServiceDeps{Sync: syncDeps, Remote: matchRemote}); err != nil {
		return Services{}, fmt.Errorf("build match service: %w", err)
	}

	packageRemote, err := remoteBackend(provider, services.PackageSchema)
	if err != nil {
		return Services{}, fmt.Errorf("build package backend: %w", err)
	}
	if svc.Packages, err = services.NewPackageService(services.PackageServiceDeps{Sync: syncDeps, Remote: packageRemote}); err != nil {
		return Services{}, fmt.Errorf("build package service: %w", err)
	}

	articleRemote, err := remoteBackend(provider, services.ArticleSchema)
	if err != nil {
		return Services{}, fmt.Errorf("build article backend: %w", err)
	}
	if svc.Articles, err = services.NewArticleService(services.ArticleServiceDeps{Sync: syncDeps, Remote: articleRemote}); err != nil {
		return Services{}, fmt.Errorf("build article service: %w", err)
	}

	placeRemote, err := remoteBackend(provider, services.PlaceSchema)
	if err != nil {
		return Services{}, fmt.Errorf("build place backend: %w", err)
	}
	if svc.Places, err = services.NewPlaceService(services.PlaceServiceDeps{Sync: syncDeps, Remote: placeRemote}); err != nil {
		return Services{}, fmt.Errorf("build place service: %w", err)
	}

	sponsorRemote, err := remoteBackend(provider, services.SponsorSchema)
	if err != nil {
		return Services{}, fmt.Errorf("build sponsor backend: %w", err)
	}
	if svc.Sponsors, err = services.NewSponsorService(services.SponsorServiceDeps{Sync: syncDeps, Remote: sponsorRemote, Places: svc.Places}); err != nil {
		return Services{}, fmt.Errorf("build sponsor service: %w", err)
	}

	var feedbackRemote services.FeedbackRemoteFactory
	if provider != nil {
		feedbackRemote = func(collection string) (collections.Backend[domain.Feedback], error) {
			schema := services.FeedbackSchema(services.FeedbackRef{})
			return remoteBackend(provider, collections.Schema[domain.Feedback]{Name: collection, ID: schema.ID, WithID: schema.WithID})
		}
	}
	if svc.Feedback, err = services.NewFeedbackService(services.FeedbackServiceDeps{Sync: syncDeps, Remote: feedbackRemote}); err != nil {
		return Services{}, fmt.Errorf("build feedback service: %w", err)
	}

	if svc.Payments, err = buildPayments(cfg.PSP, clock, logger); err != nil {
		return Services{}, fmt.Errorf("build payments: %w", err)
	}

	orderRemote, err := remoteBackend(provider, services.OrderSchema)
	if err != nil {
		return Services{}, fmt.Errorf("build order backend: %w", err)
	}
	svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Sync:     syncDeps,
		Remote:   orderRemote,
		Packages: svc.Packages,
		Payments: svc.Payments,
		URLs:     services.CheckoutURLs{Success: cfg.PSP.SuccessURL, Cancel: cfg.PSP.CancelURL},
		Currency: cfg.PSP.Currency,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	return svc, nil
}

// remoteBackend returns a Firestore backend for schema, or a nil interface when remote mirroring
// is disabled so the collection is served from the local store.
func remoteBackend[T any](provider *pfirestore.Provider, schema collections.Schema[T]) (collections.Backend[T], error) {
	if provider == nil {
		return nil, nil
	}
	coll, err := pfirestore.NewCollection(provider, schema.Name, pfirestore.Identity[T]{ID: schema.ID, WithID: schema.WithID})
	if err != nil {
		return nil, err
	}
	return coll, nil
}

func buildPayments(cfg config.PSPConfig, clock func() time.Time, logger *zap.Logger) (*payments.Manager, error) {
	providers := map[string]payments.Provider{
		payments.ProviderSimulated: payments.NewSimulatedProvider(clock),
	}
	if cfg.StripeAPIKey != "" {
		stripeLogger := logger.Named("stripe")
		stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.StripeAPIKey,
			Clock:  clock,
			Logger: func(_ context.Context, event string, fields map[string]any) {
				zFields := make([]zap.Field, 0, len(fields)+1)
				zFields = append(zFields, zap.String("event", event))
				for k, v := range fields {
					zFields = append(zFields, zap.Any(k, v))
				}
				stripeLogger.Debug("stripe log", zFields...)
			},
		})
		if err != nil {
			return nil, err
		}
		providers[payments.ProviderStripe] = stripe
	}
	return payments.NewManager(providers)
}

// Collections returns every mounted collection keyed by its admin name.
func (c *Container) Collections() map[string]services.Synced {
	return map[string]services.Synced{
		services.CollectionMatches:  c.Services.Matches,
		services.CollectionPackages: c.Services.Packages,
		services.CollectionArticles: c.Services.Articles,
		services.CollectionPlaces:   c.Services.Places,
		"sponsors":                  c.Services.Sponsors,
		services.CollectionOrders:   c.Services.Orders,
	}
}

// OpenAll mounts every collection so the first request does not pay for the initial load.
func (c *Container) OpenAll(ctx context.Context) {
	for _, name := range c.names() {
		c.Collections()[name].Open(ctx)
	}
}

// StartWatchers follows remote snapshots for every collection until ctx is cancelled. It is a
// no-op when remote mirroring is disabled or watching is turned off. A listener that fails is
// restarted with backoff.
func (c *Container) StartWatchers(ctx context.Context) {
	if !c.remote || !c.Config.Sync.Watch {
		return
	}
	colls := c.Collections()
	for _, name := range c.names() {
		coll := colls[name]
		logger := c.logger.With(zap.String("collection", name))
		c.watchers.Add(1)
		go func() {
			defer c.watchers.Done()
			watchWithRetry(ctx, coll.Watch, c.backoff, logger)
		}()
	}
}

// watchWithRetry runs watch until ctx is cancelled or live updates turn out to be unsupported.
// The backoff starts over once a listener has stayed up longer than its maximum pause.
func watchWithRetry(ctx context.Context, watch func(context.Context) error, backoff gax.Backoff, logger *zap.Logger) {
	bo := backoff
	for {
		started := time.Now()
		err := watch(ctx)
		switch {
		case ctx.Err() != nil, err == nil, errors.Is(err, context.Canceled):
			return
		case errors.Is(err, collections.ErrWatchUnsupported):
			logger.Debug("collection does not support live updates")
			return
		}
		if backoff.Max > 0 && time.Since(started) > backoff.Max {
			bo = backoff
		}
		pause := bo.Pause()
		logger.Warn("collection watch stopped, restarting", zap.Error(err), zap.Duration("retryIn", pause))
		if err := gax.Sleep(ctx, pause); err != nil {
			return
		}
	}
}

// Statuses reports the sync state of every collection including feedback threads, sorted by name.
func (c *Container) Statuses() []services.CollectionStatus {
	colls := c.Collections()
	out := make([]services.CollectionStatus, 0, len(colls))
	for _, name := range c.names() {
		out = append(out, colls[name].Status())
	}
	out = append(out, c.Services.Feedback.Threads()...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close waits for watchers started with StartWatchers. Callers cancel the watch context first.
func (c *Container) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.watchers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Container) names() []string {
	names := make([]string, 0, 6)
	for name := range c.Collections() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
