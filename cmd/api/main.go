package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/xtruel/roma-map-revamp/internal/collections"
	"github.com/xtruel/roma-map-revamp/internal/di"
	"github.com/xtruel/roma-map-revamp/internal/handlers"
	"github.com/xtruel/roma-map-revamp/internal/platform/auth"
	"github.com/xtruel/roma-map-revamp/internal/platform/config"
	pfirestore "github.com/xtruel/roma-map-revamp/internal/platform/firestore"
	"github.com/xtruel/roma-map-revamp/internal/platform/idempotency"
	"github.com/xtruel/roma-map-revamp/internal/platform/jobs"
	"github.com/xtruel/roma-map-revamp/internal/platform/kvstore"
	"github.com/xtruel/roma-map-revamp/internal/platform/observability"
	"github.com/xtruel/roma-map-revamp/internal/platform/secrets"
	platformstorage "github.com/xtruel/roma-map-revamp/internal/platform/storage"
)

const (
	idempotencyCleanupInterval = 15 * time.Minute
	idempotencyCleanupBatch    = 500
	idempotencyTTL             = 24 * time.Hour
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["ROMA_LOG_LEVEL"], envValues["ROMA_SECURITY_ENVIRONMENT"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	store, err := kvstore.OpenBolt(cfg.Local.DataPath)
	if err != nil {
		logger.Fatal("failed to open local store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("local store close error", zap.Error(err))
		}
	}()
	logger.Info("local store opened", zap.String("path", store.Path()), zap.String("keyPrefix", cfg.Local.KeyPrefix))

	var firestoreProvider *pfirestore.Provider
	if cfg.RemoteEnabled() {
		var providerOpts []pfirestore.ProviderOption
		if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
			providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(file)))
		}
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore, providerOpts...)
		defer func() {
			if err := firestoreProvider.Close(); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}()
	}

	var notifier collections.ChangeNotifier
	if topicName := strings.TrimSpace(cfg.PubSub.ChangesTopic); topicName != "" && cfg.PubSub.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, clientOptions(cfg)...)
		if err != nil {
			logger.Warn("pubsub unavailable; change events disabled", zap.Error(err))
		} else {
			defer func() {
				if err := pubsubClient.Close(); err != nil {
					logger.Warn("pubsub close error", zap.Error(err))
				}
			}()
			publisher, err := jobs.NewChangePublisher(pubsubClient.Topic(topicName))
			if err != nil {
				logger.Fatal("failed to initialise change publisher", zap.Error(err))
			}
			defer publisher.Close()
			notifier = publisher
		}
	}

	container, err := di.NewContainer(ctx, cfg, di.Deps{
		Store:     store,
		Firestore: firestoreProvider,
		Notifier:  notifier,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	container.OpenAll(ctx)

	watchCtx, watchCancel := context.WithCancel(context.Background())
	container.StartWatchers(watchCtx)

	imageOpts := []platformstorage.ImageStoreOption{
		platformstorage.WithPrefix(cfg.Storage.ImagesPrefix),
		platformstorage.WithMaxBytes(cfg.Storage.MaxUploadBytes),
		platformstorage.WithLogger(logger.Named("uploads")),
	}
	if bucket := strings.TrimSpace(cfg.Storage.ImagesBucket); bucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx, clientOptions(cfg)...)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		objects, err := platformstorage.NewGCSObjects(storageClient)
		if err != nil {
			logger.Fatal("failed to initialise image bucket", zap.Error(err))
		}
		imageOpts = append(imageOpts, platformstorage.WithObjectStore(objects, bucket))
	}
	images := platformstorage.NewImageStore(imageOpts...)

	authenticator, issuer := buildAuth(ctx, logger, cfg)

	idempotencyStore, err := idempotency.NewStore(store)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithTTL(idempotencyTTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupTicker := time.NewTicker(idempotencyCleanupInterval)
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		cleanupLogger := logger.Named("idempotency")
		for {
			select {
			case <-cleanupTicker.C:
				removed, err := idempotencyStore.CleanupExpired(cleanupCtx, time.Now().UTC(), idempotencyCleanupBatch)
				if err != nil {
					cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
					continue
				}
				if removed > 0 {
					cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	svc := container.Services
	publicHandlers := handlers.NewPublicHandlers(handlers.PublicDeps{
		Matches:             svc.Matches,
		Packages:            svc.Packages,
		Articles:            svc.Articles,
		Places:              svc.Places,
		Sponsors:            svc.Sponsors,
		Feedback:            svc.Feedback,
		Orders:              svc.Orders,
		CheckoutMiddlewares: []func(http.Handler) http.Handler{idempotencyMiddleware},
		FeedbackMiddlewares: []func(http.Handler) http.Handler{authenticator.OptionalIdentity()},
	})
	adminHandlers := handlers.NewAdminHandlers(handlers.AdminDeps{
		Authenticator: authenticator,
		Issuer:        issuer,
		Matches:       svc.Matches,
		Packages:      svc.Packages,
		Articles:      svc.Articles,
		Places:        svc.Places,
		Sponsors:      svc.Sponsors,
		Orders:        svc.Orders,
		Feedback:      svc.Feedback,
		Images:        images,
	})

	checks := []handlers.ReadinessCheck{
		{Name: "local_store", Check: func(context.Context) error { return store.Ping() }},
	}
	if firestoreProvider != nil {
		checks = append(checks, handlers.ReadinessCheck{Name: "firestore", Check: firestoreProvider.Ping})
	}
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(envValues, cfg, startedAt)),
		handlers.WithReadinessChecks(checks...),
		handlers.WithCollectionStatuses(container.Statuses),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware(projectID),
		observability.RequestLoggerMiddleware(logger.Named("http")),
		observability.RecoveryMiddleware(logger.Named("http")),
		handlers.CORSMiddleware(cfg.Server.AllowedOrigins),
		handlers.VisitorMiddleware(cfg.Security.Environment != "local"),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPublicRoutes(publicHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("roma api listening",
			zap.Bool("remote", cfg.RemoteEnabled()),
			zap.Bool("firebaseAuth", cfg.FirebaseAuthEnabled()),
			zap.Bool("remoteUploads", images.Remote()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	cleanupTicker.Stop()
	cleanupCancel()
	cleanupWG.Wait()

	watchCancel()
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("collection watchers did not stop in time", zap.Error(err))
	}
}

// buildAuth returns the admin authenticator. Firebase ID tokens are used when a Firebase project
// is configured; otherwise the configured admin account signs its own tokens.
func buildAuth(ctx context.Context, logger *zap.Logger, cfg config.Config) (*auth.Authenticator, *auth.LocalIssuer) {
	if cfg.FirebaseAuthEnabled() {
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
		}
		return auth.NewAuthenticator(verifier), nil
	}
	issuer, err := auth.NewLocalIssuer(auth.Credentials{
		Email:    cfg.Admin.Email,
		Password: cfg.Admin.Password,
		Name:     cfg.Admin.DisplayName,
	}, cfg.Admin.TokenSecret, cfg.Admin.TokenTTL)
	if err != nil {
		logger.Fatal("failed to initialise admin login", zap.Error(err))
	}
	return auth.NewAuthenticator(issuer), issuer
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["ROMA_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["ROMA_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Security.Environment,
		StartedAt:   started,
	}
}

func clientOptions(cfg config.Config) []option.ClientOption {
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("ROMA_SECRET_PROJECT_ID")
	if project == "" {
		project = lookup("ROMA_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("ROMA_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
		secrets.WithFallbackFile(fallbackPath),
	}
	if file := lookup("ROMA_FIREBASE_CREDENTIALS_FILE"); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	return secrets.NewFetcher(ctx, opts...)
}
