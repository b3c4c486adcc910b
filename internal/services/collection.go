package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xtruel/roma-map-revamp/internal/collections"
	"github.com/xtruel/roma-map-revamp/internal/domain"
	"github.com/xtruel/roma-map-revamp/internal/platform/kvstore"
)

const defaultKeyPrefix = "roma_"

var (
	// ErrNotFound is returned when a record id is unknown.
	ErrNotFound = errors.New("services: record not found")
	// ErrInvalidInput wraps validation failures of commands and records.
	ErrInvalidInput = errors.New("services: invalid input")
	// ErrConflict is returned when a create carries an id the collection already holds.
	ErrConflict = errors.New("services: record already exists")
	// ErrSyncFailed is the sentinel behind SyncError.
	ErrSyncFailed = errors.New("services: collection sync failed")
	// ErrStoreMissing signals that the key-value store dependency is absent.
	ErrStoreMissing = errors.New("services: key-value store is not configured")
)

// SyncError reports a mutation the mirrored collection rejected. Message carries the collection's
// error slot.
type SyncError struct {
	Collection string
	Op         collections.Op
	Message    string
}

func (e *SyncError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("services: %s %s failed: %s", e.Op, e.Collection, e.Message)
}

// Unwrap exposes ErrSyncFailed.
func (e *SyncError) Unwrap() error { return ErrSyncFailed }

// SyncDeps groups the dependencies shared by every mirrored collection.
type SyncDeps struct {
	Store         kvstore.Store
	KeyPrefix     string
	Logger        *zap.Logger
	Notifier      collections.ChangeNotifier
	RemoteTimeout time.Duration
	Clock         func() time.Time
}

func (d SyncDeps) key(name string) string {
	prefix := d.KeyPrefix
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultKeyPrefix
	}
	return prefix + name
}

func (d SyncDeps) clock() func() time.Time {
	if d.Clock == nil {
		return time.Now
	}
	return d.Clock
}

// CollectionStatus reports the synchronisation state of one collection.
type CollectionStatus struct {
	Name    string                  `json:"name"`
	Key     string                  `json:"key"`
	State   collections.State       `json:"state"`
	Remote  bool                    `json:"remote"`
	Loading bool                    `json:"loading"`
	Error   string                  `json:"error,omitempty"`
	Count   int                     `json:"count"`
	Seed    collections.SeedOutcome `json:"seed"`
}

// Collection wraps one mirrored collection with seeding and record validation.
type Collection[T any] struct {
	schema   collections.Schema[T]
	store    *collections.LocalStore[T]
	mirror   *collections.Mirror[T]
	defaults []T
	policy   collections.SeedPolicy
	logger   *zap.Logger
	seed     collections.SeedReport
}

// collectionDef describes a collection to mount.
type collectionDef[T any] struct {
	schema   collections.Schema[T]
	key      string
	defaults []T
	policy   collections.SeedPolicy
	remote   collections.Backend[T]
}

// mountCollection seeds the local store and builds its mirror. A nil remote selects local-only
// mode.
func mountCollection[T any](deps SyncDeps, def collectionDef[T]) (*Collection[T], error) {
	if deps.Store == nil {
		return nil, ErrStoreMissing
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := collections.NewLocalStore(deps.Store, def.key, def.schema)
	if err != nil {
		return nil, err
	}
	_, report, err := collections.Seed(store, def.defaults, def.policy)
	if err != nil {
		return nil, err
	}
	if report.Outcome != collections.SeedKept {
		logger.Info("collection seeded",
			zap.String("key", report.Key),
			zap.String("outcome", string(report.Outcome)),
			zap.String("found", string(report.Found)),
			zap.Int("count", report.Count),
		)
	}

	mirror := collections.NewMirror(store, def.remote,
		collections.WithLogger(logger),
		collections.WithNotifier(deps.Notifier),
		collections.WithRemoteTimeout(deps.RemoteTimeout),
		collections.WithClock(deps.clock()),
	)

	return &Collection[T]{
		schema:   def.schema,
		store:    store,
		mirror:   mirror,
		defaults: def.defaults,
		policy:   def.policy,
		logger:   logger.With(zap.String("collection", def.schema.Name)),
		seed:     report,
	}, nil
}

// Open mounts the mirror. Later calls have no effect.
func (c *Collection[T]) Open(ctx context.Context) {
	if c.mirror.State() == collections.StateUninitialized {
		c.mirror.Open(ctx)
	}
}

// List returns the current records, most recent first.
func (c *Collection[T]) List(ctx context.Context) []T {
	c.Open(ctx)
	return c.mirror.Items()
}

// Get returns the record with id.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	c.Open(ctx)
	item, ok := c.mirror.Find(strings.TrimSpace(id))
	if !ok {
		return item, fmt.Errorf("%w: %s %s", ErrNotFound, c.schema.Name, id)
	}
	return item, nil
}

// Create validates item and adds it to the collection. A caller-supplied id already present
// yields ErrConflict and leaves the mirror untouched.
func (c *Collection[T]) Create(ctx context.Context, item T) (T, error) {
	var zero T
	if err := c.validate(item); err != nil {
		return zero, err
	}
	c.Open(ctx)
	if id := strings.TrimSpace(c.schema.ID(item)); id != "" {
		if _, exists := c.mirror.Find(id); exists {
			return zero, fmt.Errorf("%w: %s %s", ErrConflict, c.schema.Name, id)
		}
	}
	id, ok := c.mirror.Add(ctx, item)
	if !ok {
		return zero, c.syncError(collections.OpAdd)
	}
	created, found := c.mirror.Find(id)
	if !found {
		return c.schema.WithID(item, id), nil
	}
	return created, nil
}

// Update merges patch into the record with id after validating the merged record.
func (c *Collection[T]) Update(ctx context.Context, id string, patch collections.Patch) (T, error) {
	current, err := c.Get(ctx, id)
	if err != nil {
		return current, err
	}
	merged, err := collections.ApplyPatch(current, patch)
	if err != nil {
		return current, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := c.validate(merged); err != nil {
		return current, err
	}
	if !c.mirror.Update(ctx, id, patch) {
		return current, c.syncError(collections.OpUpdate)
	}
	updated, found := c.mirror.Find(id)
	if !found {
		return current, fmt.Errorf("%w: %s %s", ErrNotFound, c.schema.Name, id)
	}
	return updated, nil
}

// Delete removes the record with id.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if _, err := c.Get(ctx, id); err != nil {
		return err
	}
	if !c.mirror.Remove(ctx, id) {
		return c.syncError(collections.OpRemove)
	}
	return nil
}

// Refresh re-reads the active source.
func (c *Collection[T]) Refresh(ctx context.Context) error {
	if !c.mirror.Refresh(ctx) {
		return c.syncError(collections.OpRefresh)
	}
	return nil
}

// Watch follows remote snapshots until ctx is cancelled.
func (c *Collection[T]) Watch(ctx context.Context) error {
	return c.mirror.Watch(ctx)
}

// Reset discards the locally stored collection, seeds the defaults again and refreshes the mirror.
func (c *Collection[T]) Reset(ctx context.Context) (collections.SeedReport, error) {
	if err := c.store.Clear(); err != nil {
		return collections.SeedReport{}, err
	}
	_, report, err := collections.Seed(c.store, c.defaults, c.policy)
	if err != nil {
		return report, err
	}
	c.seed = report
	if !c.mirror.Refresh(ctx) {
		return report, c.syncError(collections.OpRefresh)
	}
	c.logger.Info("collection reset", zap.Int("count", report.Count))
	return report, nil
}

// Export returns the stored bytes of the collection.
func (c *Collection[T]) Export() ([]byte, bool, error) {
	return c.store.Raw()
}

// Status reports the synchronisation state.
func (c *Collection[T]) Status() CollectionStatus {
	return CollectionStatus{
		Name:    c.schema.Name,
		Key:     c.store.Key(),
		State:   c.mirror.State(),
		Remote:  c.mirror.Configured(),
		Loading: c.mirror.Loading(),
		Error:   c.mirror.Err(),
		Count:   len(c.mirror.Items()),
		Seed:    c.seed.Outcome,
	}
}

func (c *Collection[T]) validate(item T) error {
	if c.schema.Validate == nil {
		return nil
	}
	if err := c.schema.Validate(item); err != nil {
		if errors.Is(err, domain.ErrInvalidRecord) {
			return fmt.Errorf("%w: %v", ErrInvalidInput, strings.TrimPrefix(err.Error(), domain.ErrInvalidRecord.Error()+": "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (c *Collection[T]) syncError(op collections.Op) error {
	msg := c.mirror.Err()
	if msg == "" {
		msg = "remote store unavailable"
	}
	return &SyncError{Collection: c.schema.Name, Op: op, Message: msg}
}
