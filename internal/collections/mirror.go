package collections

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const (
	defaultRemoteTimeout = 15 * time.Second
	metricNamespace      = "github.com/xtruel/roma-map-revamp/internal/collections"
)

// State is the synchronisation mode of a Mirror.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLocalOnly     State = "local_only"
	StateLoading       State = "loading"
	StateRemoteSynced  State = "remote_synced"
	StateDegradedLocal State = "degraded_local"
)

// MirrorOption customises a Mirror.
type MirrorOption func(*mirrorOptions)

type mirrorOptions struct {
	logger   *zap.Logger
	notifier ChangeNotifier
	timeout  time.Duration
	meter    metric.Meter
	clock    func() time.Time
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) MirrorOption {
	return func(o *mirrorOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithNotifier registers a receiver for committed mutations.
func WithNotifier(notifier ChangeNotifier) MirrorOption {
	return func(o *mirrorOptions) {
		o.notifier = notifier
	}
}

// WithRemoteTimeout bounds each remote call. Zero disables the bound.
func WithRemoteTimeout(timeout time.Duration) MirrorOption {
	return func(o *mirrorOptions) {
		if timeout >= 0 {
			o.timeout = timeout
		}
	}
}

// WithMeter overrides the OpenTelemetry meter.
func WithMeter(meter metric.Meter) MirrorOption {
	return func(o *mirrorOptions) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithClock overrides the time source used for change events.
func WithClock(clock func() time.Time) MirrorOption {
	return func(o *mirrorOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// Mirror exposes one collection through an in-memory copy backed by the local cache and, when
// configured, a remote backend. Mutations are serialised; reads never wait on remote calls.
type Mirror[T any] struct {
	schema   Schema[T]
	cache    *LocalStore[T]
	local    Backend[T]
	remote   Backend[T]
	logger   *zap.Logger
	notifier ChangeNotifier
	timeout  time.Duration
	clock    func() time.Time

	mutations      metric.Int64Counter
	remoteFailures metric.Int64Counter

	opMu sync.Mutex

	mu      sync.RWMutex
	state   State
	items   []T
	loading bool
	lastErr string
}

// NewMirror builds a Mirror over cache. A nil remote selects local-only mode for the process
// lifetime.
func NewMirror[T any](cache *LocalStore[T], remote Backend[T], opts ...MirrorOption) *Mirror[T] {
	options := mirrorOptions{
		logger:  zap.NewNop(),
		timeout: defaultRemoteTimeout,
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.meter == nil {
		options.meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	m := &Mirror[T]{
		schema:   cache.Schema(),
		cache:    cache,
		local:    LocalBackend(cache),
		remote:   remote,
		logger:   options.logger.With(zap.String("collection", cache.Schema().Name)),
		notifier: options.notifier,
		timeout:  options.timeout,
		clock:    options.clock,
		state:    StateUninitialized,
		items:    []T{},
	}

	var err error
	m.mutations, err = options.meter.Int64Counter(
		"collections.mutations",
		metric.WithDescription("Committed collection mutations"),
	)
	if err != nil {
		m.logger.Warn("collections: unable to register mutation metric", zap.Error(err))
	}
	m.remoteFailures, err = options.meter.Int64Counter(
		"collections.remote.failures",
		metric.WithDescription("Failed remote collection calls"),
	)
	if err != nil {
		m.logger.Warn("collections: unable to register failure metric", zap.Error(err))
	}
	return m
}

// Name returns the collection name.
func (m *Mirror[T]) Name() string { return m.schema.Name }

// Open performs the initial load. Calling it again has no effect.
func (m *Mirror[T]) Open(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.open(ctx)
}

// Items returns a copy of the current collection.
func (m *Mirror[T]) Items() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]T{}, m.items...)
}

// Find returns the record with id from the current collection.
func (m *Mirror[T]) Find(id string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if idx := m.schema.indexOf(m.items, id); idx >= 0 {
		return m.items[idx], true
	}
	var zero T
	return zero, false
}

// Loading reports whether the initial remote load is in flight.
func (m *Mirror[T]) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// Err returns the message of the most recent failure, or an empty string.
func (m *Mirror[T]) Err() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// State returns the synchronisation mode.
func (m *Mirror[T]) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Configured reports whether a remote backend was supplied.
func (m *Mirror[T]) Configured() bool { return m.remote != nil }

// Add stores item and returns its identifier.
func (m *Mirror[T]) Add(ctx context.Context, item T) (string, bool) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.open(ctx)

	if m.isRemote() {
		var created T
		err := m.callRemote(ctx, func(ctx context.Context) error {
			var err error
			created, err = m.remote.Create(ctx, item)
			return err
		})
		if err != nil {
			m.fail(ctx, OpAdd, err)
			return "", false
		}
		id := m.schema.ID(created)
		m.commit(func(items []T) []T {
			return append([]T{created}, items...)
		})
		m.writeCache()
		m.succeeded(ctx, OpAdd, id)
		return id, true
	}

	created, err := m.local.Create(ctx, item)
	if err != nil {
		m.fail(ctx, OpAdd, err)
		return "", false
	}
	m.reloadLocal()
	id := m.schema.ID(created)
	m.succeeded(ctx, OpAdd, id)
	return id, true
}

// Update merges patch into the record with id. A missing record is a successful no-op.
func (m *Mirror[T]) Update(ctx context.Context, id string, patch Patch) bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.open(ctx)

	if strings.TrimSpace(id) == "" {
		m.fail(ctx, OpUpdate, ErrMissingID)
		return false
	}

	if m.isRemote() {
		current, found := m.Find(id)
		var updated T
		if found {
			var err error
			if updated, err = ApplyPatch(current, patch); err != nil {
				m.fail(ctx, OpUpdate, err)
				return false
			}
			updated = m.schema.WithID(updated, id)
		}
		err := m.callRemote(ctx, func(ctx context.Context) error {
			return m.remote.Update(ctx, id, patch)
		})
		if err != nil && !isNotFound(err) {
			m.fail(ctx, OpUpdate, err)
			return false
		}
		if found && err != nil {
			// Deleted remotely since the last load.
			m.logger.Info("collections: record vanished remotely, dropping it",
				zap.String("collection", m.schema.Name), zap.String("id", id))
			m.commit(func(items []T) []T {
				return m.schema.without(items, id)
			})
			m.writeCache()
			m.succeeded(ctx, OpRemove, id)
			return true
		}
		if found {
			m.commit(func(items []T) []T {
				if idx := m.schema.indexOf(items, id); idx >= 0 {
					items[idx] = updated
				}
				return items
			})
			m.writeCache()
		}
		m.succeeded(ctx, OpUpdate, id)
		return true
	}

	if err := m.local.Update(ctx, id, patch); err != nil {
		m.fail(ctx, OpUpdate, err)
		return false
	}
	m.reloadLocal()
	m.succeeded(ctx, OpUpdate, id)
	return true
}

// Remove deletes the record with id. A missing record is a successful no-op.
func (m *Mirror[T]) Remove(ctx context.Context, id string) bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.open(ctx)

	if m.isRemote() {
		err := m.callRemote(ctx, func(ctx context.Context) error {
			return m.remote.Delete(ctx, id)
		})
		if err != nil && !isNotFound(err) {
			m.fail(ctx, OpRemove, err)
			return false
		}
		m.commit(func(items []T) []T {
			return m.schema.without(items, id)
		})
		m.writeCache()
		m.succeeded(ctx, OpRemove, id)
		return true
	}

	if err := m.local.Delete(ctx, id); err != nil {
		m.fail(ctx, OpRemove, err)
		return false
	}
	m.reloadLocal()
	m.succeeded(ctx, OpRemove, id)
	return true
}

// Refresh re-reads the active source. A failed remote read keeps the current items.
func (m *Mirror[T]) Refresh(ctx context.Context) bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.State() == StateUninitialized {
		m.open(ctx)
		return m.Err() == ""
	}

	if !m.isRemote() {
		m.reloadLocal()
		m.clearErr()
		return true
	}

	var items []T
	err := m.callRemote(ctx, func(ctx context.Context) error {
		var err error
		items, err = m.remote.List(ctx)
		return err
	})
	if err != nil {
		m.fail(ctx, OpRefresh, err)
		return false
	}
	m.commit(func([]T) []T { return nonNil(items) })
	m.writeCache()
	m.clearErr()
	return true
}

// Watch subscribes to remote snapshots until ctx is cancelled. Snapshots replace the in-memory
// copy and the local cache while the mirror is remote-synced.
func (m *Mirror[T]) Watch(ctx context.Context) error {
	watcher, ok := m.remote.(Watcher[T])
	if !ok || m.remote == nil {
		return ErrWatchUnsupported
	}
	m.Open(ctx)
	if m.State() != StateRemoteSynced {
		return ErrWatchUnsupported
	}
	err := watcher.Watch(ctx, func(items []T) {
		m.opMu.Lock()
		defer m.opMu.Unlock()
		if m.State() != StateRemoteSynced {
			return
		}
		m.commit(func([]T) []T { return nonNil(items) })
		m.writeCache()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("collections: live subscription ended", zap.Error(err))
		return err
	}
	return nil
}

func (m *Mirror[T]) open(ctx context.Context) {
	if m.State() != StateUninitialized {
		return
	}

	if m.remote == nil {
		m.mu.Lock()
		m.items = m.cache.Get()
		m.state = StateLocalOnly
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.state = StateLoading
	m.loading = true
	m.mu.Unlock()

	var items []T
	err := m.callRemote(ctx, func(ctx context.Context) error {
		var err error
		items, err = m.remote.List(ctx)
		return err
	})
	if err != nil {
		m.recordFailure(ctx, OpRefresh)
		m.logger.Warn("collections: remote load failed, serving local cache", zap.Error(err))
		m.mu.Lock()
		m.items = m.cache.Get()
		m.state = StateDegradedLocal
		m.loading = false
		m.lastErr = fmt.Sprintf("load %s: %v", m.schema.Name, err)
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.items = nonNil(items)
	m.state = StateRemoteSynced
	m.loading = false
	m.lastErr = ""
	m.mu.Unlock()
	m.writeCache()
}

func (m *Mirror[T]) isRemote() bool {
	return m.State() == StateRemoteSynced
}

func (m *Mirror[T]) callRemote(ctx context.Context, fn func(context.Context) error) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	return fn(ctx)
}

func (m *Mirror[T]) commit(mutate func([]T) []T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = mutate(append([]T{}, m.items...))
	m.lastErr = ""
}

func (m *Mirror[T]) reloadLocal() {
	items := m.cache.Get()
	m.mu.Lock()
	m.items = items
	m.lastErr = ""
	m.mu.Unlock()
}

func (m *Mirror[T]) clearErr() {
	m.mu.Lock()
	m.lastErr = ""
	m.mu.Unlock()
}

// writeCache mirrors the in-memory copy into the local cache. Failures are logged only; the remote
// store stays authoritative.
func (m *Mirror[T]) writeCache() {
	if err := m.cache.Set(m.Items()); err != nil {
		m.logger.Warn("collections: local cache write failed", zap.Error(err))
	}
}

func (m *Mirror[T]) fail(ctx context.Context, op Op, err error) {
	if m.isRemote() {
		m.recordFailure(ctx, op)
	}
	m.logger.Warn("collections: mutation failed",
		zap.String("op", string(op)),
		zap.String("state", string(m.State())),
		zap.Error(err),
	)
	m.mu.Lock()
	m.lastErr = fmt.Sprintf("%s %s: %v", op, m.schema.Name, err)
	m.mu.Unlock()
}

func (m *Mirror[T]) succeeded(ctx context.Context, op Op, id string) {
	state := m.State()
	if m.mutations != nil {
		m.mutations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("collection", m.schema.Name),
			attribute.String("op", string(op)),
			attribute.String("state", string(state)),
		))
	}
	if m.notifier == nil {
		return
	}
	event := ChangeEvent{
		Collection: m.schema.Name,
		Op:         op,
		ID:         id,
		State:      state,
		OccurredAt: m.clock().UTC(),
	}
	if err := m.notifier.NotifyChange(ctx, event); err != nil {
		m.logger.Warn("collections: change notification failed", zap.String("op", string(op)), zap.Error(err))
	}
}

func (m *Mirror[T]) recordFailure(ctx context.Context, op Op) {
	if m.remoteFailures == nil {
		return
	}
	m.remoteFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("collection", m.schema.Name),
		attribute.String("op", string(op)),
	))
}
