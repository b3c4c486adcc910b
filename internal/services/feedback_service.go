package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xtruel/roma-map-revamp/internal/collections"
	"github.com/xtruel/roma-map-revamp/internal/domain"
)

const anonymousName = "Anonimo"

var entityIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// FeedbackRemoteFactory returns the remote backend of one feedback thread. It is invoked once per
// thread, on first access.
type FeedbackRemoteFactory func(collection string) (collections.Backend[domain.Feedback], error)

// FeedbackServiceDeps groups constructor parameters for the feedback service. A nil Remote keeps
// every thread local.
type FeedbackServiceDeps struct {
	Sync   SyncDeps
	Remote FeedbackRemoteFactory
}

type feedbackThread struct {
	coll *Collection[domain.Feedback]
	// likes serialises like toggles, which read then write one record.
	likes sync.Mutex
}

type feedbackService struct {
	sync   SyncDeps
	remote FeedbackRemoteFactory
	clock  func() time.Time
	logger *zap.Logger

	mu      sync.Mutex
	threads map[string]*feedbackThread
}

// NewFeedbackService constructs the feedback service. Threads are mounted lazily.
func NewFeedbackService(deps FeedbackServiceDeps) (FeedbackService, error) {
	if deps.Sync.Store == nil {
		return nil, ErrStoreMissing
	}
	logger := deps.Sync.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &feedbackService{
		sync:    deps.Sync,
		remote:  deps.Remote,
		clock:   deps.Sync.clock(),
		logger:  logger,
		threads: make(map[string]*feedbackThread),
	}, nil
}

// ParseFeedbackRef validates a thread address taken from a request.
func ParseFeedbackRef(entityType, entityID string) (FeedbackRef, error) {
	kind, ok := domain.ParseEntityType(entityType)
	if !ok {
		return FeedbackRef{}, fmt.Errorf("%w: unknown entity type %q", ErrInvalidInput, entityType)
	}
	entityID = strings.TrimSpace(entityID)
	if !entityIDPattern.MatchString(entityID) {
		return FeedbackRef{}, fmt.Errorf("%w: entity id %q is not valid", ErrInvalidInput, entityID)
	}
	return FeedbackRef{Type: kind, ID: entityID}, nil
}

// CollectionName returns the collection and storage key suffix of the thread.
func (r FeedbackRef) CollectionName() string {
	return feedbackPrefix + string(r.Type) + "_" + r.ID
}

// Thread returns the feedback of one entity. Reading never persists a thread that holds no
// feedback yet.
func (s *feedbackService) Thread(ctx context.Context, ref FeedbackRef) (FeedbackThread, error) {
	thread, items, err := s.existing(ctx, ref)
	if err != nil {
		return FeedbackThread{}, err
	}
	if thread != nil {
		items = thread.coll.List(ctx)
	}
	return FeedbackThread{Items: items, Summary: domain.SummarizeFeedback(items)}, nil
}

func (s *feedbackService) Submit(ctx context.Context, ref FeedbackRef, cmd SubmitFeedbackCommand) (domain.Feedback, error) {
	name := strings.TrimSpace(cmd.AuthorName)
	if name == "" {
		name = strings.TrimSpace(cmd.Name)
	}
	if name == "" {
		if !cmd.Authenticated {
			return domain.Feedback{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		name = anonymousName
	}
	thread, err := s.thread(ref)
	if err != nil {
		return domain.Feedback{}, err
	}
	return thread.coll.Create(ctx, domain.Feedback{
		Name:    name,
		Avatar:  strings.TrimSpace(cmd.Avatar),
		Rating:  cmd.Rating,
		Comment: strings.TrimSpace(cmd.Comment),
		Date:    s.clock().UTC().Format(time.RFC3339),
		LikedBy: []string{},
	})
}

func (s *feedbackService) ToggleLike(ctx context.Context, ref FeedbackRef, feedbackID, visitorID string) (domain.Feedback, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return domain.Feedback{}, fmt.Errorf("%w: visitor id is required", ErrInvalidInput)
	}
	thread, _, err := s.existing(ctx, ref)
	if err != nil {
		return domain.Feedback{}, err
	}
	if thread == nil {
		return domain.Feedback{}, fmt.Errorf("%w: feedback %s", ErrNotFound, feedbackID)
	}
	thread.likes.Lock()
	defer thread.likes.Unlock()

	current, err := thread.coll.Get(ctx, feedbackID)
	if err != nil {
		return current, err
	}
	toggled := current.ToggleLike(visitorID)
	return thread.coll.Update(ctx, feedbackID, collections.Patch{
		"likes":   toggled.Likes,
		"likedBy": toggled.LikedBy,
	})
}

// Threads reports the status of every thread mounted so far.
func (s *feedbackService) Threads() []CollectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CollectionStatus, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t.coll.Status())
	}
	return out
}

// existing returns the mounted thread of ref, mounting it only when feedback for it is already
// stored locally or remotely. Otherwise it returns nil and an empty thread, keeping nothing.
func (s *feedbackService) existing(ctx context.Context, ref FeedbackRef) (*feedbackThread, []domain.Feedback, error) {
	name := ref.CollectionName()
	s.mu.Lock()
	t, ok := s.threads[name]
	s.mu.Unlock()
	if ok {
		return t, nil, nil
	}

	_, stored, err := s.sync.Store.Get(s.sync.key(name))
	if err != nil {
		return nil, nil, fmt.Errorf("feedback service: %w", err)
	}
	if stored {
		t, err = s.thread(ref)
		return t, nil, err
	}

	remote := s.remoteBackend(name)
	if remote == nil {
		return nil, []domain.Feedback{}, nil
	}
	listCtx := ctx
	if s.sync.RemoteTimeout > 0 {
		var cancel context.CancelFunc
		listCtx, cancel = context.WithTimeout(ctx, s.sync.RemoteTimeout)
		defer cancel()
	}
	items, err := remote.List(listCtx)
	if err != nil {
		s.logger.Warn("feedback remote read failed", zap.String("collection", name), zap.Error(err))
		return nil, []domain.Feedback{}, nil
	}
	if len(items) == 0 {
		return nil, []domain.Feedback{}, nil
	}
	t, err = s.thread(ref)
	return t, nil, err
}

func (s *feedbackService) remoteBackend(name string) collections.Backend[domain.Feedback] {
	if s.remote == nil {
		return nil
	}
	backend, err := s.remote(name)
	if err != nil {
		s.logger.Warn("feedback remote unavailable, thread stays local", zap.String("collection", name), zap.Error(err))
		return nil
	}
	return backend
}

// thread mounts the thread of ref, persisting it.
func (s *feedbackService) thread(ref FeedbackRef) (*feedbackThread, error) {
	name := ref.CollectionName()

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads[name]; ok {
		return t, nil
	}

	remote := s.remoteBackend(name)
	coll, err := mountCollection(s.sync, collectionDef[domain.Feedback]{
		schema:   FeedbackSchema(ref),
		key:      s.sync.key(name),
		defaults: []domain.Feedback{},
		policy:   userDataSeedPolicy,
		remote:   remote,
	})
	if err != nil {
		return nil, fmt.Errorf("feedback service: %w", err)
	}
	t := &feedbackThread{coll: coll}
	s.threads[name] = t
	return t, nil
}
