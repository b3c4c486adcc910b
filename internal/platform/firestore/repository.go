package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Decoder hydrates the strongly typed entity from a snapshot.
type Decoder[T any] func(snap *firestore.DocumentSnapshot) (T, error)

// StructDecoder populates the target struct using Firestore's native decoding.
func StructDecoder[T any]() Decoder[T] {
	return func(snap *firestore.DocumentSnapshot) (T, error) {
		var target T
		if err := snap.DataTo(&target); err != nil {
			return target, err
		}
		return target, nil
	}
}

// Identity binds document ids to the entity type. Entities carry their id outside the stored
// fields.
type Identity[T any] struct {
	ID     func(T) string
	WithID func(T, string) T
}

// CollectionOption customises a Collection.
type CollectionOption[T any] func(*Collection[T])

// WithDecoder overrides snapshot decoding.
func WithDecoder[T any](decode Decoder[T]) CollectionOption[T] {
	return func(c *Collection[T]) {
		if decode != nil {
			c.decode = decode
		}
	}
}

// WithIDGenerator overrides document id assignment for new entities.
func WithIDGenerator[T any](gen func() string) CollectionOption[T] {
	return func(c *Collection[T]) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// Collection stores one entity type in a Firestore collection. New documents receive ULID ids so
// listing by document id descending returns the newest first.
type Collection[T any] struct {
	provider *Provider
	name     string
	identity Identity[T]
	decode   Decoder[T]
	newID    func() string
}

// NewCollection binds a Firestore collection to an entity type.
func NewCollection[T any](provider *Provider, name string, identity Identity[T], opts ...CollectionOption[T]) (*Collection[T], error) {
	if provider == nil {
		return nil, errors.New("firestore: provider is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("firestore: collection name is required")
	}
	if identity.ID == nil || identity.WithID == nil {
		return nil, errors.New("firestore: identity accessors are required")
	}
	c := &Collection[T]{
		provider: provider,
		name:     name,
		identity: identity,
		decode:   StructDecoder[T](),
		newID:    func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Name returns the Firestore collection name.
func (c *Collection[T]) Name() string { return c.name }

// List returns every document, newest first.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	coll, err := c.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	iter := coll.OrderBy(firestore.DocumentID, firestore.Desc).Documents(ctx)
	defer iter.Stop()

	items := make([]T, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(c.op("list"), err)
		}
		item, err := c.decodeSnapshot(snap)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Create stores item under its id, or a new one when it has none, and returns the stored entity.
func (c *Collection[T]) Create(ctx context.Context, item T) (T, error) {
	id := strings.TrimSpace(c.identity.ID(item))
	if id == "" {
		id = c.newID()
	}
	item = c.identity.WithID(item, id)

	doc, err := c.documentRef(ctx, id)
	if err != nil {
		return item, err
	}
	if _, err := doc.Create(ctx, item); err != nil {
		return item, WrapError(c.op("create"), err)
	}
	return item, nil
}

// Update merges patch into the document. A missing document yields a not-found error.
func (c *Collection[T]) Update(ctx context.Context, id string, patch map[string]any) error {
	updates, err := fieldUpdates[T](patch)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}
	doc, err := c.documentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Update(ctx, updates); err != nil {
		return WrapError(c.op("update"), err)
	}
	return nil
}

// Delete removes the document. Deleting a missing document succeeds.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	doc, err := c.documentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Delete(ctx); err != nil {
		return WrapError(c.op("delete"), err)
	}
	return nil
}

// Set replaces the document with id.
func (c *Collection[T]) Set(ctx context.Context, id string, item T) error {
	doc, err := c.documentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Set(ctx, c.identity.WithID(item, id)); err != nil {
		return WrapError(c.op("set"), err)
	}
	return nil
}

// Watch streams full-collection snapshots to fn until ctx is cancelled.
func (c *Collection[T]) Watch(ctx context.Context, fn func([]T)) error {
	coll, err := c.collectionRef(ctx)
	if err != nil {
		return err
	}
	snapshots := coll.OrderBy(firestore.DocumentID, firestore.Desc).Snapshots(ctx)
	defer snapshots.Stop()

	for {
		snap, err := snapshots.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return context.Canceled
			}
			return WrapError(c.op("watch"), err)
		}
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return WrapError(c.op("watch"), err)
		}
		items := make([]T, 0, len(docs))
		for _, doc := range docs {
			item, err := c.decodeSnapshot(doc)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		fn(items)
	}
}

func (c *Collection[T]) decodeSnapshot(snap *firestore.DocumentSnapshot) (T, error) {
	item, err := c.decode(snap)
	if err != nil {
		return item, fmt.Errorf("firestore: decode %s/%s: %w", c.name, snap.Ref.ID, err)
	}
	return c.identity.WithID(item, snap.Ref.ID), nil
}

func (c *Collection[T]) collectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

func (c *Collection[T]) documentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := c.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (c *Collection[T]) op(action string) string {
	return fmt.Sprintf("%s.%s", c.name, action)
}
