package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/xtruel/roma-map-revamp/internal/collections"
)

// ChangePublisher publishes committed collection mutations to a Pub/Sub topic so other
// instances and downstream consumers can react to them.
type ChangePublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
	timeout time.Duration
}

// NewChangePublisher constructs a Pub/Sub backed change publisher.
func NewChangePublisher(topic *pubsub.Topic) (*ChangePublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub change publisher: topic is required")
	}
	return &ChangePublisher{
		topic:   topic,
		marshal: json.Marshal,
		timeout: 10 * time.Second,
	}, nil
}

// NotifyChange implements collections.ChangeNotifier and waits for the server acknowledgement.
func (p *ChangePublisher) NotifyChange(ctx context.Context, event collections.ChangeEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub change publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	attrs := map[string]string{
		"collection": event.Collection,
		"op":         string(event.Op),
	}
	if id := strings.TrimSpace(event.ID); id != "" {
		attrs["id"] = id
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if _, err := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Close flushes pending messages.
func (p *ChangePublisher) Close() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}
