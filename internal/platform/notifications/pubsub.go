package notifications

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/solestore/api/internal/services"
)

// PubSubNotifier publishes events to a Cloud Pub/Sub topic with ordering by order ID.
type PubSubNotifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

var _ services.OrderNotifier = (*PubSubNotifier)(nil)

func NewPubSubNotifier(topic *pubsub.Topic) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("pubsub notifier: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubNotifier{topic: topic}, nil
}

// Notify publishes and waits for the server acknowledgement.
func (p *PubSubNotifier) Notify(ctx context.Context, n services.OrderNotification) error {
	event := NewEvent(n)
	data, err := event.encode()
	if err != nil {
		return fmt.Errorf("pubsub notifier: marshal event: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  event.Attributes(),
		OrderingKey: event.OrderID,
	})
	if _, err := result.Get(ctx); err != nil {
		p.topic.ResumePublish(event.OrderID)
		return fmt.Errorf("pubsub notifier: publish %s: %w", event.Kind, err)
	}
	return nil
}

// Close flushes pending messages and closes the client when the notifier owns it.
func (p *PubSubNotifier) Close() error {
	p.topic.Stop()
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
