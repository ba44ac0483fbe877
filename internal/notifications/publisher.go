package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/readstack/readstack-backend/pkg/db/models"
)

type pubsubPublisher struct {
	topic *pubsub.Publisher
}

// NewPubSubPublisher adapts a Pub/Sub topic publisher to the notification
// fan-out surface. Delivery workers (email, push) consume from the topic.
func NewPubSubPublisher(topic *pubsub.Publisher) (Publisher, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	return &pubsubPublisher{topic: topic}, nil
}

func (p *pubsubPublisher) Publish(ctx context.Context, notification *models.Notification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind":      notification.Kind.String(),
			"member_id": notification.MemberID.String(),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
