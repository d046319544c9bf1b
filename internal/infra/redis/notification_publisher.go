package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Notification is the JSON message published for push workers.
type Notification struct {
	Recipients []string  `json:"recipients"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sentAt"`
}

// NotificationPublisher hands notifications to push workers over Redis pub/sub.
type NotificationPublisher struct {
	client  *redis.Client
	channel string
	clock   func() time.Time
}

func NewNotificationPublisher(client *redis.Client, channel string) *NotificationPublisher {
	if channel == "" {
		channel = "quiz:notifications"
	}
	return &NotificationPublisher{client: client, channel: channel, clock: time.Now}
}

func (p *NotificationPublisher) Notify(ctx context.Context, recipients []string, title, body string) error {
	payload, err := json.Marshal(Notification{
		Recipients: recipients,
		Title:      title,
		Body:       body,
		SentAt:     p.clock().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
