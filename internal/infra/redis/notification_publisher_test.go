package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestNotificationPublisherPublishesJSON(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	ctx := context.Background()
	sub := client.Subscribe(ctx, "quiz:notifications")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	publisher := NewNotificationPublisher(client, "")
	if err := publisher.Notify(ctx, []string{"tok-1", "tok-2"}, "Quiz attempted", "body"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var n Notification
		if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(n.Recipients) != 2 || n.Title != "Quiz attempted" || n.SentAt.IsZero() {
			t.Fatalf("unexpected notification: %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for notification")
	}
}
