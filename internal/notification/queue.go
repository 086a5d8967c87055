package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueueNotifier pushes messages onto a Redis list for an external sender.
type QueueNotifier struct {
	client *redis.Client
	queue  string
	now    func() time.Time
}

// NewQueueNotifier builds a notifier that appends to queue.
func NewQueueNotifier(client *redis.Client, queue string) *QueueNotifier {
	return &QueueNotifier{client: client, queue: queue, now: time.Now}
}

type queuedMessage struct {
	Message
	QueuedAt time.Time `json:"queued_at"`
}

// Send appends the message as JSON to the tail of the queue.
func (n *QueueNotifier) Send(ctx context.Context, message Message) error {
	payload, err := json.Marshal(queuedMessage{Message: message, QueuedAt: n.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := n.client.RPush(ctx, n.queue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue message: %w", err)
	}
	return nil
}
