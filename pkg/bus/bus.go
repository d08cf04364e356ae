// Package bus implements the coordinator's three message-bus topics
// over Redis pub/sub, reusing the same connection the
// key-value store adapter already holds rather than introducing a
// dedicated broker dependency.
package bus

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// The coordinator is both producer and consumer on TopicTaskSubmissions
// and TopicTaskCancellations (cross-replica awareness of each other's
// queue mutations) and a consumer only of TopicWorkflowEvents.
const (
	TopicTaskSubmissions   = "task-submissions"
	TopicTaskCancellations = "task-cancellations"
	TopicWorkflowEvents    = "workflow-events"
)

// Bus publishes and subscribes to coordinator topics.
type Bus struct {
	client *redis.Client
}

func New(client *redis.Client) *Bus {
	return &Bus{client: client}
}

func NewFromURL(url string) (*Bus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Bus{client: redis.NewClient(opts)}, nil
}

// Publish marshals payload to JSON and publishes it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, topic, data).Err()
}

// Handler receives a decoded payload for a subscribed topic message.
type Handler func(ctx context.Context, raw []byte)

// Subscribe blocks, dispatching messages to handler until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	sub := b.client.Subscribe(ctx, topic)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler(ctx, []byte(msg.Payload))
		}
	}
}

func (b *Bus) Close() error {
	return b.client.Close()
}
