package chat

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// eventsChannel is the Redis pub/sub channel every server instance shares.
const eventsChannel = "chat:events"

// Broker is the cross-instance event pipe. The hub publishes envelopes to it
// and consumes the merged stream back, so a message sent on one instance
// reaches sockets connected to another.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context) (<-chan Envelope, error)
}

// RedisBroker implements Broker over Redis pub/sub.
type RedisBroker struct {
	client *redis.Client
}

var _ Broker = (*RedisBroker)(nil)

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, eventsChannel, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	pubsub := b.client.Subscribe(ctx, eventsChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan Envelope, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.Printf("broker: dropping malformed event: %v", err)
					continue
				}
				out <- env
			}
		}
	}()
	return out, nil
}
