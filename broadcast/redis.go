package broadcast

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/itiky/shared-list/model"
)

// Redis is a Broadcaster on top of Redis PUBLISH / SUBSCRIBE.
type Redis struct {
	rdb   *redis.Client
	topic string
}

var _ Broadcaster = (*Redis)(nil)

// Publish implements Publisher.
func (r *Redis) Publish(ctx context.Context, event model.MutationEvent) error {
	payload, err := model.EncodeEvent(event)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", model.ErrTransport, err)
	}

	if err := r.rdb.Publish(ctx, r.topic, payload).Err(); err != nil {
		return fmt.Errorf("%w: redis publish: %w", model.ErrTransport, err)
	}

	return nil
}

// Subscribe implements Subscriber.
func (r *Redis) Subscribe(ctx context.Context) (<-chan []byte, error) {
	pubsub := r.rdb.Subscribe(ctx, r.topic)
	// Wait for the subscription confirmation, so no event published after this call is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("%w: redis subscribe: %w", model.ErrTransport, err)
	}

	out := make(chan []byte, defaultHubBufferSize)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgCh := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgCh:
				if !ok {
					log.Printf("Redis: %s subscription closed", r.topic)
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close implements Broadcaster.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

// NewRedis connects a Redis Broadcaster.
func NewRedis(url, topic string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("%w: redis ping: %w", model.ErrTransport, err)
	}

	return &Redis{rdb: rdb, topic: topic}, nil
}
