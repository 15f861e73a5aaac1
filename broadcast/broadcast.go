// Package broadcast fans list mutation events out to every connected device.
// The channel has no per-subscriber filtering: receivers drop their own echoes by originator id.
package broadcast

import (
	"context"
	"fmt"
	"strings"

	"github.com/itiky/shared-list/model"
)

type (
	// Publisher sends an event to all subscribers of the topic.
	Publisher interface {
		Publish(ctx context.Context, event model.MutationEvent) error
	}

	// Subscriber streams raw event payloads until ctx is done.
	// Payloads are decoded by the receiver with model.DecodeEvent.
	Subscriber interface {
		Subscribe(ctx context.Context) (<-chan []byte, error)
	}

	// Broadcaster is a connected publish / subscribe channel.
	Broadcaster interface {
		Publisher
		Subscriber
		Close() error
	}
)

// Open connects a Broadcaster by DSN scheme:
//   - memory:// (in-process Hub)
//   - redis://[user:password@]host:port[/db]
func Open(dsn, topic string) (Broadcaster, error) {
	dsn = strings.TrimSpace(dsn)
	if topic == "" {
		topic = model.DefaultTopic
	}

	scheme := ""
	if idx := strings.Index(dsn, "://"); idx >= 0 {
		scheme = strings.ToLower(dsn[:idx])
	}

	switch scheme {
	case "", "memory", "mem", "inmem":
		return NewHub(0), nil
	case "redis", "rediss":
		return NewRedis(dsn, topic)
	default:
		return nil, fmt.Errorf("unsupported broadcast scheme: %s", scheme)
	}
}
