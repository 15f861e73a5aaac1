package broadcast

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/itiky/shared-list/model"
)

const defaultHubBufferSize = 64

// Hub is an in-process Broadcaster.
// Delivery is best effort: a subscriber with a full buffer misses the event
// and recovers on its next full list refresh.
type Hub struct {
	sync.Mutex
	bufferSize  int
	subscribers map[chan []byte]struct{}
	closed      bool
}

var _ Broadcaster = (*Hub)(nil)

// Publish implements Publisher.
func (h *Hub) Publish(ctx context.Context, event model.MutationEvent) error {
	payload, err := model.EncodeEvent(event)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", model.ErrTransport, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransport, err)
	}

	h.Lock()
	defer h.Unlock()

	if h.closed {
		return fmt.Errorf("%w: hub closed", model.ErrTransport)
	}

	for ch := range h.subscribers {
		select {
		case ch <- payload:
		default:
			log.Printf("Hub: subscriber buffer full, %s dropped", event.Type())
		}
	}

	return nil
}

// Subscribe implements Subscriber.
func (h *Hub) Subscribe(ctx context.Context) (<-chan []byte, error) {
	h.Lock()
	defer h.Unlock()

	if h.closed {
		return nil, fmt.Errorf("%w: hub closed", model.ErrTransport)
	}

	ch := make(chan []byte, h.bufferSize)
	h.subscribers[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		h.unsubscribe(ch)
	}()

	return ch, nil
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.Lock()
	defer h.Unlock()

	return len(h.subscribers)
}

// Close disconnects all subscribers.
func (h *Hub) Close() error {
	h.Lock()
	defer h.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}

	return nil
}

func (h *Hub) unsubscribe(ch chan []byte) {
	h.Lock()
	defer h.Unlock()

	if _, ok := h.subscribers[ch]; ok {
		delete(h.subscribers, ch)
		close(ch)
	}
}

// NewHub creates a new Hub object, bufferSize <= 0 picks the default.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultHubBufferSize
	}

	return &Hub{
		bufferSize:  bufferSize,
		subscribers: make(map[chan []byte]struct{}),
	}
}
