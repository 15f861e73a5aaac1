package broadcast

import (
	"context"
	"fmt"
	"log"

	"github.com/gorilla/websocket"

	"github.com/itiky/shared-list/model"
)

// WebSocketSubscriber receives event payloads relayed by the server events endpoint.
type WebSocketSubscriber struct {
	url    string
	dialer *websocket.Dialer
}

var _ Subscriber = (*WebSocketSubscriber)(nil)

// Subscribe implements Subscriber.
func (s *WebSocketSubscriber) Subscribe(ctx context.Context) (<-chan []byte, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: websocket dial (%s): %w", model.ErrTransport, s.url, err)
	}

	// Unblock the reader once the subscription is cancelled
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	out := make(chan []byte, defaultHubBufferSize)
	go func() {
		defer close(out)

		for {
			mt, payload, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("WebSocketSubscriber: read: %v", err)
				}
				return
			}
			if mt != websocket.TextMessage {
				continue
			}

			select {
			case out <- payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// NewWebSocketSubscriber creates a new WebSocketSubscriber object (ws:// or wss:// url).
func NewWebSocketSubscriber(url string) *WebSocketSubscriber {
	return &WebSocketSubscriber{
		url:    url,
		dialer: websocket.DefaultDialer,
	}
}
