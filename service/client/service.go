package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/rpc"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/itiky/shared-list/broadcast"
	"github.com/itiky/shared-list/model"
)

// Caller performs a request / response call to the list service (*rpc.Client implements it).
type Caller interface {
	Call(serviceMethod string, args interface{}, reply interface{}) error
	Close() error
}

type Client struct {
	// Config
	opsSendDur time.Duration // random updates send period, 0 disables the generator
	pollDur    time.Duration // full list verification period
	// State
	mirror        *Mirror
	pendingEchoes int // own mutations which echo is not received yet
	pendingLock   sync.Mutex
	eventsCh      <-chan []byte
	//
	caller     Caller
	subscriber broadcast.Subscriber
	ctx        context.Context
	cancel     context.CancelFunc
	stopCh     chan interface{}
	doneCh     chan interface{}
}

// String implements the stringer interface.
func (c *Client) String() string {
	return fmt.Sprintf("Client (%s)", c.mirror.DeviceId())
}

// DeviceId returns the originator id of the client mutations.
func (c *Client) DeviceId() model.DeviceId {
	return c.mirror.DeviceId()
}

// Items returns the local list copy.
func (c *Client) Items() model.ItemList {
	return c.mirror.Items()
}

// Start subscribes to the broadcast channel, fetches the initial snapshot and starts the Client worker.
// Subscription goes first, so no mutation committed after the snapshot is missed.
func (c *Client) Start() error {
	if c.stopCh != nil {
		return nil
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	if err := c.subscribe(); err != nil {
		c.cancel()
		return err
	}
	if err := c.initSnapshot(); err != nil {
		c.cancel()
		return fmt.Errorf("snapshot initialization: %w", err)
	}

	c.stopCh = make(chan interface{})
	c.doneCh = make(chan interface{})

	monitor.Start()
	go c.worker(c.stopCh, c.doneCh)

	return nil
}

// Stop stops the Client worker and drops the events subscription, the Client can be started again.
func (c *Client) Stop() {
	if c.stopCh == nil {
		return
	}

	close(c.stopCh)
	<-c.doneCh
	c.cancel()
	c.stopCh, c.doneCh, c.eventsCh = nil, nil, nil
	monitor.Stop()
}

// Close stops the Client and closes the service connection.
func (c *Client) Close() error {
	c.Stop()

	return c.caller.Close()
}

// worker does the actual job.
func (c *Client) worker(stopCh, doneCh chan interface{}) {
	defer close(doneCh)

	log.Printf("%s: start", c.String())
	log.Printf("%s: opsSendDur: %v", c.String(), c.opsSendDur)
	log.Printf("%s: pollDur:    %v", c.String(), c.pollDur)

	var sendCh <-chan time.Time
	if c.opsSendDur > 0 {
		sendTicker := time.NewTicker(c.opsSendDur)
		defer sendTicker.Stop()
		sendCh = sendTicker.C
	}
	pollTicker := time.NewTicker(c.pollDur)
	defer pollTicker.Stop()

	for {
		select {
		case <-sendCh:
			// Send a random list mutation
			if err := c.sendUpdates(); err != nil {
				log.Printf("%s: sending updates: %v", c.String(), err)
			}
		case <-pollTicker.C:
			// Verify the local list against the server one
			if err := c.pollUpdates(); err != nil {
				log.Printf("%s: polling updates: %v", c.String(), err)
			}
		case payload, ok := <-c.eventsCh:
			if !ok {
				// Resubscribed on the next poll
				log.Printf("%s: events subscription lost", c.String())
				c.eventsCh = nil
				continue
			}
			c.handleEvent(payload)
		case <-stopCh:
			// Stop the client
			log.Printf("%s: stop", c.String())
			return
		}
	}
}

// NewClient creates a new Client object.
func NewClient(deviceId model.DeviceId, caller Caller, subscriber broadcast.Subscriber, opsSendDur, pollDur time.Duration) (*Client, error) {
	if caller == nil {
		return nil, fmt.Errorf("%s: nil", "caller")
	}
	if subscriber == nil {
		return nil, fmt.Errorf("%s: nil", "subscriber")
	}
	if opsSendDur < 0 {
		return nil, fmt.Errorf("%s: must be GTE 0", "opsSendDur")
	}
	if pollDur <= 0 {
		return nil, fmt.Errorf("%s: must be GT 0", "pollDur")
	}

	mirror, err := NewMirror(deviceId)
	if err != nil {
		return nil, err
	}

	return &Client{
		opsSendDur: opsSendDur,
		pollDur:    pollDur,
		mirror:     mirror,
		caller:     caller,
		subscriber: subscriber,
	}, nil
}

// DialRPC connects to the list service, retrying while the server is not up yet.
func DialRPC(serverUrl string) (*rpc.Client, error) {
	const (
		numOfRetries     = 120
		retryFallbackDur = 500 * time.Millisecond
	)

	for retry := 0; retry < numOfRetries; retry++ {
		client, err := rpc.Dial("tcp", serverUrl)
		if err == nil {
			return client, nil
		}

		var netErr *net.OpError
		if errors.As(err, &netErr) {
			var sysErr *os.SyscallError
			if errors.As(netErr.Err, &sysErr) && sysErr.Err == syscall.ECONNREFUSED {
				time.Sleep(retryFallbackDur)
				continue
			}
		}

		return nil, fmt.Errorf("rpc.Dial(%s): %w", serverUrl, err)
	}

	return nil, fmt.Errorf("RPC connection failed after %d retries with %v fallback", numOfRetries, retryFallbackDur)
}
