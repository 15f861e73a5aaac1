package client

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/itiky/shared-list/model"
	"github.com/itiky/shared-list/storage"
)

const serviceName = "ListService"

// Add appends an item optimistically and confirms it with the server assigned id.
// The local change is rolled back if the request fails.
func (c *Client) Add(name string) (model.ListItem, error) {
	if name == "" {
		return model.ListItem{}, model.NewValidationError("%s: empty", "name")
	}

	tempId := c.mirror.LocalAdd(name)

	req := model.AddRequest{DeviceId: c.DeviceId(), Name: name}
	res := model.AddResponse{}
	if err := c.call("Add", req, &res); err != nil {
		c.mirror.RollbackAdd(tempId)
		return model.ListItem{}, err
	}

	item := model.ListItem{Id: res.Id, Name: res.Name}
	c.mirror.ConfirmAdd(tempId, item)

	return item, nil
}

// Remove deletes the item displayed at index.
// The item is looked up by id on the server, the local removal is rolled back on failure
// unless the server reports the item is already gone.
func (c *Client) Remove(index int) error {
	item, err := c.mirror.LocalRemove(index)
	if err != nil {
		return err
	}

	req := model.RemoveRequest{DeviceId: c.DeviceId(), Id: item.Id, Index: index}
	res := model.RemoveResponse{}
	if err := c.call("Remove", req, &res); err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			c.mirror.RollbackRemove(index, item)
		}
		return err
	}

	return nil
}

// Move repositions the item displayed at srcIndex to destIndex, rolled back on failure.
func (c *Client) Move(srcIndex, destIndex int) error {
	srcId, destId, err := c.mirror.LocalMove(srcIndex, destIndex)
	if err != nil {
		return err
	}

	req := model.MoveRequest{
		DeviceId:  c.DeviceId(),
		SrcIndex:  srcIndex,
		DestIndex: destIndex,
		SrcId:     srcId,
		DestId:    destId,
	}
	res := model.MoveResponse{}
	if err := c.call("Move", req, &res); err != nil {
		c.mirror.RollbackMove(srcId, srcIndex)
		return err
	}

	return nil
}

// call performs the service call restoring the error kind lost by the transport.
func (c *Client) call(method string, req, res interface{}) error {
	mutating := method != "List"

	opStart := time.Now()
	if mutating {
		c.echoExpected(opStart)
	}
	err := c.caller.Call(serviceName+"."+method, req, res)
	opDur := time.Since(opStart)

	if err != nil {
		if mutating {
			c.echoCancelled()
		}

		err = model.RestoreError(err)
		if !isKnownError(err) {
			err = fmt.Errorf("%w: rpc: %w", model.ErrTransport, err)
		}
		return err
	}

	if mutating {
		monitor.UpdatesSend(1, opDur)
	}

	return nil
}

// initSnapshot fetches the initial list.
func (c *Client) initSnapshot() error {
	opStart := time.Now()
	items, err := c.fetchList()
	if err != nil {
		return err
	}
	c.mirror.Reset(items)

	log.Printf("%s: initial snapshot received: %d items within %v", c.String(), len(items), time.Since(opStart))

	return nil
}

// subscribe (re)opens the broadcast subscription.
func (c *Client) subscribe() error {
	eventsCh, err := c.subscriber.Subscribe(c.ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	c.eventsCh = eventsCh

	return nil
}

// handleEvent decodes and reconciles an inbound payload.
func (c *Client) handleEvent(payload []byte) {
	event, err := model.DecodeEvent(payload)
	if err != nil {
		log.Printf("%s: event rejected: %v", c.String(), err)
		monitor.EventRejected()
		return
	}

	applied, err := c.mirror.Apply(event)
	if err != nil {
		// Local list has drifted from the server one
		log.Printf("%s: %s: %v: resync", c.String(), event, err)
		if err := c.resync(); err != nil {
			log.Printf("%s: resync: %v", c.String(), err)
		}
		return
	}

	if !applied {
		monitor.EchoDiscarded()
		c.echoReceived(time.Now())
		return
	}
	monitor.EventApplied()
}

// sendUpdates performs a random mutation on the list.
func (c *Client) sendUpdates() error {
	items := c.mirror.Items()

	op := rand.Intn(3)
	if len(items) < 2 {
		op = 0
	}

	switch op {
	case 0:
		_, err := c.Add(storage.RandomName())
		return err
	case 1:
		return c.Remove(rand.Intn(len(items)))
	default:
		return c.Move(rand.Intn(len(items)), rand.Intn(len(items)))
	}
}

// pollUpdates compares the local list with the server one and resyncs on drift.
// That recovers the updates lost by the broadcast channel.
func (c *Client) pollUpdates() error {
	if c.eventsCh == nil {
		if err := c.subscribe(); err != nil {
			return err
		}
	}

	items, err := c.fetchList()
	if err != nil {
		return err
	}

	local := confirmedIds(c.mirror.Items())
	remote := model.ItemList(items).Ids()
	if equalIds(local, remote) {
		return nil
	}

	log.Printf("%s: drift detected (%d local / %d remote items): resync", c.String(), len(local), len(remote))
	c.mirror.Reset(items)
	monitor.Resynced()

	return nil
}

// resync replaces the local list with the server one.
func (c *Client) resync() error {
	items, err := c.fetchList()
	if err != nil {
		return err
	}
	c.mirror.Reset(items)
	monitor.Resynced()

	return nil
}

func (c *Client) fetchList() ([]model.ListItem, error) {
	req := model.ListRequest{DeviceId: c.DeviceId()}
	res := model.ListResponse{}
	if err := c.call("List", req, &res); err != nil {
		return nil, err
	}

	return res.Items, nil
}

func (c *Client) echoExpected(ts time.Time) {
	c.pendingLock.Lock()
	defer c.pendingLock.Unlock()

	if c.pendingEchoes == 0 {
		monitor.ConsistencyReset(ts)
	}
	c.pendingEchoes++
}

func (c *Client) echoReceived(ts time.Time) {
	c.pendingLock.Lock()
	defer c.pendingLock.Unlock()

	if c.pendingEchoes == 0 {
		return
	}
	c.pendingEchoes--
	if c.pendingEchoes == 0 {
		monitor.ConsistencyAchieved(ts)
	}
}

func (c *Client) echoCancelled() {
	c.pendingLock.Lock()
	defer c.pendingLock.Unlock()

	if c.pendingEchoes > 0 {
		c.pendingEchoes--
	}
}

func isKnownError(err error) bool {
	for _, kind := range []error{model.ErrValidation, model.ErrNotFound, model.ErrStorage, model.ErrTransport} {
		if errors.Is(err, kind) {
			return true
		}
	}

	return false
}

func confirmedIds(l model.ItemList) []int64 {
	ids := make([]int64, 0, len(l))
	for _, item := range l {
		if item.Id >= 0 {
			ids = append(ids, item.Id)
		}
	}

	return ids
}

func equalIds(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
