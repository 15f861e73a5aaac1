package server

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/itiky/shared-list/broadcast"
	"github.com/itiky/shared-list/model"
	"github.com/itiky/shared-list/storage"
)

// MovePolicy defines how a Move request updates stored positions.
type MovePolicy string

const (
	// MovePolicyOverwrite sets the source position to destIndex+1 and stamps updated_at, no re-rank.
	// Concurrent moves may leave colliding or sparse positions, masked by the read order tie-break.
	MovePolicyOverwrite MovePolicy = "overwrite"
	// MovePolicyRerank places the source at destIndex and re-ranks every item densely.
	MovePolicyRerank MovePolicy = "rerank"
)

// ParseMovePolicy validates a MovePolicy name.
func ParseMovePolicy(s string) (MovePolicy, error) {
	switch p := MovePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case MovePolicyOverwrite, MovePolicyRerank:
		return p, nil
	case "":
		return MovePolicyOverwrite, nil
	default:
		return "", fmt.Errorf("unsupported move policy: %s", s)
	}
}

// mutation is a queued request handled by the service worker.
type mutation struct {
	// Persists the change and returns the event to publish
	apply func(ctx context.Context) (model.MutationEvent, error)
	resCh chan error
}

// ListService is the authoritative sequencer of the shared list.
// Mutations are handled one at a time by a single worker: validate -> persist -> publish.
type ListService struct {
	// Config
	opTimeout  time.Duration
	movePolicy MovePolicy
	now        func() time.Time
	// State
	store       storage.Store
	publisher   broadcast.Publisher
	mutationsCh chan mutation
	//
	stopCh chan interface{}
	doneCh chan interface{}
}

// List returns all items in display order.
func (s *ListService) List(req model.ListRequest, res *model.ListResponse) error {
	start := time.Now()
	defer func() { go monitor.RequestServed(time.Since(start)) }()

	items, err := s.ListItems(context.Background())
	if err != nil {
		return err
	}
	res.Items = items

	return nil
}

// Add appends a new item.
func (s *ListService) Add(req model.AddRequest, res *model.AddResponse) error {
	item, err := s.AddItem(context.Background(), req.Name, req.DeviceId)
	if err != nil {
		return err
	}
	res.Id, res.Name = item.Id, item.Name

	return nil
}

// Remove deletes an item by id.
func (s *ListService) Remove(req model.RemoveRequest, res *model.RemoveResponse) error {
	if err := s.RemoveItem(context.Background(), req.Id, req.Index, req.DeviceId); err != nil {
		return err
	}
	res.Id, res.Index = req.Id, req.Index

	return nil
}

// Move repositions an item.
func (s *ListService) Move(req model.MoveRequest, res *model.MoveResponse) error {
	if err := s.MoveItem(context.Background(), req); err != nil {
		return err
	}
	res.SrcIndex, res.DestIndex = req.SrcIndex, req.DestIndex

	return nil
}

// ListItems reads the ordered list from the store.
func (s *ListService) ListItems(ctx context.Context) ([]model.ListItem, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	items, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	return items, nil
}

// AddItem appends a new item with the name.
func (s *ListService) AddItem(ctx context.Context, name string, deviceId model.DeviceId) (model.ListItem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.ListItem{}, model.NewValidationError("%s: empty", "name")
	}

	var item model.ListItem
	err := s.submit(ctx, func(ctx context.Context) (model.MutationEvent, error) {
		var err error
		if item, err = s.store.Append(ctx, name, s.now()); err != nil {
			return nil, err
		}

		return model.AddEvent{OriginatorId: deviceId, Id: item.Id, Name: item.Name}, nil
	})

	return item, err
}

// RemoveItem deletes the item by id, index is the position the device observed it at.
func (s *ListService) RemoveItem(ctx context.Context, id int64, index int, deviceId model.DeviceId) error {
	if id < 0 {
		return model.NewValidationError("%s: must be GTE 0", "id")
	}
	if index < 0 {
		return model.NewValidationError("%s: must be GTE 0", "index")
	}

	return s.submit(ctx, func(ctx context.Context) (model.MutationEvent, error) {
		if _, err := s.store.Delete(ctx, id); err != nil {
			return nil, err
		}

		return model.RemoveEvent{OriginatorId: deviceId, Id: id, Index: index}, nil
	})
}

// MoveItem repositions the source item according to the service MovePolicy.
func (s *ListService) MoveItem(ctx context.Context, req model.MoveRequest) error {
	if req.SrcId < 0 {
		return model.NewValidationError("%s: must be GTE 0", "srcId")
	}
	if req.SrcIndex < 0 {
		return model.NewValidationError("%s: must be GTE 0", "srcIndex")
	}
	if req.DestIndex < 0 {
		return model.NewValidationError("%s: must be GTE 0", "destIndex")
	}

	return s.submit(ctx, func(ctx context.Context) (model.MutationEvent, error) {
		var err error
		switch s.movePolicy {
		case MovePolicyRerank:
			err = s.store.MoveTo(ctx, req.SrcId, req.DestIndex, s.now())
		default:
			var items []model.ListItem
			if items, err = s.store.List(ctx); err != nil {
				return nil, err
			}
			position := req.DestIndex + 1
			// Moves past the tail land after the last item, as mirrors do
			if last := len(items) - 1; last >= 0 && req.DestIndex > last {
				req.DestIndex, position = last, items[last].Position+1
			}
			err = s.store.SetPosition(ctx, req.SrcId, position, s.now())
		}
		if err != nil {
			return nil, err
		}

		return model.MoveEvent{
			OriginatorId: req.DeviceId,
			SrcId:        req.SrcId,
			DestId:       req.DestId,
			SrcIndex:     req.SrcIndex,
			DestIndex:    req.DestIndex,
		}, nil
	})
}

// submit pushes the mutation to the worker queue and waits for the result.
func (s *ListService) submit(ctx context.Context, apply func(ctx context.Context) (model.MutationEvent, error)) error {
	start := time.Now()
	defer func() { go monitor.RequestServed(time.Since(start)) }()

	m := mutation{
		apply: apply,
		resCh: make(chan error, 1),
	}

	select {
	case s.mutationsCh <- m:
	case <-s.stopCh:
		return fmt.Errorf("%w: service stopped", model.ErrStorage)
	case <-ctx.Done():
		return model.NewStorageError("enqueue", ctx.Err())
	}

	select {
	case err := <-m.resCh:
		return err
	case <-s.doneCh:
		// Worker has exited: the mutation is either handled or will never be
		select {
		case err := <-m.resCh:
			return err
		default:
			return fmt.Errorf("%w: service stopped", model.ErrStorage)
		}
	}
}

// Start starts the service worker, a stopped service can be started again.
func (s *ListService) Start() {
	if s.running() {
		return
	}
	s.stopCh = make(chan interface{})
	s.doneCh = make(chan interface{})

	monitor.Start()
	go s.worker(s.stopCh, s.doneCh)
}

// Stop stops the service worker and waits for the in-flight mutation.
func (s *ListService) Stop() {
	if !s.running() {
		return
	}

	close(s.stopCh)
	<-s.doneCh
	monitor.Stop()
}

// running reports whether the worker was started and not stopped yet.
// The stop channel stays closed after Stop, so pending submits keep failing fast.
func (s *ListService) running() bool {
	if s.stopCh == nil {
		return false
	}
	select {
	case <-s.stopCh:
		return false
	default:
		return true
	}
}

// worker does the actual job.
func (s *ListService) worker(stopCh, doneCh chan interface{}) {
	log.Println("ListService: start")
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			// Service stop
			log.Println("ListService: stop")
			return
		case m := <-s.mutationsCh:
			m.resCh <- s.handle(m)
		}
	}
}

// handle persists the mutation and, only if that succeeded, publishes its event.
// A publish failure is logged: the committed mutation is never rolled back.
func (s *ListService) handle(m mutation) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	event, err := m.apply(ctx)
	cancel()
	if err != nil {
		return err
	}
	go monitor.MutationHandled()

	if s.publisher == nil || event == nil {
		return nil
	}

	ctx, cancel = context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("ListService: %s: publish: %v", event, err)
		go monitor.PublishFailed()
	}

	return nil
}

// NewListService creates a new ListService object.
func NewListService(store storage.Store, publisher broadcast.Publisher, queueSize int, opTimeout time.Duration, movePolicy MovePolicy) (*ListService, error) {
	if store == nil {
		return nil, fmt.Errorf("%s: nil", "store")
	}
	if queueSize < 0 {
		return nil, fmt.Errorf("%s: must be GTE 0", "queueSize")
	}
	if opTimeout <= 0 {
		return nil, fmt.Errorf("%s: must be GT 0", "opTimeout")
	}
	if _, err := ParseMovePolicy(string(movePolicy)); err != nil {
		return nil, err
	}
	if movePolicy == "" {
		movePolicy = MovePolicyOverwrite
	}

	return &ListService{
		opTimeout:   opTimeout,
		movePolicy:  movePolicy,
		now:         func() time.Time { return time.Now().UTC() },
		store:       store,
		publisher:   publisher,
		mutationsCh: make(chan mutation, queueSize),
	}, nil
}
