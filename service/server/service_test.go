package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itiky/shared-list/broadcast"
	"github.com/itiky/shared-list/model"
	"github.com/itiky/shared-list/storage"
)

// recordingPublisher keeps published events, optionally failing every publish.
type recordingPublisher struct {
	sync.Mutex
	events []model.MutationEvent
	fail   bool
}

func (p *recordingPublisher) Publish(ctx context.Context, event model.MutationEvent) error {
	p.Lock()
	defer p.Unlock()

	if p.fail {
		return fmt.Errorf("%w: broker is down", model.ErrTransport)
	}
	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) Events() []model.MutationEvent {
	p.Lock()
	defer p.Unlock()

	return append([]model.MutationEvent(nil), p.events...)
}

// failingStore fails every mutation with a storage error.
type failingStore struct {
	*storage.MemoryStore
}

func (s failingStore) Append(ctx context.Context, name string, now time.Time) (model.ListItem, error) {
	return model.ListItem{}, model.NewStorageError("append", errors.New("disk is full"))
}

func (s failingStore) Delete(ctx context.Context, id int64) (model.ListItem, error) {
	return model.ListItem{}, model.NewStorageError("delete", errors.New("disk is full"))
}

// stalledStore blocks every append until the operation context expires.
type stalledStore struct {
	*storage.MemoryStore
}

func (s stalledStore) Append(ctx context.Context, name string, now time.Time) (model.ListItem, error) {
	<-ctx.Done()
	return model.ListItem{}, model.NewStorageError("append", ctx.Err())
}

func newTestService(t *testing.T, store storage.Store, publisher broadcast.Publisher, policy MovePolicy) *ListService {
	svc, err := NewListService(store, publisher, 0, time.Second, policy)
	require.NoError(t, err)
	svc.now = testClock()

	svc.Start()
	t.Cleanup(svc.Stop)

	return svc
}

// testClock returns strictly increasing timestamps.
func testClock() func() time.Time {
	mu, now := sync.Mutex{}, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

func listIds(t *testing.T, svc *ListService) []int64 {
	items, err := svc.ListItems(context.Background())
	require.NoError(t, err)

	return model.ItemList(items).Ids()
}

func Test_NewListService(t *testing.T) {
	store := storage.NewMemoryStore()

	_, err := NewListService(nil, nil, 0, time.Second, MovePolicyOverwrite)
	require.Error(t, err)
	_, err = NewListService(store, nil, -1, time.Second, MovePolicyOverwrite)
	require.Error(t, err)
	_, err = NewListService(store, nil, 0, 0, MovePolicyOverwrite)
	require.Error(t, err)
	_, err = NewListService(store, nil, 0, time.Second, "shuffle")
	require.Error(t, err)

	svc, err := NewListService(store, nil, 0, time.Second, "")
	require.NoError(t, err)
	require.Equal(t, MovePolicyOverwrite, svc.movePolicy)
}

// Test runs the Alice / Bob scenario over the RPC methods.
func Test_ListService_Scenario(t *testing.T) {
	publisher := &recordingPublisher{}
	svc := newTestService(t, storage.NewMemoryStore(), publisher, MovePolicyOverwrite)

	var addRes model.AddResponse
	require.NoError(t, svc.Add(model.AddRequest{DeviceId: "d1", Name: "Alice"}, &addRes))
	require.Equal(t, model.AddResponse{Id: 0, Name: "Alice"}, addRes)

	require.NoError(t, svc.Add(model.AddRequest{DeviceId: "d1", Name: "Bob"}, &addRes))
	require.Equal(t, model.AddResponse{Id: 1, Name: "Bob"}, addRes)

	var removeRes model.RemoveResponse
	require.NoError(t, svc.Remove(model.RemoveRequest{DeviceId: "d2", Id: 0, Index: 0}, &removeRes))
	require.Equal(t, model.RemoveResponse{Id: 0, Index: 0}, removeRes)

	var listRes model.ListResponse
	require.NoError(t, svc.List(model.ListRequest{DeviceId: "d1"}, &listRes))
	require.Len(t, listRes.Items, 1)
	require.Equal(t, "Bob", listRes.Items[0].Name)

	// Second remove of the same id: NotFound, no change, no broadcast
	err := svc.Remove(model.RemoveRequest{DeviceId: "d2", Id: 0, Index: 0}, &removeRes)
	require.ErrorIs(t, err, model.ErrNotFound)
	require.Equal(t, []int64{1}, listIds(t, svc))

	require.Equal(t, []model.MutationEvent{
		model.AddEvent{OriginatorId: "d1", Id: 0, Name: "Alice"},
		model.AddEvent{OriginatorId: "d1", Id: 1, Name: "Bob"},
		model.RemoveEvent{OriginatorId: "d2", Id: 0, Index: 0},
	}, publisher.Events())
}

// Test adds N items concurrently and checks positions form a permutation of [0, N).
func Test_ListService_ConcurrentAdds(t *testing.T) {
	const n = 50
	svc := newTestService(t, storage.NewMemoryStore(), &recordingPublisher{}, MovePolicyOverwrite)

	wg := sync.WaitGroup{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.AddItem(context.Background(), fmt.Sprintf("user %d", i), fmt.Sprintf("device %d", i%3))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	items, err := svc.ListItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, n)
	for i, item := range items {
		require.Equal(t, i, item.Position, "item[%d].Position", i)
	}
}

// Test checks invalid requests are rejected before persistence and never broadcast.
func Test_ListService_Validation(t *testing.T) {
	publisher := &recordingPublisher{}
	svc := newTestService(t, storage.NewMemoryStore(), publisher, MovePolicyOverwrite)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "   ", "d1")
	require.ErrorIs(t, err, model.ErrValidation)

	require.ErrorIs(t, svc.RemoveItem(ctx, 0, -1, "d1"), model.ErrValidation)
	require.ErrorIs(t, svc.RemoveItem(ctx, -1, 0, "d1"), model.ErrValidation)
	require.ErrorIs(t, svc.MoveItem(ctx, model.MoveRequest{SrcId: 0, SrcIndex: 0, DestIndex: -1}), model.ErrValidation)

	// Unknown id
	require.ErrorIs(t, svc.MoveItem(ctx, model.MoveRequest{SrcId: 5, SrcIndex: 0, DestIndex: 1}), model.ErrNotFound)

	require.Empty(t, publisher.Events())
	require.Empty(t, listIds(t, svc))
}

// Test moves the first of three items to dest 2 with the overwrite policy.
func Test_ListService_MoveOverwrite(t *testing.T) {
	publisher := &recordingPublisher{}
	svc := newTestService(t, storage.NewMemoryStore(), publisher, MovePolicyOverwrite)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := svc.AddItem(ctx, name, "d1")
		require.NoError(t, err)
	}

	var res model.MoveResponse
	require.NoError(t, svc.Move(model.MoveRequest{DeviceId: "d1", SrcIndex: 0, DestIndex: 2, SrcId: 0, DestId: 2}, &res))
	require.Equal(t, model.MoveResponse{SrcIndex: 0, DestIndex: 2}, res)

	// Position 3: ranked after the former last item
	require.Equal(t, []int64{1, 2, 0}, listIds(t, svc))

	events := publisher.Events()
	require.Equal(t, model.MoveEvent{OriginatorId: "d1", SrcId: 0, DestId: 2, SrcIndex: 0, DestIndex: 2}, events[len(events)-1])

	// Dest past the tail is clamped to the last index
	require.NoError(t, svc.MoveItem(ctx, model.MoveRequest{DeviceId: "d1", SrcIndex: 0, DestIndex: math.MaxInt, SrcId: 1, DestId: 0}))
	require.Equal(t, []int64{2, 0, 1}, listIds(t, svc))

	items, err := svc.ListItems(ctx)
	require.NoError(t, err)
	for _, item := range items {
		require.GreaterOrEqual(t, item.Position, 0, "item %d position", item.Id)
	}

	events = publisher.Events()
	require.Equal(t, model.MoveEvent{OriginatorId: "d1", SrcId: 1, DestId: 0, SrcIndex: 0, DestIndex: 2}, events[len(events)-1])

	mirror, err := model.ApplyEvents(model.ItemList{{Id: 1}, {Id: 2}, {Id: 0}}, events[len(events)-1])
	require.NoError(t, err)
	require.Equal(t, listIds(t, svc), mirror.Ids())
}

// Test flags the known overwrite policy weakness: a move towards the head collides with
// an existing position, so the stored order differs from the order every mirror applies.
func Test_ListService_MoveOverwriteDiverges(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStore(), &recordingPublisher{}, MovePolicyOverwrite)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := svc.AddItem(ctx, name, "d1")
		require.NoError(t, err)
	}

	move := model.MoveRequest{DeviceId: "d1", SrcIndex: 2, DestIndex: 0, SrcId: 2, DestId: 0}
	require.NoError(t, svc.MoveItem(ctx, move))

	mirror, err := model.ApplyEvents(model.ItemList{{Id: 0}, {Id: 1}, {Id: 2}}, model.MoveEvent{SrcId: 2, DestIndex: 0})
	require.NoError(t, err)

	require.Equal(t, []int64{2, 0, 1}, mirror.Ids())
	require.Equal(t, []int64{0, 2, 1}, listIds(t, svc), "position destIndex+1 collides with item 1, the newer update wins the tie")
}

// Test checks the rerank policy keeps stored order equal to the mirrors order and positions dense.
func Test_ListService_MoveRerank(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStore(), &recordingPublisher{}, MovePolicyRerank)
	ctx := context.Background()

	mirror := model.ItemList{}
	for _, name := range []string{"a", "b", "c", "d"} {
		item, err := svc.AddItem(ctx, name, "d1")
		require.NoError(t, err)
		mirror = append(mirror, item)
	}

	moves := []model.MoveEvent{
		{SrcId: 3, SrcIndex: 3, DestIndex: 0},
		{SrcId: 1, SrcIndex: 2, DestIndex: 3},
		{SrcId: 0, SrcIndex: 1, DestIndex: 1},
	}
	for _, move := range moves {
		require.NoError(t, svc.MoveItem(ctx, model.MoveRequest{SrcId: move.SrcId, SrcIndex: move.SrcIndex, DestIndex: move.DestIndex}))

		var err error
		mirror, err = model.ApplyEvents(mirror, move)
		require.NoError(t, err)
		require.Equal(t, mirror.Ids(), listIds(t, svc))
	}

	items, err := svc.ListItems(ctx)
	require.NoError(t, err)
	for i, item := range items {
		require.Equal(t, i, item.Position)
	}
}

// Test checks a failed persistence is never broadcast.
func Test_ListService_StorageFailure(t *testing.T) {
	publisher := &recordingPublisher{}
	svc := newTestService(t, failingStore{storage.NewMemoryStore()}, publisher, MovePolicyOverwrite)

	_, err := svc.AddItem(context.Background(), "Alice", "d1")
	require.ErrorIs(t, err, model.ErrStorage)
	require.ErrorIs(t, svc.RemoveItem(context.Background(), 0, 0, "d1"), model.ErrStorage)

	require.Empty(t, publisher.Events())
}

// Test checks a stalled store fails the request instead of blocking the sequencer.
func Test_ListService_StalledStorage(t *testing.T) {
	svc, err := NewListService(stalledStore{storage.NewMemoryStore()}, &recordingPublisher{}, 0, 50*time.Millisecond, MovePolicyOverwrite)
	require.NoError(t, err)
	svc.Start()
	defer svc.Stop()

	_, err = svc.AddItem(context.Background(), "Alice", "d1")
	require.ErrorIs(t, err, model.ErrStorage)

	// The sequencer is free again
	require.ErrorIs(t, svc.RemoveItem(context.Background(), 0, 0, "d1"), model.ErrNotFound)
}

// Test checks a broadcast failure does not roll back the committed mutation.
func Test_ListService_PublishFailure(t *testing.T) {
	publisher := &recordingPublisher{fail: true}
	svc := newTestService(t, storage.NewMemoryStore(), publisher, MovePolicyOverwrite)

	item, err := svc.AddItem(context.Background(), "Alice", "d1")
	require.NoError(t, err)
	require.Equal(t, []int64{item.Id}, listIds(t, svc))
}

func Test_ListService_Stopped(t *testing.T) {
	svc, err := NewListService(storage.NewMemoryStore(), nil, 0, time.Second, MovePolicyOverwrite)
	require.NoError(t, err)
	svc.Start()
	svc.Stop()

	_, err = svc.AddItem(context.Background(), "Alice", "d1")
	require.ErrorIs(t, err, model.ErrStorage)

	// Stop is idempotent
	svc.Stop()
}

func Test_ListService_Restart(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStore(), nil, MovePolicyOverwrite)

	_, err := svc.AddItem(context.Background(), "Alice", "d1")
	require.NoError(t, err)

	svc.Stop()
	_, err = svc.AddItem(context.Background(), "Bob", "d1")
	require.ErrorIs(t, err, model.ErrStorage)

	svc.Start()
	item, err := svc.AddItem(context.Background(), "Bob", "d1")
	require.NoError(t, err)
	require.EqualValues(t, 1, item.Id)
	require.Equal(t, []int64{0, 1}, listIds(t, svc))
}

// Test publishes through a Hub and checks the originator receives its own echo.
func Test_ListService_Broadcast(t *testing.T) {
	hub := broadcast.NewHub(0)
	defer hub.Close()
	svc := newTestService(t, storage.NewMemoryStore(), hub, MovePolicyOverwrite)

	ch, err := hub.Subscribe(context.Background())
	require.NoError(t, err)

	_, err = svc.AddItem(context.Background(), "Alice", "d1")
	require.NoError(t, err)

	select {
	case payload := <-ch:
		event, err := model.DecodeEvent(payload)
		require.NoError(t, err)
		require.Equal(t, model.AddEvent{OriginatorId: "d1", Id: 0, Name: "Alice"}, event)
	case <-time.After(time.Second):
		t.Fatal("event not received")
	}
}
