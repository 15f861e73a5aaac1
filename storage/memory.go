package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/itiky/shared-list/model"
)

// MemoryStore keeps list items alongside the sorted list view.
// Used for tests and the "memory://" profile: nothing survives a restart.
type MemoryStore struct {
	sync.RWMutex
	list        []*model.ListItem
	idDataMatch map[int64]*model.ListItem
	nextId      int64
}

var _ Store = (*MemoryStore)(nil)

// String implements stringer interface.
func (s *MemoryStore) String() string {
	s.RLock()
	defer s.RUnlock()

	str := strings.Builder{}
	for i, item := range s.list {
		str.WriteString(fmt.Sprintf("- [%d] %s (id %d, pos %d)\n", i, item.Name, item.Id, item.Position))
	}

	return str.String()
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, name string, now time.Time) (model.ListItem, error) {
	if err := ctx.Err(); err != nil {
		return model.ListItem{}, model.NewStorageError("append", err)
	}

	s.Lock()
	defer s.Unlock()

	position := 0
	if n := len(s.list); n > 0 {
		position = s.list[n-1].Position + 1
	}

	item := &model.ListItem{
		Id:        s.nextId,
		Name:      name,
		Position:  position,
		UpdatedAt: now,
	}
	s.nextId++

	s.idDataMatch[item.Id] = item
	s.insert(item)

	return *item, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, id int64) (model.ListItem, error) {
	if err := ctx.Err(); err != nil {
		return model.ListItem{}, model.NewStorageError("delete", err)
	}

	s.Lock()
	defer s.Unlock()

	item, found := s.idDataMatch[id]
	if !found {
		return model.ListItem{}, model.NewNotFoundError(id)
	}

	// Cut
	s.cut(item)
	delete(s.idDataMatch, id)

	// Close the gap
	for _, other := range s.list {
		if other.Position > item.Position {
			other.Position--
		}
	}
	s.resort()

	return *item, nil
}

// SetPosition implements Store.
func (s *MemoryStore) SetPosition(ctx context.Context, id int64, position int, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return model.NewStorageError("set position", err)
	}

	s.Lock()
	defer s.Unlock()

	item, found := s.idDataMatch[id]
	if !found {
		return model.NewNotFoundError(id)
	}

	// Update might break the sorting, so we have to cut / insert
	s.cut(item)
	item.Position, item.UpdatedAt = position, now
	s.insert(item)

	return nil
}

// MoveTo implements Store.
func (s *MemoryStore) MoveTo(ctx context.Context, id int64, index int, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return model.NewStorageError("move", err)
	}

	s.Lock()
	defer s.Unlock()

	reranked, err := rerank(s.export(), id, index, now)
	if err != nil {
		return err
	}

	list := make([]*model.ListItem, 0, len(reranked))
	for _, updated := range reranked {
		item := s.idDataMatch[updated.Id]
		item.Position, item.UpdatedAt = updated.Position, updated.UpdatedAt
		list = append(list, item)
	}
	s.list = list

	return nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context) ([]model.ListItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewStorageError("list", err)
	}

	s.RLock()
	defer s.RUnlock()

	return s.export(), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

// export builds a list snapshot.
func (s *MemoryStore) export() []model.ListItem {
	items := make([]model.ListItem, 0, len(s.list))
	for _, item := range s.list {
		items = append(items, *item)
	}

	return items
}

// insert puts the item into the sorted list view.
func (s *MemoryStore) insert(item *model.ListItem) {
	idx := s.findItemIdxLTTarget(item)
	s.list = append(s.list, nil)
	copy(s.list[idx+1:], s.list[idx:])
	s.list[idx] = item
}

// cut removes the item from the sorted list view.
func (s *MemoryStore) cut(item *model.ListItem) {
	for i, other := range s.list {
		if other.Id == item.Id {
			s.list = append(s.list[:i], s.list[i+1:]...)
			return
		}
	}
}

// resort restores the sorted list view after a bulk position update.
func (s *MemoryStore) resort() {
	sort.SliceStable(s.list, func(i, j int) bool {
		return lessItems(*s.list[i], *s.list[j])
	})
}

// findItemIdxLTTarget returns the leftmost index the item can be inserted at keeping the order.
func (s *MemoryStore) findItemIdxLTTarget(item *model.ListItem) int {
	return sort.Search(len(s.list), func(i int) bool {
		return !lessItems(*s.list[i], *item)
	})
}

// NewMemoryStore creates a new empty MemoryStore object.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		idDataMatch: make(map[int64]*model.ListItem),
	}
}
