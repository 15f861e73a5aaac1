package client

import (
	"fmt"
	"sync"

	"github.com/itiky/shared-list/model"
)

// Mirror is the device local copy of the shared list.
// It applies inbound events the device did not originate and local optimistic mutations.
type Mirror struct {
	sync.Mutex
	deviceId   model.DeviceId
	items      model.ItemList
	nextTempId int64
}

// DeviceId returns the device id events are compared against.
func (m *Mirror) DeviceId() model.DeviceId {
	return m.deviceId
}

// Items returns a copy of the current list.
func (m *Mirror) Items() model.ItemList {
	m.Lock()
	defer m.Unlock()

	return m.items.Clone()
}

// String implements the stringer interface.
func (m *Mirror) String() string {
	return m.Items().String()
}

// Reset replaces the local list with a server snapshot.
// Pending optimistic items (temporary ids) are kept at the tail.
func (m *Mirror) Reset(items []model.ListItem) {
	m.Lock()
	defer m.Unlock()

	list := make(model.ItemList, 0, len(items))
	list = append(list, items...)
	for _, item := range m.items {
		if item.Id < 0 {
			list = append(list, item)
		}
	}
	m.items = list
}

// Apply reconciles an inbound event.
// Events originated by this device are discarded (the optimistic change already reflects them),
// applied reports whether the local list was changed by the event.
func (m *Mirror) Apply(event model.MutationEvent) (applied bool, err error) {
	if event.Originator() == m.deviceId {
		return false, nil
	}

	m.Lock()
	defer m.Unlock()

	list, err := model.ApplyEvents(m.items, event)
	if err != nil {
		return false, err
	}
	m.items = list

	return true, nil
}

// LocalAdd appends a pending item and returns its temporary id.
func (m *Mirror) LocalAdd(name string) int64 {
	m.Lock()
	defer m.Unlock()

	m.nextTempId--
	m.items = append(m.items, model.ListItem{Id: m.nextTempId, Name: name})

	return m.nextTempId
}

// ConfirmAdd replaces the pending item with the server assigned one.
func (m *Mirror) ConfirmAdd(tempId int64, item model.ListItem) {
	m.Lock()
	defer m.Unlock()

	idx := m.items.IndexOf(tempId)
	if idx < 0 {
		return
	}

	// The item might have been delivered by a full refresh already
	if m.items.IndexOf(item.Id) >= 0 {
		m.items = m.items.Cut(idx)
		return
	}
	m.items[idx] = model.ListItem{Id: item.Id, Name: item.Name, Position: item.Position, UpdatedAt: item.UpdatedAt}
}

// RollbackAdd drops the pending item.
func (m *Mirror) RollbackAdd(tempId int64) {
	m.Lock()
	defer m.Unlock()

	if idx := m.items.IndexOf(tempId); idx >= 0 {
		m.items = m.items.Cut(idx)
	}
}

// LocalRemove removes the item at index and returns it for a possible rollback.
func (m *Mirror) LocalRemove(index int) (model.ListItem, error) {
	m.Lock()
	defer m.Unlock()

	if err := m.checkIndex(index); err != nil {
		return model.ListItem{}, err
	}
	item := m.items[index]
	if item.Id < 0 {
		return model.ListItem{}, model.NewValidationError("item [%d] is not confirmed yet", index)
	}
	m.items = m.items.Cut(index)

	return item, nil
}

// RollbackRemove restores a removed item at its former index.
func (m *Mirror) RollbackRemove(index int, item model.ListItem) {
	m.Lock()
	defer m.Unlock()

	if m.items.IndexOf(item.Id) >= 0 {
		return
	}
	m.items = m.items.Insert(index, item)
}

// LocalMove moves the item at srcIndex to destIndex and returns the ids of both rows.
func (m *Mirror) LocalMove(srcIndex, destIndex int) (srcId, destId int64, err error) {
	m.Lock()
	defer m.Unlock()

	if err := m.checkIndex(srcIndex); err != nil {
		return 0, 0, err
	}
	if err := m.checkIndex(destIndex); err != nil {
		return 0, 0, err
	}

	srcId, destId = m.items[srcIndex].Id, m.items[destIndex].Id
	if srcId < 0 || destId < 0 {
		return 0, 0, model.NewValidationError("move of items not confirmed yet")
	}

	item := m.items[srcIndex]
	m.items = m.items.Cut(srcIndex)
	m.items = m.items.Insert(destIndex, item)

	return srcId, destId, nil
}

// RollbackMove moves the item back to its former index.
func (m *Mirror) RollbackMove(id int64, srcIndex int) {
	m.Lock()
	defer m.Unlock()

	idx := m.items.IndexOf(id)
	if idx < 0 {
		return
	}
	item := m.items[idx]
	m.items = m.items.Cut(idx)
	m.items = m.items.Insert(srcIndex, item)
}

func (m *Mirror) checkIndex(index int) error {
	if index < 0 {
		return model.NewValidationError("%s: must be GTE 0", "index")
	}
	if index >= len(m.items) {
		return model.NewValidationError("%s: must be LT than list length (%d)", "index", len(m.items))
	}

	return nil
}

// NewMirror creates a new empty Mirror object.
func NewMirror(deviceId model.DeviceId) (*Mirror, error) {
	if deviceId == "" {
		return nil, fmt.Errorf("%s: empty", "deviceId")
	}

	return &Mirror{deviceId: deviceId}, nil
}
