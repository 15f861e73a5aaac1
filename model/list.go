package model

import (
	"fmt"
	"strings"
)

// ItemList is the ordered list view kept by a client.
type ItemList []ListItem

// String implements the stringer interface.
func (l ItemList) String() string {
	str := strings.Builder{}
	for i, item := range l {
		str.WriteString(fmt.Sprintf("- [%d] %s (%d)\n", i, item.Name, item.Id))
	}

	return str.String()
}

// Ids returns item ids in list order.
func (l ItemList) Ids() []int64 {
	ids := make([]int64, 0, len(l))
	for _, item := range l {
		ids = append(ids, item.Id)
	}

	return ids
}

// IndexOf returns the item index by id or -1.
func (l ItemList) IndexOf(id int64) int {
	for i, item := range l {
		if item.Id == id {
			return i
		}
	}

	return -1
}

// Clone returns a copy not sharing the backing array.
func (l ItemList) Clone() ItemList {
	if l == nil {
		return nil
	}
	c := make(ItemList, len(l))
	copy(c, l)

	return c
}

// Insert returns the list with the item inserted at index (clamped to the list bounds).
func (l ItemList) Insert(index int, item ListItem) ItemList {
	if index < 0 {
		index = 0
	}
	if index > len(l) {
		index = len(l)
	}

	l = append(l, ListItem{})
	copy(l[index+1:], l[index:])
	l[index] = item

	return l
}

// Cut returns the list without the item at index.
func (l ItemList) Cut(index int) ItemList {
	return append(l[:index], l[index+1:]...)
}

// ApplyEvents upgrades the input ItemList using MutationEvent objects.
// Items are resolved by id only: transmitted indices are never trusted as a lookup key.
// An Add for a known id and a Remove for an unknown id are no-ops (replayed or raced events).
// The input list is not modified.
func ApplyEvents(l ItemList, events ...MutationEvent) (ItemList, error) {
	l = l.Clone()

	for i, event := range events {
		switch e := event.(type) {

		case AddEvent:
			if l.IndexOf(e.Id) >= 0 {
				continue
			}
			l = append(l, ListItem{Id: e.Id, Name: e.Name})

		case RemoveEvent:
			idx := l.IndexOf(e.Id)
			if idx < 0 {
				continue
			}
			l = l.Cut(idx)

		case MoveEvent:
			if e.DestIndex < 0 {
				return nil, fmt.Errorf("event[%d] (%s): dest: must be GTE 0", i, e.Type())
			}

			idx := l.IndexOf(e.SrcId)
			if idx < 0 {
				return nil, fmt.Errorf("event[%d] (%s): %w", i, e.Type(), NewNotFoundError(e.SrcId))
			}

			// Cut and insert
			item := l[idx]
			l = l.Cut(idx)
			l = l.Insert(e.DestIndex, item)

		default:
			return nil, fmt.Errorf("event[%d] (%T): unknown type", i, event)

		}
	}

	return l, nil
}
