package storage

import (
	"sort"
	"time"

	"github.com/itiky/shared-list/model"
)

// lessItems defines the total read order: position asc, then the most recently touched first, then id.
func lessItems(a, b model.ListItem) bool {
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}

	return a.Id < b.Id
}

// sortItems sorts items in the read order.
func sortItems(items []model.ListItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return lessItems(items[i], items[j])
	})
}

// rerank moves the item to index of the ordered input and assigns dense positions [0, len).
// Returns the new ordered slice, the input is not modified.
func rerank(ordered []model.ListItem, id int64, index int, now time.Time) ([]model.ListItem, error) {
	list := model.ItemList(ordered).Clone()

	srcIdx := list.IndexOf(id)
	if srcIdx < 0 {
		return nil, model.NewNotFoundError(id)
	}

	item := list[srcIdx]
	item.UpdatedAt = now
	list = list.Cut(srcIdx)
	list = list.Insert(index, item)

	for i := range list {
		list[i].Position = i
	}

	return list, nil
}
