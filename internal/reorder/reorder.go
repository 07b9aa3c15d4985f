// Package reorder implements index-based move-and-renumber for flat ordered lists.
//
// Drop indexes address the gaps of the list as it looked before the move:
// 0 is "before the first item", len(items) is "after the last item".
package reorder

import "fmt"

// InsertIndex converts a drop index into the insertion index of the list
// after the moved item has been removed from oldIndex.
func InsertIndex(oldIndex, dropIndex int) int {
	if dropIndex > oldIndex {
		return dropIndex - 1
	}
	return dropIndex
}

// IsNoop reports whether dropping the item at oldIndex onto dropIndex leaves
// the order unchanged (dropping onto either gap adjacent to the item).
func IsNoop(oldIndex, dropIndex int) bool {
	return dropIndex == oldIndex || dropIndex == oldIndex+1
}

// Move returns a new slice with items[oldIndex] moved to dropIndex.
// The input slice is not modified.
func Move[T any](items []T, oldIndex, dropIndex int) ([]T, error) {
	if oldIndex < 0 || oldIndex >= len(items) {
		return nil, fmt.Errorf("old index %d out of range [0,%d)", oldIndex, len(items))
	}
	if dropIndex < 0 || dropIndex > len(items) {
		return nil, fmt.Errorf("drop index %d out of range [0,%d]", dropIndex, len(items))
	}

	moved := items[oldIndex]
	rest := make([]T, 0, len(items)-1)
	rest = append(rest, items[:oldIndex]...)
	rest = append(rest, items[oldIndex+1:]...)

	at := InsertIndex(oldIndex, dropIndex)
	out := make([]T, 0, len(items))
	out = append(out, rest[:at]...)
	out = append(out, moved)
	out = append(out, rest[at:]...)
	return out, nil
}

// Insert returns a new slice with item inserted at index (clamped to the list bounds).
func Insert[T any](items []T, index int, item T) []T {
	if index < 0 {
		index = 0
	}
	if index > len(items) {
		index = len(items)
	}
	out := make([]T, 0, len(items)+1)
	out = append(out, items[:index]...)
	out = append(out, item)
	out = append(out, items[index:]...)
	return out
}

// Renumber assigns consecutive priorities 1..k in slice order.
func Renumber[T any](items []T, set func(item *T, priority int)) {
	for i := range items {
		set(&items[i], i+1)
	}
}

// Contiguous reports whether priorities are exactly 1..k in slice order.
func Contiguous[T any](items []T, get func(T) int) bool {
	for i, it := range items {
		if get(it) != i+1 {
			return false
		}
	}
	return true
}
