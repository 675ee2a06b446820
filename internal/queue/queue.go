// Package queue implements the media queue described in spec.md §4.7: an
// ordered item list with shuffle, repeat modes, and selection navigation.
// Every operation is internally locked, mirroring the teacher's
// internal/playlist package this generalizes.
package queue

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Replace when `from` is not present in the queue.
var ErrNotFound = errors.New("queue: item not found")

// RepeatMode selects how next()/previous() behave once navigation reaches
// either end of the queue.
type RepeatMode int

const (
	// RepeatNone stops advancing once the end (or start) is reached.
	RepeatNone RepeatMode = iota
	// RepeatCircular wraps navigation around to the opposite end.
	RepeatCircular
	// RepeatSingle re-selects the current item on every next()/previous().
	RepeatSingle
)

// Item is one entry in the queue: a playable location plus whatever
// display metadata a caller wants to carry alongside it. Identity is the
// UUID, assigned once by NewItem and never reused, so duplicate locations can
// coexist in the queue and still be told apart by delete/replace/select.
type Item struct {
	ID       uuid.UUID
	Location string
	Title    string
	Artist   string
	Album    string
	Duration time.Duration
}

// NewItem builds an Item with a freshly assigned identity.
func NewItem(location string) Item {
	return Item{ID: uuid.New(), Location: location}
}

// Queue holds an ordered item list plus shuffle/repeat/selection state.
// The zero value is not usable; use New.
type Queue struct {
	mu         sync.Mutex
	items      []Item
	shuffled   bool
	seed       int64
	order      []int // permutation of indices into items, valid iff shuffled
	repeatMode RepeatMode
	selected   *uuid.UUID // nil means Absent
	history    *History
}

// New creates an empty queue with history retained across at most
// historyDepth structural mutations.
func New(historyDepth int) *Queue {
	q := &Queue{history: NewHistory(historyDepth)}
	q.history.Push(nil) // the empty starting list, so the first mutation can be undone
	return q
}

// Items returns a copy of the queue in insertion order.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}

// Len reports the number of items in the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Selected returns the currently selected item, if any.
func (q *Queue) Selected() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.selectedLocked()
}

func (q *Queue) selectedLocked() (Item, bool) {
	if q.selected == nil {
		return Item{}, false
	}
	idx := q.indexOfLocked(*q.selected)
	if idx < 0 {
		return Item{}, false
	}
	return q.items[idx], true
}

func (q *Queue) indexOfLocked(id uuid.UUID) int {
	for i, item := range q.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// Add appends item, leaving selection unchanged.
func (q *Queue) Add(item Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	q.reshuffleIfEnabledLocked()
	q.snapshotLocked()
}

// Delete removes the first item matching id. If it was selected, selection
// advances to the navigation-order successor, else the predecessor, else
// Absent.
func (q *Queue) Delete(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexOfLocked(id)
	if idx < 0 {
		return false
	}

	wasSelected := q.selected != nil && *q.selected == id
	var successor, predecessor *uuid.UUID
	if wasSelected {
		successor = q.neighborLocked(id, 1)
		predecessor = q.neighborLocked(id, -1)
	}

	q.items = append(q.items[:idx], q.items[idx+1:]...)
	q.reshuffleIfEnabledLocked()
	q.snapshotLocked()

	if wasSelected {
		switch {
		case successor != nil:
			q.selected = successor
		case predecessor != nil:
			q.selected = predecessor
		default:
			q.selected = nil
		}
	}
	return true
}

// Replace substitutes the item identified by from with to in place. If
// from was selected, selection becomes Present(to).
func (q *Queue) Replace(from uuid.UUID, to Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexOfLocked(from)
	if idx < 0 {
		return ErrNotFound
	}

	wasSelected := q.selected != nil && *q.selected == from
	q.items[idx] = to
	q.snapshotLocked()
	if wasSelected {
		id := to.ID
		q.selected = &id
	}
	return nil
}

// Select sets the current selection to id. If id is not present, selection
// becomes Absent.
func (q *Queue) Select(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.indexOfLocked(id) < 0 {
		q.selected = nil
		return
	}
	sel := id
	q.selected = &sel
}

// SelectNone clears the current selection.
func (q *Queue) SelectNone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.selected = nil
}

// Clear empties the queue and resets selection to Absent. Shuffle state
// and repeat mode are retained.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.order = nil
	q.selected = nil
	q.snapshotLocked()
}

// RepeatMode returns the current repeat mode.
func (q *Queue) RepeatMode() RepeatMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.repeatMode
}

// SetRepeatMode sets the repeat mode.
func (q *Queue) SetRepeatMode(mode RepeatMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.repeatMode = mode
}

// CycleRepeatMode advances NONE -> CIRCULAR -> SINGLE -> NONE and returns
// the newly active mode.
func (q *Queue) CycleRepeatMode() RepeatMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.repeatMode = (q.repeatMode + 1) % 3
	return q.repeatMode
}

// Shuffled reports whether shuffle is enabled.
func (q *Queue) Shuffled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shuffled
}

// SetShuffleEnabled enables or disables shuffle. Enabling picks a fresh
// random seed and derives a new permutation; disabling reverts navigation
// order to insertion order. Current selection is retained either way.
func (q *Queue) SetShuffleEnabled(enabled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuffled = enabled
	if enabled {
		q.seed = rand.Int63() //nolint:gosec // navigation order, not a security boundary
		q.reshuffleLocked()
	} else {
		q.order = nil
	}
}

// ToggleShuffle flips shuffle state and returns the new value.
func (q *Queue) ToggleShuffle() bool {
	q.mu.Lock()
	enabled := !q.shuffled
	q.mu.Unlock()
	q.SetShuffleEnabled(enabled)
	return enabled
}

func (q *Queue) reshuffleIfEnabledLocked() {
	if q.shuffled {
		q.reshuffleLocked()
	}
}

func (q *Queue) reshuffleLocked() {
	order := make([]int, len(q.items))
	for i := range order {
		order[i] = i
	}
	rand.New(rand.NewSource(q.seed)).Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	q.order = order
}

// navOrderLocked returns the current navigation order as a slice of
// indices into q.items.
func (q *Queue) navOrderLocked() []int {
	if q.shuffled && q.order != nil {
		return q.order
	}
	order := make([]int, len(q.items))
	for i := range order {
		order[i] = i
	}
	return order
}

// positionLocked returns the position of id within the navigation order,
// or -1 if absent from the queue.
func (q *Queue) positionLocked(id uuid.UUID) int {
	idx := q.indexOfLocked(id)
	if idx < 0 {
		return -1
	}
	order := q.navOrderLocked()
	for pos, itemIdx := range order {
		if itemIdx == idx {
			return pos
		}
	}
	return -1
}

// neighborLocked returns the id one step (direction +1 or -1) away from id
// in navigation order, without wrapping, or nil if there is none.
func (q *Queue) neighborLocked(id uuid.UUID, direction int) *uuid.UUID {
	pos := q.positionLocked(id)
	if pos < 0 {
		return nil
	}
	order := q.navOrderLocked()
	next := pos + direction
	if next < 0 || next >= len(order) {
		return nil
	}
	neighborID := q.items[order[next]].ID
	return &neighborID
}

// Next advances the selection per the current repeat mode and returns the
// newly selected item, if any.
func (q *Queue) Next() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id, ok := q.stepLocked(1)
	if !ok {
		return Item{}, false
	}
	q.selected = &id
	return q.items[q.indexOfLocked(id)], true
}

// Previous is the symmetrical counterpart of Next.
func (q *Queue) Previous() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id, ok := q.stepLocked(-1)
	if !ok {
		return Item{}, false
	}
	q.selected = &id
	return q.items[q.indexOfLocked(id)], true
}

// PeekNext reports what Next() would select without mutating selection.
func (q *Queue) PeekNext() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id, ok := q.stepLocked(1)
	if !ok {
		return Item{}, false
	}
	return q.items[q.indexOfLocked(id)], true
}

// stepLocked computes the item id that Next (direction=1) or Previous
// (direction=-1) would select, honoring repeatMode, without mutating state.
func (q *Queue) stepLocked(direction int) (uuid.UUID, bool) {
	if len(q.items) == 0 {
		return uuid.UUID{}, false
	}
	order := q.navOrderLocked()

	if q.selected == nil {
		if direction > 0 {
			return q.items[order[0]].ID, true
		}
		return q.items[order[len(order)-1]].ID, true
	}

	if q.repeatMode == RepeatSingle {
		return *q.selected, true
	}

	pos := q.positionLocked(*q.selected)
	if pos < 0 {
		return uuid.UUID{}, false
	}
	next := pos + direction

	switch {
	case next >= 0 && next < len(order):
		return q.items[order[next]].ID, true
	case q.repeatMode == RepeatCircular:
		wrapped := ((next % len(order)) + len(order)) % len(order)
		return q.items[order[wrapped]].ID, true
	default:
		return uuid.UUID{}, false
	}
}

// HasNext reports whether Next() would select something, derived from
// repeat mode as spec.md §4.7 describes: in NONE it reflects position, in
// CIRCULAR it is true whenever items is non-empty, in SINGLE it is true
// whenever a selection exists.
func (q *Queue) HasNext() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.hasDirectionLocked(1)
}

// HasPrevious is the symmetrical counterpart of HasNext.
func (q *Queue) HasPrevious() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.hasDirectionLocked(-1)
}

func (q *Queue) hasDirectionLocked(direction int) bool {
	if len(q.items) == 0 {
		return false
	}
	switch q.repeatMode {
	case RepeatCircular:
		return true
	case RepeatSingle:
		return q.selected != nil
	default:
		_, ok := q.stepLocked(direction)
		return ok
	}
}

// MoveIndices moves the items at the given insertion-order positions by
// delta slots, preserving their relative order. It fails atomically (no
// mutation) if any resulting position would be out of bounds, or if
// indices is empty. Returns the new positions of the moved items.
func (q *Queue) MoveIndices(indices []int, delta int) ([]int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(indices) == 0 || delta == 0 {
		return nil, false
	}
	sorted := append([]int(nil), indices...)
	sortInts(sorted)

	for _, idx := range sorted {
		if idx < 0 || idx >= len(q.items) {
			return nil, false
		}
		if idx+delta < 0 || idx+delta >= len(q.items) {
			return nil, false
		}
	}

	moving := make(map[int]Item, len(sorted))
	for _, idx := range sorted {
		moving[idx] = q.items[idx]
	}

	remaining := make([]Item, 0, len(q.items)-len(sorted))
	for i, item := range q.items {
		if _, ok := moving[i]; !ok {
			remaining = append(remaining, item)
		}
	}

	newIndices := make([]int, len(sorted))
	movedSet := make(map[int]Item, len(sorted))
	for i, idx := range sorted {
		target := idx + delta
		newIndices[i] = target
		movedSet[target] = moving[idx]
	}

	newItems := make([]Item, len(q.items))
	remIdx := 0
	for i := range newItems {
		if item, ok := movedSet[i]; ok {
			newItems[i] = item
			continue
		}
		newItems[i] = remaining[remIdx]
		remIdx++
	}

	q.items = newItems
	q.reshuffleIfEnabledLocked()
	q.snapshotLocked()
	return newIndices, true
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// snapshotLocked records the post-mutation item list in history, for Undo/Redo.
func (q *Queue) snapshotLocked() {
	q.history.Push(q.items)
}

// Undo reverts the item list to its state before the last structural
// mutation (Add/Delete/Replace/Clear/MoveIndices). Selection is
// re-resolved: if the previously selected id is still present it stays
// selected, otherwise selection becomes Absent.
func (q *Queue) Undo() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	items, ok := q.history.Undo()
	if !ok {
		return false
	}
	q.items = items
	q.reshuffleIfEnabledLocked()
	q.resolveSelectionLocked()
	return true
}

// Redo re-applies a mutation previously undone by Undo.
func (q *Queue) Redo() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	items, ok := q.history.Redo()
	if !ok {
		return false
	}
	q.items = items
	q.reshuffleIfEnabledLocked()
	q.resolveSelectionLocked()
	return true
}

func (q *Queue) resolveSelectionLocked() {
	if q.selected == nil {
		return
	}
	if q.indexOfLocked(*q.selected) < 0 {
		q.selected = nil
	}
}
