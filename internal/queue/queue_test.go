package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdd_LeavesSelectionUnchanged(t *testing.T) {
	q := New(10)
	a := NewItem("a.mp3")
	q.Add(a)
	q.Select(a.ID)

	b := NewItem("b.mp3")
	q.Add(b)

	sel, ok := q.Selected()
	require.True(t, ok)
	require.Equal(t, a.ID, sel.ID)
	require.Equal(t, 2, q.Len())
}

func TestDelete_SelectedAdvancesToSuccessor(t *testing.T) {
	q := New(10)
	a, b, c := NewItem("a"), NewItem("b"), NewItem("c")
	q.Add(a)
	q.Add(b)
	q.Add(c)
	q.Select(b.ID)

	require.True(t, q.Delete(b.ID))

	sel, ok := q.Selected()
	require.True(t, ok)
	require.Equal(t, c.ID, sel.ID)
}

func TestDelete_SelectedFallsBackToPredecessorAtEnd(t *testing.T) {
	q := New(10)
	a, b := NewItem("a"), NewItem("b")
	q.Add(a)
	q.Add(b)
	q.Select(b.ID)

	require.True(t, q.Delete(b.ID))

	sel, ok := q.Selected()
	require.True(t, ok)
	require.Equal(t, a.ID, sel.ID)
}

func TestDelete_SelectedOnlyItemBecomesAbsent(t *testing.T) {
	q := New(10)
	a := NewItem("a")
	q.Add(a)
	q.Select(a.ID)

	require.True(t, q.Delete(a.ID))

	_, ok := q.Selected()
	require.False(t, ok)
}

func TestReplace_SelectedBecomesNewItem(t *testing.T) {
	q := New(10)
	a := NewItem("a")
	q.Add(a)
	q.Select(a.ID)

	b := NewItem("b")
	require.NoError(t, q.Replace(a.ID, b))

	sel, ok := q.Selected()
	require.True(t, ok)
	require.Equal(t, b.ID, sel.ID)
}

func TestReplace_UnknownFromFails(t *testing.T) {
	q := New(10)
	require.ErrorIs(t, q.Replace(NewItem("ghost").ID, NewItem("b")), ErrNotFound)
}

func TestSelect_UnknownIDBecomesAbsent(t *testing.T) {
	q := New(10)
	a := NewItem("a")
	q.Add(a)
	q.Select(a.ID)
	q.Select(NewItem("nope").ID)

	_, ok := q.Selected()
	require.False(t, ok)
}

func TestClear_ResetsSelectionButKeepsShuffleAndRepeat(t *testing.T) {
	q := New(10)
	a := NewItem("a")
	q.Add(a)
	q.Select(a.ID)
	q.SetShuffleEnabled(true)
	q.SetRepeatMode(RepeatCircular)

	q.Clear()

	require.Equal(t, 0, q.Len())
	_, ok := q.Selected()
	require.False(t, ok)
	require.True(t, q.Shuffled())
	require.Equal(t, RepeatCircular, q.RepeatMode())
}

func TestNext_NoneModeStopsAtEnd(t *testing.T) {
	q := New(10)
	a, b := NewItem("a"), NewItem("b")
	q.Add(a)
	q.Add(b)
	q.Select(a.ID)

	item, ok := q.Next()
	require.True(t, ok)
	require.Equal(t, b.ID, item.ID)

	_, ok = q.Next()
	require.False(t, ok)
}

func TestNext_CircularWraps(t *testing.T) {
	q := New(10)
	a, b := NewItem("a"), NewItem("b")
	q.Add(a)
	q.Add(b)
	q.Select(b.ID)
	q.SetRepeatMode(RepeatCircular)

	item, ok := q.Next()
	require.True(t, ok)
	require.Equal(t, a.ID, item.ID)
}

func TestNext_SingleRepeatsCurrent(t *testing.T) {
	q := New(10)
	a, b := NewItem("a"), NewItem("b")
	q.Add(a)
	q.Add(b)
	q.Select(a.ID)
	q.SetRepeatMode(RepeatSingle)

	item, ok := q.Next()
	require.True(t, ok)
	require.Equal(t, a.ID, item.ID)
}

func TestHasNext_DerivedFromRepeatMode(t *testing.T) {
	q := New(10)
	a, b := NewItem("a"), NewItem("b")
	q.Add(a)
	q.Add(b)
	q.Select(b.ID)

	require.False(t, q.HasNext(), "at end with RepeatNone")

	q.SetRepeatMode(RepeatCircular)
	require.True(t, q.HasNext(), "CIRCULAR is always true while items exist")

	q.SetRepeatMode(RepeatSingle)
	require.True(t, q.HasNext(), "SINGLE is true whenever a selection exists")

	q.SelectNone()
	require.False(t, q.HasNext(), "SINGLE is false when nothing is selected")
}

func TestCycleRepeatMode(t *testing.T) {
	q := New(10)
	require.Equal(t, RepeatNone, q.RepeatMode())

	require.Equal(t, RepeatCircular, q.CycleRepeatMode())
	require.Equal(t, RepeatSingle, q.CycleRepeatMode())
	require.Equal(t, RepeatNone, q.CycleRepeatMode())
}

func TestToggleShuffle(t *testing.T) {
	q := New(10)
	require.False(t, q.Shuffled())

	require.True(t, q.ToggleShuffle())
	require.True(t, q.Shuffled())

	require.False(t, q.ToggleShuffle())
	require.False(t, q.Shuffled())
}

func TestPeekNext_DoesNotMutateSelection(t *testing.T) {
	q := New(10)
	a, b := NewItem("a"), NewItem("b")
	q.Add(a)
	q.Add(b)
	q.Select(a.ID)

	peeked, ok := q.PeekNext()
	require.True(t, ok)
	require.Equal(t, b.ID, peeked.ID)

	sel, ok := q.Selected()
	require.True(t, ok)
	require.Equal(t, a.ID, sel.ID, "PeekNext must not advance selection")
}

func TestMoveIndices_ShiftsAndPreservesOrder(t *testing.T) {
	q := New(10)
	items := []Item{NewItem("a"), NewItem("b"), NewItem("c"), NewItem("d")}
	for _, it := range items {
		q.Add(it)
	}

	newIndices, ok := q.MoveIndices([]int{2, 3}, -1)
	require.True(t, ok)
	require.Equal(t, []int{1, 2}, newIndices)

	got := q.Items()
	require.Equal(t, []string{"a", "c", "d", "b"}, locations(got))
}

func TestMoveIndices_OutOfBoundsFailsAtomically(t *testing.T) {
	q := New(10)
	items := []Item{NewItem("a"), NewItem("b")}
	for _, it := range items {
		q.Add(it)
	}

	_, ok := q.MoveIndices([]int{0}, -1)
	require.False(t, ok)
	require.Equal(t, []string{"a", "b"}, locations(q.Items()))
}

func TestUndoRedo_RevertsAndReappliesAdd(t *testing.T) {
	q := New(10)
	a := NewItem("a")
	q.Add(a)
	b := NewItem("b")
	q.Add(b)

	require.True(t, q.Undo())
	require.Equal(t, []string{"a"}, locations(q.Items()))

	require.True(t, q.Redo())
	require.Equal(t, []string{"a", "b"}, locations(q.Items()))
}

func TestUndo_SelectionResolvesToAbsentIfItemGone(t *testing.T) {
	q := New(10)
	a := NewItem("a")
	q.Add(a)
	q.Select(a.ID)
	q.Delete(a.ID)

	require.True(t, q.Undo())
	// a is back, but selection was cleared by the delete and undo doesn't
	// resurrect a stale selection.
	_, ok := q.Selected()
	require.False(t, ok)
}

func locations(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Location
	}
	return out
}
