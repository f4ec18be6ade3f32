// Package queue provides the track queue with swappable ordering disciplines.
package queue

import (
	"iter"
	"math/rand/v2"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/djbox/internal/domain/track"
)

// Errors
var (
	ErrEmptyQueue = errors.New("queue is empty")
	ErrOutOfRange = errors.New("position out of range")
)

// Queue holds tracks waiting to be played.
// Items are stored in insertion order (head inserts at the front); the active
// discipline decides the drain order. Queue is not safe for concurrent use.
type Queue struct {
	items []track.QueuedTrack
	disc  discipline
}

// New creates an empty queue using the given discipline.
func New(t Type) *Queue {
	return &Queue{
		items: make([]track.QueuedTrack, 0),
		disc:  newDiscipline(t),
	}
}

// Type returns the active discipline.
func (q *Queue) Type() Type {
	return q.disc.kind()
}

// SetType swaps the discipline. Bookkeeping is rebuilt from the current
// contents; no item is lost, duplicated or reordered within its requester.
func (q *Queue) SetType(t Type) {
	if q.disc.kind() == t {
		return
	}
	q.disc = newDiscipline(t)
	q.disc.reset(q.items)
}

// Add appends an item and returns the 0-based position it will be drained at.
func (q *Queue) Add(item track.QueuedTrack) int {
	q.items = append(q.items, item)
	q.disc.added(q.items, item, false)
	if q.disc.kind() == TypeFIFO {
		return len(q.items) - 1
	}
	return q.positionOf(item.Handle)
}

// AddFront inserts an item so it is the very next one popped.
func (q *Queue) AddFront(item track.QueuedTrack) {
	q.items = slices.Insert(q.items, 0, item)
	q.disc.added(q.items, item, true)
}

// Pop removes and returns the next item.
func (q *Queue) Pop() (track.QueuedTrack, error) {
	if len(q.items) == 0 {
		return track.QueuedTrack{}, ErrEmptyQueue
	}
	i := q.disc.next(q.items)
	item := q.items[i]
	q.items = slices.Delete(q.items, i, i+1)
	q.disc.popped(q.items, item)
	return item, nil
}

// Clear removes all items.
func (q *Queue) Clear() {
	q.items = make([]track.QueuedTrack, 0)
	q.disc.reset(q.items)
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	return len(q.items)
}

// IsEmpty returns true if nothing is queued.
func (q *Queue) IsEmpty() bool {
	return len(q.items) == 0
}

// All returns the items in the order Pop would yield them.
// The sequence is lazy and restartable and never mutates the queue; each
// iteration works on the contents at the time it starts.
func (q *Queue) All() iter.Seq[track.QueuedTrack] {
	return func(yield func(track.QueuedTrack) bool) {
		items := slices.Clone(q.items)
		d := q.disc.clone()
		for len(items) > 0 {
			i := d.next(items)
			item := items[i]
			items = slices.Delete(items, i, i+1)
			d.popped(items, item)
			if !yield(item) {
				return
			}
		}
	}
}

// List returns a copy of the items in drain order.
func (q *Queue) List() []track.QueuedTrack {
	return slices.Collect(q.All())
}

// RemoveAt removes the item at the given drain position.
func (q *Queue) RemoveAt(pos int) (track.QueuedTrack, error) {
	order := q.drainOrder()
	if pos < 0 || pos >= len(order) {
		return track.QueuedTrack{}, ErrOutOfRange
	}
	return q.removeIndex(order[pos]), nil
}

// RemoveRequester removes every item queued by the given user.
func (q *Queue) RemoveRequester(id snowflake.ID) int {
	removed := 0
	for i := len(q.items) - 1; i >= 0; i-- {
		if q.items[i].RequesterID() == id {
			q.removeIndex(i)
			removed++
		}
	}
	return removed
}

// Skip pops the next n items and returns them.
func (q *Queue) Skip(n int) []track.QueuedTrack {
	skipped := make([]track.QueuedTrack, 0, min(n, len(q.items)))
	for i := 0; i < n; i++ {
		item, err := q.Pop()
		if err != nil {
			break
		}
		skipped = append(skipped, item)
	}
	return skipped
}

// Shuffle shuffles the user's items among the slots they already occupy.
// Other requesters' items keep their positions.
func (q *Queue) Shuffle(id snowflake.ID) int {
	slots := q.slotsOf(id)
	rand.Shuffle(len(slots), func(i, j int) {
		a, b := slots[i], slots[j]
		q.items[a], q.items[b] = q.items[b], q.items[a]
	})
	return len(slots)
}

// Move moves the item at drain position from to drain position to.
// Under the fair discipline both positions must belong to the same requester.
func (q *Queue) Move(from, to int) (track.QueuedTrack, error) {
	order := q.drainOrder()
	if from < 0 || from >= len(order) || to < 0 || to >= len(order) {
		return track.QueuedTrack{}, ErrOutOfRange
	}
	item := q.items[order[from]]
	if from == to {
		return item, nil
	}

	if q.disc.kind() == TypeFIFO {
		q.items = slices.Delete(q.items, from, from+1)
		q.items = slices.Insert(q.items, to, item)
		return item, nil
	}

	id := item.RequesterID()
	if q.items[order[to]].RequesterID() != id {
		return track.QueuedTrack{}, errors.Wrap(ErrOutOfRange, "fair queue items can only move within one requester")
	}
	// A requester's items drain in storage order, so reorder the group in place.
	slots := q.slotsOf(id)
	group := make([]track.QueuedTrack, len(slots))
	for i, s := range slots {
		group[i] = q.items[s]
	}
	gFrom, gTo := slices.Index(slots, order[from]), slices.Index(slots, order[to])
	group = slices.Delete(group, gFrom, gFrom+1)
	group = slices.Insert(group, gTo, item)
	for i, s := range slots {
		q.items[s] = group[i]
	}
	return item, nil
}

// positionOf returns the drain position of the item holding h.
func (q *Queue) positionOf(h *track.Handle) int {
	for pos, i := range q.drainOrder() {
		if q.items[i].Handle == h {
			return pos
		}
	}
	return -1
}

// drainOrder simulates popping on a copy and returns storage indices in drain order.
func (q *Queue) drainOrder() []int {
	items := slices.Clone(q.items)
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	d := q.disc.clone()

	order := make([]int, 0, len(items))
	for len(items) > 0 {
		i := d.next(items)
		item := items[i]
		order = append(order, idx[i])
		items = slices.Delete(items, i, i+1)
		idx = slices.Delete(idx, i, i+1)
		d.popped(items, item)
	}
	return order
}

func (q *Queue) removeIndex(i int) track.QueuedTrack {
	item := q.items[i]
	q.items = slices.Delete(q.items, i, i+1)
	q.disc.removed(q.items, item)
	return item
}

func (q *Queue) slotsOf(id snowflake.ID) []int {
	var slots []int
	for i, it := range q.items {
		if it.RequesterID() == id {
			slots = append(slots, i)
		}
	}
	return slots
}
