package queue

import (
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/djbox/internal/domain/track"
)

// Type selects the ordering discipline used to drain a queue.
type Type int

const (
	TypeFIFO Type = iota // Strict insertion order
	TypeFair             // Round robin across requesters
)

// String returns the string representation of the queue type.
func (t Type) String() string {
	switch t {
	case TypeFIFO:
		return "fifo"
	case TypeFair:
		return "fair"
	default:
		return "unknown"
	}
}

// ParseType parses a queue type name ("fifo", "fair"). An empty name is fifo,
// the value of an unset guild setting.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fifo", "linear", "simple", "":
		return TypeFIFO, nil
	case "fair", "fair_queue":
		return TypeFair, nil
	default:
		return TypeFIFO, errors.Newf("unknown queue type: %q", s)
	}
}

// discipline decides which stored item is popped next.
// All variants operate on the same container owned by Queue.
type discipline interface {
	kind() Type
	// added is called after item was inserted into items.
	added(items []track.QueuedTrack, item track.QueuedTrack, front bool)
	// next returns the index of the item to pop. items is never empty.
	next(items []track.QueuedTrack) int
	// popped is called after item was popped; items holds what remains.
	popped(items []track.QueuedTrack, item track.QueuedTrack)
	// removed is called after item was removed out of turn.
	removed(items []track.QueuedTrack, item track.QueuedTrack)
	// reset rebuilds bookkeeping from the current contents.
	reset(items []track.QueuedTrack)
	clone() discipline
}

func newDiscipline(t Type) discipline {
	if t == TypeFair {
		return &fair{}
	}
	return fifo{}
}

// fifo pops the head of the container.
type fifo struct{}

func (fifo) kind() Type { return TypeFIFO }

func (fifo) added([]track.QueuedTrack, track.QueuedTrack, bool) {}

func (fifo) next([]track.QueuedTrack) int { return 0 }

func (fifo) popped([]track.QueuedTrack, track.QueuedTrack) {}

func (fifo) removed([]track.QueuedTrack, track.QueuedTrack) {}

func (fifo) reset([]track.QueuedTrack) {}

func (f fifo) clone() discipline { return f }

// fair drains requesters round robin.
// rotation holds exactly the requesters that have at least one stored item,
// ordered by when they are next due.
type fair struct {
	rotation []snowflake.ID
}

func (f *fair) kind() Type { return TypeFair }

func (f *fair) added(_ []track.QueuedTrack, item track.QueuedTrack, front bool) {
	id := item.RequesterID()
	if front {
		// The head item is the requester's oldest, so they become due first.
		f.drop(id)
		f.rotation = slices.Insert(f.rotation, 0, id)
		return
	}
	if !slices.Contains(f.rotation, id) {
		f.rotation = append(f.rotation, id)
	}
}

func (f *fair) next(items []track.QueuedTrack) int {
	if len(f.rotation) == 0 {
		f.reset(items)
	}
	due := f.rotation[0]
	if i := firstOf(items, due); i >= 0 {
		return i
	}
	// Bookkeeping drifted; rebuild and take the first due requester.
	f.reset(items)
	return firstOf(items, f.rotation[0])
}

func (f *fair) popped(items []track.QueuedTrack, item track.QueuedTrack) {
	id := item.RequesterID()
	f.drop(id)
	if firstOf(items, id) >= 0 {
		f.rotation = append(f.rotation, id)
	}
}

func (f *fair) removed(items []track.QueuedTrack, item track.QueuedTrack) {
	id := item.RequesterID()
	if firstOf(items, id) < 0 {
		f.drop(id)
	}
}

func (f *fair) reset(items []track.QueuedTrack) {
	f.rotation = f.rotation[:0]
	for _, it := range items {
		if id := it.RequesterID(); !slices.Contains(f.rotation, id) {
			f.rotation = append(f.rotation, id)
		}
	}
}

func (f *fair) clone() discipline {
	return &fair{rotation: slices.Clone(f.rotation)}
}

func (f *fair) drop(id snowflake.ID) {
	if i := slices.Index(f.rotation, id); i >= 0 {
		f.rotation = slices.Delete(f.rotation, i, i+1)
	}
}

// firstOf returns the index of the oldest item queued by id, or -1.
func firstOf(items []track.QueuedTrack, id snowflake.ID) int {
	return slices.IndexFunc(items, func(it track.QueuedTrack) bool {
		return it.RequesterID() == id
	})
}
