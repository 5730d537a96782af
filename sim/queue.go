// Implements the waiting Queue, which holds entities that could not be served
// by a Resource immediately. Entities are enqueued on a failed use attempt and
// retried by the domain model's per-tick hooks.

package sim

import (
	"fmt"

	"github.com/gammazero/deque"
	"github.com/sirupsen/logrus"
)

// QueueEntry pairs a waiting entity with the amount it wants to take from the
// resource, if any.
type QueueEntry struct {
	Entity *Entity
	Amount *float64
}

// Queue is a bounded FIFO of entities waiting for resource availability, with
// a priority escape for urgent cases. A capacity of 0 means unbounded.
//
// The queue never drives re-attempts itself; it is the domain model's
// responsibility to Peek/Dequeue in a per-tick hook and retry Resource.TryUse.
type Queue struct {
	world    *World
	id       string
	capacity int
	items    deque.Deque[QueueEntry]

	// ChangedTick records the last tick the queue contents mutated, for
	// on-change sampling.
	ChangedTick int64
}

// NewQueue creates a waiting queue and registers it with the world.
// capacity 0 means no maximum length.
func NewQueue(w *World, id string, capacity int) *Queue {
	if w == nil {
		panic("NewQueue: world must not be nil")
	}
	q := &Queue{world: w, id: id, capacity: capacity}
	w.Add(q)
	return q
}

// ID returns the queue's identifier, unique within its world.
func (q *Queue) ID() string { return q.id }

// Capacity returns the maximum queue length (0 = unbounded).
func (q *Queue) Capacity() int { return q.capacity }

// Len returns the current queue length.
func (q *Queue) Len() int { return q.items.Len() }

// Full reports whether the queue is at capacity.
func (q *Queue) Full() bool {
	return 0 < q.capacity && q.capacity <= q.items.Len()
}

// Enqueue puts an entity at the back of the queue, with an optional requested
// amount. Returns false when the queue is full. An entity already in the queue
// is added another time.
func (q *Queue) Enqueue(e *Entity, amount *float64) bool {
	if e == nil {
		panic("Enqueue: entity must not be nil")
	}
	if q.Full() {
		return false
	}
	logrus.Debugf("%s joining %s", e, q)
	q.items.PushBack(QueueEntry{Entity: e, Amount: amount})
	q.stamp()
	return true
}

// Dequeue removes and returns the entry at the front of the queue.
// ok is false on an empty queue; that is an expected steady-state condition in
// tick loops that poll, not an error.
func (q *Queue) Dequeue() (entry QueueEntry, ok bool) {
	if q.items.Len() == 0 {
		return QueueEntry{}, false
	}
	entry = q.items.PopFront()
	q.stamp()
	logrus.Debugf("%s left %s", entry.Entity, q)
	return entry, true
}

// Peek returns the entity at the front of the queue without removing it.
// ok is false on an empty queue.
func (q *Queue) Peek() (e *Entity, ok bool) {
	if q.items.Len() == 0 {
		return nil, false
	}
	return q.items.Front().Entity, true
}

// PeekWithAmount returns the front entry, amount included, without removing it.
func (q *Queue) PeekWithAmount() (entry QueueEntry, ok bool) {
	if q.items.Len() == 0 {
		return QueueEntry{}, false
	}
	return q.items.Front(), true
}

// Prioritize moves an entity already in the queue to the front. If the entity
// appears more than once, the occurrence furthest to the back is moved.
// Returns false when the entity is not queued at all; it is never added.
func (q *Queue) Prioritize(e *Entity) bool {
	for i := q.items.Len() - 1; i >= 0; i-- {
		if q.items.At(i).Entity == e {
			entry := q.items.Remove(i)
			q.items.PushFront(entry)
			q.stamp()
			return true
		}
	}
	return false
}

// RemoveEntity drops the frontmost occurrence of an entity from the queue,
// returning false if it was not queued. Used when an entity is served through
// another path (or dies) while still waiting.
func (q *Queue) RemoveEntity(e *Entity) bool {
	for i := 0; i < q.items.Len(); i++ {
		if q.items.At(i).Entity == e {
			q.items.Remove(i)
			q.stamp()
			return true
		}
	}
	return false
}

// Entries returns a snapshot of the queue contents in front-to-back order.
func (q *Queue) Entries() []QueueEntry {
	out := make([]QueueEntry, 0, q.items.Len())
	for i := 0; i < q.items.Len(); i++ {
		out = append(out, q.items.At(i))
	}
	return out
}

func (q *Queue) stamp() {
	q.ChangedTick = q.world.Ticks
}

func (q *Queue) String() string {
	if q.capacity == 0 {
		return fmt.Sprintf("Queue %s length %d", q.id, q.items.Len())
	}
	return fmt.Sprintf("Queue %s length %d/%d", q.id, q.items.Len(), q.capacity)
}
