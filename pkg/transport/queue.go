package transport

import (
	"time"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/wire"
)

// QueuedMessage is an outbound message waiting for transmission.
type QueuedMessage struct {
	Message    *wire.Message
	EnqueuedAt time.Time
	RetryCount int
	MaxRetries int

	seq uint64
}

// Exhausted returns true if the message may not be retried again.
func (q *QueuedMessage) Exhausted() bool {
	return q.RetryCount >= q.MaxRetries
}

// Queue is a bounded FIFO of outbound messages. Pushing onto a full queue
// evicts the oldest entry. Queue is not safe for concurrent use; the
// Channel guards it.
type Queue struct {
	items    []*QueuedMessage
	capacity int
	nextSeq  uint64
}

// NewQueue creates a queue holding at most capacity messages.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{capacity: capacity}
}

// Push appends a message and returns the evicted entry, if any.
func (q *Queue) Push(m QueuedMessage) (evicted *QueuedMessage) {
	q.nextSeq++
	m.seq = q.nextSeq
	if len(q.items) >= q.capacity {
		evicted = q.items[0]
		q.items = q.items[1:]
	}
	q.items = append(q.items, &m)
	return evicted
}

// Peek returns the oldest message without removing it.
func (q *Queue) Peek() (*QueuedMessage, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// remove deletes the entry with the given sequence number.
func (q *Queue) remove(seq uint64) bool {
	for i, item := range q.items {
		if item.seq == seq {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	return len(q.items)
}

// Capacity returns the queue bound.
func (q *Queue) Capacity() int {
	return q.capacity
}

// SetCapacity changes the bound, evicting the oldest entries if needed.
func (q *Queue) SetCapacity(capacity int) (evicted []*QueuedMessage) {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	q.capacity = capacity
	if over := len(q.items) - capacity; over > 0 {
		evicted = append(evicted, q.items[:over]...)
		q.items = q.items[over:]
	}
	return evicted
}

// Snapshot returns copies of the queued messages in order.
func (q *Queue) Snapshot() []QueuedMessage {
	out := make([]QueuedMessage, len(q.items))
	for i, item := range q.items {
		out[i] = *item
	}
	return out
}

// Clear removes all entries.
func (q *Queue) Clear() {
	q.items = nil
}
