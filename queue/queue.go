package queue

import (
	"sync"

	"github.com/outofforest/mass"
)

const massSize = 128

type node[T any] struct {
	Item T
	Next *node[T]
}

// New creates new queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{
		massNode: mass.New[node[T]](massSize),
		notifyCh: make(chan struct{}, 1),
	}
	q.tail = &q.head
	return q
}

// Queue is the multi-producer queue drained by single consumer.
type Queue[T any] struct {
	mu       sync.Mutex
	head     *node[T]
	tail     **node[T]
	count    int
	massNode *mass.Mass[node[T]]
	notifyCh chan struct{}
}

// Push appends item to the queue.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	n := q.massNode.New()
	n.Item = item
	*q.tail = n
	q.tail = &n.Next
	q.count++
	q.mu.Unlock()

	select {
	case q.notifyCh <- struct{}{}:
	default:
	}
}

// Len returns number of items waiting in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.count
}

// Notify returns channel signalled after items are pushed.
func (q *Queue[T]) Notify() <-chan struct{} {
	return q.notifyCh
}

// Drain detaches all the items pushed so far and passes them to fn in push order.
// Items pushed by fn are not processed by this call.
func (q *Queue[T]) Drain(fn func(item T)) int {
	q.mu.Lock()
	head := q.head
	count := q.count
	q.head = nil
	q.tail = &q.head
	q.count = 0
	q.mu.Unlock()

	for n := head; n != nil; {
		next := n.Next
		item := n.Item
		var zero T
		n.Item = zero
		n.Next = nil
		fn(item)
		n = next
	}
	return count
}
