package pipeline

import "sync"

// fifo is an unbounded single-consumer queue. Producers never block.
type fifo[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
	closed bool
}

func newFIFO[T any]() *fifo[T] {
	return &fifo[T]{signal: make(chan struct{}, 1)}
}

// push appends item and returns the new depth, or -1 once closed.
func (q *fifo[T]) push(item T) int {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return -1
	}
	q.items = append(q.items, item)
	depth := len(q.items)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return depth
}

// pop blocks until an item is available, the queue is closed or stop fires.
func (q *fifo[T]) pop(stop <-chan struct{}) (T, bool) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		if q.closed {
			q.mu.Unlock()
			return zero, false
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-stop:
			return zero, false
		}
	}
}

// close rejects further pushes and returns what was still queued.
func (q *fifo[T]) close() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	rest := q.items
	q.items = nil
	return rest
}

func (q *fifo[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
