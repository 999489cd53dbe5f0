package controller

import "sync"

// redemptionQueue is a thread-safe FIFO of voucher numbers awaiting
// redemption.
//
// The queue is unbounded so that Redeem never blocks the submitter. It uses a
// channel for signaling to enable context-aware waiting in the Run loop.
type redemptionQueue struct {
	mu      sync.Mutex
	numbers []string
	closed  bool
	signal  chan struct{} // Signals availability (buffered, size 1)
}

func newRedemptionQueue() *redemptionQueue {
	return &redemptionQueue{
		numbers: make([]string, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a voucher number to the back of the queue.
// Returns false if the queue is closed.
func (q *redemptionQueue) Enqueue(number string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.numbers = append(q.numbers, number)

	// Non-blocking; the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front number without blocking.
// Returns ("", false) if the queue is empty.
func (q *redemptionQueue) TryDequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.numbers) == 0 {
		return "", false
	}

	number := q.numbers[0]
	if len(q.numbers) == 1 {
		q.numbers = q.numbers[:0]
	} else {
		q.numbers = q.numbers[1:]
	}
	return number, true
}

// Wait returns a channel that signals when numbers may be available. The
// channel is closed when the queue is closed.
func (q *redemptionQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *redemptionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.numbers)
}

// Closed reports whether Close has been called.
func (q *redemptionQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more numbers will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *redemptionQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
