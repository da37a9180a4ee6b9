package engine

import "sync"

// jobQueue is a thread-safe unbounded FIFO of submitted jobs.
//
// Submit may be called from any goroutine while the Run loop dequeues.
// A buffered signal channel of size 1 lets the loop wait for work and for
// context cancellation in the same select.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []*Handle
	closed bool
	signal chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		jobs:   make([]*Handle, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds h to the back of the queue.
// Returns false if the queue is closed.
func (q *jobQueue) Enqueue(h *Handle) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.jobs = append(q.jobs, h)

	// Coalesce signals; one pending wake-up is enough.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front job without blocking.
func (q *jobQueue) TryDequeue() (*Handle, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}
	h := q.jobs[0]
	// Clear the slot so finished jobs (and their images) can be collected.
	q.jobs[0] = nil
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}
	return h, true
}

// Drain removes and returns every queued job.
func (q *jobQueue) Drain() []*Handle {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := q.jobs
	q.jobs = nil
	return jobs
}

// Wait returns a channel that fires when jobs may be available or the queue
// has been closed.
func (q *jobQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued jobs.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close stops further enqueues and wakes the waiter.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

func (q *jobQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
