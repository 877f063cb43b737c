package engine

import (
	"sync"

	"github.com/AndreasThinks/nodeice-board/internal/transport"
)

// JobKind distinguishes the work the Run loop serializes.
type JobKind int

const (
	// JobMessage is an inbound mesh message to interpret.
	JobMessage JobKind = iota + 1
	// JobSweep is one expiration sweep.
	JobSweep
)

func (k JobKind) String() string {
	switch k {
	case JobMessage:
		return "message"
	case JobSweep:
		return "sweep"
	default:
		return "unknown"
	}
}

// Job is a unit of store-mutating work.
type Job struct {
	Kind    JobKind
	Message transport.Message
}

// jobQueue is a thread-safe FIFO queue for jobs.
//
// The queue is unbounded so that the transport reader and the sweep timer
// never block on a slow store. It uses a channel for signaling so the Run
// loop can wait on it together with context cancellation.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []Job
	closed bool
	signal chan struct{} // Signals job availability (buffered, size 1)
}

// newJobQueue creates an empty job queue.
func newJobQueue() *jobQueue {
	return &jobQueue{
		jobs:   make([]Job, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a job to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *jobQueue) Enqueue(j Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.jobs = append(q.jobs, j)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Job{}, false) if the queue is empty.
func (q *jobQueue) TryDequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return Job{}, false
	}

	j := q.jobs[0]

	// Clear the slot so the backing array does not pin message text.
	q.jobs[0] = Job{}

	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}

	return j, true
}

// Wait returns a channel that signals when jobs may be available.
// The channel is closed when the queue is closed.
func (q *jobQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Closed reports whether Close has been called.
func (q *jobQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops intake and wakes any waiter. Jobs still queued are returned
// so the caller can account for them.
func (q *jobQueue) Close() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.signal)

	pending := q.jobs
	q.jobs = nil
	return pending
}
