package queue

import (
	"context"
	"errors"
	"sync"
)

// MemoryQueue is an in-process Queue for tests and single-node setups.
type MemoryQueue struct {
	mu         sync.Mutex
	jobs       []*Job
	dispatched map[string]struct{}

	// FailNext makes the next Enqueue fail, for exercising transaction
	// abort paths in tests.
	FailNext bool
}

// NewMemoryQueue creates a MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{dispatched: make(map[string]struct{})}
}

// Compile-time interface check.
var _ Queue = (*MemoryQueue)(nil)

// Enqueue records the job unless its identity was already dispatched.
func (q *MemoryQueue) Enqueue(_ context.Context, job *Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.FailNext {
		q.FailNext = false
		return errors.New("enqueue failed")
	}

	id := job.ID()
	if _, seen := q.dispatched[id]; seen {
		return nil
	}
	q.dispatched[id] = struct{}{}

	cp := *job
	q.jobs = append(q.jobs, &cp)
	return nil
}

// Jobs returns the dispatched jobs in order.
func (q *MemoryQueue) Jobs() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Job(nil), q.jobs...)
}
