package worker

import (
	"sync"
	"time"

	"telegram-media-relay/internal/domain/model"
)

// Handle identifies one activation of a requester's worker. The registry holds at most
// one handle per requester; a worker owns its handle until next reports the queue empty.
type Handle struct {
	RequesterID int64
	StartedAt   time.Time
	done        chan struct{}
}

// Done is closed once the worker has released the handle.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Queue is the per-requester FIFO registry. Every mutation runs under one mutex and never blocks.
type Queue struct {
	mu     sync.Mutex
	queues map[int64][]model.Job
	active map[int64]*Handle
}

func NewQueue() *Queue {
	return &Queue{
		queues: make(map[int64][]model.Job),
		active: make(map[int64]*Handle),
	}
}

// Enqueue appends job and returns its 1-based position among pending jobs. When no worker is
// active for the requester a new handle is recorded and returned; the caller must start exactly
// one worker for it. Otherwise the handle is nil.
func (q *Queue) Enqueue(job model.Job) (int, *Handle) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := job.RequesterID
	q.queues[id] = append(q.queues[id], job)
	pos := len(q.queues[id])

	if _, busy := q.active[id]; busy {
		return pos, nil
	}
	h := &Handle{RequesterID: id, StartedAt: time.Now(), done: make(chan struct{})}
	q.active[id] = h
	return pos, h
}

// DrainNext removes and returns the head job for requester.
func (q *Queue) DrainNext(requesterID int64) (model.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked(requesterID)
}

// next pops the head job for the handle's requester. When the queue is empty the handle is
// released in the same critical section, so a concurrent Enqueue either lands before (and is
// returned here) or after (and starts a fresh worker).
func (q *Queue) next(h *Handle) (model.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.popLocked(h.RequesterID); ok {
		return job, true
	}
	q.releaseLocked(h)
	return model.Job{}, false
}

// release drops the handle without touching pending jobs. Used when a worker stops early.
func (q *Queue) release(h *Handle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.releaseLocked(h)
}

func (q *Queue) releaseLocked(h *Handle) {
	if cur, ok := q.active[h.RequesterID]; ok && cur == h {
		delete(q.active, h.RequesterID)
		close(h.done)
	}
}

func (q *Queue) popLocked(id int64) (model.Job, bool) {
	jobs := q.queues[id]
	if len(jobs) == 0 {
		return model.Job{}, false
	}
	job := jobs[0]
	jobs[0] = model.Job{}
	if len(jobs) == 1 {
		delete(q.queues, id)
	} else {
		q.queues[id] = jobs[1:]
	}
	return job, true
}

// Clear empties the requester's queue and returns how many jobs were discarded.
// A job already popped by the worker is unaffected.
func (q *Queue) Clear(requesterID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.queues[requesterID])
	delete(q.queues, requesterID)
	return n
}

func (q *Queue) HasPending(requesterID int64) bool {
	return q.Len(requesterID) > 0
}

func (q *Queue) Len(requesterID int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[requesterID])
}

// Active reports whether a worker currently owns the requester's queue.
func (q *Queue) Active(requesterID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.active[requesterID]
	return ok
}

// Stats returns totals across all requesters.
func (q *Queue) Stats() (active, pending int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, jobs := range q.queues {
		pending += len(jobs)
	}
	return len(q.active), pending
}
