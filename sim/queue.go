// Implements the stage-1 priority FIFO. Requests are enqueued on arrival and
// served per kind: each kind keeps its own FIFO subqueue with its own
// condition variable, so an idle worker of kind k is woken the moment work of
// kind k exists, and priority across kinds falls out of the discrete
// three-level structure rather than a heap.

package sim

import (
	"sync"
	"time"
)

// queueItem pairs a request with its enqueue timestamp so the dequeue path
// can record the wait.
type queueItem struct {
	req        *Request
	enqueuedAt time.Time
}

// waitSample is one observed queue wait, stamped with its dequeue time so
// AvgWait can restrict to a recent window.
type waitSample struct {
	at   time.Time
	wait time.Duration
}

// keep at most this many wait samples per kind; older ones age out of every
// observation window long before the cap matters.
const maxWaitSamples = 1024

// PriorityQueue is the stage-1 queue (Q1). FIFO within a kind, priority
// z3 > z2 > z1 across kinds. Internally synchronized; all mutation goes
// through the public operations.
type PriorityQueue struct {
	mu     sync.Mutex
	conds  map[Kind]*sync.Cond
	queues map[Kind][]queueItem

	samples map[Kind][]waitSample

	closed bool
	drain  bool // serve remaining items after close

	// onDequeue, when set, observes every (kind, wait) pair at dequeue time.
	// Used by the metrics collector for the end-of-run percentiles.
	onDequeue func(Kind, time.Duration)
}

// NewPriorityQueue builds an empty queue.
func NewPriorityQueue() *PriorityQueue {
	q := &PriorityQueue{
		queues:  make(map[Kind][]queueItem, len(Kinds)),
		conds:   make(map[Kind]*sync.Cond, len(Kinds)),
		samples: make(map[Kind][]waitSample, len(Kinds)),
	}
	for _, k := range Kinds {
		q.queues[k] = nil
		q.conds[k] = sync.NewCond(&q.mu)
	}
	return q
}

// SetDequeueObserver installs a hook invoked with every dequeue's wait time.
// Must be called before the queue is in use.
func (q *PriorityQueue) SetDequeueObserver(fn func(Kind, time.Duration)) {
	q.onDequeue = fn
}

// Enqueue appends req to the tail of its kind's subqueue and wakes one waiter
// of that kind. Never blocks. Returns ErrClosed once the queue is closed.
func (q *PriorityQueue) Enqueue(req *Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.queues[req.Kind] = append(q.queues[req.Kind], queueItem{req: req, enqueuedAt: time.Now()})
	q.conds[req.Kind].Signal()
	return nil
}

// DequeueFor blocks until a request of the given kind is available or the
// queue is terminally closed for that kind, in which case ok is false.
// After Close(drain=true) remaining items are still served in FIFO order;
// after Close(drain=false) waiters return immediately.
func (q *PriorityQueue) DequeueFor(kind Kind) (req *Request, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.queues[kind]) == 0 && !q.closed {
		q.conds[kind].Wait()
	}
	if len(q.queues[kind]) == 0 || (q.closed && !q.drain) {
		return nil, false
	}
	return q.popLocked(kind), true
}

// TryDequeue pops the highest-priority available request (z3 first, FIFO
// within a kind) without blocking.
func (q *PriorityQueue) TryDequeue() (req *Request, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, k := range KindsByPriority {
		if len(q.queues[k]) > 0 {
			return q.popLocked(k), true
		}
	}
	return nil, false
}

// Peek returns the highest-priority resident request without removing it.
func (q *PriorityQueue) Peek() (req *Request, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, k := range KindsByPriority {
		if len(q.queues[k]) > 0 {
			return q.queues[k][0].req, true
		}
	}
	return nil, false
}

func (q *PriorityQueue) popLocked(kind Kind) *Request {
	item := q.queues[kind][0]
	q.queues[kind] = q.queues[kind][1:]

	now := time.Now()
	wait := now.Sub(item.enqueuedAt)
	samples := append(q.samples[kind], waitSample{at: now, wait: wait})
	if len(samples) > maxWaitSamples {
		samples = samples[len(samples)-maxWaitSamples:]
	}
	q.samples[kind] = samples

	if q.onDequeue != nil {
		q.onDequeue(kind, wait)
	}
	return item.req
}

// Close shuts the queue down and wakes all waiters. With drain=true the
// remaining items are still handed out; with drain=false subsequent dequeues
// return immediately regardless of residue.
func (q *PriorityQueue) Close(drain bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.drain = drain
	for _, c := range q.conds {
		c.Broadcast()
	}
}

// Len returns the number of resident requests of one kind.
func (q *PriorityQueue) Len(kind Kind) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[kind])
}

// TotalLen returns the number of resident requests across all kinds.
func (q *PriorityQueue) TotalLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, items := range q.queues {
		n += len(items)
	}
	return n
}

// AvgWait returns the mean queue wait of the given kind across items dequeued
// within the last window. Zero when no samples fall inside the window.
func (q *PriorityQueue) AvgWait(kind Kind, window time.Duration) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-window)
	var sum time.Duration
	var n int
	for _, s := range q.samples[kind] {
		if s.at.After(cutoff) {
			sum += s.wait
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / time.Duration(n)
}

// WaitSampleCount returns how many dequeues of the given kind happened within
// the window. The autoscaler refuses to act on fewer than its minimum.
func (q *PriorityQueue) WaitSampleCount(kind Kind, window time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-window)
	n := 0
	for _, s := range q.samples[kind] {
		if s.at.After(cutoff) {
			n++
		}
	}
	return n
}

// MaxWait returns the age of the oldest resident request of the given kind.
func (q *PriorityQueue) MaxWait(kind Kind) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queues[kind]) == 0 {
		return 0
	}
	return time.Since(q.queues[kind][0].enqueuedAt)
}
