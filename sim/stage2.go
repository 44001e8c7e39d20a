// Stage 2: per-kind plain FIFOs and the fallible workers consuming them.

package sim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// === Q2x ===

// FIFO is a stage-2 queue: unbounded, no priority, single consumer.
type FIFO struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []*Request
	closed  bool
	drain   bool
	entered uint64
}

// NewFIFO builds an empty queue.
func NewFIFO() *FIFO {
	q := &FIFO{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends req. Never blocks. Returns ErrClosed once closed.
func (q *FIFO) Enqueue(req *Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, req)
	q.entered++
	q.cond.Signal()
	return nil
}

// DequeueWithin blocks until an item is available, the queue is terminally
// closed (ErrClosed), or the timeout elapses with the consumer still idle
// (ErrTimeout). The timeout bounds the consumer's idle life, not the total
// call time.
func (q *FIFO) DequeueWithin(timeout time.Duration) (*Request, error) {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, q.cond.Broadcast)
	defer timer.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		if !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}
		q.cond.Wait()
	}
	if len(q.items) == 0 || (q.closed && !q.drain) {
		return nil, ErrClosed
	}
	req := q.items[0]
	q.items = q.items[1:]
	return req, nil
}

// Close wakes the consumer. With drain=true residue is still served first.
func (q *FIFO) Close(drain bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.drain = drain
	q.cond.Broadcast()
}

// Len returns the resident item count.
func (q *FIFO) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Entered returns the total number of items ever accepted. Together with
// Distributor.Submitted this checks the broadcast conservation property.
func (q *FIFO) Entered() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entered
}

// === P2x ===

// stageTwoExit tells the supervisor why a worker run ended.
type stageTwoExit int

const (
	exitShutdown stageTwoExit = iota // queue closed or context cancelled
	exitIdle                         // idle_timeout elapsed with no work: worker failed
)

// StageTwoWorker is a fallible final processor. Per dequeued request it
// either answers ok=false immediately (stochastic failure) or simulates
// service and answers ok=true to the originating client. A worker idle for
// longer than idleTimeout exits and is replaced by the engine.
type StageTwoWorker struct {
	id          string
	kind        Kind
	queue       *FIFO
	net         *Network
	oracle      ServiceTimeOracle
	rng         *rand.Rand
	failureProb float64
	idleTimeout time.Duration
	metrics     *Collector
}

// NewStageTwoWorker wires a worker to its queue and reply network.
func NewStageTwoWorker(id string, kind Kind, queue *FIFO, net *Network,
	oracle ServiceTimeOracle, rng *rand.Rand, faults FaultConfig, metrics *Collector) *StageTwoWorker {
	return &StageTwoWorker{
		id:          id,
		kind:        kind,
		queue:       queue,
		net:         net,
		oracle:      oracle,
		rng:         rng,
		failureProb: faults.P2FailureProbability,
		idleTimeout: faults.IdleTimeout,
		metrics:     metrics,
	}
}

// Run consumes the queue until shutdown or idle failure.
func (w *StageTwoWorker) Run(ctx context.Context) stageTwoExit {
	logrus.Debugf("%s: started", w.id)
	for {
		req, err := w.queue.DequeueWithin(w.idleTimeout)
		switch err {
		case nil:
		case ErrTimeout:
			logrus.Warnf("%s: idle for %s, going down", w.id, w.idleTimeout)
			return exitIdle
		default:
			return exitShutdown
		}
		if ctx.Err() != nil {
			return exitShutdown
		}

		if w.failureProb > 0 && w.rng.Float64() < w.failureProb {
			logrus.Debugf("%s: failing leg for %s", w.id, req)
			w.metrics.RecordLegFailure(w.id)
			w.reply(req, false)
			continue
		}

		if !sleepInterruptible(ctx, w.oracle.Next()) {
			// Shutdown mid-service: the leg stays unanswered, the client's
			// timeout covers it.
			return exitShutdown
		}
		w.metrics.RecordServed(w.id, w.kind)
		w.reply(req, true)
	}
}

func (w *StageTwoWorker) reply(req *Request, ok bool) {
	resp := &Response{
		RequestID:    req.ID,
		ProducerKind: w.kind,
		OK:           ok,
		CompletedAt:  time.Now(),
	}
	if err := w.net.Send(req.Origin, resp); err != nil {
		logrus.Debugf("%s: reply to %s lost: %v", w.id, req.Origin, err)
	}
}

// sleepInterruptible sleeps for d unless the context is cancelled first.
// Reports whether the full duration elapsed.
func sleepInterruptible(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
