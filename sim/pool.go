// Stage-1 processor pools (P1x): one pool per kind, consuming the priority
// queue and forwarding to the distributor. A per-pool dispatcher pulls from
// the pool's subqueue and hands each request to the next worker in
// round-robin rotation; the autoscaler grows and shrinks the pool through
// Spawn and SignalRetire.

package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// stageOneWorker is the per-worker descriptor, owned exclusively by its pool.
type stageOneWorker struct {
	id        string
	kind      Kind
	startedAt time.Time

	jobs   chan *Request // dispatcher -> worker hand-off, unbuffered
	quit   chan struct{} // closed on retire; worker finishes current job and exits
	oracle ServiceTimeOracle
}

// StageOnePool owns the workers of one kind.
type StageOnePool struct {
	kind    Kind
	queue   *PriorityQueue
	dist    *Distributor
	svcCfg  ServiceTimeConfig
	rng     *PartitionedRNG
	metrics *Collector

	// onExit, when set, is invoked after a worker has fully left service.
	onExit func(kind Kind, id string)

	ctx context.Context
	wg  sync.WaitGroup

	mu      sync.Mutex
	workers map[string]*stageOneWorker
	rr      *RoundRobin
	spawned int // total workers ever spawned, used for naming and sub-seeding
}

// NewStageOnePool wires an empty pool. Call Start to populate and run it.
func NewStageOnePool(kind Kind, queue *PriorityQueue, dist *Distributor,
	svcCfg ServiceTimeConfig, rng *PartitionedRNG, metrics *Collector) *StageOnePool {
	return &StageOnePool{
		kind:    kind,
		queue:   queue,
		dist:    dist,
		svcCfg:  svcCfg,
		rng:     rng,
		metrics: metrics,
		workers: make(map[string]*stageOneWorker),
		rr:      NewRoundRobin(nil),
	}
}

// SetExitObserver installs the worker-exit notification. Must be called
// before Start.
func (p *StageOnePool) SetExitObserver(fn func(kind Kind, id string)) {
	p.onExit = fn
}

// Start spawns the initial workers and the dispatcher.
func (p *StageOnePool) Start(ctx context.Context, initial int) error {
	p.ctx = ctx
	for i := 0; i < initial; i++ {
		if _, err := p.Spawn(); err != nil {
			return err
		}
	}
	p.wg.Add(1)
	go p.dispatch()
	return nil
}

// Spawn adds one worker to the rotation and returns its id. Safe to call
// while the pool is serving; the autoscaler is the runtime caller.
func (p *StageOnePool) Spawn() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.spawned
	id := fmt.Sprintf("P1%d_%d", int(p.kind), idx)
	oracle, err := NewServiceTimeOracle(p.svcCfg, p.rng.SeedFor(SubsystemStageOneWorker(p.kind, idx)))
	if err != nil {
		return "", err
	}
	w := &stageOneWorker{
		id:        id,
		kind:      p.kind,
		startedAt: time.Now(),
		jobs:      make(chan *Request),
		quit:      make(chan struct{}),
		oracle:    oracle,
	}
	p.spawned++
	p.workers[id] = w
	p.rr.Add(id)
	p.metrics.RegisterProcessor(id, p.kind)

	p.wg.Add(1)
	go p.runWorker(w)

	logrus.Infof("pool %s: spawned worker %s", p.kind, id)
	return id, nil
}

// SignalRetire gracefully removes one worker (the most recently added, as
// long as at least one remains). The worker leaves the rotation immediately,
// finishes its current request if any, and exits before its next take.
// Reports whether a retire was issued.
func (p *StageOnePool) SignalRetire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	members := p.rr.Members()
	if len(members) <= 1 {
		return false
	}
	id := members[len(members)-1]
	w, ok := p.workers[id]
	if !ok {
		return false
	}
	p.rr.Remove(id)
	close(w.quit)
	logrus.Infof("pool %s: retiring worker %s", p.kind, id)
	return true
}

// Size returns the number of workers currently in rotation.
func (p *StageOnePool) Size() int {
	return p.rr.Len()
}

// Wait blocks until the dispatcher and every worker have exited. Only
// meaningful after the queue has been closed.
func (p *StageOnePool) Wait() {
	p.wg.Wait()
}

// dispatch pulls requests of the pool's kind and hands them out round-robin.
// Exits when the queue closes, then releases all remaining workers.
func (p *StageOnePool) dispatch() {
	defer p.wg.Done()
	defer p.releaseWorkers()

	for {
		req, ok := p.queue.DequeueFor(p.kind)
		if !ok {
			return
		}
		p.handOff(req)
	}
}

// handOff delivers req to the next rotation member, skipping workers that
// retire between pick and delivery.
func (p *StageOnePool) handOff(req *Request) {
	for {
		id, ok := p.rr.Next()
		if !ok {
			logrus.Warnf("pool %s: no workers for %s, dropping", p.kind, req)
			return
		}
		p.mu.Lock()
		w := p.workers[id]
		p.mu.Unlock()
		if w == nil {
			continue
		}
		select {
		case w.jobs <- req:
			return
		case <-w.quit:
			// picked worker is retiring; rotate to the next one
		case <-p.ctx.Done():
			return
		}
	}
}

// releaseWorkers closes every hand-off channel so idle workers exit.
// The dispatcher is the sole sender on jobs channels.
func (p *StageOnePool) releaseWorkers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		close(w.jobs)
	}
}

// runWorker loops: take a request, simulate service, forward to the
// distributor. Cancellation is honored between requests and during the
// service sleep; a retire signal is honored before the next take.
func (p *StageOnePool) runWorker(w *stageOneWorker) {
	defer p.wg.Done()
	defer p.workerExited(w)

	for {
		select {
		case <-w.quit:
			return
		case <-p.ctx.Done():
			return
		case req, ok := <-w.jobs:
			if !ok {
				return
			}
			if !sleepInterruptible(p.ctx, w.oracle.Next()) {
				return
			}
			p.dist.Submit(req)
			p.metrics.RecordServed(w.id, p.kind)
		}
	}
}

func (p *StageOnePool) workerExited(w *stageOneWorker) {
	p.mu.Lock()
	delete(p.workers, w.id)
	p.rr.Remove(w.id) // no-op when the worker was retired
	p.mu.Unlock()

	logrus.Debugf("pool %s: worker %s exited after %s", p.kind, w.id, time.Since(w.startedAt).Round(time.Millisecond))
	if p.onExit != nil {
		p.onExit(p.kind, w.id)
	}
}
