// The simulation engine: builds the topology, runs it for the configured
// wall time, then drains and aggregates the final report.
//
// Flow: K -> Q1 -> (round-robin) P1k -> D -> {Q21, Q22, Q23} -> P2x -> K.
// The autoscaler observes Q1; the engine observes everyone.

package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// drainPollInterval is how often the engine re-checks in-flight counts while
// draining.
const drainPollInterval = 50 * time.Millisecond

// Engine owns the whole topology for one run.
type Engine struct {
	cfg     Config
	metrics *Collector
	rng     *PartitionedRNG
	ids     *IDSource
	net     *Network

	q1      *PriorityQueue
	q2      map[Kind]*FIFO
	dist    *Distributor
	pools   map[Kind]*StageOnePool
	clients []*Client
	scaler  *Autoscaler

	stage2Done chan struct{} // closed when all stage-2 supervisors returned
}

// NewEngine validates the configuration and constructs all nodes, leaves
// first: stage-2 queues, distributor, the priority queue, stage-1 pools,
// clients, autoscaler. Nothing runs until Run.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		metrics:    NewCollector(),
		rng:        NewPartitionedRNG(NewSimulationKey(cfg.Workload.Seed)),
		ids:        &IDSource{},
		net:        NewNetwork(),
		q2:         make(map[Kind]*FIFO, len(Kinds)),
		pools:      make(map[Kind]*StageOnePool, len(Kinds)),
		stage2Done: make(chan struct{}),
	}

	for _, k := range Kinds {
		e.q2[k] = NewFIFO()
	}
	e.dist = NewDistributor(e.q2)

	e.q1 = NewPriorityQueue()
	e.q1.SetDequeueObserver(e.metrics.RecordQueueWait)

	for _, k := range Kinds {
		e.pools[k] = NewStageOnePool(k, e.q1, e.dist, cfg.ServiceTime, e.rng, e.metrics)
	}

	clientKinds := map[string][]Kind{
		"K1": {Z1, Z2},
		"K2": {Z2, Z3},
	}
	for _, id := range []string{"K1", "K2"} {
		inbox := e.net.Register(id)
		rng := e.rng.ForSubsystem(SubsystemClient(id))
		e.clients = append(e.clients, NewClient(id, clientKinds[id], e.q1, inbox,
			cfg.Workload.Rate, rng, e.ids, cfg.Faults, e.metrics))
	}

	scalable := make(map[Kind]ScalablePool, len(Kinds))
	for k, p := range e.pools {
		scalable[k] = p
	}
	e.scaler = NewAutoscaler(e.q1, scalable, cfg.Scaling)
	return e, nil
}

// Run starts every node, generates traffic for the configured duration (or
// until ctx is cancelled), then performs the orderly drain shutdown and
// returns the aggregated results.
func (e *Engine) Run(ctx context.Context) (Results, error) {
	logrus.Infof("engine: starting simulation (duration=%s rate=%.2f seed=%d)",
		e.cfg.Workload.Duration, e.cfg.Workload.Rate, e.cfg.Workload.Seed)
	start := time.Now()

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	genCtx, cancelGen := context.WithCancel(runCtx)
	scaleCtx, cancelScale := context.WithCancel(runCtx)

	// stage-2 processors, supervised for replacement on idle failure
	go e.superviseStageTwo(runCtx)

	// stage-1 pools at the minimum size
	for _, k := range Kinds {
		if err := e.pools[k].Start(runCtx, e.cfg.Scaling.MinPerKind); err != nil {
			cancelGen()
			cancelScale()
			return Results{}, fmt.Errorf("start pool %s: %w", k, err)
		}
	}

	for _, c := range e.clients {
		c.Start(runCtx, genCtx)
	}
	go e.scaler.Run(scaleCtx)
	logrus.Info("engine: all nodes started")

	e.awaitDeadline(ctx)

	// Drain: stop clients first, let in-flight requests complete or time
	// out, then retire processors and close queues.
	logrus.Info("engine: draining")
	cancelGen()
	e.awaitInFlight(ctx)
	cancelScale()

	e.q1.Close(false)
	for _, p := range e.pools {
		p.Wait()
	}
	for _, q := range e.q2 {
		q.Close(false)
	}
	<-e.stage2Done

	cancelRun()
	e.net.Close()
	for _, c := range e.clients {
		c.Wait()
	}

	elapsed := time.Since(start)
	e.checkConservation()

	status := e.scaler.Status()
	results := e.metrics.BuildResults(elapsed, &status)
	logrus.Infof("engine: simulation stopped after %s", elapsed.Round(time.Millisecond))
	return results, nil
}

// awaitDeadline sleeps for the run duration, logging a status line every
// status interval. Returns early on ctx cancellation (e.g. SIGINT).
func (e *Engine) awaitDeadline(ctx context.Context) {
	deadline := time.NewTimer(e.cfg.Workload.Duration)
	defer deadline.Stop()
	status := time.NewTicker(e.cfg.StatusInterval)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("engine: interrupted")
			return
		case <-deadline.C:
			logrus.Info("engine: simulation duration complete")
			return
		case <-status.C:
			e.logStatus()
		}
	}
}

// awaitInFlight waits until every client's tracker map is empty, bounded by
// the client timeout plus slack so a wedged leg cannot stall shutdown.
func (e *Engine) awaitInFlight(ctx context.Context) {
	grace := e.cfg.Faults.ClientTimeout + e.cfg.Faults.ClientTimeout/2
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		pending := 0
		for _, c := range e.clients {
			pending += c.Pending()
		}
		if pending == 0 {
			return
		}
		time.Sleep(drainPollInterval)
	}
	logrus.Warn("engine: drain grace elapsed with requests still in flight")
}

func (e *Engine) logStatus() {
	totals := e.metrics.Totals()
	pending := 0
	for _, c := range e.clients {
		pending += c.Pending()
	}
	logrus.Infof("status: sent=%d ok=%d failed=%d retried=%d pending=%d q1=%d pools=[z1:%d z2:%d z3:%d]",
		totals.Sent, totals.Successful, totals.Failed, totals.Retries, pending,
		e.q1.TotalLen(), e.pools[Z1].Size(), e.pools[Z2].Size(), e.pools[Z3].Size())
}

// superviseStageTwo runs one worker per kind and replaces any that fail via
// idle timeout, so stage 2 keeps serving for the whole run.
func (e *Engine) superviseStageTwo(ctx context.Context) {
	defer close(e.stage2Done)

	done := make(chan struct{}, len(Kinds))
	for _, k := range Kinds {
		go func(kind Kind) {
			defer func() { done <- struct{}{} }()
			for gen := 0; ; gen++ {
				id := stageTwoWorkerID(kind, gen)
				oracle, err := NewServiceTimeOracle(e.cfg.ServiceTime, e.rng.SeedFor(SubsystemStageTwoWorker(kind, gen)))
				if err != nil {
					logrus.Errorf("engine: stage-2 %s: %v", id, err)
					return
				}
				rng := e.rng.ForSubsystem(SubsystemStageTwoWorker(kind, gen))
				e.metrics.RegisterProcessor(id, kind)
				w := NewStageTwoWorker(id, kind, e.q2[kind], e.net, oracle, rng, e.cfg.Faults, e.metrics)
				if w.Run(ctx) != exitIdle || ctx.Err() != nil {
					return
				}
				logrus.Warnf("engine: replacing failed stage-2 worker %s", id)
			}
		}(k)
	}
	for range Kinds {
		<-done
	}
}

func stageTwoWorkerID(kind Kind, gen int) string {
	if gen == 0 {
		return fmt.Sprintf("P2%d", int(kind))
	}
	return fmt.Sprintf("P2%d_%d", int(kind), gen)
}

// checkConservation verifies the broadcast invariant: every submission to the
// distributor produced exactly one delivery per stage-2 queue.
func (e *Engine) checkConservation() {
	var entered uint64
	for _, q := range e.q2 {
		entered += q.Entered()
	}
	submitted := e.dist.Submitted()
	if entered != submitted*uint64(len(Kinds)) {
		// legs can legitimately be dropped once the queues close mid-flight
		logrus.Debugf("engine: distributor fan-out %d x %d, stage-2 accepted %d", submitted, len(Kinds), entered)
	}
}
