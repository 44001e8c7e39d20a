// The autoscaling controller: watches per-kind queue wait and grows or
// shrinks the stage-1 pools within bounds, with hysteresis and a per-kind
// cooldown.

package sim

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ScaleState describes where a pool sits in the scaling state machine.
// ScalingUp and ScalingDown cover the interval between a decision and the
// worker entering or leaving service; the cooldown suppresses further
// actions for that kind meanwhile.
type ScaleState string

const (
	Steady      ScaleState = "steady"
	ScalingUp   ScaleState = "scaling_up"
	ScalingDown ScaleState = "scaling_down"
)

// WaitObserver is the queue surface the autoscaler reads. Implemented by
// PriorityQueue.
type WaitObserver interface {
	AvgWait(kind Kind, window time.Duration) time.Duration
	WaitSampleCount(kind Kind, window time.Duration) int
	Len(kind Kind) int
}

// ScalablePool is the pool surface the autoscaler drives. The autoscaler
// never touches the worker list directly; membership stays owned by the pool.
type ScalablePool interface {
	Spawn() (string, error)
	SignalRetire() bool
	Size() int
}

// ScalingStatus is a read-only snapshot for the status log and the final
// results document.
type ScalingStatus struct {
	PoolSizes map[string]int       `json:"pool_sizes"`
	States    map[string]string    `json:"states"`
	LastScale map[string]time.Time `json:"last_scale_event"`
}

// Autoscaler periodically compares observed queue wait against the scale-up
// and scale-down thresholds. Strict inequalities; the band between the
// thresholds is inert. At most one scaling action per kind per tick.
type Autoscaler struct {
	queue WaitObserver
	pools map[Kind]ScalablePool
	cfg   ScalingConfig

	mu        sync.Mutex
	lastScale map[Kind]time.Time
	states    map[Kind]ScaleState
}

// NewAutoscaler wires the controller to the queue it observes and the pools
// it drives.
func NewAutoscaler(queue WaitObserver, pools map[Kind]ScalablePool, cfg ScalingConfig) *Autoscaler {
	states := make(map[Kind]ScaleState, len(Kinds))
	for _, k := range Kinds {
		states[k] = Steady
	}
	return &Autoscaler{
		queue:     queue,
		pools:     pools,
		cfg:       cfg,
		lastScale: make(map[Kind]time.Time, len(Kinds)),
		states:    states,
	}
}

// Run ticks until the context is cancelled. A panicking tick is logged and
// the loop continues at the current scale.
func (a *Autoscaler) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.CheckInterval)
	defer ticker.Stop()

	logrus.Info("autoscaler: started")
	for {
		select {
		case <-ctx.Done():
			logrus.Info("autoscaler: stopped")
			return
		case now := <-ticker.C:
			a.safeTick(now)
		}
	}
}

func (a *Autoscaler) safeTick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("autoscaler: tick fault: %v; continuing at current scale", r)
		}
	}()
	a.Tick(now)
}

// Tick evaluates every kind once. Exported so tests can drive the controller
// without the timer.
func (a *Autoscaler) Tick(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	window := a.cfg.Window()
	for _, k := range Kinds {
		pool := a.pools[k]

		samples := a.queue.WaitSampleCount(k, window)
		if samples < a.cfg.MinSamples && a.queue.Len(k) > 0 {
			// warm-up: work is flowing but not enough evidence yet
			a.states[k] = Steady
			continue
		}
		// Wait samples are recorded at dequeue time, so a subqueue whose
		// traffic halted produces none and the window drains empty. That is
		// the zero-wait case, not missing evidence: fall through with
		// wait=0 so an idle pool keeps shrinking to the minimum. Scale-up
		// still demands a full window of samples.
		if now.Sub(a.lastScale[k]) < a.cfg.Cooldown {
			// in cooldown: the previous decision is still settling
			continue
		}

		wait := a.queue.AvgWait(k, window).Seconds()
		size := pool.Size()
		switch {
		case samples >= a.cfg.MinSamples && wait > a.cfg.AvgWaitThreshold && size < a.cfg.MaxPerKind:
			if _, err := pool.Spawn(); err != nil {
				logrus.Errorf("autoscaler: scale up %s: %v", k, err)
				continue
			}
			logrus.Infof("autoscaler: scaling up %s: avg_wait=%.2fs > %.2fs (pool %d -> %d)",
				k, wait, a.cfg.AvgWaitThreshold, size, size+1)
			a.lastScale[k] = now
			a.states[k] = ScalingUp
		case wait < a.cfg.ScaleDownThreshold && size > a.cfg.MinPerKind:
			if !pool.SignalRetire() {
				continue
			}
			logrus.Infof("autoscaler: scaling down %s: avg_wait=%.2fs < %.2fs (pool %d -> %d)",
				k, wait, a.cfg.ScaleDownThreshold, size, size-1)
			a.lastScale[k] = now
			a.states[k] = ScalingDown
		default:
			a.states[k] = Steady
		}
	}
}

// Status snapshots pool sizes, states and last scale events.
func (a *Autoscaler) Status() ScalingStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := ScalingStatus{
		PoolSizes: make(map[string]int, len(Kinds)),
		States:    make(map[string]string, len(Kinds)),
		LastScale: make(map[string]time.Time, len(Kinds)),
	}
	for _, k := range Kinds {
		st.PoolSizes[k.String()] = a.pools[k].Size()
		st.States[k.String()] = string(a.states[k])
		if t, ok := a.lastScale[k]; ok {
			st.LastScale[k.String()] = t
		}
	}
	return st
}
