package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubWaitObserver feeds the autoscaler canned wait observations.
type stubWaitObserver struct {
	wait    map[Kind]time.Duration
	samples map[Kind]int
	lens    map[Kind]int
}

func (s *stubWaitObserver) AvgWait(k Kind, _ time.Duration) time.Duration { return s.wait[k] }
func (s *stubWaitObserver) WaitSampleCount(k Kind, _ time.Duration) int   { return s.samples[k] }
func (s *stubWaitObserver) Len(k Kind) int                                { return s.lens[k] }

// stubPool counts scaling actions without running workers.
type stubPool struct {
	size    int
	spawned int
	retired int
	panicky bool
}

func (p *stubPool) Spawn() (string, error) {
	if p.panicky {
		panic("boom")
	}
	p.size++
	p.spawned++
	return "w", nil
}

func (p *stubPool) SignalRetire() bool {
	if p.size <= 1 {
		return false
	}
	p.size--
	p.retired++
	return true
}

func (p *stubPool) Size() int { return p.size }

func scalingCfg() ScalingConfig {
	return ScalingConfig{
		AvgWaitThreshold:   5.0,
		ScaleDownThreshold: 1.5,
		Cooldown:           10 * time.Second,
		CheckInterval:      time.Second,
		MinPerKind:         1,
		MaxPerKind:         5,
		MinSamples:         3,
	}
}

func newTestAutoscaler(sizes map[Kind]int) (*Autoscaler, *stubWaitObserver, map[Kind]*stubPool) {
	obs := &stubWaitObserver{wait: map[Kind]time.Duration{}, samples: map[Kind]int{}, lens: map[Kind]int{}}
	pools := map[Kind]*stubPool{}
	scalable := map[Kind]ScalablePool{}
	for _, k := range Kinds {
		pools[k] = &stubPool{size: sizes[k]}
		scalable[k] = pools[k]
	}
	return NewAutoscaler(obs, scalable, scalingCfg()), obs, pools
}

func TestAutoscaler_ScaleUp_AboveThreshold(t *testing.T) {
	// GIVEN z3 wait above the scale-up threshold with enough samples
	a, obs, pools := newTestAutoscaler(map[Kind]int{Z1: 1, Z2: 1, Z3: 1})
	obs.wait[Z3] = 6 * time.Second
	obs.samples[Z3] = 5

	// WHEN the autoscaler ticks
	now := time.Now()
	a.Tick(now)

	// THEN one z3 worker is spawned and the state reflects it
	assert.Equal(t, 1, pools[Z3].spawned)
	assert.Equal(t, 2, pools[Z3].size)
	assert.Equal(t, 0, pools[Z1].spawned)
	st := a.Status()
	assert.Equal(t, string(ScalingUp), st.States[Z3.String()])
	assert.Equal(t, now, st.LastScale[Z3.String()])
}

func TestAutoscaler_Cooldown_SuppressesSecondAction(t *testing.T) {
	a, obs, pools := newTestAutoscaler(map[Kind]int{Z1: 1, Z2: 1, Z3: 1})
	obs.wait[Z1] = 10 * time.Second
	obs.samples[Z1] = 5

	now := time.Now()
	a.Tick(now)
	require.Equal(t, 1, pools[Z1].spawned)

	// within the cooldown nothing more happens, regardless of wait
	a.Tick(now.Add(5 * time.Second))
	assert.Equal(t, 1, pools[Z1].spawned)

	// after the cooldown the next action is allowed
	a.Tick(now.Add(10 * time.Second))
	assert.Equal(t, 2, pools[Z1].spawned)
}

func TestAutoscaler_MinSamples_Gate(t *testing.T) {
	a, obs, pools := newTestAutoscaler(map[Kind]int{Z1: 1, Z2: 1, Z3: 1})
	obs.wait[Z2] = time.Minute
	obs.samples[Z2] = 2 // below the minimum
	obs.lens[Z2] = 4    // work is flowing, just not enough evidence yet

	a.Tick(time.Now())
	assert.Equal(t, 0, pools[Z2].spawned)
	assert.Equal(t, string(Steady), a.Status().States[Z2.String()])
}

func TestAutoscaler_IdleQueue_NoSamples_StillScalesDown(t *testing.T) {
	// GIVEN a z3 pool of 3 whose traffic has halted: no resident work and
	// every wait sample aged out of the observation window
	a, obs, pools := newTestAutoscaler(map[Kind]int{Z1: 1, Z2: 1, Z3: 3})
	obs.samples[Z3] = 0
	obs.lens[Z3] = 0

	// WHEN the autoscaler ticks
	a.Tick(time.Now())

	// THEN the empty window reads as zero wait and one worker retires
	assert.Equal(t, 1, pools[Z3].retired)
	assert.Equal(t, 2, pools[Z3].size)
	assert.Equal(t, string(ScalingDown), a.Status().States[Z3.String()])
}

func TestAutoscaler_MaxBound_NoSpawnAtCeiling(t *testing.T) {
	a, obs, pools := newTestAutoscaler(map[Kind]int{Z1: 5, Z2: 1, Z3: 1})
	obs.wait[Z1] = time.Minute
	obs.samples[Z1] = 10

	a.Tick(time.Now())
	assert.Equal(t, 0, pools[Z1].spawned)
	assert.Equal(t, 5, pools[Z1].size)
}

func TestAutoscaler_ScaleDown_ToMinNoLower(t *testing.T) {
	// GIVEN a z3 pool of 5 and no z3 load
	a, obs, pools := newTestAutoscaler(map[Kind]int{Z1: 1, Z2: 1, Z3: 5})
	obs.wait[Z3] = 100 * time.Millisecond
	obs.samples[Z3] = 10

	// WHEN cooldown-spaced ticks arrive
	now := time.Now()
	for i := 0; i < 8; i++ {
		a.Tick(now.Add(time.Duration(i) * 10 * time.Second))
	}

	// THEN the pool has shrunk to the minimum and stopped
	assert.Equal(t, 1, pools[Z3].size)
	assert.Equal(t, 4, pools[Z3].retired)
}

func TestAutoscaler_ScaleDown_HaltedTraffic_ReachesMin(t *testing.T) {
	// Scenario: a scaled-up z3 pool whose traffic halts must shrink back to
	// the minimum, driven through a real queue so the wait samples age out
	// of the observation window the way they do in a live pipeline.
	q := NewPriorityQueue()
	pools := map[Kind]*stubPool{}
	scalable := map[Kind]ScalablePool{}
	for _, k := range Kinds {
		pools[k] = &stubPool{size: 1}
		scalable[k] = pools[k]
	}
	pools[Z3].size = 5

	cfg := scalingCfg()
	cfg.ObservationWindow = 40 * time.Millisecond
	a := NewAutoscaler(q, scalable, cfg)

	// GIVEN a burst of served z3 traffic
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(req(uint64(i+1), Z3)))
		q.DequeueFor(Z3)
	}
	require.GreaterOrEqual(t, q.WaitSampleCount(Z3, cfg.Window()), cfg.MinSamples)

	// WHEN traffic halts and the window drains empty
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 0, q.WaitSampleCount(Z3, cfg.Window()))

	// THEN cooldown-spaced ticks shrink the pool to the minimum, no lower
	now := time.Now()
	for i := 0; i < 8; i++ {
		a.Tick(now.Add(time.Duration(i) * cfg.Cooldown))
	}
	assert.Equal(t, cfg.MinPerKind, pools[Z3].size)
	assert.Equal(t, 4, pools[Z3].retired)
}

func TestAutoscaler_HysteresisBand_NoAction(t *testing.T) {
	a, obs, pools := newTestAutoscaler(map[Kind]int{Z1: 3, Z2: 1, Z3: 1})
	obs.wait[Z1] = 3 * time.Second // between 1.5 and 5.0
	obs.samples[Z1] = 10

	a.Tick(time.Now())
	assert.Equal(t, 0, pools[Z1].spawned)
	assert.Equal(t, 0, pools[Z1].retired)
	assert.Equal(t, string(Steady), a.Status().States[Z1.String()])
}

func TestAutoscaler_OneActionPerKindPerTick(t *testing.T) {
	a, obs, pools := newTestAutoscaler(map[Kind]int{Z1: 1, Z2: 1, Z3: 1})
	for _, k := range Kinds {
		obs.wait[k] = time.Minute
		obs.samples[k] = 10
	}

	a.Tick(time.Now())
	for _, k := range Kinds {
		assert.Equal(t, 1, pools[k].spawned, "kind %s", k)
	}
}

func TestAutoscaler_TickFault_Recovered(t *testing.T) {
	// GIVEN a pool whose spawn panics
	a, obs, pools := newTestAutoscaler(map[Kind]int{Z1: 1, Z2: 1, Z3: 1})
	pools[Z1].panicky = true
	obs.wait[Z1] = time.Minute
	obs.samples[Z1] = 10

	// WHEN the guarded tick runs
	// THEN the fault does not propagate and later ticks still work
	assert.NotPanics(t, func() { a.safeTick(time.Now()) })

	pools[Z1].panicky = false
	a.Tick(time.Now().Add(20 * time.Second))
	assert.Equal(t, 1, pools[Z1].spawned)
}
