package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastConfig is a millisecond-scale configuration so whole-pipeline runs
// finish quickly.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.ServiceTime = ServiceTimeConfig{Type: ServiceTimeFixed, Fixed: 0.001}
	cfg.Workload.Duration = 400 * time.Millisecond
	cfg.Workload.Rate = 40.0
	cfg.Workload.Seed = 325
	cfg.Faults.P2FailureProbability = 0
	cfg.Faults.MaxRetries = 0
	cfg.Faults.ClientTimeout = 2 * time.Second
	cfg.Faults.IdleTimeout = 30 * time.Second
	cfg.Scaling.Cooldown = time.Minute
	cfg.Scaling.CheckInterval = 50 * time.Millisecond
	cfg.StatusInterval = time.Minute
	return cfg
}

func TestNewEngine_RejectsInvalidConfig(t *testing.T) {
	cfg := fastConfig()
	cfg.Workload.Rate = -1

	_, err := NewEngine(cfg)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestEngine_Run_CleanPipeline_AllSucceed(t *testing.T) {
	// GIVEN no stage-2 failures and no retries allowed
	engine, err := NewEngine(fastConfig())
	require.NoError(t, err)

	// WHEN a short run completes
	results, err := engine.Run(context.Background())
	require.NoError(t, err)

	// THEN every retired request succeeded and nothing was retried
	require.Greater(t, results.TotalRequests, 0)
	assert.Equal(t, results.TotalRequests, results.Successful)
	assert.Equal(t, 0, results.Failed)
	assert.Equal(t, 0, results.Retries)
	assert.InDelta(t, 1.0, results.SuccessRate, 1e-9)
	assert.Greater(t, results.ThroughputPerSecond, 0.0)

	// both clients took part
	assert.Contains(t, results.PerClient, "K1")
	assert.Contains(t, results.PerClient, "K2")

	// the three stage-2 processors and three stage-1 pools are reported
	for _, id := range []string{"P21", "P22", "P23", "P11_0", "P12_0", "P13_0"} {
		assert.Contains(t, results.PerProcessor, id)
	}

	// broadcast conservation held for the whole run
	var entered uint64
	for _, q := range engine.q2 {
		entered += q.Entered()
	}
	assert.Equal(t, engine.dist.Submitted()*3, entered)
}

func TestEngine_Run_AllLegsFail_AllRequestsFail(t *testing.T) {
	// GIVEN stage 2 failing every leg and one retry allowed
	cfg := fastConfig()
	cfg.Workload.Duration = 250 * time.Millisecond
	cfg.Workload.Rate = 20.0
	cfg.Faults.P2FailureProbability = 1.0
	cfg.Faults.MaxRetries = 1

	engine, err := NewEngine(cfg)
	require.NoError(t, err)

	results, err := engine.Run(context.Background())
	require.NoError(t, err)

	// THEN no request ever succeeds and retries were spent
	require.Greater(t, results.TotalRequests, 0)
	assert.Equal(t, 0, results.Successful)
	assert.Equal(t, results.TotalRequests, results.Failed)
	assert.Greater(t, results.Retries, 0)
	assert.Equal(t, 0.0, results.SuccessRate)
}

func TestEngine_Run_ContextCancel_StopsEarly(t *testing.T) {
	cfg := fastConfig()
	cfg.Workload.Duration = time.Minute

	engine, err := NewEngine(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = engine.Run(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestEngine_Run_QueueWaitPercentilesPresent(t *testing.T) {
	engine, err := NewEngine(fastConfig())
	require.NoError(t, err)

	results, err := engine.Run(context.Background())
	require.NoError(t, err)

	for _, k := range Kinds {
		assert.Contains(t, results.QueueWait, k.String())
	}
	require.NotNil(t, results.Scaling)
	for _, k := range Kinds {
		assert.GreaterOrEqual(t, results.Scaling.PoolSizes[k.String()], 0)
	}
}
