package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_RejectsBadFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown distribution", func(c *Config) { c.ServiceTime.Type = "pareto" }, "service_time.type"},
		{"fixed non-positive", func(c *Config) { c.ServiceTime.Type = ServiceTimeFixed; c.ServiceTime.Fixed = 0 }, "service_time.fixed"},
		{"uniform inverted bounds", func(c *Config) { c.ServiceTime.Type = ServiceTimeUniform; c.ServiceTime.UniformA = 3; c.ServiceTime.UniformB = 1 }, "service_time.uniform"},
		{"exponential zero rate", func(c *Config) { c.ServiceTime.ExpLambda = 0 }, "service_time.exp_lambda"},
		{"min below one", func(c *Config) { c.Scaling.MinPerKind = 0 }, "scaling.min_processors_per_type"},
		{"max below min", func(c *Config) { c.Scaling.MaxPerKind = 0 }, "scaling.max_processors_per_type"},
		{"thresholds inverted", func(c *Config) { c.Scaling.AvgWaitThreshold = 1.0 }, "scaling.avg_wait_time_threshold"},
		{"cooldown zero", func(c *Config) { c.Scaling.Cooldown = 0 }, "scaling.scaling_cooldown"},
		{"failure probability above one", func(c *Config) { c.Faults.P2FailureProbability = 1.5 }, "faults.p2x_failure_probability"},
		{"negative retries", func(c *Config) { c.Faults.MaxRetries = -1 }, "faults.max_retries"},
		{"idle timeout zero", func(c *Config) { c.Faults.IdleTimeout = 0 }, "faults.idle_timeout"},
		{"client timeout zero", func(c *Config) { c.Faults.ClientTimeout = 0 }, "faults.client_request_timeout"},
		{"rate zero", func(c *Config) { c.Workload.Rate = 0 }, "workload.rate"},
		{"duration zero", func(c *Config) { c.Workload.Duration = 0 }, "workload.duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var cerr *ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestScalingConfig_Window_DefaultsToCooldown(t *testing.T) {
	cfg := ScalingConfig{Cooldown: 10 * time.Second}
	assert.Equal(t, 10*time.Second, cfg.Window())

	cfg.ObservationWindow = 3 * time.Second
	assert.Equal(t, 3*time.Second, cfg.Window())
}
