package sim

import (
	"time"
)

// ServiceTimeType selects the distribution backing the service-time oracle.
type ServiceTimeType string

const (
	ServiceTimeFixed       ServiceTimeType = "fixed"
	ServiceTimeUniform     ServiceTimeType = "uniform"
	ServiceTimeExponential ServiceTimeType = "exponential"
	ServiceTimeNormal      ServiceTimeType = "normal"
)

// ServiceTimeConfig groups the service-time oracle parameters.
type ServiceTimeConfig struct {
	Type       ServiceTimeType `yaml:"type"`
	Fixed      float64         `yaml:"fixed"`        // seconds, Type == fixed
	UniformA   float64         `yaml:"uniform_a"`    // lower bound, seconds
	UniformB   float64         `yaml:"uniform_b"`    // upper bound, seconds
	ExpLambda  float64         `yaml:"exp_lambda"`   // rate, Type == exponential
	NormalMean float64         `yaml:"normal_mean"`  // seconds
	NormalStd  float64         `yaml:"normal_stdev"` // seconds
}

// ScalingConfig groups the autoscaler parameters.
type ScalingConfig struct {
	AvgWaitThreshold   float64       `yaml:"avg_wait_time_threshold"` // seconds, scale up above
	ScaleDownThreshold float64       `yaml:"scale_down_threshold"`    // seconds, scale down below
	Cooldown           time.Duration `yaml:"scaling_cooldown"`        // min gap between actions per kind
	CheckInterval      time.Duration `yaml:"scaling_check_interval"`  // autoscaler tick period
	MinPerKind         int           `yaml:"min_processors_per_type"`
	MaxPerKind         int           `yaml:"max_processors_per_type"`
	ObservationWindow  time.Duration `yaml:"observation_window"` // 0 = use Cooldown
	MinSamples         int           `yaml:"min_samples"`        // wait samples required before acting
}

// Window returns the wait-time observation window, defaulting to the cooldown.
func (c ScalingConfig) Window() time.Duration {
	if c.ObservationWindow > 0 {
		return c.ObservationWindow
	}
	return c.Cooldown
}

// FaultConfig groups failure injection and timeout parameters.
type FaultConfig struct {
	P2FailureProbability float64       `yaml:"p2x_failure_probability"` // per dequeued request
	IdleTimeout          time.Duration `yaml:"idle_timeout"`            // stage-2 worker idle life
	ClientTimeout        time.Duration `yaml:"client_request_timeout"`  // per attempt
	MaxRetries           int           `yaml:"max_retries"`
}

// WorkloadConfig groups traffic generation parameters.
type WorkloadConfig struct {
	Rate     float64       `yaml:"rate"` // requests per second per client
	Duration time.Duration `yaml:"duration"`
	Seed     int64         `yaml:"seed"`
}

// NetworkConfig is only consulted by socket-backed transports. The in-process
// transport ignores it.
type NetworkConfig struct {
	TCPPortBase int `yaml:"tcp_port_base"`
	BufferSize  int `yaml:"buffer_size"`
}

// Config is the full simulation configuration, read once at startup.
type Config struct {
	ServiceTime    ServiceTimeConfig `yaml:"service_time"`
	Scaling        ScalingConfig     `yaml:"scaling"`
	Faults         FaultConfig       `yaml:"faults"`
	Workload       WorkloadConfig    `yaml:"workload"`
	Network        NetworkConfig     `yaml:"network"`
	ResultsPath    string            `yaml:"results_path"`
	StatusInterval time.Duration     `yaml:"status_interval"` // periodic engine status log
}

// DefaultConfig returns the stock configuration. Values mirror the defaults
// the simulator has always shipped with.
func DefaultConfig() Config {
	return Config{
		ServiceTime: ServiceTimeConfig{
			Type:       ServiceTimeExponential,
			Fixed:      1.0,
			UniformA:   0.5,
			UniformB:   2.0,
			ExpLambda:  1.0,
			NormalMean: 1.0,
			NormalStd:  0.2,
		},
		Scaling: ScalingConfig{
			AvgWaitThreshold:   5.0,
			ScaleDownThreshold: 1.5,
			Cooldown:           10 * time.Second,
			CheckInterval:      time.Second,
			MinPerKind:         1,
			MaxPerKind:         5,
			MinSamples:         3,
		},
		Faults: FaultConfig{
			P2FailureProbability: 0.025,
			IdleTimeout:          60 * time.Second,
			ClientTimeout:        15 * time.Second,
			MaxRetries:           2,
		},
		Workload: WorkloadConfig{
			Rate:     2.0,
			Duration: 60 * time.Second,
			Seed:     325,
		},
		Network: NetworkConfig{
			TCPPortBase: 5000,
			BufferSize:  4096,
		},
		ResultsPath:    "simulation_results.json",
		StatusInterval: 10 * time.Second,
	}
}

// Validate checks the configuration and returns a ConfigError for the first
// invalid field. A failed validation aborts startup before any node runs.
func (c *Config) Validate() error {
	switch c.ServiceTime.Type {
	case ServiceTimeFixed:
		if c.ServiceTime.Fixed <= 0 {
			return &ConfigError{Field: "service_time.fixed", Reason: "must be > 0"}
		}
	case ServiceTimeUniform:
		if c.ServiceTime.UniformA < 0 || c.ServiceTime.UniformB <= c.ServiceTime.UniformA {
			return &ConfigError{Field: "service_time.uniform", Reason: "need 0 <= a < b"}
		}
	case ServiceTimeExponential:
		if c.ServiceTime.ExpLambda <= 0 {
			return &ConfigError{Field: "service_time.exp_lambda", Reason: "must be > 0"}
		}
	case ServiceTimeNormal:
		if c.ServiceTime.NormalStd < 0 {
			return &ConfigError{Field: "service_time.normal_stdev", Reason: "must be >= 0"}
		}
	default:
		return &ConfigError{Field: "service_time.type", Reason: "unknown distribution"}
	}

	if c.Scaling.MinPerKind < 1 {
		return &ConfigError{Field: "scaling.min_processors_per_type", Reason: "must be >= 1"}
	}
	if c.Scaling.MaxPerKind < c.Scaling.MinPerKind {
		return &ConfigError{Field: "scaling.max_processors_per_type", Reason: "must be >= min_processors_per_type"}
	}
	if c.Scaling.AvgWaitThreshold <= c.Scaling.ScaleDownThreshold {
		return &ConfigError{Field: "scaling.avg_wait_time_threshold", Reason: "must exceed scale_down_threshold"}
	}
	if c.Scaling.Cooldown <= 0 {
		return &ConfigError{Field: "scaling.scaling_cooldown", Reason: "must be > 0"}
	}
	if c.Scaling.CheckInterval <= 0 {
		return &ConfigError{Field: "scaling.scaling_check_interval", Reason: "must be > 0"}
	}

	if c.Faults.P2FailureProbability < 0 || c.Faults.P2FailureProbability > 1 {
		return &ConfigError{Field: "faults.p2x_failure_probability", Reason: "must be in [0, 1]"}
	}
	if c.Faults.IdleTimeout <= 0 {
		return &ConfigError{Field: "faults.idle_timeout", Reason: "must be > 0"}
	}
	if c.Faults.ClientTimeout <= 0 {
		return &ConfigError{Field: "faults.client_request_timeout", Reason: "must be > 0"}
	}
	if c.Faults.MaxRetries < 0 {
		return &ConfigError{Field: "faults.max_retries", Reason: "must be >= 0"}
	}

	if c.Workload.Rate <= 0 {
		return &ConfigError{Field: "workload.rate", Reason: "must be > 0"}
	}
	if c.Workload.Duration <= 0 {
		return &ConfigError{Field: "workload.duration", Reason: "must be > 0"}
	}
	return nil
}
