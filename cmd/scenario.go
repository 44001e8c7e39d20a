package cmd

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	sim "github.com/DenKry/queuing-theory-imitation-model/sim"
)

// Define structs for YAML
type ScenarioFile struct {
	Scenarios map[string]Scenario `yaml:"scenarios"`
}

// Scenario is one named preset. Pointer fields override the defaults only
// when present; durations are plain seconds.
type Scenario struct {
	ServiceTimeType string   `yaml:"service_time_type"`
	ServiceFixed    *float64 `yaml:"service_fixed"`
	ServiceUniformA *float64 `yaml:"service_uniform_a"`
	ServiceUniformB *float64 `yaml:"service_uniform_b"`
	ServiceExpRate  *float64 `yaml:"service_exp_rate"`
	ServiceNormMean *float64 `yaml:"service_normal_mean"`
	ServiceNormStd  *float64 `yaml:"service_normal_stdev"`

	AvgWaitThreshold   *float64 `yaml:"avg_wait_time_threshold"`
	ScaleDownThreshold *float64 `yaml:"scale_down_threshold"`
	ScalingCooldown    *float64 `yaml:"scaling_cooldown_seconds"`
	MinPerType         *int     `yaml:"min_processors_per_type"`
	MaxPerType         *int     `yaml:"max_processors_per_type"`

	FailureProbability *float64 `yaml:"p2x_failure_probability"`
	IdleTimeout        *float64 `yaml:"idle_timeout_seconds"`
	ClientTimeout      *float64 `yaml:"client_request_timeout_seconds"`
	MaxRetries         *int     `yaml:"max_retries"`

	Rate     *float64 `yaml:"rate"`
	Duration *float64 `yaml:"duration_seconds"`
}

// ApplyScenario overlays the named preset from a YAML file onto cfg.
func ApplyScenario(cfg *sim.Config, path, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scenario file: %w", err)
	}

	var file ScenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse scenario file: %w", err)
	}
	if name == "" {
		return fmt.Errorf("scenario file given but no --scenario name")
	}
	sc, ok := file.Scenarios[name]
	if !ok {
		return fmt.Errorf("scenario %q not found in %s", name, path)
	}

	if sc.ServiceTimeType != "" {
		cfg.ServiceTime.Type = sim.ServiceTimeType(sc.ServiceTimeType)
	}
	setFloat(&cfg.ServiceTime.Fixed, sc.ServiceFixed)
	setFloat(&cfg.ServiceTime.UniformA, sc.ServiceUniformA)
	setFloat(&cfg.ServiceTime.UniformB, sc.ServiceUniformB)
	setFloat(&cfg.ServiceTime.ExpLambda, sc.ServiceExpRate)
	setFloat(&cfg.ServiceTime.NormalMean, sc.ServiceNormMean)
	setFloat(&cfg.ServiceTime.NormalStd, sc.ServiceNormStd)

	setFloat(&cfg.Scaling.AvgWaitThreshold, sc.AvgWaitThreshold)
	setFloat(&cfg.Scaling.ScaleDownThreshold, sc.ScaleDownThreshold)
	setSeconds(&cfg.Scaling.Cooldown, sc.ScalingCooldown)
	setInt(&cfg.Scaling.MinPerKind, sc.MinPerType)
	setInt(&cfg.Scaling.MaxPerKind, sc.MaxPerType)

	setFloat(&cfg.Faults.P2FailureProbability, sc.FailureProbability)
	setSeconds(&cfg.Faults.IdleTimeout, sc.IdleTimeout)
	setSeconds(&cfg.Faults.ClientTimeout, sc.ClientTimeout)
	setInt(&cfg.Faults.MaxRetries, sc.MaxRetries)

	setFloat(&cfg.Workload.Rate, sc.Rate)
	setSeconds(&cfg.Workload.Duration, sc.Duration)
	return nil
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setSeconds(dst *time.Duration, src *float64) {
	if src != nil {
		*dst = time.Duration(*src * float64(time.Second))
	}
}
