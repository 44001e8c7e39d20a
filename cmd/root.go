package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/DenKry/queuing-theory-imitation-model/sim"
)

var (
	// CLI flags for the simulation run
	durationSecs float64 // total simulated wall time, seconds
	rate         float64 // request arrivals per second per client
	seed         int64   // master seed for all stochastic draws
	logLevel     string  // log verbosity level

	// service time oracle
	serviceTimeType string
	serviceFixed    float64
	serviceUniformA float64
	serviceUniformB float64
	serviceExpRate  float64
	serviceNormMean float64
	serviceNormStd  float64

	// autoscaling
	avgWaitThreshold   float64
	scaleDownThreshold float64
	scalingCooldown    time.Duration
	scalingInterval    time.Duration
	minPerType         int
	maxPerType         int

	// fault tolerance
	failureProbability float64
	idleTimeout        time.Duration
	clientTimeout      time.Duration
	maxRetries         int

	resultsPath  string
	scenarioFile string
	scenarioName string
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "queuesim",
	Short: "Queuing-network simulator with priority dispatch and autoscaling",
}

// runCmd executes the simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the queuing-network simulation",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg := sim.DefaultConfig()
		if scenarioFile != "" {
			if err := ApplyScenario(&cfg, scenarioFile, scenarioName); err != nil {
				logrus.Fatalf("Scenario: %v", err)
			}
		}
		applyFlags(cmd, &cfg)

		engine, err := sim.NewEngine(cfg)
		if err != nil {
			logrus.Fatalf("Configuration: %v", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		results, err := engine.Run(ctx)
		if err != nil {
			logrus.Fatalf("Simulation: %v", err)
		}

		if err := results.WriteFile(cfg.ResultsPath); err != nil {
			logrus.Fatalf("Results: %v", err)
		}
		logrus.Infof("Results saved to %s", cfg.ResultsPath)
		results.LogSummary()
	},
}

// applyFlags copies every flag the user set (and the always-meaningful
// basics) over the scenario/default configuration.
func applyFlags(cmd *cobra.Command, cfg *sim.Config) {
	cfg.Workload.Duration = time.Duration(durationSecs * float64(time.Second))
	cfg.Workload.Rate = rate
	cfg.Workload.Seed = seed

	if cmd.Flags().Changed("service-time-type") {
		cfg.ServiceTime.Type = sim.ServiceTimeType(serviceTimeType)
	}
	if cmd.Flags().Changed("service-fixed") {
		cfg.ServiceTime.Fixed = serviceFixed
	}
	if cmd.Flags().Changed("service-uniform-a") {
		cfg.ServiceTime.UniformA = serviceUniformA
	}
	if cmd.Flags().Changed("service-uniform-b") {
		cfg.ServiceTime.UniformB = serviceUniformB
	}
	if cmd.Flags().Changed("service-exp-rate") {
		cfg.ServiceTime.ExpLambda = serviceExpRate
	}
	if cmd.Flags().Changed("service-normal-mean") {
		cfg.ServiceTime.NormalMean = serviceNormMean
	}
	if cmd.Flags().Changed("service-normal-stdev") {
		cfg.ServiceTime.NormalStd = serviceNormStd
	}

	if cmd.Flags().Changed("avg-wait-threshold") {
		cfg.Scaling.AvgWaitThreshold = avgWaitThreshold
	}
	if cmd.Flags().Changed("scale-down-threshold") {
		cfg.Scaling.ScaleDownThreshold = scaleDownThreshold
	}
	if cmd.Flags().Changed("scaling-cooldown") {
		cfg.Scaling.Cooldown = scalingCooldown
	}
	if cmd.Flags().Changed("scaling-check-interval") {
		cfg.Scaling.CheckInterval = scalingInterval
	}
	if cmd.Flags().Changed("min-processors-per-type") {
		cfg.Scaling.MinPerKind = minPerType
	}
	if cmd.Flags().Changed("max-processors-per-type") {
		cfg.Scaling.MaxPerKind = maxPerType
	}

	if cmd.Flags().Changed("failure-probability") {
		cfg.Faults.P2FailureProbability = failureProbability
	}
	if cmd.Flags().Changed("idle-timeout") {
		cfg.Faults.IdleTimeout = idleTimeout
	}
	if cmd.Flags().Changed("client-timeout") {
		cfg.Faults.ClientTimeout = clientTimeout
	}
	if cmd.Flags().Changed("max-retries") {
		cfg.Faults.MaxRetries = maxRetries
	}

	if cmd.Flags().Changed("results") {
		cfg.ResultsPath = resultsPath
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().Float64Var(&durationSecs, "duration", 60.0, "simulation wall time, seconds")
	runCmd.Flags().Float64Var(&rate, "rate", 2.0, "requests per second per client")
	runCmd.Flags().Int64Var(&seed, "seed", 325, "master random seed")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")

	runCmd.Flags().StringVar(&serviceTimeType, "service-time-type", "exponential", "service time distribution (fixed|uniform|exponential|normal)")
	runCmd.Flags().Float64Var(&serviceFixed, "service-fixed", 1.0, "fixed service time, seconds")
	runCmd.Flags().Float64Var(&serviceUniformA, "service-uniform-a", 0.5, "uniform service time lower bound, seconds")
	runCmd.Flags().Float64Var(&serviceUniformB, "service-uniform-b", 2.0, "uniform service time upper bound, seconds")
	runCmd.Flags().Float64Var(&serviceExpRate, "service-exp-rate", 1.0, "exponential service time rate")
	runCmd.Flags().Float64Var(&serviceNormMean, "service-normal-mean", 1.0, "normal service time mean, seconds")
	runCmd.Flags().Float64Var(&serviceNormStd, "service-normal-stdev", 0.2, "normal service time stdev, seconds")

	runCmd.Flags().Float64Var(&avgWaitThreshold, "avg-wait-threshold", 5.0, "scale up when avg queue wait exceeds this, seconds")
	runCmd.Flags().Float64Var(&scaleDownThreshold, "scale-down-threshold", 1.5, "scale down when avg queue wait is below this, seconds")
	runCmd.Flags().DurationVar(&scalingCooldown, "scaling-cooldown", 10*time.Second, "minimum gap between scaling actions per kind")
	runCmd.Flags().DurationVar(&scalingInterval, "scaling-check-interval", time.Second, "autoscaler tick period")
	runCmd.Flags().IntVar(&minPerType, "min-processors-per-type", 1, "minimum stage-1 workers per kind")
	runCmd.Flags().IntVar(&maxPerType, "max-processors-per-type", 5, "maximum stage-1 workers per kind")

	runCmd.Flags().Float64Var(&failureProbability, "failure-probability", 0.025, "stage-2 per-request failure probability")
	runCmd.Flags().DurationVar(&idleTimeout, "idle-timeout", 60*time.Second, "stage-2 worker idle lifetime")
	runCmd.Flags().DurationVar(&clientTimeout, "client-timeout", 15*time.Second, "per-attempt client deadline")
	runCmd.Flags().IntVar(&maxRetries, "max-retries", 2, "retries per logical request")

	runCmd.Flags().StringVar(&resultsPath, "results", "simulation_results.json", "results output path")
	runCmd.Flags().StringVar(&scenarioFile, "scenario-file", "", "YAML scenario presets file")
	runCmd.Flags().StringVar(&scenarioName, "scenario", "", "scenario preset to apply")

	rootCmd.AddCommand(runCmd)
}
