// Builds and writes the final results document.

package sim

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// WaitPercentiles summarizes the stage-1 queue wait distribution of one kind.
type WaitPercentiles struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// Results is the document written to simulation_results.json at shutdown.
type Results struct {
	TotalRequests       int                        `json:"total_requests"`
	Successful          int                        `json:"successful"`
	Failed              int                        `json:"failed"`
	Retries             int                        `json:"retries"`
	SuccessRate         float64                    `json:"success_rate"`
	AvgLatencySeconds   float64                    `json:"avg_latency_seconds"`
	ThroughputPerSecond float64                    `json:"throughput_per_second"`
	DurationSeconds     float64                    `json:"duration_seconds"`
	PerClient           map[string]ClientStats     `json:"per_client"`
	PerProcessor        map[string]ProcessorStats  `json:"per_processor"`
	QueueWait           map[string]WaitPercentiles `json:"queue_wait"`
	Scaling             *ScalingStatus             `json:"scaling,omitempty"`
}

// BuildResults folds the collected metrics into the report. elapsed is the
// wall time the pipeline actually ran.
func (c *Collector) BuildResults(elapsed time.Duration, scaling *ScalingStatus) Results {
	clients, processors, latencies, waits := c.snapshot()

	r := Results{
		DurationSeconds: elapsed.Seconds(),
		PerClient:       clients,
		PerProcessor:    processors,
		QueueWait:       make(map[string]WaitPercentiles, len(Kinds)),
		Scaling:         scaling,
	}
	for _, s := range clients {
		r.TotalRequests += s.Sent
		r.Successful += s.Successful
		r.Failed += s.Failed
		r.Retries += s.Retries
	}
	if r.TotalRequests > 0 {
		r.SuccessRate = float64(r.Successful) / float64(r.TotalRequests)
	}
	if len(latencies) > 0 {
		r.AvgLatencySeconds = stat.Mean(latencies, nil)
	}
	if elapsed > 0 {
		r.ThroughputPerSecond = float64(r.Successful) / elapsed.Seconds()
	}
	for _, k := range Kinds {
		r.QueueWait[k.String()] = waitPercentiles(waits[k])
	}
	return r
}

func waitPercentiles(samples []float64) WaitPercentiles {
	if len(samples) == 0 {
		return WaitPercentiles{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	return WaitPercentiles{
		P50: stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P95: stat.Quantile(0.95, stat.Empirical, sorted, nil),
		P99: stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
}

// WriteFile serializes the results as indented JSON.
func (r Results) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// LogSummary prints the human-readable run summary.
func (r Results) LogSummary() {
	logrus.Infof("Total requests: %d", r.TotalRequests)
	logrus.Infof("Successful: %d (%.1f%%)", r.Successful, r.SuccessRate*100)
	logrus.Infof("Failed: %d", r.Failed)
	logrus.Infof("Retried: %d", r.Retries)
	logrus.Infof("Average latency: %.2fs", r.AvgLatencySeconds)
	logrus.Infof("Throughput: %.2f req/s", r.ThroughputPerSecond)
}
