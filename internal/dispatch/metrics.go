package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/internal/tracking"
)

const metricsPrefix = "gpubench_"

var cycleLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    metricsPrefix + "reconcile_latency_seconds",
		Help:    "Reconciliation pass latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})

var launches = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: metricsPrefix + "launches_total",
		Help: "Number of benchmark containers launched",
	})

var launchFailures = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: metricsPrefix + "launch_failures_total",
		Help: "Number of benchmark container launches that failed",
	})

var jobStatuses = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: metricsPrefix + "jobs",
		Help: "Number of tracked jobs by status",
	},
	[]string{"status"},
)

func recordStatuses(records []tracking.JobRecord) {
	counts := map[tracking.Status]int{}
	for _, record := range records {
		counts[record.Status]++
	}
	for _, status := range []tracking.Status{
		tracking.Pending, tracking.Running, tracking.Stopped, tracking.BuildFailed,
	} {
		jobStatuses.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
