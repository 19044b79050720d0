package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dosync"

var (
	once sync.Once

	statusEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_evaluations_total",
			Help:      "Sync status evaluations by resulting status.",
		},
		[]string{"status"},
	)

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Sync lifecycle operations by operation and result.",
		},
		[]string{"operation", "result"},
	)

	importJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_jobs_total",
			Help:      "Import jobs processed by the worker pool, by result.",
		},
		[]string{"result"},
	)

	queueFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_fallbacks_total",
			Help:      "Queue operations served by the in-memory fallback.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(statusEvaluations, operations, importJobs, queueFallbacks)
	})
}

func IncEvaluation(status string) {
	statusEvaluations.WithLabelValues(status).Inc()
}

// IncOperation counts a lifecycle operation; result is "ok", "noop" or "error".
func IncOperation(operation, result string) {
	operations.WithLabelValues(operation, result).Inc()
}

func IncImportJob(result string) {
	importJobs.WithLabelValues(result).Inc()
}

func IncQueueFallback() {
	queueFallbacks.Inc()
}
