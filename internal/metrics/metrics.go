package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics holds Prometheus metrics shared by the pipeline, brain and executor
type EngineMetrics struct {
	RunsTotal        *prometheus.CounterVec // status
	RunDuration      prometheus.Histogram
	StepDuration     *prometheus.HistogramVec // agent
	StepErrorsTotal  *prometheus.CounterVec   // agent
	DecisionsTotal   *prometheus.CounterVec   // action
	SignalsEnqueued  prometheus.Counter
	QueueDepth       prometheus.Gauge
	OrdersPlaced     *prometheus.CounterVec // status
	LockDegradations prometheus.Counter
}

// Singleton registration guard: promauto panics on duplicate collector names,
// and tests construct multiple orchestrators in one process.
var (
	engineMetricsInstance *EngineMetrics
	engineMetricsOnce     sync.Once
)

// Engine returns the process-wide engine metrics instance
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineMetricsInstance = &EngineMetrics{
			RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Total number of pipeline runs by terminal status",
			}, []string{"status"}),
			RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "pipeline_run_duration_seconds",
				Help:    "Duration of a full pipeline run",
				Buckets: prometheus.DefBuckets,
			}),
			StepDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "pipeline_step_duration_seconds",
				Help:    "Duration of individual agent steps",
				Buckets: prometheus.DefBuckets,
			}, []string{"agent"}),
			StepErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "pipeline_step_errors_total",
				Help: "Total number of failed agent steps",
			}, []string{"agent"}),
			DecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "brain_decisions_total",
				Help: "Total number of brain decisions by action",
			}, []string{"action"}),
			SignalsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
				Name: "execution_signals_enqueued_total",
				Help: "Total number of trade signals pushed to the execution queue",
			}),
			QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "execution_queue_depth",
				Help: "Current length of the execution queue",
			}),
			OrdersPlaced: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "execution_orders_total",
				Help: "Total number of signal executions by outcome",
			}, []string{"status"}),
			LockDegradations: promauto.NewCounter(prometheus.CounterOpts{
				Name: "execution_lock_degradations_total",
				Help: "Times the signal lock degraded to a no-op because the store was unreachable",
			}),
		}
	})
	return engineMetricsInstance
}
