package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	taskTotal      *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	taskInFlight   prometheus.Gauge
	taskRetryTotal *prometheus.CounterVec
	queueLag       *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	taskTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kp",
			Subsystem: "worker",
			Name:      "task_total",
			Help:      "Total processed pipeline tasks by kind and status.",
		},
		[]string{"service", "kind", "status"},
	)
	taskDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kp",
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "Pipeline task duration in seconds by kind and status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "kind", "status"},
	)
	taskInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kp",
			Subsystem: "worker",
			Name:      "task_in_flight",
			Help:      "Number of in-flight pipeline tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	taskRetryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kp",
			Subsystem: "worker",
			Name:      "task_retry_total",
			Help:      "Total precondition re-enqueues by task kind.",
		},
		[]string{"service", "kind"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kp",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between task readiness and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "kind"},
	)

	registry.MustRegister(taskTotal, taskDuration, taskInFlight, taskRetryTotal, queueLag)

	return &WorkerMetrics{
		registry:       registry,
		taskTotal:      taskTotal,
		taskDuration:   taskDuration,
		taskInFlight:   taskInFlight,
		taskRetryTotal: taskRetryTotal,
		queueLag:       queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartTask() {
	m.taskInFlight.Inc()
}

func (m *WorkerMetrics) FinishTask(service, kind string, duration time.Duration, err error) {
	m.taskInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.taskTotal.WithLabelValues(service, kind, status).Inc()
	m.taskDuration.WithLabelValues(service, kind, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) RecordRetry(service, kind string) {
	m.taskRetryTotal.WithLabelValues(service, kind).Inc()
}

func (m *WorkerMetrics) ObserveQueueLag(service, kind string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service, kind).Observe(lag.Seconds())
}
