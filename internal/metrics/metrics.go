package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quiz"

// Metrics holds the Prometheus collectors of the quiz service.
type Metrics struct {
	Reconciles        *prometheus.CounterVec
	Grades            *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Scores            prometheus.Histogram
}

// New registers the collectors on reg. Each registry accepts one Metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Reconciles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_total",
				Help:      "Quiz reconciliations by outcome",
			},
			[]string{"outcome"},
		),
		Grades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "grade_total",
				Help:      "Grading attempts by outcome",
			},
			[]string{"outcome"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Quiz attempted notifications by outcome",
			},
			[]string{"outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Core operation latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		Scores: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "history_score",
				Help:      "Distribution of graded scores",
				Buckets:   prometheus.LinearBuckets(0, 10, 11),
			},
		),
	}
	reg.MustRegister(m.Reconciles, m.Grades, m.Notifications, m.OperationDuration, m.Scores)
	return m
}

// ObserveSince records the elapsed time of an operation started at start.
func (m *Metrics) ObserveSince(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
