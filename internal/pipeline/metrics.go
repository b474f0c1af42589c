package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// stageAttempts counts attempts by outcome.
	// Labels: stage, outcome (succeeded, retrying, failed)
	stageAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "etl",
		Subsystem: "stage",
		Name:      "attempts_total",
		Help:      "Stage attempts by outcome",
	}, []string{"stage", "outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "etl",
		Subsystem: "stage",
		Name:      "duration_seconds",
		Help:      "Wall time of a stage including retry waits",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"stage"})

	// stageRows counts rows moved by each stage.
	stageRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "etl",
		Subsystem: "stage",
		Name:      "rows_total",
		Help:      "Rows extracted, loaded or aggregated",
	}, []string{"stage"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "etl",
		Subsystem: "run",
		Name:      "total",
		Help:      "Finished runs by status",
	}, []string{"status"})

	// notifications counts alert deliveries.
	// Labels: outcome (sent, failed)
	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "etl",
		Subsystem: "notify",
		Name:      "alerts_total",
		Help:      "Failure alerts by delivery outcome",
	}, []string{"outcome"})
)
