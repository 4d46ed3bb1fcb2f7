package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels fits and runs that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels fits skipped after a failure and runs that aborted.
	OutcomeError = "error"
	// OutcomeUnavailable labels catalogue entries that were not available.
	OutcomeUnavailable = "unavailable"
)

var (
	fitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskmodel",
			Name:      "fits_total",
			Help:      "Total number of catalogue fits, partitioned by task, model and outcome.",
		},
		[]string{"task", "model", "outcome"},
	)

	fitDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riskmodel",
			Name:      "fit_seconds",
			Help:      "Model fit and evaluation latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"model"},
	)

	selectedScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "riskmodel",
			Name:      "selected_score",
			Help:      "Selection metric score of the most recently selected model per task.",
		},
		[]string{"task", "metric"},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskmodel",
			Name:      "runs_total",
			Help:      "Total number of pipeline task runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches riskmodel collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		fitsTotal,
		fitDurationSeconds,
		selectedScore,
		runsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveFit records a fit duration and outcome for one catalogue entry.
func ObserveFit(task, model string, duration time.Duration, outcome string) {
	fitsTotal.WithLabelValues(task, model, normalizeOutcome(outcome)).Inc()
	if outcome == OutcomeUnavailable {
		return
	}
	if duration < 0 {
		duration = 0
	}
	fitDurationSeconds.WithLabelValues(model).Observe(duration.Seconds())
}

// ObserveSelection records the winning score for a task.
func ObserveSelection(task, metric string, score float64) {
	selectedScore.WithLabelValues(task, metric).Set(score)
}

// ObserveRun counts one pipeline task run.
func ObserveRun(outcome string) {
	runsTotal.WithLabelValues(normalizeOutcome(outcome)).Inc()
}

func normalizeOutcome(outcome string) string {
	switch outcome {
	case OutcomeError, OutcomeUnavailable:
		return outcome
	default:
		return OutcomeSuccess
	}
}

// WriteTextfile gathers reg and writes it in the text exposition format to
// path, for pickup by a node exporter textfile collector.
func WriteTextfile(reg prometheus.Gatherer, path string) error {
	return prometheus.WriteToTextfile(path, reg)
}
