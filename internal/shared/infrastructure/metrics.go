package infrastructure

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"demandinsights/internal/shared/domain"
)

var (
	registryLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "registry",
		Name:      "lookups_total",
		Help:      "Model registry lookups by kind and result (hit, miss, shared, retry).",
	}, []string{"kind", "result"})

	trainingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "insights",
		Subsystem: "registry",
		Name:      "training_duration_seconds",
		Help:      "Wall-clock time spent in training functions.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"kind"})

	trainingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "registry",
		Name:      "training_failures_total",
		Help:      "Training functions that returned an error.",
	}, []string{"kind"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "insights",
		Subsystem: "engine",
		Name:      "request_duration_seconds",
		Help:      "End-to-end duration of analytics operations.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
	}, []string{"operation", "outcome"})
)

// ObserveRequest enregistre la durée d'une opération et son issue
func ObserveRequest(operation string, err error, elapsed time.Duration) {
	requestDuration.WithLabelValues(operation, Outcome(err)).Observe(elapsed.Seconds())
}

// Outcome classe une erreur en libellé de métrique
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "validation_error"
	case errors.Is(err, domain.ErrDataInsufficient):
		return "data_insufficient"
	case errors.Is(err, domain.ErrModelTraining):
		return "training_error"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}
