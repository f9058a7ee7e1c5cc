package dispatch

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "dispatch"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of request payloads handled, batches counting as one.
	Requests metrics.Counter
	// Number of calls executed, labeled by outcome.
	Calls metrics.Counter
	// Number of batch slots padded out after an earlier failure.
	PaddedCalls metrics.Counter
	// Number of elements per executed batch.
	BatchSize metrics.Histogram
	// Time spent blocked on the call guard, in seconds.
	GuardWait metrics.Histogram
	// Number of warnings attached to responses.
	Warnings metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Requests: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "requests_total",
			Help:      "Number of request payloads handled, batches counting as one.",
		}, labels).With(labelsAndValues...),
		Calls: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "calls_total",
			Help:      "Number of calls executed, labeled by outcome.",
		}, append(labels, "outcome")).With(labelsAndValues...),
		PaddedCalls: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "padded_calls_total",
			Help:      "Number of batch slots padded out after an earlier failure.",
		}, labels).With(labelsAndValues...),
		BatchSize: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "batch_size",
			Help:      "Number of elements per executed batch.",
		}, labels).With(labelsAndValues...),
		GuardWait: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "guard_wait_seconds",
			Help:      "Time spent blocked on the call guard, in seconds.",
		}, labels).With(labelsAndValues...),
		Warnings: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "warnings_total",
			Help:      "Number of warnings attached to responses.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Requests:    discard.NewCounter(),
		Calls:       discard.NewCounter(),
		PaddedCalls: discard.NewCounter(),
		BatchSize:   discard.NewHistogram(),
		GuardWait:   discard.NewHistogram(),
		Warnings:    discard.NewCounter(),
	}
}
